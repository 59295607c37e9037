// escrowctl is a thin command line client for the escrow gateway.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: escrowctl [flags] <command> [args]

Commands:
  create -payee ADDR -amount N [-asset SYMBOL] -deadline UNIX -dao-deadline UNIX [-attached N]
  get ID
  release ID
  return ID
  release-after-deadline ID
  dispute ID
  dao-dispute ID
  resolve ID released|returned
  withdraw ID
  fee BPS
  arbiter ADDR
  facts

Flags:
`)
	flag.PrintDefaults()
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.base, "/")+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") == nil {
		payload = pretty.Bytes()
	}
	fmt.Println(string(payload))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}

func main() {
	gatewayURL := flag.String("gateway", "http://127.0.0.1:8081", "escrow gateway base URL")
	token := flag.String("auth", os.Getenv("ESCROWCTL_TOKEN"), "bearer token identifying the caller")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	c := &client{base: *gatewayURL, token: *token, http: &http.Client{Timeout: *timeout}}

	var err error
	switch cmd := args[0]; cmd {
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		payee := fs.String("payee", "", "payee hex address")
		asset := fs.String("asset", "", "token symbol, empty for native currency")
		amount := fs.String("amount", "", "amount in base units")
		deadline := fs.Int64("deadline", 0, "unix deadline for party transitions")
		daoDeadline := fs.Int64("dao-deadline", 0, "unix deadline for arbiter rulings")
		attached := fs.String("attached", "", "attached native value in base units")
		_ = fs.Parse(args[1:])
		err = c.do(http.MethodPost, "/v1/escrows", map[string]any{
			"payee":         *payee,
			"asset":         *asset,
			"amount":        *amount,
			"deadline":      *deadline,
			"daoDeadline":   *daoDeadline,
			"attachedValue": *attached,
		})
	case "get":
		err = c.do(http.MethodGet, "/v1/escrows/"+requireArg(args, 1, "escrow id"), nil)
	case "release", "return", "release-after-deadline", "dispute", "dao-dispute", "withdraw":
		err = c.do(http.MethodPost, "/v1/escrows/"+requireArg(args, 1, "escrow id")+"/"+cmd, nil)
	case "resolve":
		id := requireArg(args, 1, "escrow id")
		resolution := requireArg(args, 2, "resolution (released|returned)")
		err = c.do(http.MethodPost, "/v1/escrows/"+id+"/resolve", map[string]string{"resolution": resolution})
	case "fee":
		var bps uint32
		if _, scanErr := fmt.Sscanf(requireArg(args, 1, "basis points"), "%d", &bps); scanErr != nil {
			fmt.Fprintln(os.Stderr, "fee: basis points must be an integer")
			os.Exit(2)
		}
		err = c.do(http.MethodPost, "/v1/admin/fee", map[string]uint32{"basisPoints": bps})
	case "arbiter":
		err = c.do(http.MethodPost, "/v1/admin/arbiter", map[string]string{"arbiter": requireArg(args, 1, "arbiter address")})
	case "facts":
		err = c.do(http.MethodGet, "/v1/facts", nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireArg(args []string, idx int, name string) string {
	if len(args) <= idx {
		fmt.Fprintf(os.Stderr, "missing argument: %s\n", name)
		os.Exit(2)
	}
	return args[idx]
}
