package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errMissingCredentials = errors.New("gateway: missing bearer token")
	errUnknownCredentials = errors.New("gateway: unknown bearer token")
)

// Authenticator resolves a bearer token into the caller's confirmed address.
// Wallet custody and signature checking live outside this system; the static
// token table stands in for whatever identity provider fronts the gateway.
type Authenticator struct {
	identities map[string][20]byte
}

// NewAuthenticator builds an authenticator from a token -> hex address table.
// Malformed addresses are rejected up front so a typo in the deployment
// config fails loudly at boot.
func NewAuthenticator(tokens map[string]string) (*Authenticator, error) {
	identities := make(map[string][20]byte, len(tokens))
	for token, addr := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, errors.New("gateway: empty API token")
		}
		if !common.IsHexAddress(addr) {
			return nil, errors.New("gateway: malformed address for API token")
		}
		identities[token] = common.HexToAddress(addr)
	}
	return &Authenticator{identities: identities}, nil
}

// Authenticate extracts the caller identity from the Authorization header.
func (a *Authenticator) Authenticate(r *http.Request) ([20]byte, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return [20]byte{}, errMissingCredentials
	}
	caller, ok := a.identities[strings.TrimSpace(header[len(prefix):])]
	if !ok {
		return [20]byte{}, errUnknownCredentials
	}
	return caller, nil
}
