package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"daoescrow/core/events"
	"daoescrow/native/escrow"
	"daoescrow/state"
	"daoescrow/storage"
)

const (
	arbiterHex = "0x0101010101010101010101010101010101010101"
	payerHex   = "0x0202020202020202020202020202020202020202"
	payeeHex   = "0x0303030303030303030303030303030303030303"
)

func hexToAddr(t *testing.T, s string) [20]byte {
	t.Helper()
	require.True(t, common.IsHexAddress(s))
	return common.HexToAddress(s)
}

type testEnv struct {
	server *httptest.Server
	store  *state.Store
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := state.New(storage.NewMemDB(), map[string]uint8{"TOK": 6})
	ledger, err := escrow.NewLedger(hexToAddr(t, arbiterHex), 50)
	require.NoError(t, err)
	env := &testEnv{store: store, now: 1_700_000_000}
	ledger.SetState(store)
	ledger.SetNowFunc(func() int64 { return env.now })
	ring := events.NewRing(16)
	ledger.SetEmitter(ring)

	auth, err := NewAuthenticator(map[string]string{
		"arbiter-token": arbiterHex,
		"payer-token":   payerHex,
		"payee-token":   payeeHex,
	})
	require.NoError(t, err)

	srv := NewServer(ledger, auth, ring, nil)
	env.server = httptest.NewServer(srv.Handler(nil))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) createEscrow(t *testing.T) uint64 {
	t.Helper()
	require.NoError(t, e.store.CreditToken("TOK", hexToAddr(t, payerHex), big.NewInt(10_000_000)))
	resp := e.do(t, http.MethodPost, "/v1/escrows", "payer-token", map[string]any{
		"payee":       payeeHex,
		"asset":       "TOK",
		"amount":      "10000000",
		"deadline":    e.now + 1_000,
		"daoDeadline": e.now + 2_000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[map[string]uint64](t, resp)
	return body["escrowId"]
}

func TestCreateRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/v1/escrows", "", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/v1/escrows", "bogus", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEscrow(t)
	require.Zero(t, id)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/release", id), "payer-token", nil)
	snap := decodeBody[escrowSnapshot](t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "released", snap.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/withdraw", id), "payee-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[map[string]string](t, resp)
	require.Equal(t, "9950000", result["amount"])

	// The record is gone, so both reads and repeat withdrawals 404.
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/v1/escrows/%d", id), "payer-token", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/withdraw", id), "payee-token", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDisputeResolutionOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEscrow(t)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/dispute", id), "payer-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Only the arbiter may resolve.
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/resolve", id), "payer-token", map[string]string{"resolution": "released"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/resolve", id), "arbiter-token", map[string]string{"resolution": "released"})
	snap := decodeBody[escrowSnapshot](t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "disputed_released", snap.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/withdraw", id), "payee-token", nil)
	result := decodeBody[map[string]string](t, resp)
	require.Equal(t, "9500000", result["amount"], "flat arbitration fee applies")
}

func TestTemporalConflictsMapTo409(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEscrow(t)
	env.now += 5_000 // past both deadlines

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/release", id), "payer-token", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestMalformedInputsMapTo400(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/escrows", "payer-token", map[string]any{
		"payee": "not-an-address", "amount": "1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/v1/escrows", "payer-token", map[string]any{
		"payee": payeeHex, "amount": "ten",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/escrows/abc", "payer-token", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/fee", "payer-token", map[string]uint32{"basisPoints": 100})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/v1/admin/fee", "arbiter-token", map[string]uint32{"basisPoints": 600})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/v1/admin/fee", "arbiter-token", map[string]uint32{"basisPoints": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/v1/admin/arbiter", "arbiter-token", map[string]string{"arbiter": payeeHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The old arbiter identity has no authority left.
	resp = env.do(t, http.MethodPost, "/v1/admin/fee", "arbiter-token", map[string]uint32{"basisPoints": 50})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestFactsFeed(t *testing.T) {
	env := newTestEnv(t)
	env.createEscrow(t)

	resp := env.do(t, http.MethodGet, "/v1/facts", "payer-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}](t, resp)
	facts := body["facts"]
	require.Len(t, facts, 1)
	require.Equal(t, escrow.EventTypeCreated, facts[0].Type)
	require.Equal(t, "0", facts[0].Attributes["id"])
}
