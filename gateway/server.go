// Package gateway is the HTTP front-end for the escrow ledger. Every route
// maps 1:1 onto a ledger operation; the gateway itself holds no escrow state
// beyond the recent-facts ring it exposes to indexers.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"daoescrow/core/events"
	"daoescrow/gateway/middleware"
	"daoescrow/native/escrow"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server exposes the ledger operations over HTTP.
type Server struct {
	ledger        *escrow.Ledger
	authenticator *Authenticator
	facts         *events.Ring
	logger        *slog.Logger
}

// NewServer wires the ledger, authenticator and facts ring into a server. The
// facts ring may be nil when no facts feed is wanted.
func NewServer(ledger *escrow.Ledger, auth *Authenticator, facts *events.Ring, logger *slog.Logger) *Server {
	if ledger == nil {
		panic("gateway: ledger required")
	}
	if auth == nil {
		panic("gateway: authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ledger: ledger, authenticator: auth, facts: facts, logger: logger}
}

// Handler builds the chi router with observability middleware applied.
func (s *Server) Handler(obs *middleware.Observability) http.Handler {
	r := chi.NewRouter()
	if obs != nil {
		r.Use(obs.Middleware("escrow"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/escrows", s.handleCreate)
		v1.Get("/escrows/{id}", s.handleGet)
		v1.Post("/escrows/{id}/release", s.transitionHandler(s.ledger.Release))
		v1.Post("/escrows/{id}/return", s.transitionHandler(s.ledger.ReturnFunds))
		v1.Post("/escrows/{id}/release-after-deadline", s.transitionHandler(s.ledger.ReleaseAfterDeadline))
		v1.Post("/escrows/{id}/dispute", s.transitionHandler(s.ledger.Dispute))
		v1.Post("/escrows/{id}/dao-dispute", s.transitionHandler(s.ledger.DAODispute))
		v1.Post("/escrows/{id}/resolve", s.handleResolve)
		v1.Post("/escrows/{id}/withdraw", s.handleWithdraw)
		v1.Post("/admin/fee", s.handleFeeUpdate)
		v1.Post("/admin/arbiter", s.handleArbiterUpdate)
		v1.Get("/facts", s.handleFacts)
	})
	return r
}

type createRequest struct {
	Payee         string `json:"payee"`
	Asset         string `json:"asset,omitempty"`
	Amount        string `json:"amount"`
	Deadline      int64  `json:"deadline"`
	DAODeadline   int64  `json:"daoDeadline"`
	AttachedValue string `json:"attachedValue,omitempty"`
}

type escrowSnapshot struct {
	ID          uint64 `json:"id"`
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Deadline    int64  `json:"deadline"`
	DAODeadline int64  `json:"daoDeadline"`
	CreatedAt   int64  `json:"createdAt"`
	Status      string `json:"status"`
}

func snapshot(esc *escrow.Escrow) escrowSnapshot {
	asset := esc.Asset
	if asset == escrow.NativeAsset {
		asset = "native"
	}
	return escrowSnapshot{
		ID:          esc.ID,
		Payer:       common.BytesToAddress(esc.Payer[:]).Hex(),
		Payee:       common.BytesToAddress(esc.Payee[:]).Hex(),
		Asset:       asset,
		Amount:      esc.Amount.String(),
		Deadline:    esc.Deadline,
		DAODeadline: esc.DAODeadline,
		CreatedAt:   esc.CreatedAt,
		Status:      esc.Status.String(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrDeadlinePassed),
		errors.Is(err, escrow.ErrDeadlineNotReached):
		status = http.StatusConflict
	case errors.Is(err, escrow.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrTransferFailed):
		status = http.StatusBadGateway
	case errors.Is(err, errMissingCredentials), errors.Is(err, errUnknownCredentials):
		status = http.StatusUnauthorized
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return false
	}
	return true
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, err := s.authenticator.Authenticate(r)
	if err != nil {
		s.writeError(w, err)
		return [20]byte{}, false
	}
	return caller, true
}

func (s *Server) escrowID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed escrow id"})
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	return amount, ok
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Payee) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payee address"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount == nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed amount"})
		return
	}
	attached, ok := parseAmount(req.AttachedValue)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed attached value"})
		return
	}
	id, err := s.ledger.Create(caller, common.HexToAddress(req.Payee), req.Asset, amount, req.Deadline, req.DAODeadline, attached)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]uint64{"escrowId": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}
	esc, err := s.ledger.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot(esc))
}

// transitionHandler adapts the uniform (id, caller) ledger transitions into
// HTTP handlers.
func (s *Server) transitionHandler(op func(uint64, [20]byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.caller(w, r)
		if !ok {
			return
		}
		id, ok := s.escrowID(w, r)
		if !ok {
			return
		}
		if err := op(id, caller); err != nil {
			s.writeError(w, err)
			return
		}
		esc, err := s.ledger.Get(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, snapshot(esc))
	}
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	var resolution escrow.Status
	switch strings.ToLower(strings.TrimSpace(req.Resolution)) {
	case "released", "disputed_released":
		resolution = escrow.StatusDisputedReleased
	case "returned", "disputed_returned":
		resolution = escrow.StatusDisputedReturned
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resolution must be released or returned"})
		return
	}
	if err := s.ledger.Resolve(id, caller, resolution); err != nil {
		s.writeError(w, err)
		return
	}
	esc, err := s.ledger.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot(esc))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}
	recipient, paid, err := s.ledger.Withdraw(id, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"recipient": common.BytesToAddress(recipient[:]).Hex(),
		"amount":    paid.String(),
	})
}

type feeUpdateRequest struct {
	BasisPoints uint32 `json:"basisPoints"`
}

func (s *Server) handleFeeUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req feeUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.SetFeeBasisPoints(caller, req.BasisPoints); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint32{"basisPoints": req.BasisPoints})
}

type arbiterUpdateRequest struct {
	Arbiter string `json:"arbiter"`
}

func (s *Server) handleArbiterUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req arbiterUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Arbiter) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed arbiter address"})
		return
	}
	if err := s.ledger.SetArbiter(caller, common.HexToAddress(req.Arbiter)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"arbiter": common.HexToAddress(req.Arbiter).Hex()})
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	if s.facts == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"facts": []any{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"facts": s.facts.Recent()})
}
