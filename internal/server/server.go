// Package server exposes the signed-interaction protocol over HTTP. Handlers
// do structural validation, reconstruct the canonical message, call the
// external verifier, and then apply the state transition through the ledger.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonics/beacon/internal/feed"
	"github.com/halcyonics/beacon/internal/kv"
	"github.com/halcyonics/beacon/internal/ledger"
	"github.com/halcyonics/beacon/internal/verifier"
	"github.com/halcyonics/beacon/internal/window"
)

// requestTimeout bounds the processing of a single interaction. Requests that
// exceed it fail closed: the context cancels before any further write.
const requestTimeout = 10 * time.Second

// Server is the beacon HTTP API.
type Server struct {
	ledger         *ledger.Ledger
	verifier       verifier.Verifier
	hub            *feed.Hub
	adminTokenHash string
	log            *zap.Logger
	limiter        *rateLimiter
	mux            *http.ServeMux
}

// New creates a Server with all routes registered.
func New(store kv.Store, vf verifier.Verifier, hub *feed.Hub, adminTokenHash string, log *zap.Logger) *Server {
	s := &Server{
		ledger:         ledger.New(store),
		verifier:       vf,
		hub:            hub,
		adminTokenHash: adminTokenHash,
		log:            log,
		limiter:        newRateLimiter(60, time.Minute),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Ledger exposes the underlying ledger, for the CLI and tests.
func (s *Server) Ledger() *ledger.Ledger {
	return s.ledger
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(getIP(r)) {
		writeCondition(w, http.StatusTooManyRequests, "rate_limited", "too many requests from this address")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Public
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/message", s.handleCurrentMessage)
	s.mux.HandleFunc("GET /api/messages/{id}", s.handleArchivedMessage)
	s.mux.HandleFunc("GET /api/agents/{address}", s.handleAgentView)

	// Signed interactions
	s.mux.HandleFunc("POST /api/interactions", s.handleInteraction)

	// Admin (X-Admin-Token auth)
	s.mux.HandleFunc("POST /api/admin/message", s.handleRotateMessage)
	s.mux.HandleFunc("POST /api/admin/agents", s.handleRegisterAgent)
	s.mux.HandleFunc("POST /api/admin/payout", s.handleRecordPayout)

	// Event feed
	s.mux.Handle("GET /api/events", s.hub)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "beacon",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeCondition writes a named failure condition so clients can tell
// retry-later conditions apart from permanent rejections.
func writeCondition(w http.ResponseWriter, status int, condition, msg string) {
	writeJSON(w, status, map[string]string{
		"condition": condition,
		"error":     msg,
	})
}

// writeFieldErrors writes the exhaustive list of structural violations.
func writeFieldErrors(w http.ResponseWriter, errs []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"condition": "malformed_input",
		"errors":    errs,
	})
}

// writeProtocolError translates ledger, window, and verifier errors into the
// failure taxonomy. Anything unrecognized is an upstream failure: the request
// is rejected without guessing success.
func (s *Server) writeProtocolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, window.ErrStaleTimestamp):
		writeCondition(w, http.StatusBadRequest, "stale_timestamp", err.Error())
	case errors.Is(err, window.ErrFutureTimestamp):
		writeCondition(w, http.StatusBadRequest, "future_timestamp", err.Error())
	case errors.Is(err, window.ErrRateLimited):
		writeCondition(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, verifier.ErrBadSignature):
		writeCondition(w, http.StatusUnauthorized, "bad_signature", err.Error())
	case errors.Is(err, ledger.ErrMessageNotActive):
		writeCondition(w, http.StatusConflict, "message_not_active", err.Error())
	case errors.Is(err, ledger.ErrAlreadyResponded):
		writeCondition(w, http.StatusConflict, "already_responded", err.Error())
	case errors.Is(err, ledger.ErrNoMatchingResponse):
		writeCondition(w, http.StatusConflict, "no_matching_response", err.Error())
	case errors.Is(err, ledger.ErrDuplicatePayout):
		writeCondition(w, http.StatusConflict, "duplicate_payout", err.Error())
	case errors.Is(err, ledger.ErrMessageNotFound):
		writeCondition(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.log.Error("upstream failure", zap.Error(err))
		writeCondition(w, http.StatusServiceUnavailable, "unavailable", "service unavailable")
	}
}
