package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonics/beacon/internal/canonical"
	"github.com/halcyonics/beacon/internal/feed"
	"github.com/halcyonics/beacon/internal/validate"
)

// handleInteraction accepts both signed interaction types. The pipeline is
// fixed: structural validation, signature format check, canonical message
// reconstruction, cryptographic verification, then the ledger transition.
// Nothing is written before the signature verifies.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	body, err := readBody(r)
	if err != nil {
		writeFieldErrors(w, []string{"body: unreadable"})
		return
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		writeFieldErrors(w, []string{"body: must be a JSON object"})
		return
	}

	switch head.Type {
	case "check-in":
		s.handleCheckIn(ctx, w, body)
	case "task-response":
		s.handleTaskResponse(ctx, w, body)
	default:
		writeFieldErrors(w, []string{`type: must be "check-in" or "task-response"`})
	}
}

func (s *Server) handleCheckIn(ctx context.Context, w http.ResponseWriter, body []byte) {
	p, errs := validate.ParseCheckIn(body)
	if errs != nil {
		writeFieldErrors(w, errs)
		return
	}
	if err := validate.CheckSignatureFormat(p.Signature); err != nil {
		writeCondition(w, http.StatusBadRequest, "malformed_signature", err.Error())
		return
	}

	msg := canonical.CheckInMessage(p.Timestamp)
	if err := s.verifier.Verify(ctx, msg, p.Signature, p.Address); err != nil {
		s.writeProtocolError(w, err)
		return
	}

	// Already validated as canonical; parse cannot fail here.
	ts, _ := validate.CanonicalTimestamp(p.Timestamp)
	now := time.Now().UTC()

	rec, err := s.ledger.RecordCheckIn(ctx, p.Address, ts, now)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}

	s.log.Info("check-in recorded",
		zap.String("address", p.Address),
		zap.Int("count", rec.CheckInCount))
	s.hub.Broadcast(feed.EventCheckIn, now, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTaskResponse(ctx context.Context, w http.ResponseWriter, body []byte) {
	p, errs := validate.ParseResponse(body)
	if errs != nil {
		writeFieldErrors(w, errs)
		return
	}
	if err := validate.CheckSignatureFormat(p.Signature); err != nil {
		writeCondition(w, http.StatusBadRequest, "malformed_signature", err.Error())
		return
	}

	msg := canonical.ResponseMessage(p.MessageID, p.Response)
	if err := s.verifier.Verify(ctx, msg, p.Signature, p.Address); err != nil {
		s.writeProtocolError(w, err)
		return
	}

	now := time.Now().UTC()
	resp, updated, err := s.ledger.SubmitResponse(ctx, p.MessageID, p.Address, p.Response, p.Signature, now)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}

	s.log.Info("response recorded",
		zap.String("address", p.Address),
		zap.String("messageId", p.MessageID),
		zap.Int("responseCount", updated.ResponseCount))
	s.hub.Broadcast(feed.EventResponse, now, resp)
	writeJSON(w, http.StatusCreated, map[string]any{
		"response":      resp,
		"responseCount": updated.ResponseCount,
	})
}

// readBody reads the full request body.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
