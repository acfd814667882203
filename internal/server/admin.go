package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonics/beacon/internal/auth"
	"github.com/halcyonics/beacon/internal/feed"
	"github.com/halcyonics/beacon/internal/ledger"
	"github.com/halcyonics/beacon/internal/validate"
)

// adminAuth checks the X-Admin-Token header against the stored token hash.
// Returns false (writing a 401) if the header is missing or incorrect.
func (s *Server) adminAuth(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get("X-Admin-Token")
	if token == "" || !auth.VerifyToken(token, s.adminTokenHash) {
		writeCondition(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
		return false
	}
	return true
}

// handleRotateMessage closes the current task message and makes a new one
// current.
func (s *Server) handleRotateMessage(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	body, err := readBody(r)
	if err != nil {
		writeFieldErrors(w, []string{"body: unreadable"})
		return
	}
	p, errs := validate.ParseRotate(body)
	if errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	now := time.Now().UTC()
	closedAt := now
	if p.ClosedAt != "" {
		// Already validated as canonical; parse cannot fail here.
		closedAt, _ = validate.CanonicalTimestamp(p.ClosedAt)
	}
	msg, err := s.ledger.RotateAt(ctx, p.Content, closedAt, now)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}

	s.log.Info("message rotated", zap.String("messageId", msg.ID))
	s.hub.Broadcast(feed.EventRotation, now, msg)
	writeJSON(w, http.StatusCreated, msg)
}

// handleRegisterAgent stores a registered subject record for an address,
// upgrading any provisional one.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	body, err := readBody(r)
	if err != nil {
		writeFieldErrors(w, []string{"body: unreadable"})
		return
	}
	p, errs := validate.ParseRegister(body)
	if errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	subject := ledger.NewRegisteredSubject(p.Address, p.Name, time.Now().UTC())
	if err := s.ledger.RegisterSubject(ctx, subject); err != nil {
		s.writeProtocolError(w, err)
		return
	}

	s.log.Info("agent registered",
		zap.String("address", p.Address),
		zap.String("name", p.Name))
	writeJSON(w, http.StatusCreated, subject)
}

// handleRecordPayout records reward evidence for an existing response.
func (s *Server) handleRecordPayout(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	body, err := readBody(r)
	if err != nil {
		writeFieldErrors(w, []string{"body: unreadable"})
		return
	}
	p, errs := validate.ParsePayout(body)
	if errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	paidAt, _ := validate.CanonicalTimestamp(p.PaidAt)
	payout := &ledger.Payout{
		MessageID:      p.MessageID,
		BTCAddress:     p.BTCAddress,
		RewardTxid:     p.RewardTxid,
		RewardSatoshis: p.RewardSatoshis,
		PaidAt:         paidAt,
	}
	if err := s.ledger.RecordPayout(ctx, payout); err != nil {
		s.writeProtocolError(w, err)
		return
	}

	s.log.Info("payout recorded",
		zap.String("address", p.BTCAddress),
		zap.String("messageId", p.MessageID),
		zap.Int64("satoshis", p.RewardSatoshis))
	s.hub.Broadcast(feed.EventPayout, time.Now().UTC(), payout)
	writeJSON(w, http.StatusCreated, payout)
}
