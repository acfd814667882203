package server

import (
	"net/http"

	"github.com/halcyonics/beacon/internal/validate"
)

// handleCurrentMessage returns the active task message, or a null body when
// no message is current.
func (s *Server) handleCurrentMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.ledger.Current(r.Context())
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// handleArchivedMessage returns a message by id, archived or current.
func (s *Server) handleArchivedMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.ledger.Message(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleAgentView returns everything the core records about one subject: its
// profile (registered or provisional), check-in record, and response index.
func (s *Server) handleAgentView(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if !validate.ValidAddress(addr) {
		writeFieldErrors(w, []string{"address: not a valid mainnet address"})
		return
	}
	ctx := r.Context()

	subject, err := s.ledger.LookupSubject(ctx, addr)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	checkIn, err := s.ledger.CheckInFor(ctx, addr)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	index, err := s.ledger.ResponseIndexFor(ctx, addr)
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject":       subject,
		"checkIn":       checkIn,
		"responseIndex": index,
	})
}
