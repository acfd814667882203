package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonics/beacon/internal/auth"
	"github.com/halcyonics/beacon/internal/feed"
	"github.com/halcyonics/beacon/internal/kv"
	"github.com/halcyonics/beacon/internal/ledger"
	"github.com/halcyonics/beacon/internal/validate"
	"github.com/halcyonics/beacon/internal/verifier"
)

const (
	testAddr  = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	testToken = "test-admin-token"
)

var testSig = strings.Repeat("ab", 65)

// fakeVerifier approves or rejects everything, counting invocations.
type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, message, signature, address string) error {
	f.calls++
	return f.err
}

func newTestServer(t *testing.T, vf verifier.Verifier) *Server {
	t.Helper()
	store, err := kv.NewSqlite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	log := zap.NewNop()
	return New(store, vf, feed.NewHub(log), auth.HashToken(testToken), log)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": testToken}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func nowTimestamp() string {
	return time.Now().UTC().Format(validate.TimestampLayout)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := doJSON(t, s, http.MethodGet, "/api/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCheckInFirstTime(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": testSig,
		"timestamp": nowTimestamp(),
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var rec ledger.CheckInRecord
	decodeBody(t, w, &rec)
	if rec.CheckInCount != 1 || rec.Address != testAddr {
		t.Errorf("record = %+v", rec)
	}
}

func TestCheckInRateLimited(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": testSig,
		"timestamp": nowTimestamp(),
	}
	if w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}

	body["timestamp"] = nowTimestamp()
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second: status = %d, want 429", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "rate_limited" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func TestCheckInStaleTimestamp(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	stale := time.Now().UTC().Add(-10 * time.Minute).Format(validate.TimestampLayout)
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": testSig,
		"timestamp": stale,
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "stale_timestamp" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func TestCheckInMalformedSignatureSkipsVerifier(t *testing.T) {
	vf := &fakeVerifier{}
	s := newTestServer(t, vf)
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": "zz...zz not a signature",
		"timestamp": nowTimestamp(),
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "malformed_signature" {
		t.Errorf("condition = %q", cond["condition"])
	}
	if vf.calls != 0 {
		t.Errorf("verifier invoked %d times before format check", vf.calls)
	}
}

func TestCheckInBadSignature(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{err: verifier.ErrBadSignature})
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": testSig,
		"timestamp": nowTimestamp(),
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCheckInVerifierDown(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{err: errors.New("connection refused")})
	body := map[string]string{
		"type":      "check-in",
		"address":   testAddr,
		"signature": testSig,
		"timestamp": nowTimestamp(),
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	// Nothing may be committed on upstream failure.
	rec, _ := s.Ledger().CheckInFor(context.Background(), testAddr)
	if rec != nil {
		t.Errorf("state touched despite upstream failure: %+v", rec)
	}
}

func TestInteractionValidationErrorsExhaustive(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	body := map[string]string{
		"type":      "check-in",
		"address":   "bad",
		"signature": " ",
		"timestamp": "yesterday",
	}
	w := doJSON(t, s, http.MethodPost, "/api/interactions", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Condition string   `json:"condition"`
		Errors    []string `json:"errors"`
	}
	decodeBody(t, w, &resp)
	if resp.Condition != "malformed_input" || len(resp.Errors) != 3 {
		t.Errorf("resp = %+v, want 3 field errors", resp)
	}
}

func TestInteractionUnknownType(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := doJSON(t, s, http.MethodPost, "/api/interactions", map[string]string{"type": "ping"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func rotate(t *testing.T, s *Server, content string) ledger.TaskMessage {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/admin/message", map[string]string{"content": content}, adminHeaders())
	if w.Code != http.StatusCreated {
		t.Fatalf("rotate: %d %s", w.Code, w.Body.String())
	}
	var msg ledger.TaskMessage
	decodeBody(t, w, &msg)
	return msg
}

func TestRotateRequiresAdminToken(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := doJSON(t, s, http.MethodPost, "/api/admin/message", map[string]string{"content": "Q"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/admin/message", map[string]string{"content": "Q"},
		map[string]string{"X-Admin-Token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", w.Code)
	}
}

func TestRotateLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})

	q1 := rotate(t, s, "Q1")
	if q1.ResponseCount != 0 || q1.ClosedAt != nil {
		t.Errorf("Q1 = %+v", q1)
	}

	q2 := rotate(t, s, "Q2")

	var cur struct {
		Message *ledger.TaskMessage `json:"message"`
	}
	w := doJSON(t, s, http.MethodGet, "/api/message", nil, nil)
	decodeBody(t, w, &cur)
	if cur.Message == nil || cur.Message.ID != q2.ID {
		t.Fatalf("current = %+v, want Q2", cur.Message)
	}

	w = doJSON(t, s, http.MethodGet, "/api/messages/"+q1.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archived: %d", w.Code)
	}
	var archived ledger.TaskMessage
	decodeBody(t, w, &archived)
	if archived.ClosedAt == nil {
		t.Error("Q1 not stamped closed after rotation")
	}
}

func TestCurrentMessageNull(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := doJSON(t, s, http.MethodGet, "/api/message", nil, nil)
	var cur struct {
		Message *ledger.TaskMessage `json:"message"`
	}
	decodeBody(t, w, &cur)
	if cur.Message != nil {
		t.Errorf("message = %+v, want null", cur.Message)
	}
}

func submitResponse(t *testing.T, s *Server, messageID, text string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, s, http.MethodPost, "/api/interactions", map[string]string{
		"type":      "task-response",
		"address":   testAddr,
		"messageId": messageID,
		"signature": testSig,
		"response":  text,
	}, nil)
}

func TestTaskResponseFlow(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	msg := rotate(t, s, "Q1")

	w := submitResponse(t, s, msg.ID, "my answer")
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Response      ledger.Response `json:"response"`
		ResponseCount int             `json:"responseCount"`
	}
	decodeBody(t, w, &resp)
	if resp.Response.Response != "my answer" || resp.ResponseCount != 1 {
		t.Errorf("resp = %+v", resp)
	}

	// First submission is final.
	w = submitResponse(t, s, msg.ID, "changed my mind")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "already_responded" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func TestTaskResponseNoActiveMessage(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := submitResponse(t, s, "ghost-id", "answer")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "message_not_active" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func payoutBody(messageID string) map[string]any {
	return map[string]any{
		"btcAddress":     testAddr,
		"messageId":      messageID,
		"rewardTxid":     strings.Repeat("0f", 32),
		"rewardSatoshis": 5000,
		"paidAt":         nowTimestamp(),
	}
}

func TestPayoutRequiresResponse(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	msg := rotate(t, s, "Q1")

	w := doJSON(t, s, http.MethodPost, "/api/admin/payout", payoutBody(msg.ID), adminHeaders())
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "no_matching_response" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func TestPayoutFlow(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	msg := rotate(t, s, "Q1")
	if w := submitResponse(t, s, msg.ID, "answer"); w.Code != http.StatusCreated {
		t.Fatalf("submit: %d", w.Code)
	}

	w := doJSON(t, s, http.MethodPost, "/api/admin/payout", payoutBody(msg.ID), adminHeaders())
	if w.Code != http.StatusCreated {
		t.Fatalf("payout: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodPost, "/api/admin/payout", payoutBody(msg.ID), adminHeaders())
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate payout: %d", w.Code)
	}
	var cond map[string]string
	decodeBody(t, w, &cond)
	if cond["condition"] != "duplicate_payout" {
		t.Errorf("condition = %q", cond["condition"])
	}
}

func TestAgentView(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	msg := rotate(t, s, "Q1")
	submitResponse(t, s, msg.ID, "answer")

	w := doJSON(t, s, http.MethodGet, "/api/agents/"+testAddr, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view struct {
		Subject       ledger.Subject        `json:"subject"`
		CheckIn       *ledger.CheckInRecord `json:"checkIn"`
		ResponseIndex ledger.ResponseIndex  `json:"responseIndex"`
	}
	decodeBody(t, w, &view)
	if view.Subject.Kind != ledger.SubjectProvisional {
		t.Errorf("subject = %+v, want provisional", view.Subject)
	}
	if view.CheckIn != nil {
		t.Errorf("checkIn = %+v, want null", view.CheckIn)
	}
	if len(view.ResponseIndex.MessageIDs) != 1 {
		t.Errorf("index = %+v", view.ResponseIndex)
	}
}

func TestAgentViewBadAddress(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	w := doJSON(t, s, http.MethodGet, "/api/agents/not-an-address", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRotateWithExplicitClosedAt(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})
	q1 := rotate(t, s, "Q1")

	closedAt := "2026-03-01T12:30:00.000Z"
	w := doJSON(t, s, http.MethodPost, "/api/admin/message",
		map[string]string{"content": "Q2", "closedAt": closedAt}, adminHeaders())
	if w.Code != http.StatusCreated {
		t.Fatalf("rotate: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/messages/"+q1.ID, nil, nil)
	var archived ledger.TaskMessage
	decodeBody(t, w, &archived)
	want, _ := validate.CanonicalTimestamp(closedAt)
	if archived.ClosedAt == nil || !archived.ClosedAt.Equal(want) {
		t.Errorf("Q1 closedAt = %v, want %v", archived.ClosedAt, want)
	}

	// Non-canonical closedAt is a field violation.
	w = doJSON(t, s, http.MethodPost, "/api/admin/message",
		map[string]string{"content": "Q3", "closedAt": "2026-03-01T13:00:00Z"}, adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-canonical closedAt: %d", w.Code)
	}
}

func TestRegisterAgent(t *testing.T) {
	s := newTestServer(t, &fakeVerifier{})

	w := doJSON(t, s, http.MethodPost, "/api/admin/agents",
		map[string]string{"address": testAddr, "name": "nightowl"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/admin/agents",
		map[string]string{"address": testAddr, "name": "nightowl"}, adminHeaders())
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}

	var view struct {
		Subject ledger.Subject `json:"subject"`
	}
	w = doJSON(t, s, http.MethodGet, "/api/agents/"+testAddr, nil, nil)
	decodeBody(t, w, &view)
	if view.Subject.Kind != ledger.SubjectRegistered || view.Subject.Name != "nightowl" {
		t.Errorf("subject = %+v, want registered nightowl", view.Subject)
	}
	if view.Subject.RegisteredAt == nil {
		t.Error("registeredAt missing")
	}

	w = doJSON(t, s, http.MethodPost, "/api/admin/agents",
		map[string]string{"address": "nope", "name": ""}, adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid register: %d", w.Code)
	}
}
