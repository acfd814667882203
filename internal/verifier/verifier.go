// Package verifier is the boundary to the external cryptographic
// verification collaborator. The protocol core only prepares canonical
// messages and format-checks signatures; whether a signature actually
// recovers to the claimed address is decided on the other side of this
// interface.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBadSignature is returned when the collaborator determines the signature
// does not match the claimed address. Any other error from Verify is an
// upstream failure, not a verdict.
var ErrBadSignature = errors.New("signature does not verify for the claimed address")

// Verifier checks that signature is valid for message under the key behind
// address on the expected network.
type Verifier interface {
	Verify(ctx context.Context, message, signature, address string) error
}

// Remote verifies signatures against an HTTP verification service.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a Remote against the service at url.
func NewRemote(url string) *Remote {
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Verify posts the canonical message, signature, and claimed address to the
// verification service and interprets its verdict.
func (r *Remote) Verify(ctx context.Context, message, signature, address string) error {
	body, err := json.Marshal(verifyRequest{
		Address:   address,
		Message:   message,
		Signature: signature,
	})
	if err != nil {
		return fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("verifier unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}

	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if !verdict.Valid {
		return ErrBadSignature
	}
	return nil
}
