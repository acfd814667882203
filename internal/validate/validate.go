// Package validate performs structural validation of inbound interaction
// payloads: types, lengths, encodings, and canonical timestamp form. All
// violations for a body are reported together so a client can fix every field
// in one round-trip. Nothing here touches storage or cryptography.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxResponseLen is the ceiling, in runes, on a task response's text.
const MaxResponseLen = 1000

// TimestampLayout is the canonical timestamp form: UTC, millisecond
// precision, Z suffix. A timestamp is accepted only if it round-trips to
// exactly this form, which removes ambiguity about what was signed.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// txidLen is the length of a hex-encoded transaction id.
const txidLen = 64

var (
	// Legacy and P2SH addresses: base58, fixed prefix, bounded length.
	base58AddrRe = regexp.MustCompile(`^[13][1-9A-HJ-NP-Za-km-z]{25,34}$`)
	// Native segwit addresses: bc1 prefix, bech32 character class.
	bech32AddrRe = regexp.MustCompile(`^bc1[02-9ac-hj-np-z]{11,71}$`)

	txidRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// CheckInPayload is a validated liveness check-in request.
type CheckInPayload struct {
	Address   string
	Signature string
	Timestamp string
}

// ResponsePayload is a validated task-response request.
type ResponsePayload struct {
	Address   string
	MessageID string
	Signature string
	Response  string
}

// PayoutPayload is a validated payout-recording request.
type PayoutPayload struct {
	BTCAddress     string
	MessageID      string
	RewardTxid     string
	RewardSatoshis int64
	PaidAt         string
}

// RotatePayload is a validated message-rotation request. ClosedAt is empty
// when the caller did not supply an explicit close stamp for the outgoing
// message.
type RotatePayload struct {
	Content  string
	ClosedAt string
}

// RegisterPayload is a validated agent-registration request.
type RegisterPayload struct {
	Address string
	Name    string
}

// ParseCheckIn validates a raw check-in body. On failure it returns a nil
// payload and every field-level violation found.
func ParseCheckIn(body []byte) (*CheckInPayload, []string) {
	obj, errs := decodeObject(body)
	if obj == nil {
		return nil, errs
	}

	p := &CheckInPayload{}
	p.Address = requireAddress(obj, "address", &errs)
	p.Signature = requireString(obj, "signature", &errs)
	p.Timestamp = requireTimestamp(obj, "timestamp", &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ParseResponse validates a raw task-response body.
func ParseResponse(body []byte) (*ResponsePayload, []string) {
	obj, errs := decodeObject(body)
	if obj == nil {
		return nil, errs
	}

	p := &ResponsePayload{}
	p.Address = requireAddress(obj, "address", &errs)
	p.MessageID = requireString(obj, "messageId", &errs)
	p.Signature = requireString(obj, "signature", &errs)
	p.Response = requireString(obj, "response", &errs)

	if p.Response != "" && utf8.RuneCountInString(p.Response) > MaxResponseLen {
		errs = append(errs, fmt.Sprintf("response: exceeds %d character limit", MaxResponseLen))
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ParsePayout validates a raw payout-recording body.
func ParsePayout(body []byte) (*PayoutPayload, []string) {
	obj, errs := decodeObject(body)
	if obj == nil {
		return nil, errs
	}

	p := &PayoutPayload{}
	p.BTCAddress = requireAddress(obj, "btcAddress", &errs)
	p.MessageID = requireString(obj, "messageId", &errs)
	p.RewardTxid = requireTxid(obj, "rewardTxid", &errs)
	p.RewardSatoshis = requirePositiveInt(obj, "rewardSatoshis", &errs)
	p.PaidAt = requireTimestamp(obj, "paidAt", &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ParseRotate validates a raw message-rotation body.
func ParseRotate(body []byte) (*RotatePayload, []string) {
	obj, errs := decodeObject(body)
	if obj == nil {
		return nil, errs
	}

	p := &RotatePayload{}
	p.Content = requireString(obj, "content", &errs)
	p.ClosedAt = optionalTimestamp(obj, "closedAt", &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ParseRegister validates a raw agent-registration body.
func ParseRegister(body []byte) (*RegisterPayload, []string) {
	obj, errs := decodeObject(body)
	if obj == nil {
		return nil, errs
	}

	p := &RegisterPayload{}
	p.Address = requireAddress(obj, "address", &errs)
	p.Name = requireString(obj, "name", &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// ValidAddress reports whether s has the shape of a mainnet address.
func ValidAddress(s string) bool {
	return base58AddrRe.MatchString(s) || bech32AddrRe.MatchString(s)
}

// CanonicalTimestamp parses s and reports whether it is in exactly the
// canonical form. A "valid" RFC 3339 string that is not canonical (wrong
// precision, offset instead of Z) is rejected.
func CanonicalTimestamp(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	if t.UTC().Format(TimestampLayout) != s {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// decodeObject decodes body into a JSON object. A non-object body yields a
// single error and no further checks.
func decodeObject(body []byte) (map[string]json.RawMessage, []string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, []string{"body: must be a JSON object"}
	}
	return obj, nil
}

// requireString extracts a required string field, rejecting missing fields,
// non-strings, and values that are empty after trimming.
func requireString(obj map[string]json.RawMessage, name string, errs *[]string) string {
	raw, ok := obj[name]
	if !ok {
		*errs = append(*errs, name+": required")
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		*errs = append(*errs, name+": must be a string")
		return ""
	}
	if strings.TrimSpace(s) == "" {
		*errs = append(*errs, name+": must not be empty")
		return ""
	}
	return s
}

func requireAddress(obj map[string]json.RawMessage, name string, errs *[]string) string {
	s := requireString(obj, name, errs)
	if s == "" {
		return ""
	}
	if !ValidAddress(s) {
		*errs = append(*errs, name+": not a valid mainnet address")
		return ""
	}
	return s
}

func requireTxid(obj map[string]json.RawMessage, name string, errs *[]string) string {
	s := requireString(obj, name, errs)
	if s == "" {
		return ""
	}
	if !txidRe.MatchString(s) {
		*errs = append(*errs, fmt.Sprintf("%s: must be exactly %d hex characters", name, txidLen))
		return ""
	}
	return s
}

// optionalTimestamp extracts an optional canonical-timestamp field. A missing
// field is fine; a present field is held to the same canonical form as a
// required one.
func optionalTimestamp(obj map[string]json.RawMessage, name string, errs *[]string) string {
	if _, ok := obj[name]; !ok {
		return ""
	}
	return requireTimestamp(obj, name, errs)
}

func requireTimestamp(obj map[string]json.RawMessage, name string, errs *[]string) string {
	s := requireString(obj, name, errs)
	if s == "" {
		return ""
	}
	if _, ok := CanonicalTimestamp(s); !ok {
		*errs = append(*errs, name+": must be a canonical ISO-8601 UTC timestamp with milliseconds")
		return ""
	}
	return s
}

// requirePositiveInt extracts a required positive integer field. JSON numbers
// with a fractional part are rejected, not truncated.
func requirePositiveInt(obj map[string]json.RawMessage, name string, errs *[]string) int64 {
	raw, ok := obj[name]
	if !ok {
		*errs = append(*errs, name+": required")
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		*errs = append(*errs, name+": must be a number")
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		*errs = append(*errs, name+": must be an integer")
		return 0
	}
	if v <= 0 {
		*errs = append(*errs, name+": must be positive")
		return 0
	}
	return v
}
