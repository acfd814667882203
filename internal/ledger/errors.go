package ledger

import "errors"

// Expected conflict conditions. These are data, not failures: callers map
// them to specific client guidance. Anything else returned by this package
// wraps an upstream storage error.
var (
	// ErrMessageNotActive is returned when a submission targets a message
	// that is not the current one, or when no message is current at all.
	ErrMessageNotActive = errors.New("message is not the active task message")

	// ErrAlreadyResponded is returned when a subject already has a recorded
	// response for the message. The stored response is never overwritten.
	ErrAlreadyResponded = errors.New("subject has already responded to this message")

	// ErrNoMatchingResponse is returned when a payout targets a
	// (message, subject) pair with no recorded response.
	ErrNoMatchingResponse = errors.New("no response exists for this message and subject")

	// ErrDuplicatePayout is returned when a payout is already recorded for
	// the (message, subject) pair.
	ErrDuplicatePayout = errors.New("payout already recorded for this response")

	// ErrMessageNotFound is returned when an archived message lookup misses.
	ErrMessageNotFound = errors.New("message not found")
)
