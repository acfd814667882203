// Package window holds the pure time arithmetic gating signed interactions:
// a freshness window for submitted timestamps and a rate window between
// accepted check-ins. The two defaults are numerically equal but
// intentionally independent constants.
package window

import (
	"errors"
	"time"
)

const (
	// Freshness is the maximum tolerated drift between a submitted
	// timestamp and server wall-clock time, in either direction.
	Freshness = 5 * time.Minute

	// Rate is the minimum required gap between two accepted check-ins
	// from the same subject.
	Rate = 5 * time.Minute
)

// Named window violations. Callers surface these to clients as distinct
// retry-later conditions, not as malformed input.
var (
	ErrStaleTimestamp  = errors.New("timestamp is outside the freshness window (too old)")
	ErrFutureTimestamp = errors.New("timestamp is outside the freshness window (in the future)")
	ErrRateLimited     = errors.New("check-in rate limit window has not elapsed")
)

// CheckFresh accepts ts when |now − ts| <= Freshness. The boundary is
// inclusive: a timestamp exactly Freshness away is accepted. Too-old and
// too-far-future timestamps are rejected with distinct errors.
func CheckFresh(now, ts time.Time) error {
	drift := now.Sub(ts)
	if drift > Freshness {
		return ErrStaleTimestamp
	}
	if -drift > Freshness {
		return ErrFutureTimestamp
	}
	return nil
}

// CheckRate accepts a check-in when at least Rate has elapsed since the
// subject's previous accepted check-in. The boundary is inclusive: a check-in
// at exactly lastCheckIn+Rate is accepted. A zero lastCheckIn means the
// subject has never checked in and is always accepted.
func CheckRate(now, lastCheckIn time.Time) error {
	if lastCheckIn.IsZero() {
		return nil
	}
	if now.Sub(lastCheckIn) < Rate {
		return ErrRateLimited
	}
	return nil
}
