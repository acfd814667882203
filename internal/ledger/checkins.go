package ledger

import (
	"context"
	"time"

	"github.com/halcyonics/beacon/internal/window"
)

// RecordCheckIn applies one liveness check-in for the subject. The signed
// timestamp must be inside the freshness window around now, and at least the
// rate window must have elapsed since the subject's previous accepted
// check-in. The rate check runs again under the per-subject lock, so two
// concurrent check-ins for the same subject cannot both pass.
func (l *Ledger) RecordCheckIn(ctx context.Context, addr string, ts, now time.Time) (*CheckInRecord, error) {
	if err := window.CheckFresh(now, ts); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(checkInKey(addr))
	defer unlock()

	rec := &CheckInRecord{Address: addr}
	found, err := l.getJSON(ctx, checkInKey(addr), rec)
	if err != nil {
		return nil, err
	}
	if found {
		if err := window.CheckRate(now, rec.LastCheckInAt); err != nil {
			return nil, err
		}
	}

	rec.CheckInCount++
	rec.LastCheckInAt = ts
	if err := l.putJSON(ctx, checkInKey(addr), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckInFor returns the subject's check-in record, or nil when the subject
// has never checked in.
func (l *Ledger) CheckInFor(ctx context.Context, addr string) (*CheckInRecord, error) {
	rec := &CheckInRecord{}
	found, err := l.getJSON(ctx, checkInKey(addr), rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}
