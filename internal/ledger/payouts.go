package ledger

import "context"

// RecordPayout persists evidence that a response was rewarded. A payout may
// only exist for a (message, subject) pair with a recorded response, and
// recording is idempotent on that pair: a duplicate attempt is rejected with
// ErrDuplicatePayout rather than creating a second conflicting record.
func (l *Ledger) RecordPayout(ctx context.Context, p *Payout) error {
	key := payoutKey(p.MessageID, p.BTCAddress)
	unlock := l.locks.lock(key)
	defer unlock()

	resp, err := l.GetResponse(ctx, p.MessageID, p.BTCAddress)
	if err != nil {
		return err
	}
	if resp == nil {
		return ErrNoMatchingResponse
	}

	if l.cond != nil {
		ok, err := l.putJSONIfAbsent(ctx, key, p)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDuplicatePayout
		}
		return nil
	}

	existing := &Payout{}
	found, err := l.getJSON(ctx, key, existing)
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicatePayout
	}
	return l.putJSON(ctx, key, p)
}

// GetPayout returns the payout recorded for a (message, subject) pair, or
// nil when none exists.
func (l *Ledger) GetPayout(ctx context.Context, messageID, addr string) (*Payout, error) {
	p := &Payout{}
	found, err := l.getJSON(ctx, payoutKey(messageID, addr), p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return p, nil
}
