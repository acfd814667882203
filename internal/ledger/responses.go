package ledger

import (
	"context"
	"fmt"
	"time"
)

// SubmitResponse records a subject's signed answer to the currently active
// task message. First submission is final: a second submission for the same
// (message, subject) pair is rejected with ErrAlreadyResponded, never
// overwritten.
//
// The three writes — response record, message counter, index membership —
// form one logical transaction. Index membership is the commit record and is
// written last, so a crash mid-sequence reads back as "not yet responded" and
// the retry overwrites the orphaned partial state. On a conditional-write
// backend the response record is additionally created with PutIfAbsent,
// making first-write-wins hold across processes that do not share this
// process's locks.
func (l *Ledger) SubmitResponse(ctx context.Context, messageID, addr, text, sig string, now time.Time) (*Response, *TaskMessage, error) {
	unlockMsg := l.locks.lock(messageKey(messageID))
	defer unlockMsg()
	unlockIdx := l.locks.lock(indexKey(addr))
	defer unlockIdx()

	cur, err := l.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil || cur.ID != messageID {
		return nil, nil, ErrMessageNotActive
	}
	// Mid-rotation the current pointer can still reference a message whose
	// close stamp is already durable. The stamp, not the pointer, decides.
	if !cur.Active() {
		return nil, nil, ErrMessageNotActive
	}

	idx := &ResponseIndex{Address: addr}
	if _, err := l.getJSON(ctx, indexKey(addr), idx); err != nil {
		return nil, nil, err
	}
	if idx.Contains(messageID) {
		return nil, nil, ErrAlreadyResponded
	}

	resp := &Response{
		MessageID:   messageID,
		Address:     addr,
		Response:    text,
		Signature:   sig,
		SubmittedAt: now,
	}

	if l.cond != nil {
		ok, err := l.putJSONIfAbsent(ctx, responseKey(messageID, addr), resp)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			// Another process committed first, or a previous attempt
			// crashed after the response write. Either way a durable
			// response exists; complete its index membership and
			// report the conflict.
			if err := l.appendIndex(ctx, idx, messageID, now); err != nil {
				return nil, nil, err
			}
			return nil, nil, ErrAlreadyResponded
		}
	} else {
		if err := l.putJSON(ctx, responseKey(messageID, addr), resp); err != nil {
			return nil, nil, err
		}
	}

	cur.ResponseCount++
	if err := l.putJSON(ctx, messageKey(messageID), cur); err != nil {
		return nil, nil, fmt.Errorf("increment response count: %w", err)
	}

	if err := l.appendIndex(ctx, idx, messageID, now); err != nil {
		return nil, nil, err
	}
	return resp, cur, nil
}

// appendIndex adds messageID to the subject's response index.
func (l *Ledger) appendIndex(ctx context.Context, idx *ResponseIndex, messageID string, now time.Time) error {
	idx.MessageIDs = append(idx.MessageIDs, messageID)
	idx.LastResponseAt = now
	if err := l.putJSON(ctx, indexKey(idx.Address), idx); err != nil {
		return fmt.Errorf("update response index: %w", err)
	}
	return nil
}

// GetResponse returns the stored response for a (message, subject) pair, or
// nil when none exists.
func (l *Ledger) GetResponse(ctx context.Context, messageID, addr string) (*Response, error) {
	resp := &Response{}
	found, err := l.getJSON(ctx, responseKey(messageID, addr), resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return resp, nil
}

// ResponseIndexFor returns the subject's response index. A subject with no
// responses yet gets an empty index, not an error.
func (l *Ledger) ResponseIndexFor(ctx context.Context, addr string) (*ResponseIndex, error) {
	idx := &ResponseIndex{Address: addr}
	if _, err := l.getJSON(ctx, indexKey(addr), idx); err != nil {
		return nil, err
	}
	return idx, nil
}
