package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Rotate closes the current task message, if any, at now and makes a new one
// with the given content current.
func (l *Ledger) Rotate(ctx context.Context, content string, now time.Time) (*TaskMessage, error) {
	return l.RotateAt(ctx, content, now, now)
}

// RotateAt is Rotate with an explicit close stamp for the outgoing message,
// for operators recording a rotation that effectively happened earlier than
// it was submitted. Write order matters: the old message is stamped and
// archived first, the new record is written second, and the current pointer
// is swapped last. The pointer swap is a single put, so a concurrent reader
// sees either the old message or the new one, never neither, and at no point
// do two messages have a nil ClosedAt. The close stamp becoming durable
// before the pointer swap is what lets SubmitResponse reject submissions
// that race the rotation.
func (l *Ledger) RotateAt(ctx context.Context, content string, closedAt, now time.Time) (*TaskMessage, error) {
	unlock := l.locks.lock(currentMessageKey)
	defer unlock()

	cur, err := l.Current(ctx)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		unlockOld := l.locks.lock(messageKey(cur.ID))
		// Re-read under the lock: a response counter update may have
		// landed since the pointer was followed.
		_, err := l.getJSON(ctx, messageKey(cur.ID), cur)
		if err == nil {
			closed := closedAt
			cur.ClosedAt = &closed
			err = l.putJSON(ctx, messageKey(cur.ID), cur)
		}
		unlockOld()
		if err != nil {
			return nil, fmt.Errorf("close message %s: %w", cur.ID, err)
		}
	}

	msg := &TaskMessage{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: now,
	}
	if err := l.putJSON(ctx, messageKey(msg.ID), msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := l.store.Put(ctx, currentMessageKey, []byte(msg.ID)); err != nil {
		return nil, fmt.Errorf("swap current pointer: %w", err)
	}
	return msg, nil
}

// Current returns the active task message, or nil when none exists.
func (l *Ledger) Current(ctx context.Context) (*TaskMessage, error) {
	id, found, err := l.store.Get(ctx, currentMessageKey)
	if err != nil {
		return nil, fmt.Errorf("load current pointer: %w", err)
	}
	if !found {
		return nil, nil
	}
	msg := &TaskMessage{}
	found, err = l.getJSON(ctx, messageKey(string(id)), msg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("current pointer references missing message %s", id)
	}
	return msg, nil
}

// Message returns the message with the given id, current or archived.
func (l *Ledger) Message(ctx context.Context, id string) (*TaskMessage, error) {
	msg := &TaskMessage{}
	found, err := l.getJSON(ctx, messageKey(id), msg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// ListMessages returns every archived and current message, oldest first.
func (l *Ledger) ListMessages(ctx context.Context) ([]TaskMessage, error) {
	var out []TaskMessage
	cursor := ""
	for {
		keys, next, err := l.store.List(ctx, messagePrefix, cursor, 100)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, k := range keys {
			if k == currentMessageKey {
				continue
			}
			msg := TaskMessage{}
			if _, err := l.getJSON(ctx, k, &msg); err != nil {
				return nil, err
			}
			out = append(out, msg)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
