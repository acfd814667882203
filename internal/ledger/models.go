// Package ledger owns the signed-interaction state: the task message
// lifecycle, the first-submission-final response ledger, per-subject check-in
// counters, and payout records. All state lives in the kv collaborator; this
// package holds the business rules and the concurrency strategy around every
// check-then-write sequence.
package ledger

import "time"

// TaskMessage is a prompt agents may respond to. At most one message is
// current (ClosedAt == nil) at any time.
type TaskMessage struct {
	ID            string     `json:"id"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"createdAt"`
	ClosedAt      *time.Time `json:"closedAt"`
	ResponseCount int        `json:"responseCount"`
}

// Active reports whether the message is still accepting responses.
func (m *TaskMessage) Active() bool {
	return m.ClosedAt == nil
}

// Response is one subject's signed answer to one TaskMessage. Responses are
// never mutated or deleted: the first submission for a (message, subject)
// pair is final.
type Response struct {
	MessageID   string    `json:"messageId"`
	Address     string    `json:"address"`
	Response    string    `json:"response"`
	Signature   string    `json:"signature"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ResponseIndex is a subject's record of which messages it has answered.
// Membership here is the commit record for a submission: it is written last,
// so a crash mid-submission reads as "not yet responded" and is safe to
// retry.
type ResponseIndex struct {
	Address        string    `json:"address"`
	MessageIDs     []string  `json:"messageIds"`
	LastResponseAt time.Time `json:"lastResponseAt"`
}

// Contains reports whether the index records a response to messageID.
func (ix *ResponseIndex) Contains(messageID string) bool {
	for _, id := range ix.MessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// Payout is append-only evidence that a response was rewarded. It can only
// exist for a (message, subject) pair with a recorded Response.
type Payout struct {
	MessageID      string    `json:"messageId"`
	BTCAddress     string    `json:"btcAddress"`
	RewardTxid     string    `json:"rewardTxid"`
	RewardSatoshis int64     `json:"rewardSatoshis"`
	PaidAt         time.Time `json:"paidAt"`
}

// CheckInRecord is a subject's liveness counter. It is the only entity in the
// model that is mutated in place; the count never decreases.
type CheckInRecord struct {
	Address       string    `json:"address"`
	CheckInCount  int       `json:"checkInCount"`
	LastCheckInAt time.Time `json:"lastCheckInAt"`
}
