package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SubjectKind discriminates the two forms a subject record can take.
type SubjectKind string

const (
	// SubjectRegistered subjects completed registration and carry a
	// profile.
	SubjectRegistered SubjectKind = "registered"

	// SubjectProvisional subjects are known only by their address: they
	// have interacted but never registered.
	SubjectProvisional SubjectKind = "provisional"
)

// Subject is an agent identified by its signing address. The kind is fixed
// when the record is decoded, not re-derived by field inspection at each use
// site.
type Subject struct {
	Kind         SubjectKind `json:"kind"`
	Address      string      `json:"address"`
	Name         string      `json:"name,omitempty"`
	RegisteredAt *time.Time  `json:"registeredAt,omitempty"`
}

// NewRegisteredSubject builds a fully registered subject record.
func NewRegisteredSubject(addr, name string, registeredAt time.Time) Subject {
	return Subject{
		Kind:         SubjectRegistered,
		Address:      addr,
		Name:         name,
		RegisteredAt: &registeredAt,
	}
}

// NewProvisionalSubject builds an address-only subject record.
func NewProvisionalSubject(addr string) Subject {
	return Subject{Kind: SubjectProvisional, Address: addr}
}

// decodeSubject restores a stored subject, discriminating the kind once at
// construction. Records persisted before the kind field existed are
// classified by whether they carry a complete profile.
func decodeSubject(raw []byte) (Subject, error) {
	var s Subject
	if err := json.Unmarshal(raw, &s); err != nil {
		return Subject{}, fmt.Errorf("decode subject: %w", err)
	}
	if s.Kind == "" {
		if s.Name != "" && s.RegisteredAt != nil {
			s.Kind = SubjectRegistered
		} else {
			s.Kind = SubjectProvisional
		}
	}
	return s, nil
}

// LookupSubject returns the subject record for addr. An address with no
// stored record yields a provisional subject, not an error.
func (l *Ledger) LookupSubject(ctx context.Context, addr string) (Subject, error) {
	raw, found, err := l.store.Get(ctx, agentKey(addr))
	if err != nil {
		return Subject{}, fmt.Errorf("load subject %q: %w", addr, err)
	}
	if !found {
		return NewProvisionalSubject(addr), nil
	}
	return decodeSubject(raw)
}

// RegisterSubject stores a registered subject record, upgrading any
// provisional one.
func (l *Ledger) RegisterSubject(ctx context.Context, s Subject) error {
	return l.putJSON(ctx, agentKey(s.Address), s)
}
