package models

import (
	"fmt"
	"time"

	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	profilemodels "taxlens/internal/profile/models"
	dErrors "taxlens/pkg/domain-errors"
)

// TargetKind tells which callback path a request belongs to.
type TargetKind string

const (
	TargetProfile           TargetKind = "profile"
	TargetJurisdictionStats TargetKind = "jurisdiction_stats"
)

// RequestTarget is what a decryption request was issued for. Exactly one of
// ProfileID and NameHash is meaningful, selected by Kind, so profile ids and
// name hashes never share a key space.
type RequestTarget struct {
	Kind      TargetKind                  `json:"kind"`
	ProfileID profilemodels.ProfileID     `json:"profile_id,omitempty"`
	NameHash  jurisdictionmodels.NameHash `json:"name_hash"`
}

func ProfileTarget(id profilemodels.ProfileID) RequestTarget {
	return RequestTarget{Kind: TargetProfile, ProfileID: id}
}

func JurisdictionStatsTarget(h jurisdictionmodels.NameHash) RequestTarget {
	return RequestTarget{Kind: TargetJurisdictionStats, NameHash: h}
}

func (t RequestTarget) Validate() error {
	switch t.Kind {
	case TargetProfile:
		if t.ProfileID == 0 {
			return fmt.Errorf("profile target without profile id")
		}
	case TargetJurisdictionStats:
		if t.NameHash.IsZero() {
			return fmt.Errorf("jurisdiction target without name hash")
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

func (t RequestTarget) String() string {
	if t.Kind == TargetProfile {
		return "profile:" + t.ProfileID.String()
	}
	return string(t.Kind) + ":" + t.NameHash.String()
}

// PendingRequest binds an oracle request id to its target until the
// matching callback consumes it. Entries are never deleted; ResolvedAt marks
// consumption.
type PendingRequest struct {
	RequestID   fhe.RequestID `json:"request_id"`
	Target      RequestTarget `json:"target"`
	Handles     []fhe.Handle  `json:"handles"`
	RequestedAt time.Time     `json:"requested_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

func NewPendingRequest(rid fhe.RequestID, target RequestTarget, handles []fhe.Handle, now time.Time) (*PendingRequest, error) {
	if rid.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id is required")
	}
	if err := target.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid request target")
	}
	return &PendingRequest{
		RequestID:   rid,
		Target:      target,
		Handles:     append([]fhe.Handle(nil), handles...),
		RequestedAt: now,
	}, nil
}

func (p *PendingRequest) IsResolved() bool {
	return p.ResolvedAt != nil
}

// CanConsume rejects a request that a callback already resolved.
func (p *PendingRequest) CanConsume() error {
	if p.IsResolved() {
		return dErrors.New(dErrors.CodeInvariantViolation, "decryption request already resolved")
	}
	return nil
}

// ApplyConsume marks the request resolved. Call CanConsume first.
func (p *PendingRequest) ApplyConsume(now time.Time) {
	p.ResolvedAt = &now
}

// Clone returns a deep copy.
func (p *PendingRequest) Clone() *PendingRequest {
	c := *p
	c.Handles = append([]fhe.Handle(nil), p.Handles...)
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
