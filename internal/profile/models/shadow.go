package models

import (
	"fmt"
	"time"

	"taxlens/internal/fhe"
	dErrors "taxlens/pkg/domain-errors"
)

// Status is the analysis lifecycle state of a profile.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusRequestIssued Status = "request_issued"
	StatusAnalyzed      Status = "analyzed"
)

// DecryptedFields are the plaintexts an analysis callback delivers, in
// request order.
type DecryptedFields struct {
	Assets          string `json:"assets"`
	FamilyStructure string `json:"family_structure"`
	TaxJurisdiction string `json:"tax_jurisdiction"`
}

// DecodeFields unpacks exactly three string words from oracle cleartexts.
func DecodeFields(cleartexts []byte) (DecryptedFields, error) {
	words, err := fhe.DecodeCleartexts(cleartexts, 3)
	if err != nil {
		return DecryptedFields{}, fmt.Errorf("decode analysis cleartexts: %w", err)
	}
	return DecryptedFields{
		Assets:          words[0].Text(),
		FamilyStructure: words[1].Text(),
		TaxJurisdiction: words[2].Text(),
	}, nil
}

// DecryptedShadow is the plaintext mirror of a profile.
//
// Invariants:
//   - The three plaintext fields are written together, in the same step that
//     sets Analyzed. Before that they are all empty.
//   - Analyzed goes from false to true once and never back.
//   - AnalysisRequests only grows; requesting again before a callback lands
//     is allowed.
type DecryptedShadow struct {
	ProfileID ProfileID `json:"profile_id"`
	DecryptedFields
	Analyzed         bool       `json:"analyzed"`
	AnalysisRequests int        `json:"analysis_requests"`
	LastRequestedAt  *time.Time `json:"last_requested_at,omitempty"`
	AnalyzedAt       *time.Time `json:"analyzed_at,omitempty"`
}

// NewShadow returns the empty shadow every profile starts with.
func NewShadow(id ProfileID) *DecryptedShadow {
	return &DecryptedShadow{ProfileID: id}
}

func (s *DecryptedShadow) Status() Status {
	switch {
	case s.Analyzed:
		return StatusAnalyzed
	case s.AnalysisRequests > 0:
		return StatusRequestIssued
	default:
		return StatusSubmitted
	}
}

// CanRequestAnalysis checks that the profile has not been analyzed yet.
func (s *DecryptedShadow) CanRequestAnalysis() error {
	if s.Analyzed {
		return dErrors.New(dErrors.CodeInvariantViolation, "profile is already analyzed")
	}
	return nil
}

// ApplyAnalysisRequest records that a decryption request was issued.
// Call CanRequestAnalysis first.
func (s *DecryptedShadow) ApplyAnalysisRequest(now time.Time) {
	s.AnalysisRequests++
	s.LastRequestedAt = &now
}

// CanApplyAnalysis is the re-entry guard of the callback path.
func (s *DecryptedShadow) CanApplyAnalysis() error {
	if s.Analyzed {
		return dErrors.New(dErrors.CodeInvariantViolation, "profile is already analyzed")
	}
	return nil
}

// ApplyAnalysis writes all decrypted fields and marks the shadow analyzed.
// Call CanApplyAnalysis first.
func (s *DecryptedShadow) ApplyAnalysis(fields DecryptedFields, now time.Time) {
	s.DecryptedFields = fields
	s.Analyzed = true
	s.AnalyzedAt = &now
}
