package models

import (
	"strconv"
	"time"

	"taxlens/internal/fhe"
	dErrors "taxlens/pkg/domain-errors"
)

// ProfileID identifies a submitted profile. Ids start at 1; 0 never names a
// profile.
type ProfileID uint64

func (id ProfileID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseProfileID parses a decimal profile id from a path parameter.
func ParseProfileID(s string) (ProfileID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "profile id must be a non-negative integer")
	}
	return ProfileID(v), nil
}

// EncryptedProfile is one submission: three ciphertext handles and the time
// they were stored. It never changes after creation.
type EncryptedProfile struct {
	ID              ProfileID  `json:"id"`
	Assets          fhe.Handle `json:"assets"`
	FamilyStructure fhe.Handle `json:"family_structure"`
	TaxJurisdiction fhe.Handle `json:"tax_jurisdiction"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewEncryptedProfile validates the three handles. The id is assigned by the
// store.
func NewEncryptedProfile(assets, family, jurisdiction fhe.Handle, now time.Time) (*EncryptedProfile, error) {
	if assets.IsZero() || family.IsZero() || jurisdiction.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "all three encrypted fields are required")
	}
	return &EncryptedProfile{
		Assets:          assets,
		FamilyStructure: family,
		TaxJurisdiction: jurisdiction,
		CreatedAt:       now,
	}, nil
}

// Handles returns the ciphertexts in decryption order: assets, family
// structure, jurisdiction.
func (p *EncryptedProfile) Handles() []fhe.Handle {
	return []fhe.Handle{p.Assets, p.FamilyStructure, p.TaxJurisdiction}
}
