// Package recommend filters candidate plans against an analyzed profile.
package recommend

import (
	"taxlens/internal/profile/models"
	dErrors "taxlens/pkg/domain-errors"
)

// Option is one candidate the caller wants checked.
type Option struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Policy decides whether one option suits the decrypted profile.
// Implementations must be pure.
type Policy interface {
	Compatible(fields models.DecryptedFields, option Option) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(fields models.DecryptedFields, option Option) bool

func (f PolicyFunc) Compatible(fields models.DecryptedFields, option Option) bool {
	return f(fields, option)
}

// AcceptAll is the reference policy.
type AcceptAll struct{}

func (AcceptAll) Compatible(models.DecryptedFields, Option) bool { return true }

// Recommend returns the options policy accepts for shadow, in input order.
// A nil policy means AcceptAll.
func Recommend(shadow *models.DecryptedShadow, options []Option, policy Policy) ([]Option, error) {
	if shadow == nil || !shadow.Analyzed {
		return nil, dErrors.New(dErrors.CodeNotAnalyzed, "profile has not been analyzed")
	}
	if policy == nil {
		policy = AcceptAll{}
	}
	out := make([]Option, 0, len(options))
	for _, o := range options {
		if policy.Compatible(shadow.DecryptedFields, o) {
			out = append(out, o)
		}
	}
	return out, nil
}
