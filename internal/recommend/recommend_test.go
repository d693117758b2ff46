package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxlens/internal/profile/models"
	dErrors "taxlens/pkg/domain-errors"
)

func analyzedShadow() *models.DecryptedShadow {
	shadow := models.NewShadow(1)
	shadow.ApplyAnalysis(models.DecryptedFields{
		Assets:          "250000",
		FamilyStructure: "married-2",
		TaxJurisdiction: "US",
	}, time.Now())
	return shadow
}

var candidates = []Option{
	{ID: "roth", Name: "Roth IRA", Attributes: map[string]string{"jurisdiction": "US"}},
	{ID: "isa", Name: "Stocks and Shares ISA", Attributes: map[string]string{"jurisdiction": "UK"}},
	{ID: "529", Name: "529 Plan", Attributes: map[string]string{"jurisdiction": "US"}},
}

func TestRecommend(t *testing.T) {
	t.Run("unanalyzed shadow is rejected", func(t *testing.T) {
		_, err := Recommend(models.NewShadow(1), candidates, AcceptAll{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAnalyzed))
	})

	t.Run("missing shadow is rejected", func(t *testing.T) {
		_, err := Recommend(nil, candidates, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAnalyzed))
	})

	t.Run("accept all returns every option in order", func(t *testing.T) {
		got, err := Recommend(analyzedShadow(), candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, candidates, got)
	})

	t.Run("policy filters and preserves order", func(t *testing.T) {
		sameJurisdiction := PolicyFunc(func(f models.DecryptedFields, o Option) bool {
			return o.Attributes["jurisdiction"] == f.TaxJurisdiction
		})
		got, err := Recommend(analyzedShadow(), candidates, sameJurisdiction)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "roth", got[0].ID)
		assert.Equal(t, "529", got[1].ID)
	})

	t.Run("deterministic for the same input", func(t *testing.T) {
		first, err := Recommend(analyzedShadow(), candidates, nil)
		require.NoError(t, err)
		second, err := Recommend(analyzedShadow(), candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("empty candidate list yields empty result", func(t *testing.T) {
		got, err := Recommend(analyzedShadow(), nil, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
