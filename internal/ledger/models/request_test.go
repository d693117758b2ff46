package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	dErrors "taxlens/pkg/domain-errors"
)

func TestRequestTarget(t *testing.T) {
	require.NoError(t, ProfileTarget(1).Validate())
	require.NoError(t, JurisdictionStatsTarget(jurisdictionmodels.HashName("US")).Validate())

	require.Error(t, ProfileTarget(0).Validate())
	require.Error(t, JurisdictionStatsTarget(jurisdictionmodels.NameHash{}).Validate())
	require.Error(t, RequestTarget{Kind: "bogus"}.Validate())

	t.Run("profile ids and name hashes never compare equal", func(t *testing.T) {
		var h jurisdictionmodels.NameHash
		h[31] = 1
		assert.NotEqual(t, ProfileTarget(1), JurisdictionStatsTarget(h))
	})
}

func TestPendingRequestConsumption(t *testing.T) {
	now := time.Now()
	handles := []fhe.Handle{{1}, {2}, {3}}
	p, err := NewPendingRequest(fhe.RequestID{7}, ProfileTarget(3), handles, now)
	require.NoError(t, err)
	handles[0] = fhe.Handle{9}
	assert.Equal(t, fhe.Handle{1}, p.Handles[0], "handles are copied")

	require.NoError(t, p.CanConsume())
	snapshot := p.Clone()
	p.ApplyConsume(now)
	assert.True(t, p.IsResolved())
	assert.False(t, snapshot.IsResolved())
	assert.True(t, dErrors.HasCode(p.CanConsume(), dErrors.CodeInvariantViolation))

	_, err = NewPendingRequest(fhe.RequestID{}, ProfileTarget(3), nil, now)
	require.Error(t, err)
	_, err = NewPendingRequest(fhe.RequestID{1}, ProfileTarget(0), nil, now)
	require.Error(t, err)
}
