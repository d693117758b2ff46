package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementProfilesCreated()
	m.IncrementProfilesCreated()
	m.ObserveCallback("analysis", OutcomeInvalidProof, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProfilesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbacksTotal.WithLabelValues("analysis", OutcomeInvalidProof)))

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var nilMetrics *Metrics
		assert.NotPanics(t, func() {
			nilMetrics.IncrementProfilesCreated()
			nilMetrics.ObserveCallback("stats", OutcomeAccepted, 1)
		})
	})
}
