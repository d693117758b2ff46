package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Callback outcomes recorded by CallbacksTotal.
const (
	OutcomeAccepted        = "accepted"
	OutcomeInvalidProof    = "invalid_proof"
	OutcomeUnknownRequest  = "unknown_request"
	OutcomeAlreadyAnalyzed = "already_analyzed"
	OutcomeRejected        = "rejected"
	OutcomeError           = "error"
)

// Metrics holds the Prometheus collectors for the profile lifecycle.
type Metrics struct {
	ProfilesCreated      prometheus.Counter
	AnalysisRequests     prometheus.Counter
	CallbacksTotal       *prometheus.CounterVec
	CallbackDuration     *prometheus.HistogramVec
	JurisdictionsCreated prometheus.Counter
	StatsRequests        prometheus.Counter
	EventPublishFailures prometheus.Counter
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxlens_profiles_created_total",
			Help: "Total number of encrypted profiles submitted",
		}),
		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxlens_analysis_requests_total",
			Help: "Total number of analysis decryption requests issued to the oracle",
		}),
		CallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taxlens_oracle_callbacks_total",
			Help: "Oracle callbacks by selector and outcome",
		}, []string{"selector", "outcome"}),
		CallbackDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxlens_oracle_callback_duration_seconds",
			Help:    "Time spent handling an oracle callback",
			Buckets: prometheus.DefBuckets,
		}, []string{"selector"}),
		JurisdictionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxlens_jurisdiction_counters_created_total",
			Help: "Total number of jurisdiction counters created",
		}),
		StatsRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxlens_stats_requests_total",
			Help: "Total number of jurisdiction stats decryption requests",
		}),
		EventPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxlens_event_publish_failures_total",
			Help: "Events that could not be delivered to a sink after commit",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxlens_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementProfilesCreated() {
	if m != nil {
		m.ProfilesCreated.Inc()
	}
}

func (m *Metrics) IncrementAnalysisRequests() {
	if m != nil {
		m.AnalysisRequests.Inc()
	}
}

func (m *Metrics) ObserveCallback(selector, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(selector, outcome).Inc()
	m.CallbackDuration.WithLabelValues(selector).Observe(seconds)
}

func (m *Metrics) IncrementJurisdictionsCreated() {
	if m != nil {
		m.JurisdictionsCreated.Inc()
	}
}

func (m *Metrics) IncrementStatsRequests() {
	if m != nil {
		m.StatsRequests.Inc()
	}
}

func (m *Metrics) IncrementEventPublishFailures() {
	if m != nil {
		m.EventPublishFailures.Inc()
	}
}

func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	if m != nil {
		m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
	}
}
