package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"taxlens/pkg/testutil"
)

func TestRouterScaffold(t *testing.T) {
	testutil.Given(t, "a router with no registrars", func(t *testing.T) {
		router := NewRouter(RouterConfig{Logger: testLogger(), Gatherer: prometheus.NewRegistry()})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles", nil))

			testutil.Then(t, "it responds with a JSON not found", func(t *testing.T) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Body.String(), "not_found")
			})
		})

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			testutil.Then(t, "it reports ok and echoes a request id", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			})
		})
	})

	testutil.Given(t, "a failing health check", func(t *testing.T) {
		router := NewRouter(RouterConfig{
			Logger:   testLogger(),
			Gatherer: prometheus.NewRegistry(),
			Health:   func(context.Context) error { return errors.New("redis down") },
		})

		testutil.Then(t, "GET /healthz is unavailable", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	})
}
