package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliancelab/internal/platform/metrics"
	"compliancelab/internal/platform/middleware"
	"compliancelab/internal/regulatory"
	regulatoryhandler "compliancelab/internal/regulatory/handler"
	"compliancelab/pkg/testutil"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	retriever, err := regulatory.LoadDefault()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	return NewRouter(Options{
		Logger:       logger,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		HealthChecks: checks,
	}, regulatoryhandler.New(retriever, logger))
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r := newTestRouter(t, map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("failing dependency is 503", func(t *testing.T) {
		r := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		testutil.AssertJSONContains(t, rr, "status", "degraded")
	})
}

func TestDomainRoutesAreMounted(t *testing.T) {
	r := newTestRouter(t, nil)
	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/v1/regulatory/jurisdictions"))
	testutil.AssertStatusOK(t, rr)
	assert.NotEmpty(t, rr.Header().Get(middleware.HeaderRequestID))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/v1/regulatory/jurisdictions"))

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), `compliancelab_http_requests_total{method="GET",route="/v1/regulatory/jurisdictions",status="200"} 1`)
}
