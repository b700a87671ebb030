package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(metrics.ReaperClosed.WithLabelValues("test_policy"))
	metrics.ReaperClosed.WithLabelValues("test_policy").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.ReaperClosed.WithLabelValues("test_policy")))
}

func TestHandler(t *testing.T) {
	metrics.CacheRequests.WithLabelValues("hit").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readtrack_active_cache_requests_total")
}
