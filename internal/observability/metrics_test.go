package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
	"github.com/stretchr/testify/require"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := New()

	m.SessionOpened("North_Plant", 10*time.Millisecond, nil)
	m.SessionOpened("North_Plant", 10*time.Millisecond, errors.New("refused"))
	m.SessionClosed("North_Plant")

	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsOpened.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsOpened.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsClosed))
}

func TestMetrics_TimestampFallbackAsHook(t *testing.T) {
	m := New()
	n := timestamp.NewNormalizer(m.TimestampFallback)

	_, ok := n.Normalize(timestamp.FromString("not a date"))
	require.False(t, ok)

	require.Equal(t, 1.0, testutil.ToFloat64(m.tsFallbacks.WithLabelValues(timestamp.ReasonUnparseable)))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SiteFailed("global_stats", "store_unavailable")
	m.ObserveRequest("/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `sitewatch_fanout_site_failures_total{kind="store_unavailable",op="global_stats"} 1`))
	require.True(t, strings.Contains(body, `sitewatch_http_requests_total{route="/health",status="200"} 1`))
}
