package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsRecordRequests(t *testing.T) {
	m := HTTP()
	require.Same(t, m, HTTP())

	done := m.Begin("test-svc")
	require.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues("test-svc")))
	done()
	require.Equal(t, 0.0, testutil.ToFloat64(m.inFlight.WithLabelValues("test-svc")))

	m.Observe("test-svc", "GET /v1/x", 200, time.Millisecond)
	m.Observe("test-svc", "GET /v1/x", 200, time.Millisecond)
	m.Observe("test-svc", "", 404, time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("test-svc", "GET /v1/x", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("test-svc", "unknown", "404")))

	m.Throttled("test-svc", "rate_limit")
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttled.WithLabelValues("test-svc", "rate_limit")))
}

func TestNilHTTPMetricsAreInert(t *testing.T) {
	var m *HTTPMetrics
	m.Begin("svc")()
	m.Observe("svc", "r", 200, time.Second)
	m.Throttled("svc", "r")
}
