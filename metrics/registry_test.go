package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CountersAndGauge(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.MessagesTotal.Inc()
	registry.MessagesTotal.Inc()
	registry.ConnectedUsers.Inc()
	registry.ConnectedUsers.Dec()

	req.Equal(float64(2), testutil.ToFloat64(registry.MessagesTotal))
	req.Equal(float64(0), testutil.ToFloat64(registry.ConnectedUsers))
}

func TestRegistry_ObserveQuerySamplesFailuresToo(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	start := time.Now().Add(-5 * time.Millisecond)
	registry.ObserveQuery(start)
	registry.ObserveQuery(time.Now())

	count := testutil.CollectAndCount(registry.QueryDuration, "query_duration_ms")
	req.Equal(1, count)
}

func TestRegistry_HandlerServesExpositionFormat(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.MessagesTotal.Inc()

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	req.NoError(err)
	req.Contains(string(body), "messages_total 1")
	req.Contains(string(body), "connected_users 0")
	req.Contains(string(body), "query_duration_ms_bucket")
}
