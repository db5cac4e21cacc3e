package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(200)
	m.ObserveRequest(200)
	m.ObserveRequest(429)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("429")))
}

func TestObserveStreamAndClients(t *testing.T) {
	m := New()
	m.ObserveStream(time.Second, 128)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, 128.0, testutil.ToFloat64(m.streamBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsClients))
	assert.Equal(t, 1, testutil.CollectAndCount(m.streamDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(500)
		m.ObserveStream(time.Millisecond, 1)
		m.ClientConnected()
		m.ClientDisconnected()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(402)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `chatrelay_proxy_requests_total{code="402"} 1`))
}
