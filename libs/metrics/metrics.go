// Package metrics 进程内的 prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

type Metrics struct {
	registry       *prometheus.Registry
	proxyRequests  *prometheus.CounterVec
	streamDuration prometheus.Histogram
	streamBytes    prometheus.Counter
	wsClients      prometheus.Gauge
}

// New 使用独立的 registry, 测试里可以多次创建
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Chat proxy requests by response status code.",
		}, []string{"code"}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "stream_seconds",
			Help:      "Time spent relaying an upstream stream to the client.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		streamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "stream_bytes_total",
			Help:      "Bytes relayed from the upstream gateway.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Connected websocket relay clients.",
		}),
	}
	reg.MustRegister(
		m.proxyRequests,
		m.streamDuration,
		m.streamBytes,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest 按响应状态码计数
func (m *Metrics) ObserveRequest(status int) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveStream(d time.Duration, n int64) {
	if m == nil {
		return
	}
	m.streamDuration.Observe(d.Seconds())
	m.streamBytes.Add(float64(n))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
