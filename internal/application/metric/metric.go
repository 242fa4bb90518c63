package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	signalingMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_total",
			Help: "Signaling messages processed, by type",
		},
		[]string{"type"},
	)

	activePeerSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_peer_sessions",
			Help: "Number of live peer sessions",
		},
	)

	compositorFrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compositor_frame_duration_seconds",
			Help:    "Time spent compositing a single blurred frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active signaling WebSocket connections",
		},
	)
)

// RecordHTTPMetrics records metrics for a finished HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func RecordSignalingMessage(msgType string) {
	signalingMessagesTotal.WithLabelValues(msgType).Inc()
}

func IncrementPeerSessions() {
	activePeerSessions.Inc()
}

func DecrementPeerSessions() {
	activePeerSessions.Dec()
}

func ObserveCompositorFrame(duration time.Duration) {
	compositorFrameDuration.Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}
