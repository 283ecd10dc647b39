package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// LLM call metrics
	LLMRequests       prometheus.Counter
	LLMRequestLatency prometheus.Histogram
	LLMErrors         *prometheus.CounterVec

	// Chat metrics
	ChatEvents      *prometheus.CounterVec
	MemoryRefreshes *prometheus.CounterVec

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		LLMRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lumichat_llm_requests_total",
			Help: "Total number of outbound LLM call attempts",
		}),

		LLMRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumichat_llm_request_duration_seconds",
			Help:    "LLM call latency in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for slow providers
		}),

		LLMErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumichat_llm_errors_total",
			Help: "Total number of failed LLM calls by error kind",
		}, []string{"error_kind"}),

		ChatEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumichat_chat_events_total",
			Help: "Total number of demultiplexed reply events by type",
		}, []string{"event_type"}),

		MemoryRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lumichat_memory_refreshes_total",
			Help: "Total number of memory-table refreshes by outcome",
		}, []string{"outcome"}),

		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lumichat_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),
	}

	return metrics
}

// RecordLLMRequest records one outbound call attempt
func (m *Metrics) RecordLLMRequest() {
	m.LLMRequests.Inc()
}

// RecordLLMLatency records the latency of a completed call
func (m *Metrics) RecordLLMLatency(seconds float64) {
	m.LLMRequestLatency.Observe(seconds)
}

// RecordLLMError records a failed call by error kind
func (m *Metrics) RecordLLMError(kind string) {
	m.LLMErrors.WithLabelValues(kind).Inc()
}

// RecordChatEvent records one demultiplexed reply event
func (m *Metrics) RecordChatEvent(eventType string) {
	m.ChatEvents.WithLabelValues(eventType).Inc()
}

// RecordMemoryRefresh records a refresh outcome ("success", "failed", "dropped")
func (m *Metrics) RecordMemoryRefresh(outcome string) {
	m.MemoryRefreshes.WithLabelValues(outcome).Inc()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}
