package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec
	EventsBroadcast      *prometheus.CounterVec

	// Generation metrics
	GenerationsStarted  *prometheus.CounterVec
	GenerationsFinished *prometheus.CounterVec
	GenerationLatency   *prometheus.HistogramVec
	GenerationsRejected prometheus.Counter

	// Connection manager reference for dynamic metrics
	connManager *ConnectionManager
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		connManager: connManager,

		// WebSocket active connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "genslides_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		// WebSocket messages by type (counter - only goes up)
		WebSocketMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genslides_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"

		// Events fanned out to project viewers, with delivery count
		EventsBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genslides_events_broadcast_total",
			Help: "Total number of realtime events broadcast by type",
		}, []string{"type"}),

		// Generation task starts by engine
		GenerationsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genslides_generations_started_total",
			Help: "Total number of image generation tasks started",
		}, []string{"engine", "kind"}), // kind: "slide" or "style"

		// Generation task terminal states
		GenerationsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genslides_generations_finished_total",
			Help: "Total number of image generation tasks finished by state",
		}, []string{"engine", "state"}), // state: "completed" or "failed"

		// Generation latency histogram
		GenerationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genslides_generation_duration_seconds",
			Help:    "Image generation latency in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 180}, // up to the 3 minute task timeout
		}, []string{"engine"}),

		// Duplicate generation requests rejected with 409
		GenerationsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genslides_generations_rejected_total",
			Help: "Total number of generation requests rejected because a task was already running",
		}),
	}

	// Register a collector that updates WebSocket connections from ConnectionManager
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "genslides_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

func recordEventBroadcast(eventType string, sent int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.EventsBroadcast.WithLabelValues(eventType).Add(float64(sent))
}
