package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "pipeline"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Channel metrics
	ChannelPuts    *prometheus.CounterVec
	ChannelGets    *prometheus.CounterVec
	ChannelDepth   *prometheus.GaugeVec
	ChannelDrained *prometheus.CounterVec
	ChannelPutWait *prometheus.HistogramVec

	// Worker metrics
	WorkersRunning *prometheus.GaugeVec
	WorkerStarts   *prometheus.CounterVec
	WorkerExits    *prometheus.CounterVec

	// Pipeline metrics
	PipelineState    *prometheus.GaugeVec
	ShutdownDuration prometheus.Histogram

	// Status server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics registers a metrics collection with registerer
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	f := promauto.With(registerer)

	return &Metrics{
		ChannelPuts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_channel_puts_total",
				Help: "Total number of channel put attempts",
			},
			[]string{"channel", "result"}, // result: ok, full, closed, error
		),
		ChannelGets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_channel_gets_total",
				Help: "Total number of channel get attempts",
			},
			[]string{"channel", "result"}, // result: ok, empty, closed, error
		),
		ChannelDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_channel_depth",
				Help: "Items queued in a channel at the last operation",
			},
			[]string{"channel"},
		),
		ChannelDrained: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_channel_drained_items_total",
				Help: "Items discarded by shutdown drains",
			},
			[]string{"channel"},
		),
		ChannelPutWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_channel_put_wait_seconds",
				Help:    "Time a blocking put waited for space",
				Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"channel"},
		),

		WorkersRunning: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_workers_running",
				Help: "Worker instances currently running",
			},
			[]string{"worker"},
		),
		WorkerStarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_worker_starts_total",
				Help: "Worker instances started",
			},
			[]string{"worker"},
		),
		WorkerExits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_worker_exits_total",
				Help: "Worker instances stopped",
			},
			[]string{"worker", "outcome"}, // outcome: ok, crashed, error
		),

		PipelineState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_state",
				Help: "1 for the current lifecycle state of a pipeline",
			},
			[]string{"pipeline", "state"},
		),
		ShutdownDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_shutdown_duration_seconds",
				Help:    "Duration of the exit, drain and join sequence",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_http_requests_total",
				Help: "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_http_request_duration_seconds",
				Help:    "Status server request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

// RecordHTTPRequest records a status server request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordShutdown records a completed shutdown
func (m *Metrics) RecordShutdown(duration time.Duration) {
	m.ShutdownDuration.Observe(duration.Seconds())
}
