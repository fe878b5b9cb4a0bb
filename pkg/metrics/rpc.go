package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RPCMetrics provides observability for the JSON-RPC server.
//
// This interface is optional - components given nil fall back to a no-op
// implementation.
type RPCMetrics interface {
	// RecordRequest records a dispatched call. code is 0 on success and the
	// JSON-RPC error code otherwise.
	RecordRequest(method string, duration time.Duration, code int)

	// RecordBatch records the size of a batch request.
	RecordBatch(size int)

	// RecordAuthFailure counts rejected credentials.
	RecordAuthFailure()

	SetActiveConnections(count int32)
	RecordConnectionAccepted()
	RecordConnectionClosed()

	// RecordConnectionRejected counts connections dropped before servicing,
	// labelled by reason (e.g. "ip_policy").
	RecordConnectionRejected(reason string)

	// RecordScheduledTask counts fired scheduled callbacks by key.
	RecordScheduledTask(key string)
}

type rpcMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	batchSize           prometheus.Histogram
	authFailures        prometheus.Counter
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	scheduledTasks      *prometheus.CounterVec
}

// NewRPCMetrics creates RPCMetrics on the global registry, or a no-op
// implementation when metrics are disabled.
func NewRPCMetrics() RPCMetrics {
	if !IsEnabled() {
		return &noopRPCMetrics{}
	}
	return NewRPCMetricsWith(GetRegistry())
}

// NewRPCMetricsWith registers the collectors on reg.
func NewRPCMetricsWith(reg prometheus.Registerer) RPCMetrics {
	f := promauto.With(reg)

	return &rpcMetrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "honeyd_rpc_requests_total",
				Help: "Total number of JSON-RPC calls by method and error code",
			},
			[]string{"method", "code"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "honeyd_rpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC calls in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method"},
		),
		batchSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "honeyd_rpc_batch_size",
				Help:    "Number of calls per batch request",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		authFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "honeyd_rpc_auth_failures_total",
				Help: "Total number of requests rejected for bad credentials",
			},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "honeyd_rpc_active_connections",
				Help: "Current number of open RPC connections",
			},
		),
		connectionsAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "honeyd_rpc_connections_accepted_total",
				Help: "Total number of RPC connections accepted",
			},
		),
		connectionsClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "honeyd_rpc_connections_closed_total",
				Help: "Total number of RPC connections closed",
			},
		),
		connectionsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "honeyd_rpc_connections_rejected_total",
				Help: "Total number of RPC connections dropped before servicing",
			},
			[]string{"reason"},
		),
		scheduledTasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "honeyd_scheduled_tasks_fired_total",
				Help: "Total number of scheduled callbacks fired",
			},
			[]string{"key"},
		),
	}
}

func (m *rpcMetrics) RecordRequest(method string, duration time.Duration, code int) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *rpcMetrics) RecordBatch(size int) {
	m.batchSize.Observe(float64(size))
}

func (m *rpcMetrics) RecordAuthFailure() {
	m.authFailures.Inc()
}

func (m *rpcMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *rpcMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *rpcMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *rpcMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *rpcMetrics) RecordScheduledTask(key string) {
	m.scheduledTasks.WithLabelValues(key).Inc()
}

// NewNoopRPCMetrics returns an RPCMetrics that discards everything.
func NewNoopRPCMetrics() RPCMetrics {
	return &noopRPCMetrics{}
}

type noopRPCMetrics struct{}

func (noopRPCMetrics) RecordRequest(method string, duration time.Duration, code int) {}
func (noopRPCMetrics) RecordBatch(size int)                                          {}
func (noopRPCMetrics) RecordAuthFailure()                                            {}
func (noopRPCMetrics) SetActiveConnections(count int32)                              {}
func (noopRPCMetrics) RecordConnectionAccepted()                                     {}
func (noopRPCMetrics) RecordConnectionClosed()                                       {}
func (noopRPCMetrics) RecordConnectionRejected(reason string)                        {}
func (noopRPCMetrics) RecordScheduledTask(key string)                                {}
