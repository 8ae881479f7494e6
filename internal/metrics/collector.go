// Package metrics exposes pool and queue activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handle set labels.
const (
	SetPool      = "pool"
	SetAvailable = "available"
	SetInUse     = "in_use"
)

// Collector records pool activity. A nil *Collector is valid and records
// nothing, so the pool manager can run without metrics.
type Collector struct {
	queriesTotal     *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	handles          *prometheus.GaugeVec
	queueDepth       *prometheus.GaugeVec
	queueRejected    *prometheus.CounterVec
	reconnectsTotal  *prometheus.CounterVec
	fatalErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector registers the pool metrics on a private registry so several
// managers (and tests) can coexist in one process. Use Registry to expose it.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of statements executed, by outcome",
		},
		[]string{"connection", "outcome"}, // outcome: ok, error
	)

	c.queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Statement execution time in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"connection"},
	)

	c.handles = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_handles",
			Help:      "Connection handles per set",
		},
		[]string{"connection", "set"},
	)

	c.queueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting for a free handle",
		},
		[]string{"connection"},
	)

	c.queueRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejected_total",
			Help:      "Requests rejected because the queue was full",
		},
		[]string{"connection"},
	)

	c.reconnectsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Handle reconnect attempts after a lost connection, by result",
		},
		[]string{"connection", "result"}, // result: ok, failed
	)

	c.fatalErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_errors_total",
			Help:      "Unrecoverable driver errors",
		},
		[]string{"connection"},
	)

	return c
}

// Registry returns the registry holding the pool metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordQuery counts one executed statement.
func (c *Collector) RecordQuery(connection string, err error, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.queriesTotal.WithLabelValues(connection, outcome).Inc()
	c.queryDuration.WithLabelValues(connection).Observe(d.Seconds())
}

// SetHandles publishes the size of each handle set.
func (c *Collector) SetHandles(connection string, pool, available, inUse int) {
	if c == nil {
		return
	}
	c.handles.WithLabelValues(connection, SetPool).Set(float64(pool))
	c.handles.WithLabelValues(connection, SetAvailable).Set(float64(available))
	c.handles.WithLabelValues(connection, SetInUse).Set(float64(inUse))
}

// SetQueueDepth publishes the number of waiting requests.
func (c *Collector) SetQueueDepth(connection string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(connection).Set(float64(depth))
}

// RecordRejected counts a request turned away by a full queue.
func (c *Collector) RecordRejected(connection string) {
	if c == nil {
		return
	}
	c.queueRejected.WithLabelValues(connection).Inc()
}

// RecordReconnect counts one reconnect attempt.
func (c *Collector) RecordReconnect(connection string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.reconnectsTotal.WithLabelValues(connection, result).Inc()
}

// RecordFatal counts an unrecoverable driver error.
func (c *Collector) RecordFatal(connection string) {
	if c == nil {
		return
	}
	c.fatalErrorsTotal.WithLabelValues(connection).Inc()
}
