// Package metrics provides Prometheus instrumentation for the matching
// engine, modeled on the teacher's internal/monitoring.MetricsCollector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the Prometheus collectors lobcore updates. A nil
// *Registry is valid and every method becomes a no-op, so callers can wire
// metrics.Enabled == false without branching at call sites.
type Registry struct {
	enabled bool

	ordersSubmitted *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	ringPending     *prometheus.GaugeVec
	remoteFreeDepth *prometheus.GaugeVec
	matchLatency    *prometheus.HistogramVec
}

// New registers a fresh set of collectors against the default registerer.
// enabled==false returns a Registry whose methods are all no-ops.
func New(enabled bool) *Registry {
	if !enabled {
		return &Registry{enabled: false}
	}

	return &Registry{
		enabled: true,
		ordersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_orders_submitted_total",
			Help: "Total number of orders accepted by submit_order.",
		}, []string{"symbol", "side"}),
		ordersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_orders_cancelled_total",
			Help: "Total number of orders successfully cancelled.",
		}, []string{"symbol"}),
		ordersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_orders_rejected_total",
			Help: "Total number of submit/cancel calls rejected by validation.",
		}, []string{"symbol", "reason"}),
		tradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcore_trades_executed_total",
			Help: "Total number of maker/taker crossings executed.",
		}, []string{"symbol"}),
		ringPending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lobcore_publish_ring_pending",
			Help: "Current value of the publish ring's pending counter (is_idle == pending==0).",
		}, []string{"ring"}),
		remoteFreeDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lobcore_arena_remote_free_depth",
			Help: "Number of slots currently queued in an arena's remote-free channel.",
		}, []string{"arena"}),
		matchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lobcore_order_match_latency_seconds",
			Help:    "Wall time of a single insert/cancel dispatch in a worker.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1us .. ~4.2s
		}, []string{"symbol"}),
	}
}

func (r *Registry) OrderSubmitted(symbol, side string) {
	if r == nil || !r.enabled {
		return
	}
	r.ordersSubmitted.WithLabelValues(symbol, side).Inc()
}

func (r *Registry) OrderCancelled(symbol string) {
	if r == nil || !r.enabled {
		return
	}
	r.ordersCancelled.WithLabelValues(symbol).Inc()
}

func (r *Registry) OrderRejected(symbol, reason string) {
	if r == nil || !r.enabled {
		return
	}
	r.ordersRejected.WithLabelValues(symbol, reason).Inc()
}

func (r *Registry) TradeExecuted(symbol string) {
	if r == nil || !r.enabled {
		return
	}
	r.tradesExecuted.WithLabelValues(symbol).Inc()
}

func (r *Registry) SetRingPending(ring string, pending float64) {
	if r == nil || !r.enabled {
		return
	}
	r.ringPending.WithLabelValues(ring).Set(pending)
}

func (r *Registry) SetRemoteFreeDepth(arena string, depth float64) {
	if r == nil || !r.enabled {
		return
	}
	r.remoteFreeDepth.WithLabelValues(arena).Set(depth)
}

func (r *Registry) ObserveMatchLatency(symbol string, seconds float64) {
	if r == nil || !r.enabled {
		return
	}
	r.matchLatency.WithLabelValues(symbol).Observe(seconds)
}
