// Package metrics exposes Prometheus metrics for the valve controllers and
// the actuation queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

const namespace = "graylogic_valves"

var (
	// QueueDepth is the number of pending actuation requests.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending actuation requests",
		},
	)

	// Dispatches counts finished position writes by result.
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Position writes by result (ok, failed, requeued)",
		},
		[]string{"result"},
	)

	// DispatchDuration tracks how long position writes take.
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a single position write",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	// Gated counts drains held back while work was pending.
	Gated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gated_total",
			Help:      "Drains held back by gate",
		},
		[]string{"gate"},
	)

	// ValvePosition is the commanded opening per valve.
	ValvePosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_percent",
			Help:      "Commanded valve opening",
		},
		[]string{"valve"},
	)

	// ValveError is the felt-temperature error per valve.
	ValveError = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "error_celsius",
			Help:      "Adjusted felt temperature minus target",
		},
		[]string{"valve"},
	)

	// SweetSpot is the learned steady-state opening per valve.
	SweetSpot = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweet_spot_percent",
			Help:      "Learned steady-state opening for the current target",
		},
		[]string{"valve"},
	)

	// FeltTempDelta is the learned felt temperature offset per valve.
	FeltTempDelta = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "felt_temp_delta_celsius",
			Help:      "Learned felt temperature offset for the current target",
		},
		[]string{"valve"},
	)

	// Regime is 1 for the regime each valve is currently in.
	Regime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regime",
			Help:      "Current controller regime (1 = active)",
		},
		[]string{"valve", "regime"},
	)
)

var regimes = []string{
	valve.RegimeUnknown,
	valve.RegimeUnavailable,
	valve.RegimeDeviceFault,
	valve.RegimeBoost,
	valve.RegimeWindowOpen,
	valve.RegimeNormal,
	valve.RegimeHeating,
	valve.RegimeColdStart,
}

// ObserveValve records a controller snapshot. Error terms are only set
// once the controller computed them.
func ObserveValve(d valve.Diagnostics) {
	for _, r := range regimes {
		v := 0.0
		if r == d.Regime {
			v = 1
		}
		Regime.WithLabelValues(d.ID, r).Set(v)
	}
	if !d.Updated {
		return
	}
	ValvePosition.WithLabelValues(d.ID).Set(d.Position)
	ValveError.WithLabelValues(d.ID).Set(d.Error)
	SweetSpot.WithLabelValues(d.ID).Set(d.SweetSpot)
	FeltTempDelta.WithLabelValues(d.ID).Set(d.FeltTempDelta)
}

// ObserveDispatch records a finished position write.
func ObserveDispatch(r queue.Result) {
	DispatchDuration.Observe(r.Duration.Seconds())
	switch {
	case r.Err == nil:
		Dispatches.WithLabelValues("ok").Inc()
	case r.Requeued:
		Dispatches.WithLabelValues("requeued").Inc()
	default:
		Dispatches.WithLabelValues("failed").Inc()
	}
}

// SetQueueDepth records the queue length.
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// ObserveGated counts a held-back drain.
func ObserveGated(gate string) {
	Gated.WithLabelValues(gate).Inc()
}

// Attach wires the queue observers to the metrics.
func Attach(q *queue.Queue, reg *valve.Registry) {
	q.OnDepth(SetQueueDepth)
	q.OnDispatch(ObserveDispatch)
	q.OnGated(ObserveGated)
	reg.OnUpdate(ObserveValve)
}
