// Package observability holds the Prometheus metrics for recovery actions and
// the daily sweeps.
//
// Every method is safe on a nil *Metrics so services can run without metrics
// in tests and one-off CLI commands.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "streakguard"

type Metrics struct {
	// ActionsTotal counts recovery actions.
	// Labels: action (shield, freeze, revive), outcome (success or error code)
	ActionsTotal *prometheus.CounterVec

	// ItemsConsumedTotal counts inventory items spent.
	// Labels: item (streak_shield, freeze_token, revive_token)
	ItemsConsumedTotal *prometheus.CounterVec

	// ItemsCreditedTotal counts inventory items granted.
	// Labels: item
	ItemsCreditedTotal *prometheus.CounterVec

	// WarningsSentTotal counts risk warnings handed to the notifier.
	WarningsSentTotal prometheus.Counter

	// NotifyFailuresTotal counts notifier errors that were swallowed.
	NotifyFailuresTotal prometheus.Counter

	// UnfrozenTotal counts Frozen -> Normal transitions.
	UnfrozenTotal prometheus.Counter

	// SweepDurationSeconds measures a full sweep.
	// Labels: sweep (risk, unfreeze)
	SweepDurationSeconds *prometheus.HistogramVec

	// SweepFailuresTotal counts per-user or per-habit failures inside a sweep.
	// Labels: sweep
	SweepFailuresTotal *prometheus.CounterVec
}

// NewMetrics registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recovery",
			Name:      "actions_total",
			Help:      "Recovery actions by action and outcome.",
		}, []string{"action", "outcome"}),
		ItemsConsumedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "inventory",
			Name:      "items_consumed_total",
			Help:      "Inventory items consumed by item type.",
		}, []string{"item"}),
		ItemsCreditedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "inventory",
			Name:      "items_credited_total",
			Help:      "Inventory items credited by item type.",
		}, []string{"item"}),
		WarningsSentTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "risk",
			Name:      "warnings_sent_total",
			Help:      "Streak risk warnings sent.",
		}),
		NotifyFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "risk",
			Name:      "notify_failures_total",
			Help:      "Notifier errors swallowed during sweeps.",
		}),
		UnfrozenTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "unfreeze",
			Name:      "habits_unfrozen_total",
			Help:      "Habits returned from Frozen to Normal.",
		}),
		SweepDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of scheduled sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"sweep"}),
		SweepFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Isolated failures inside sweeps.",
		}, []string{"sweep"}),
	}
}

func (m *Metrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordConsumed(item string, qty int) {
	if m == nil {
		return
	}
	m.ItemsConsumedTotal.WithLabelValues(item).Add(float64(qty))
}

func (m *Metrics) RecordCredited(item string, qty int) {
	if m == nil {
		return
	}
	m.ItemsCreditedTotal.WithLabelValues(item).Add(float64(qty))
}

func (m *Metrics) RecordWarningSent() {
	if m == nil {
		return
	}
	m.WarningsSentTotal.Inc()
}

func (m *Metrics) RecordNotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailuresTotal.Inc()
}

func (m *Metrics) RecordUnfrozen() {
	if m == nil {
		return
	}
	m.UnfrozenTotal.Inc()
}

func (m *Metrics) ObserveSweep(sweep string, seconds float64) {
	if m == nil {
		return
	}
	m.SweepDurationSeconds.WithLabelValues(sweep).Observe(seconds)
}

func (m *Metrics) RecordSweepFailure(sweep string) {
	if m == nil {
		return
	}
	m.SweepFailuresTotal.WithLabelValues(sweep).Inc()
}
