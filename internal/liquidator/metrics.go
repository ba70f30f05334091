package liquidator

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "clearing_house"
	metricsSubsystem = "liquidator"
)

type Metrics struct {
	registry       *prometheus.Registry
	rounds         prometheus.Counter
	roundDuration  prometheus.Histogram
	slot           prometheus.Gauge
	usersEvaluated prometheus.Gauge
	usersSkipped   prometheus.Gauge
	oracles        prometheus.Gauge
	minMarginRatio prometheus.Gauge
	actions        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rounds_total",
			Help:      "Completed evaluation rounds.",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "round_duration_seconds",
			Help:      "Wall time of one round from refresh to aggregation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "slot",
			Help:      "Slot of the last completed round.",
		}),
		usersEvaluated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "users_evaluated",
			Help:      "Users with a liquidation status in the last round.",
		}),
		usersSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "users_skipped",
			Help:      "Users skipped in the last round.",
		}),
		oracles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "oracles_loaded",
			Help:      "Oracle accounts in the last round's snapshot.",
		}),
		minMarginRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "min_margin_ratio",
			Help:      "Lowest margin ratio seen in the last round, in margin precision.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "actions_total",
			Help:      "Fill and liquidation transactions by result.",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		m.rounds,
		m.roundDuration,
		m.slot,
		m.usersEvaluated,
		m.usersSkipped,
		m.oracles,
		m.minMarginRatio,
		m.actions,
	)
	return m
}

// Registry exposes the collectors for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRound(report *RoundReport) {
	m.rounds.Inc()
	m.roundDuration.Observe(report.Duration.Seconds())
	m.slot.Set(float64(report.Slot))
	m.usersEvaluated.Set(float64(report.Evaluated))
	m.usersSkipped.Set(float64(report.Skipped))
	m.oracles.Set(float64(report.Oracles))
	if report.MinMarginRatio != nil {
		ratio, _ := new(big.Float).SetInt(report.MinMarginRatio).Float64()
		m.minMarginRatio.Set(ratio)
	}
}

func (m *Metrics) observeAction(action Action) {
	m.actions.WithLabelValues(string(action.Kind), action.Result()).Inc()
}
