package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics exposes engine activity and per-reserve gauges.
type LendingMetrics struct {
	actions             *prometheus.CounterVec
	duration            *prometheus.HistogramVec
	liquidations        *prometheus.CounterVec
	utilization         *prometheus.GaugeVec
	liquidityRate       *prometheus.GaugeVec
	variableBorrowRate  *prometheus.GaugeVec
	stableBorrowRate    *prometheus.GaugeVec
	liquidityIndex      *prometheus.GaugeVec
	variableBorrowIndex *prometheus.GaugeVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily registered lending metrics.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = newLendingMetrics()
		lendingRegistry.register(prometheus.DefaultRegisterer)
	})
	return lendingRegistry
}

// NewLendingMetrics builds metrics registered against reg instead of the
// default registerer.
func NewLendingMetrics(reg prometheus.Registerer) *LendingMetrics {
	m := newLendingMetrics()
	m.register(reg)
	return m
}

func newLendingMetrics() *LendingMetrics {
	reserveGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meld",
			Subsystem: "lending",
			Name:      name,
			Help:      help,
		}, []string{"asset"})
	}
	return &LendingMetrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meld",
			Subsystem: "lending",
			Name:      "actions_total",
			Help:      "Lending engine calls segmented by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meld",
			Subsystem: "lending",
			Name:      "action_duration_seconds",
			Help:      "Latency distribution of lending engine calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meld",
			Subsystem: "lending",
			Name:      "liquidations_total",
			Help:      "Liquidations executed by collateral and debt asset.",
		}, []string{"collateral", "debt"}),
		utilization:         reserveGauge("reserve_utilization", "Share of reserve liquidity currently borrowed."),
		liquidityRate:       reserveGauge("reserve_liquidity_rate", "Annual rate earned by suppliers."),
		variableBorrowRate:  reserveGauge("reserve_variable_borrow_rate", "Annual rate paid by variable borrowers."),
		stableBorrowRate:    reserveGauge("reserve_stable_borrow_rate", "Annual rate offered to new stable borrowers."),
		liquidityIndex:      reserveGauge("reserve_liquidity_index", "Cumulative supplier interest index."),
		variableBorrowIndex: reserveGauge("reserve_variable_borrow_index", "Cumulative variable borrower interest index."),
	}
}

func (m *LendingMetrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(
		m.actions,
		m.duration,
		m.liquidations,
		m.utilization,
		m.liquidityRate,
		m.variableBorrowRate,
		m.stableBorrowRate,
		m.liquidityIndex,
		m.variableBorrowIndex,
	)
}

// RecordAction counts an engine call and observes its latency.
func (m *LendingMetrics) RecordAction(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordLiquidation counts a liquidation between two assets.
func (m *LendingMetrics) RecordLiquidation(collateral, debt string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(collateral, debt).Inc()
}

// ObserveReserve publishes a reserve's current rates and indexes.
func (m *LendingMetrics) ObserveReserve(asset string, utilization, liquidityRate, variableRate, stableRate, liquidityIndex, variableIndex float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(asset).Set(utilization)
	m.liquidityRate.WithLabelValues(asset).Set(liquidityRate)
	m.variableBorrowRate.WithLabelValues(asset).Set(variableRate)
	m.stableBorrowRate.WithLabelValues(asset).Set(stableRate)
	m.liquidityIndex.WithLabelValues(asset).Set(liquidityIndex)
	m.variableBorrowIndex.WithLabelValues(asset).Set(variableIndex)
}
