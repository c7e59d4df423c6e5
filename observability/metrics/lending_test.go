package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLendingMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLendingMetrics(reg)

	m.RecordAction("deposit", "ok", 5*time.Millisecond)
	m.RecordAction("deposit", "ok", time.Millisecond)
	m.RecordAction("", "", 0)
	m.RecordLiquidation("WETH", "DAI")
	m.ObserveReserve("DAI", 0.16, 0.001, 0.008, 0.0025, 1.0001, 1.0008)

	require.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("deposit", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("unknown", "unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.liquidations.WithLabelValues("WETH", "DAI")))
	require.Equal(t, 0.16, testutil.ToFloat64(m.utilization.WithLabelValues("DAI")))
	require.Equal(t, 1.0008, testutil.ToFloat64(m.variableBorrowIndex.WithLabelValues("DAI")))

	count, err := testutil.GatherAndCount(reg, "meld_lending_actions_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestLendingMetricsNilSafe(t *testing.T) {
	var m *LendingMetrics
	m.RecordAction("deposit", "ok", time.Second)
	m.RecordLiquidation("WETH", "DAI")
	m.ObserveReserve("DAI", 0, 0, 0, 0, 0, 0)
}
