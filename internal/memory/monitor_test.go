package memory

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

func TestMonitorEmptySystemSnapshot(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	m.RegisterMemorySystem(s)

	snap := m.GetMetrics()
	assert.Equal(t, 0, snap.TotalCells)
	assert.Equal(t, 0.0, snap.AverageSize)
	assert.Equal(t, 0, snap.LargestCell)
	assert.Equal(t, 0, snap.SmallestCell)
}

func TestMonitorAggregatesAcrossSystems(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s1 := NewSystem(clk, logging.Nop())
	s2 := NewSystem(clk, logging.Nop())
	CreateCellWithTags(s1, "aa", []string{"hot"})
	CreateCellWithTags(s2, "bbbb", []string{"hot", "big"})

	m.RegisterMemorySystem(s1)
	m.RegisterMemorySystem(s2)

	snap := m.GetMetrics()
	assert.Equal(t, 2, snap.TotalCells)
	assert.Equal(t, len(snap.CellsByTag), 2)
	assert.Equal(t, 2, snap.CellsByTag["hot"])
	assert.Equal(t, 1, snap.CellsByTag["big"])
	assert.Equal(t, snap.TotalCells, len(s1.GetAllCells())+len(s2.GetAllCells()))
}

func TestMonitorUnregisterStopsTraversal(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	CreateCell(s, "x")

	m.RegisterMemorySystem(s)
	require.Equal(t, 1, m.GetMetrics().TotalCells)

	m.UnregisterMemorySystem(s)
	assert.Equal(t, 0, m.GetMetrics().TotalCells)
}

func TestMonitorThresholdCallback(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	CreateCell(s, "x")
	m.RegisterMemorySystem(s)
	m.SetCountThreshold(0)

	var gotKind ThresholdKind
	fired := false
	m.OnThresholdExceeded(func(snap Snapshot, kind ThresholdKind) {
		fired = true
		gotKind = kind
	})

	m.GetMetrics()
	require.True(t, fired)
	assert.Equal(t, ThresholdCount, gotKind)
}

func TestMonitorHistoricalMetricsRange(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	m.RegisterMemorySystem(s)

	m.GetMetrics()
	clk.Add(time.Hour)
	mid := clk.Now()
	clk.Add(time.Hour)
	m.GetMetrics()

	all := m.GetHistoricalMetrics(time.Time{}, clk.Now())
	assert.Len(t, all, 2)

	recent := m.GetHistoricalMetrics(mid, clk.Now())
	assert.Len(t, recent, 1)
}

func TestMonitorHistoryLimitDropsOldest(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	m.RegisterMemorySystem(s)
	m.SetHistoryLimit(2)

	m.GetMetrics()
	clk.Add(time.Second)
	m.GetMetrics()
	clk.Add(time.Second)
	m.GetMetrics()

	all := m.GetHistoricalMetrics(time.Time{}, clk.Now())
	assert.Len(t, all, 2)
}

func TestMonitorPeriodicCollectionTakesImmediateSample(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	s := NewSystem(clk, logging.Nop())
	m.RegisterMemorySystem(s)

	m.EnablePeriodicCollection(time.Minute)
	defer m.DisablePeriodicCollection()

	all := m.GetHistoricalMetrics(time.Time{}, clk.Now())
	assert.Len(t, all, 1)
}

func TestMonitorDisablePeriodicCollectionIdempotent(t *testing.T) {
	clk := clock.NewMock()
	m := NewMonitor(clk, logging.Nop())
	assert.NotPanics(t, func() {
		m.DisablePeriodicCollection()
		m.DisablePeriodicCollection()
	})
}
