package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

func TestSystemTagIndex(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())

	c1 := CreateCellWithTags(s, "test1", []string{"tag1"})
	c2 := CreateCellWithTags(s, "test2", []string{"tag1", "tag2"})

	byTag1 := s.GetCellsByTag("tag1")
	assert.Len(t, byTag1, 2)

	byTag2 := s.GetCellsByTag("tag2")
	require.Len(t, byTag2, 1)
	assert.Equal(t, c2.ID(), byTag2[0].ID())
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestSystemTimeBasedCleanup(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	c := CreateCell(s, "test")

	strategy := TimeBasedAccess(time.Second)
	s.RegisterCleanupStrategy(strategy)

	clk.Add(2 * time.Second)
	count := s.RunCleanup()
	assert.Equal(t, 1, count)

	_, ok := c.Read()
	assert.False(t, ok)
}

func TestSystemSizeBasedCleanup(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	c := CreateCell(s, "initial")
	require.NoError(t, c.Write(strings.Repeat("a", 1000)))

	strategy := SizeBasedCleanup(100)
	s.RegisterCleanupStrategy(strategy)

	count := s.RunCleanup()
	assert.Equal(t, 1, count)

	_, ok := c.Read()
	assert.False(t, ok)
}

func TestSystemTagBasedCleanupSelectivity(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	c1 := CreateCellWithTags(s, "test1", []string{"temp"})
	c2 := CreateCellWithTags(s, "test2", []string{"permanent"})

	strategy := TagBasedCleanup("temp")
	count := s.RunCleanupWith(strategy)
	assert.Equal(t, 1, count)

	_, ok := c1.Read()
	assert.False(t, ok)

	v, ok := c2.Read()
	require.True(t, ok)
	assert.Equal(t, "test2", v)
}

func TestSystemRunCleanupWithNoStrategiesEmptiesNothing(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	CreateCell(s, "test")

	assert.Equal(t, 0, s.RunCleanup())
}

func TestSystemDisableBeforeEnableIsNoop(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	assert.NotPanics(t, func() { s.DisableAutomaticCleanup() })
}

func TestSystemAutomaticCleanupNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	c := CreateCell(s, "test")
	s.RegisterCleanupStrategy(TimeBasedAccess(time.Second))
	s.EnableAutomaticCleanup(100 * time.Millisecond)

	clk.Add(2 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := c.Read()
		return !ok
	}, time.Second, 10*time.Millisecond)

	s.DisableAutomaticCleanup()
}

func TestSystemClearAllEmptiesAndDropsTagIndex(t *testing.T) {
	clk := clock.NewMock()
	s := NewSystem(clk, logging.Nop())
	c := CreateCellWithTags(s, "test1", []string{"tag1"})

	s.ClearAll()

	_, ok := c.Read()
	assert.False(t, ok)
	assert.Empty(t, s.GetCellsByTag("tag1"))
}
