package memory

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellReadWriteUpdate(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", 10, clk, nil)

	v, ok := c.Read()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	require.NoError(t, c.Write(20))
	v, ok = c.Read()
	require.True(t, ok)
	assert.Equal(t, 20, v)

	require.NoError(t, c.Update(func(cur int, ok bool) int {
		require.True(t, ok)
		return cur + 1
	}))
	v, _ = c.Read()
	assert.Equal(t, 21, v)
}

func TestCellClearRestoresInitial(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", "first", clk, nil)
	require.NoError(t, c.Write("second"))

	c.Clear()
	v, ok := c.Read()
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestCellEmptyThenReadReportsAbsent(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", "x", clk, nil)
	c.Empty()

	_, ok := c.Read()
	assert.False(t, ok)
	assert.Equal(t, 0, c.Metadata().Size)
}

func TestCellMetadataDoesNotAdvanceLastAccessed(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", 1, clk, nil)
	before := c.Metadata().LastAccessed

	clk.Add(time.Second)
	_ = c.Metadata()

	assert.Equal(t, before, c.Metadata().LastAccessed)
}

func TestCellReadAdvancesLastAccessed(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", 1, clk, nil)
	before := c.Metadata().LastAccessed

	clk.Add(time.Second)
	c.Read()

	assert.True(t, c.Metadata().LastAccessed.After(before))
}

func TestCellTagMutationIsIdempotentAndSorted(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", 1, clk, nil)

	c.AddTag("b")
	c.AddTag("a")
	c.AddTag("a")
	assert.Equal(t, []string{"a", "b"}, c.GetTags())

	c.RemoveTag("missing")
	c.RemoveTag("a")
	assert.Equal(t, []string{"b"}, c.GetTags())
}

func TestCellOnTagChangeNotifiesOwner(t *testing.T) {
	clk := clock.NewMock()
	c := newCell("cell-1", 1, clk, nil)

	var added []string
	var removed []string
	c.onTagChange = func(tag string, isAdd bool) {
		if isAdd {
			added = append(added, tag)
		} else {
			removed = append(removed, tag)
		}
	}

	c.AddTag("hot")
	c.RemoveTag("hot")

	assert.Equal(t, []string{"hot"}, added)
	assert.Equal(t, []string{"hot"}, removed)
}
