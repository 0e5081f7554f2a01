package memory

import (
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringCodec() Codec[string] {
	return Codec[string]{
		Serialize:   func(s string) ([]byte, error) { return []byte(s), nil },
		Deserialize: func(b []byte) (string, error) { return string(b), nil },
	}
}

func TestCompressedCellBelowThresholdRecordsNone(t *testing.T) {
	clk := clock.NewMock()
	cc, err := newCompressedCell("cc-1", strings.Repeat("x", 32), clk, stringCodec(), GZIP, 1024)
	require.NoError(t, err)

	stats, ok := cc.GetCompressionStats()
	require.True(t, ok)
	assert.Equal(t, "None", stats.StrategyName)
	assert.Equal(t, 1.0, stats.Ratio)
	assert.Equal(t, stats.OriginalSize, stats.CompressedSize)
}

func TestCompressedCellAboveThresholdUsesGZIP(t *testing.T) {
	clk := clock.NewMock()
	big := strings.Repeat("a", 10*1024)
	cc, err := newCompressedCell("cc-1", big, clk, stringCodec(), GZIP, 1024)
	require.NoError(t, err)

	stats, ok := cc.GetCompressionStats()
	require.True(t, ok)
	assert.Equal(t, "GZIP", stats.StrategyName)
	assert.Greater(t, stats.Ratio, 1.0)
	assert.Less(t, stats.CompressedSize, stats.OriginalSize)
}

func TestCompressedCellEmptyHasNoStats(t *testing.T) {
	clk := clock.NewMock()
	cc, err := newCompressedCell("cc-1", "hello", clk, stringCodec(), GZIP, 1024)
	require.NoError(t, err)

	cc.Empty()
	_, ok := cc.GetCompressionStats()
	assert.False(t, ok)

	_, ok, err = cc.ForceCompress()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompressedCellForceCompressIgnoresThreshold(t *testing.T) {
	clk := clock.NewMock()
	cc, err := newCompressedCell("cc-1", "small", clk, stringCodec(), GZIP, 1024)
	require.NoError(t, err)

	stats, ok, err := cc.ForceCompress()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GZIP", stats.StrategyName)
}

func TestCompressedCellLZ4RoundTripsThroughAlgorithm(t *testing.T) {
	data := []byte(strings.Repeat("roundtrip-me", 500))
	compressed, err := LZ4.Compress(data)
	require.NoError(t, err)
	out, err := LZ4.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressedCellClearRecomputesStats(t *testing.T) {
	clk := clock.NewMock()
	cc, err := newCompressedCell("cc-1", "init", clk, stringCodec(), GZIP, 1024)
	require.NoError(t, err)
	require.NoError(t, cc.Write(strings.Repeat("z", 5000)))

	cc.Clear()
	v, ok := cc.Read()
	require.True(t, ok)
	assert.Equal(t, "init", v)

	stats, ok := cc.GetCompressionStats()
	require.True(t, ok)
	assert.Equal(t, "None", stats.StrategyName)
}
