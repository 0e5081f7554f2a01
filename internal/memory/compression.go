package memory

import (
	"sync"
	"time"
)

// DefaultCompressionThreshold is the byte threshold below which a
// CompressedCell records strategy "None" instead of compressing (spec
// §4.2).
const DefaultCompressionThreshold = 1024

// CompressionStats describes the most recent write's serialization and
// compression outcome. It is absent (see GetCompressionStats) whenever
// the cell holds no value.
type CompressionStats struct {
	OriginalSize   int
	CompressedSize int
	Ratio          float64
	StrategyName   string
	LastCompressed time.Time
}

// CompressedCell wraps a Cell, serializing and conditionally compressing
// every write and recording CompressionStats. It keeps the live T value
// hot (spec §4.2 "implementations may keep the decompressed value hot");
// the compressed bytes themselves are never retained, only their size.
type CompressedCell[T any] struct {
	*Cell[T]

	serialize   func(T) ([]byte, error)
	deserialize func([]byte) (T, error)
	algorithm   Algorithm
	threshold   int

	statsMu sync.RWMutex
	stats   *CompressionStats
}

func newCompressedCell[T any](id string, initial T, clk Clock, codec Codec[T], algorithm Algorithm, threshold int) (*CompressedCell[T], error) {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	if algorithm == nil {
		algorithm = GZIP
	}
	cc := &CompressedCell[T]{
		Cell:        newCell(id, initial, clk, nil),
		serialize:   codec.Serialize,
		deserialize: codec.Deserialize,
		algorithm:   algorithm,
		threshold:   threshold,
	}
	if err := cc.writeAndStatsLocked(initial); err != nil {
		return nil, err
	}
	return cc, nil
}

// buildStats computes a CompressionStats for data, honoring the
// threshold (spec §4.2 steps 2-3).
func (c *CompressedCell[T]) buildStats(data []byte) (CompressionStats, error) {
	stats := CompressionStats{
		OriginalSize:   len(data),
		LastCompressed: c.Cell.clock.Now(),
	}
	if len(data) < c.threshold {
		stats.CompressedSize = len(data)
		stats.Ratio = 1.0
		stats.StrategyName = "None"
		return stats, nil
	}
	compressed, err := c.algorithm.Compress(data)
	if err != nil {
		return CompressionStats{}, newError(CompressionError, "compress", err)
	}
	stats.CompressedSize = len(compressed)
	stats.StrategyName = c.algorithm.Name()
	if len(compressed) > 0 {
		stats.Ratio = float64(len(data)) / float64(len(compressed))
	} else {
		stats.Ratio = 1.0
	}
	return stats, nil
}

// writeAndStatsLocked serializes, compresses, stores v, and records
// stats. The caller must hold c.Cell.mu for writing.
func (c *CompressedCell[T]) writeAndStatsLocked(v T) error {
	data, err := c.serialize(v)
	if err != nil {
		return newError(WriteError, "serialize", err)
	}
	stats, err := c.buildStats(data)
	if err != nil {
		return err
	}
	c.Cell.writeLocked(v)
	// Metadata size must track the serialized length a codec produces
	// (spec §3/§4.1), not writeLocked's best-effort fallback approximation
	// — the same len(data) feeding CompressionStats.OriginalSize.
	c.Cell.size = len(data)
	c.statsMu.Lock()
	c.stats = &stats
	c.statsMu.Unlock()
	return nil
}

// Write serializes, conditionally compresses, and stores v.
func (c *CompressedCell[T]) Write(v T) error {
	c.Cell.mu.Lock()
	defer c.Cell.mu.Unlock()
	return c.writeAndStatsLocked(v)
}

// Update applies f to the current (possibly absent) value under the
// cell's exclusive lock, then serializes/compresses the result.
func (c *CompressedCell[T]) Update(f func(current T, ok bool) T) error {
	c.Cell.mu.Lock()
	defer c.Cell.mu.Unlock()
	newVal := f(c.Cell.value, c.Cell.hasValue)
	return c.writeAndStatsLocked(newVal)
}

// Clear restores the initial value and recomputes compression stats
// against it, honoring the threshold (spec §4.2 edge-case policy).
func (c *CompressedCell[T]) Clear() {
	c.Cell.mu.Lock()
	defer c.Cell.mu.Unlock()
	if err := c.writeAndStatsLocked(c.Cell.initial); err != nil {
		// The initial value itself failed to serialize: still restore
		// it so clear() stays well-defined, but drop stale stats.
		c.Cell.writeLocked(c.Cell.initial)
		c.statsMu.Lock()
		c.stats = nil
		c.statsMu.Unlock()
	}
}

// Empty clears the value and drops compression stats.
func (c *CompressedCell[T]) Empty() {
	c.Cell.Empty()
	c.statsMu.Lock()
	c.stats = nil
	c.statsMu.Unlock()
}

// GetCompressionStats returns the stats for the most recent write, or
// ok=false if the cell is currently empty.
func (c *CompressedCell[T]) GetCompressionStats() (CompressionStats, bool) {
	c.Cell.mu.RLock()
	hasValue := c.Cell.hasValue
	c.Cell.mu.RUnlock()
	if !hasValue {
		return CompressionStats{}, false
	}
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	if c.stats == nil {
		return CompressionStats{}, false
	}
	return *c.stats, true
}

// ForceCompress compresses the current value regardless of the
// threshold and updates stats; it returns ok=false if the cell is empty.
func (c *CompressedCell[T]) ForceCompress() (CompressionStats, bool, error) {
	c.Cell.mu.RLock()
	v := c.Cell.value
	ok := c.Cell.hasValue
	c.Cell.mu.RUnlock()
	if !ok {
		return CompressionStats{}, false, nil
	}
	data, err := c.serialize(v)
	if err != nil {
		return CompressionStats{}, false, newError(WriteError, "serialize", err)
	}
	compressed, err := c.algorithm.Compress(data)
	if err != nil {
		return CompressionStats{}, false, newError(CompressionError, "compress", err)
	}
	stats := CompressionStats{
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
		StrategyName:   c.algorithm.Name(),
		LastCompressed: c.Cell.clock.Now(),
	}
	if len(compressed) > 0 {
		stats.Ratio = float64(len(data)) / float64(len(compressed))
	} else {
		stats.Ratio = 1.0
	}
	c.statsMu.Lock()
	c.stats = &stats
	c.statsMu.Unlock()
	return stats, true, nil
}
