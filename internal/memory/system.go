package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

// InMemorySystem is a registry of Cells with no durability: restarting
// the process loses everything. It implements the System interface the
// Monitor consumes.
type InMemorySystem struct {
	*registry
}

// NewSystem constructs an empty InMemorySystem.
func NewSystem(clk Clock, logger logging.Sink) *InMemorySystem {
	return &InMemorySystem{registry: newRegistry(clk, logger)}
}

// GetAllCells returns every live cell.
func (s *InMemorySystem) GetAllCells() []Handle { return s.registry.getAllCells() }

// GetCellsByTag returns the cells whose current tags include tag.
func (s *InMemorySystem) GetCellsByTag(tag string) []Handle { return s.registry.getCellsByTag(tag) }

// RegisterCleanupStrategy installs or replaces a strategy keyed by name.
func (s *InMemorySystem) RegisterCleanupStrategy(strategy Strategy) {
	s.registry.registerCleanupStrategy(strategy)
}

// UnregisterCleanupStrategy removes a strategy by name; idempotent.
func (s *InMemorySystem) UnregisterCleanupStrategy(name string) {
	s.registry.unregisterCleanupStrategy(name)
}

// GetCleanupStrategies returns the currently registered strategies.
func (s *InMemorySystem) GetCleanupStrategies() []Strategy {
	return s.registry.getCleanupStrategies()
}

// RunCleanup runs every registered strategy and returns the total number
// of cells emptied.
func (s *InMemorySystem) RunCleanup() int { return s.registry.runCleanup() }

// RunCleanupWith runs a single strategy, whether or not it is registered,
// and returns the number of cells it emptied.
func (s *InMemorySystem) RunCleanupWith(strategy Strategy) int {
	return s.registry.runCleanupWith(strategy)
}

// EnableAutomaticCleanup installs a cancellable periodic task invoking
// RunCleanup every interval, replacing any prior installation.
func (s *InMemorySystem) EnableAutomaticCleanup(interval time.Duration) {
	s.registry.enableAutomaticCleanup(interval, func() { s.registry.runCleanup() })
}

// DisableAutomaticCleanup cancels the periodic task; idempotent.
func (s *InMemorySystem) DisableAutomaticCleanup() { s.registry.disableAutomaticCleanup() }

// ClearAll empties every cell, drops the tag index, and stops automatic
// cleanup (spec §4.4).
func (s *InMemorySystem) ClearAll() {
	for _, c := range s.registry.getAllCells() {
		c.Empty()
	}
	s.registry.clearTagIndex()
	s.registry.disableAutomaticCleanup()
}

// CreateCell allocates a new untagged cell and returns its typed handle.
func CreateCell[T any](s *InMemorySystem, initial T) *Cell[T] {
	return CreateCellWithTags(s, initial, nil)
}

// CreateCellWithTags allocates a new cell, seeds its tag set, and
// updates the System's tag index.
func CreateCellWithTags[T any](s *InMemorySystem, initial T, tags []string) *Cell[T] {
	id := uuid.NewString()
	c := newCell(id, initial, s.registry.clock, nil)
	for _, t := range tags {
		c.tags[t] = struct{}{}
	}
	c.onTagChange = s.registry.tagChangeCallback(id)
	s.registry.insert(id, c, tags)
	return c
}

// CreateCompressedCell allocates a new untagged CompressedCell.
// threshold <= 0 uses DefaultCompressionThreshold; algorithm == nil uses
// GZIP.
func CreateCompressedCell[T any](s *InMemorySystem, initial T, codec Codec[T], algorithm Algorithm, threshold int) (*CompressedCell[T], error) {
	return CreateCompressedCellWithTags(s, initial, nil, codec, algorithm, threshold)
}

// CreateCompressedCellWithTags allocates a new CompressedCell with an
// initial tag set.
func CreateCompressedCellWithTags[T any](s *InMemorySystem, initial T, tags []string, codec Codec[T], algorithm Algorithm, threshold int) (*CompressedCell[T], error) {
	id := uuid.NewString()
	cc, err := newCompressedCell(id, initial, s.registry.clock, codec, algorithm, threshold)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		cc.Cell.tags[t] = struct{}{}
	}
	cc.Cell.onTagChange = s.registry.tagChangeCallback(id)
	s.registry.insert(id, cc, tags)
	return cc, nil
}

// NewSystemWithTimeBasedCleanup is a convenience constructor composing
// RegisterCleanupStrategy(TimeBasedAccess) and EnableAutomaticCleanup,
// matching spec §4.4's description of the factory shortcuts ("with
// time-based cleanup registers a TimeBasedAccess strategy then enables
// automatic cleanup"). It is not part of the cleanup algebra itself.
func NewSystemWithTimeBasedCleanup(clk Clock, logger logging.Sink, maxAge, interval time.Duration) *InMemorySystem {
	s := NewSystem(clk, logger)
	s.RegisterCleanupStrategy(TimeBasedAccess(maxAge))
	s.EnableAutomaticCleanup(interval)
	return s
}

// NewSystemWithSizeBasedCleanup is the size-based analogue of
// NewSystemWithTimeBasedCleanup.
func NewSystemWithSizeBasedCleanup(clk Clock, logger logging.Sink, maxBytes int, interval time.Duration) *InMemorySystem {
	s := NewSystem(clk, logger)
	s.RegisterCleanupStrategy(SizeBasedCleanup(maxBytes))
	s.EnableAutomaticCleanup(interval)
	return s
}

// NewSystemWithTagCleanup is the tag-based analogue of
// NewSystemWithTimeBasedCleanup.
func NewSystemWithTagCleanup(clk Clock, logger logging.Sink, tags []string, interval time.Duration) *InMemorySystem {
	s := NewSystem(clk, logger)
	s.RegisterCleanupStrategy(TagBasedCleanup(tags...))
	s.EnableAutomaticCleanup(interval)
	return s
}
