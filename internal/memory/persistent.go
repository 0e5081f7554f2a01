package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

// cellRecord is the on-disk payload for one cell: spec §6's "serializable
// cell tuple {value: Option<T>, initial_value: T, metadata}", with value
// and initial_value already reduced to the bytes a caller's codec
// produced, so the System never needs to know T to reload a file.
type cellRecord struct {
	ID           string    `json:"id"`
	HasValue     bool      `json:"has_value"`
	Value        []byte    `json:"value,omitempty"`
	Initial      []byte    `json:"initial"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	LastModified time.Time `json:"last_modified"`
	Size         int       `json:"size"`
	Tags         []string  `json:"tags"`
}

// PersistentSystem has the identical public contract of InMemorySystem
// (spec §4.5): every mutation on a managed cell is followed by a durable
// rewrite of that cell's file, and construction reloads whatever files
// already exist under baseDir.
type PersistentSystem struct {
	*registry
	baseDir string
}

// NewPersistentSystem opens (creating if necessary) baseDir and
// reconstructs every cell found in it. A file that fails to parse is
// logged and skipped; the System still starts (spec §4.5, §7).
func NewPersistentSystem(baseDir string, clk Clock, logger logging.Sink) (*PersistentSystem, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persistent memory base dir: %w", err)
	}

	s := &PersistentSystem{
		registry: newRegistry(clk, logger),
		baseDir:  baseDir,
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read persistent memory base dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if logger != nil {
				logger.Warnf("skipping unreadable cell record %s: %v", path, err)
			}
			continue
		}
		var rec cellRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			if logger != nil {
				logger.Warnf("skipping corrupt cell record %s: %v", path, err)
			}
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		raw := newCell(id, rec.Value, clk, func(v []byte) int { return len(v) })
		raw.hasValue = rec.HasValue
		raw.initial = rec.Initial
		raw.createdAt = rec.CreatedAt
		raw.lastAccessed = rec.LastAccessed
		raw.lastModified = rec.LastModified
		raw.size = rec.Size
		for _, t := range rec.Tags {
			raw.tags[t] = struct{}{}
		}
		raw.onTagChange = s.registry.tagChangeCallback(id)
		// Tag index rebuilt after this cell loaded successfully (spec
		// §9 open question: a cell that fails to load contributes no
		// tag entries).
		s.registry.insert(id, rawHandle{raw, s}, rec.Tags)
	}

	return s, nil
}

func (s *PersistentSystem) cellPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// persist durably rewrites one cell's record via write-temp-then-rename
// (spec §6 "Atomicity").
func (s *PersistentSystem) persist(rec cellRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cell record: %w", err)
	}
	path := s.cellPath(rec.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cell record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cell record: %w", err)
	}
	return nil
}

func (s *PersistentSystem) deleteFile(id string) error {
	if err := os.Remove(s.cellPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cell record: %w", err)
	}
	return nil
}

func (s *PersistentSystem) warnPersistFailure(id string, err error) {
	if s.registry.logger != nil {
		s.registry.logger.Warnf("persistence failed for cell %s: %v", id, err)
	}
}

// GetAllCells returns every live cell.
func (s *PersistentSystem) GetAllCells() []Handle { return s.registry.getAllCells() }

// GetCellsByTag returns the cells whose current tags include tag.
func (s *PersistentSystem) GetCellsByTag(tag string) []Handle {
	return s.registry.getCellsByTag(tag)
}

// RegisterCleanupStrategy installs or replaces a strategy keyed by name.
func (s *PersistentSystem) RegisterCleanupStrategy(strategy Strategy) {
	s.registry.registerCleanupStrategy(strategy)
}

// UnregisterCleanupStrategy removes a strategy by name; idempotent.
func (s *PersistentSystem) UnregisterCleanupStrategy(name string) {
	s.registry.unregisterCleanupStrategy(name)
}

// GetCleanupStrategies returns the currently registered strategies.
func (s *PersistentSystem) GetCleanupStrategies() []Strategy {
	return s.registry.getCleanupStrategies()
}

// RunCleanup runs every registered strategy; a cell emptied by cleanup
// is persisted by its handle's own Empty (PersistentCell.Empty or
// rawHandle.Empty), like any other mutation.
func (s *PersistentSystem) RunCleanup() int { return s.registry.runCleanup() }

// RunCleanupWith runs a single strategy, registered or not.
func (s *PersistentSystem) RunCleanupWith(strategy Strategy) int {
	return s.registry.runCleanupWith(strategy)
}

// EnableAutomaticCleanup installs a cancellable periodic cleanup task.
func (s *PersistentSystem) EnableAutomaticCleanup(interval time.Duration) {
	s.registry.enableAutomaticCleanup(interval, func() { s.registry.runCleanup() })
}

// DisableAutomaticCleanup cancels the periodic cleanup task; idempotent.
func (s *PersistentSystem) DisableAutomaticCleanup() { s.registry.disableAutomaticCleanup() }

// ClearAll empties every cell and deletes every cell's file (spec §4.5:
// "clear_all empties all cells and deletes all files").
func (s *PersistentSystem) ClearAll() {
	for _, c := range s.registry.getAllCells() {
		c.Empty()
		if err := s.deleteFile(c.ID()); err != nil {
			s.warnPersistFailure(c.ID(), err)
		}
	}
	s.registry.clearTagIndex()
	s.registry.disableAutomaticCleanup()
}

// rawHandle is a Handle reconstructed at startup before any caller has
// re-supplied a codec for it: its payload is addressable only as raw
// bytes (spec note 9's "pre-serialized byte arrays" approach to a
// heterogeneous registry). Every mutating Handle method durably rewrites
// the cell's file via the byte-level Cell it wraps, including cleanup-
// triggered Empty, so a System stays durable for cells nobody has
// Reopen'd yet.
type rawHandle struct {
	*Cell[[]byte]
	system *PersistentSystem
}

func (r rawHandle) ReadRaw() ([]byte, bool) { return r.Cell.Read() }

func (r rawHandle) Clear() {
	r.Cell.Clear()
	r.persistBestEffort()
}

func (r rawHandle) Empty() {
	r.Cell.Empty()
	r.persistBestEffort()
}

func (r rawHandle) AddTag(tag string) {
	r.Cell.AddTag(tag)
	r.persistBestEffort()
}

func (r rawHandle) RemoveTag(tag string) {
	r.Cell.RemoveTag(tag)
	r.persistBestEffort()
}

func (r rawHandle) persistBestEffort() {
	rec := snapshotRecord(r.Cell)
	if err := r.system.persist(rec); err != nil {
		r.system.warnPersistFailure(r.Cell.id, err)
	}
}

// snapshotRecord builds a cellRecord from a []byte-valued Cell, taking
// its own read lock. Use snapshotLocked instead when the caller already
// holds c.mu.
func snapshotRecord(c *Cell[[]byte]) cellRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return recordFields(c)
}

// PersistentCell is the typed proxy handed back by CreatePersistentCell:
// it behaves like a Cell[T] but durably rewrites its file on every
// mutation (spec §4.5 "proxy semantics"). It holds a non-owning pointer
// to its System so the System remains the sole owner of the underlying
// byte-level Cell (spec §9 "cyclic ownership" note).
type PersistentCell[T any] struct {
	raw    *Cell[[]byte]
	codec  Codec[T]
	system *PersistentSystem
}

func newPersistentCell[T any](id string, initial T, clk Clock, codec Codec[T]) (*PersistentCell[T], error) {
	data, err := codec.Serialize(initial)
	if err != nil {
		return nil, newError(WriteError, "serialize initial", err)
	}
	raw := newCell(id, data, clk, func(v []byte) int { return len(v) })
	return &PersistentCell[T]{raw: raw, codec: codec}, nil
}

// ID returns the System-assigned identifier.
func (p *PersistentCell[T]) ID() string { return p.raw.ID() }

// Metadata returns a snapshot without advancing LastAccessed.
func (p *PersistentCell[T]) Metadata() Metadata { return p.raw.Metadata() }

// GetMetadata is an alias for Metadata.
func (p *PersistentCell[T]) GetMetadata() Metadata { return p.raw.Metadata() }

// GetTags returns the current tag set.
func (p *PersistentCell[T]) GetTags() []string { return p.raw.GetTags() }

// ReadRaw returns the raw bytes the codec produced for the current
// value, satisfying RawReader uniformly with a reloaded rawHandle.
func (p *PersistentCell[T]) ReadRaw() ([]byte, bool) { return p.raw.Read() }

// Read deserializes and returns the current value.
func (p *PersistentCell[T]) Read() (T, bool, error) {
	data, ok := p.raw.Read()
	var zero T
	if !ok {
		return zero, false, nil
	}
	v, err := p.codec.Deserialize(data)
	if err != nil {
		return zero, false, newError(ReadError, "deserialize", err)
	}
	return v, true, nil
}

// Write serializes v, stores it, and durably rewrites the cell's file.
func (p *PersistentCell[T]) Write(v T) error {
	data, err := p.codec.Serialize(v)
	if err != nil {
		return newError(WriteError, "serialize", err)
	}
	p.raw.mu.Lock()
	p.raw.writeLocked(data)
	rec := snapshotLocked(p.raw)
	p.raw.mu.Unlock()
	return p.persistOrReport(rec)
}

// Update applies f to the current (possibly absent) deserialized value
// under the cell's exclusive lock, serializes the result, stores it, and
// durably rewrites the cell's file.
func (p *PersistentCell[T]) Update(f func(current T, ok bool) T) error {
	p.raw.mu.Lock()
	var cur T
	if p.raw.hasValue {
		v, err := p.codec.Deserialize(p.raw.value)
		if err != nil {
			p.raw.mu.Unlock()
			return newError(ReadError, "deserialize", err)
		}
		cur = v
	}
	newVal := f(cur, p.raw.hasValue)
	data, err := p.codec.Serialize(newVal)
	if err != nil {
		p.raw.mu.Unlock()
		return newError(WriteError, "serialize", err)
	}
	p.raw.writeLocked(data)
	rec := snapshotLocked(p.raw)
	p.raw.mu.Unlock()
	return p.persistOrReport(rec)
}

// Clear restores the initial value and durably rewrites the file. It has
// no error return, so it reports persistence failure only via the System
// logger (spec §4.5 "degraded mode"); the in-memory value is always
// restored.
func (p *PersistentCell[T]) Clear() {
	p.raw.Clear()
	p.persistBestEffort()
}

// Empty sets the value to absent and durably rewrites the file.
func (p *PersistentCell[T]) Empty() {
	p.raw.Empty()
	p.persistBestEffort()
}

// AddTag adds tag and durably rewrites the file.
func (p *PersistentCell[T]) AddTag(tag string) {
	p.raw.AddTag(tag)
	p.persistBestEffort()
}

// RemoveTag removes tag and durably rewrites the file.
func (p *PersistentCell[T]) RemoveTag(tag string) {
	p.raw.RemoveTag(tag)
	p.persistBestEffort()
}

func (p *PersistentCell[T]) persistOrReport(rec cellRecord) error {
	if err := p.system.persist(rec); err != nil {
		return newError(PersistenceError, "persist", err)
	}
	return nil
}

func (p *PersistentCell[T]) persistBestEffort() {
	rec := snapshotRecord(p.raw)
	if err := p.system.persist(rec); err != nil {
		p.system.warnPersistFailure(p.raw.id, err)
	}
}

// snapshotLocked builds a cellRecord assuming c.mu is already held for
// at least reading.
func snapshotLocked(c *Cell[[]byte]) cellRecord { return recordFields(c) }

// recordFields reads a []byte-valued Cell's fields directly; the caller
// is responsible for holding c.mu (for reading, at minimum).
func recordFields(c *Cell[[]byte]) cellRecord {
	rec := cellRecord{
		ID:           c.id,
		HasValue:     c.hasValue,
		Initial:      c.initial,
		CreatedAt:    c.createdAt,
		LastAccessed: c.lastAccessed,
		LastModified: c.lastModified,
		Size:         c.size,
		Tags:         tagSetToSlice(c.tags),
	}
	if c.hasValue {
		rec.Value = c.value
	}
	return rec
}

// CreatePersistentCell allocates a new untagged, durable cell and writes
// its initial record to disk before returning.
func CreatePersistentCell[T any](s *PersistentSystem, initial T, codec Codec[T]) (*PersistentCell[T], error) {
	return CreatePersistentCellWithTags(s, initial, nil, codec)
}

// CreatePersistentCellWithTags allocates a new durable cell with an
// initial tag set and writes its initial record to disk before
// returning.
func CreatePersistentCellWithTags[T any](s *PersistentSystem, initial T, tags []string, codec Codec[T]) (*PersistentCell[T], error) {
	id := uuid.NewString()
	pc, err := newPersistentCell(id, initial, s.registry.clock, codec)
	if err != nil {
		return nil, err
	}
	pc.system = s
	for _, t := range tags {
		pc.raw.tags[t] = struct{}{}
	}
	pc.raw.onTagChange = s.registry.tagChangeCallback(id)

	rec := snapshotRecord(pc.raw)
	if err := s.persist(rec); err != nil {
		return nil, newError(PersistenceError, "persist initial record", err)
	}

	s.registry.insert(id, pc, tags)
	return pc, nil
}

// Reopen upgrades a cell loaded at startup (currently only reachable as
// a RawReader) into a typed PersistentCell[T], so a caller who knows
// what T a previous process stored under id can resume typed access.
func Reopen[T any](s *PersistentSystem, id string, codec Codec[T]) (*PersistentCell[T], error) {
	h, ok := s.registry.get(id)
	if !ok {
		return nil, newError(ReadError, "reopen", fmt.Errorf("cell %s not found", id))
	}
	rh, ok := h.(rawHandle)
	if !ok {
		return nil, newError(ReadError, "reopen", fmt.Errorf("cell %s is not a raw handle", id))
	}
	pc := &PersistentCell[T]{raw: rh.Cell, codec: codec, system: s}
	s.registry.replace(id, pc)
	return pc, nil
}
