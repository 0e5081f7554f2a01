package memory

import (
	"sort"
	"sync"
	"time"
	"unsafe"
	"weak"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

// System is the contract a Monitor aggregates over. Both InMemorySystem
// and PersistentSystem satisfy it with their existing GetAllCells.
type System interface {
	GetAllCells() []Handle
}

// ThresholdKind names which configured threshold a Snapshot exceeded.
type ThresholdKind int

const (
	// ThresholdSize marks total_size > size_threshold.
	ThresholdSize ThresholdKind = iota
	// ThresholdCount marks total_cells > count_threshold.
	ThresholdCount
)

func (k ThresholdKind) String() string {
	switch k {
	case ThresholdSize:
		return "size"
	case ThresholdCount:
		return "count"
	default:
		return "unknown"
	}
}

// Snapshot is the aggregate computed by one GetMetrics call (spec §4.6,
// §3 "Metrics Snapshot").
type Snapshot struct {
	TotalCells   int
	TotalSize    int
	AverageSize  float64
	LargestCell  int
	SmallestCell int
	CellsByTag   map[string]int
	Timestamp    time.Time
}

// weakSystemRef holds a System without keeping it alive (spec §5: "a
// Monitor holds weak references to Systems"). weak.Pointer only wraps a
// concrete *T, so a System (interface) is unwrapped by type switch to
// the pointer underneath and re-wrapped behind a closure, letting the
// Monitor treat every kind of System uniformly after registration. The
// closure itself must not be reachable from a map keyed by the pointer
// it wraps, or the map entry keeps the System alive and defeats the
// point — see systemIdentity.
type weakSystemRef struct {
	resolve func() (System, bool)
}

func newWeakSystemRef(s System) weakSystemRef {
	switch v := s.(type) {
	case *InMemorySystem:
		wp := weak.Make(v)
		return weakSystemRef{
			resolve: func() (System, bool) {
				p := wp.Value()
				if p == nil {
					return nil, false
				}
				return p, true
			},
		}
	case *PersistentSystem:
		wp := weak.Make(v)
		return weakSystemRef{
			resolve: func() (System, bool) {
				p := wp.Value()
				if p == nil {
					return nil, false
				}
				return p, true
			},
		}
	default:
		// A System implementation this package doesn't know about can't
		// be wrapped in a weak.Pointer generically; fall back to holding
		// it strongly rather than silently never traversing it.
		return weakSystemRef{resolve: func() (System, bool) { return s, true }}
	}
}

// systemIdentity returns a non-retaining numeric identity for the two
// concrete System types this package knows how to wrap weakly. Using
// uintptr(unsafe.Pointer(v)) as a map key — rather than the pointer
// itself, or the System interface value — means the key carries no
// reference the garbage collector must trace, so a weakSystemRef stored
// under it is the only thing standing between the System and collection.
// ok is false for a System implementation outside this package, which
// RegisterMemorySystem instead tracks in a small strongly-held fallback
// map.
func systemIdentity(s System) (uintptr, bool) {
	switch v := s.(type) {
	case *InMemorySystem:
		return uintptr(unsafe.Pointer(v)), true
	case *PersistentSystem:
		return uintptr(unsafe.Pointer(v)), true
	default:
		return 0, false
	}
}

// Monitor aggregates metrics across the Systems registered with it. It
// holds *InMemorySystem and *PersistentSystem only through weak
// references, so such a System a caller has otherwise dropped is never
// kept alive or traversed; any other System implementation is held
// strongly (see fallback).
type Monitor struct {
	mu sync.RWMutex

	clock  Clock
	logger logging.Sink

	// systems holds the common case (InMemorySystem/PersistentSystem),
	// keyed by the non-retaining identity from systemIdentity so the map
	// itself contributes no strong reference.
	systems map[uintptr]weakSystemRef
	// fallback holds any other System implementation, which this package
	// cannot wrap in a weak.Pointer and so holds strongly; keyed by a
	// monotonic id since such a System has no safe non-retaining key.
	fallback       map[int]weakSystemRef
	nextFallbackID int

	sizeThreshold  int
	countThreshold int
	hasSizeThresh  bool
	hasCountThresh bool

	onThreshold func(Snapshot, ThresholdKind)

	historyLimit int
	history      []Snapshot

	collectStop chan struct{}
	collectDone chan struct{}
}

// DefaultHistoryLimit bounds retained Snapshots absent an explicit
// SetHistoryLimit call.
const DefaultHistoryLimit = 1000

// NewMonitor constructs a Monitor with no registered Systems.
func NewMonitor(clk Clock, logger logging.Sink) *Monitor {
	return &Monitor{
		clock:        clk,
		logger:       logger,
		systems:      make(map[uintptr]weakSystemRef),
		fallback:     make(map[int]weakSystemRef),
		historyLimit: DefaultHistoryLimit,
	}
}

// RegisterMemorySystem adds s to the set a future GetMetrics call walks,
// keyed by identity: registering the same System pointer twice replaces
// its weak handle rather than duplicating it.
func (m *Monitor) RegisterMemorySystem(s System) {
	ref := newWeakSystemRef(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := systemIdentity(s); ok {
		m.systems[id] = ref
		return
	}
	for id, existing := range m.fallback {
		if resolved, ok := existing.resolve(); ok && resolved == s {
			m.fallback[id] = ref
			return
		}
	}
	m.nextFallbackID++
	m.fallback[m.nextFallbackID] = ref
}

// UnregisterMemorySystem removes s by identity; idempotent.
func (m *Monitor) UnregisterMemorySystem(s System) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := systemIdentity(s); ok {
		delete(m.systems, id)
		return
	}
	for id, existing := range m.fallback {
		if resolved, ok := existing.resolve(); ok && resolved == s {
			delete(m.fallback, id)
		}
	}
}

// SetHistoryLimit bounds how many Snapshots GetMetrics retains, dropping
// the oldest once exceeded. limit <= 0 is ignored.
func (m *Monitor) SetHistoryLimit(limit int) {
	if limit <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyLimit = limit
	if len(m.history) > limit {
		m.history = m.history[len(m.history)-limit:]
	}
}

// SetSizeThreshold installs or replaces the total_size alarm threshold.
func (m *Monitor) SetSizeThreshold(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizeThreshold = bytes
	m.hasSizeThresh = true
}

// SetCountThreshold installs or replaces the total_cells alarm threshold.
func (m *Monitor) SetCountThreshold(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countThreshold = n
	m.hasCountThresh = true
}

// OnThresholdExceeded installs a callback GetMetrics invokes synchronously
// whenever a Snapshot exceeds a configured threshold, in addition to the
// logger warning (spec §4.6's own alerting is log-only; this hook lets a
// caller page or backpressure without the Monitor depending on them).
func (m *Monitor) OnThresholdExceeded(fn func(Snapshot, ThresholdKind)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onThreshold = fn
}

// GetMetrics walks every live registered System, computes a Snapshot,
// appends it to history, and warns (and calls any OnThresholdExceeded
// hook) if a configured threshold is exceeded.
func (m *Monitor) GetMetrics() Snapshot {
	snap := m.computeSnapshot()

	m.mu.Lock()
	m.history = append(m.history, snap)
	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	sizeThresh, hasSize := m.sizeThreshold, m.hasSizeThresh
	countThresh, hasCount := m.countThreshold, m.hasCountThresh
	onThreshold := m.onThreshold
	m.mu.Unlock()

	if hasSize && snap.TotalSize > sizeThresh {
		m.warn("memory size threshold exceeded: total_size=%d threshold=%d", snap.TotalSize, sizeThresh)
		if onThreshold != nil {
			onThreshold(snap, ThresholdSize)
		}
	}
	if hasCount && snap.TotalCells > countThresh {
		m.warn("memory count threshold exceeded: total_cells=%d threshold=%d", snap.TotalCells, countThresh)
		if onThreshold != nil {
			onThreshold(snap, ThresholdCount)
		}
	}

	return snap
}

func (m *Monitor) warn(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Warnf(format, args...)
	}
}

// computeSnapshot builds a Snapshot without touching history or
// thresholds, pruning any weak reference whose System has been
// collected.
func (m *Monitor) computeSnapshot() Snapshot {
	m.mu.Lock()
	live := make([]System, 0, len(m.systems)+len(m.fallback))
	for id, ref := range m.systems {
		s, ok := ref.resolve()
		if !ok {
			delete(m.systems, id)
			continue
		}
		live = append(live, s)
	}
	for id, ref := range m.fallback {
		s, ok := ref.resolve()
		if !ok {
			delete(m.fallback, id)
			continue
		}
		live = append(live, s)
	}
	now := m.clock.Now()
	m.mu.Unlock()

	snap := Snapshot{
		CellsByTag: make(map[string]int),
		Timestamp:  now,
	}

	for _, sys := range live {
		for _, h := range sys.GetAllCells() {
			meta := h.Metadata()
			snap.TotalCells++
			snap.TotalSize += meta.Size
			if snap.TotalCells == 1 || meta.Size > snap.LargestCell {
				snap.LargestCell = meta.Size
			}
			if snap.TotalCells == 1 || meta.Size < snap.SmallestCell {
				snap.SmallestCell = meta.Size
			}
			for _, tag := range meta.Tags {
				snap.CellsByTag[tag]++
			}
		}
	}

	if snap.TotalCells > 0 {
		snap.AverageSize = float64(snap.TotalSize) / float64(snap.TotalCells)
	}
	return snap
}

// EnablePeriodicCollection schedules GetMetrics at interval, taking an
// immediate first sample so GetHistoricalMetrics is non-empty right
// away (spec §4.6), and replaces any prior schedule.
func (m *Monitor) EnablePeriodicCollection(interval time.Duration) {
	m.DisablePeriodicCollection()
	m.GetMetrics()

	ticker := m.clock.Ticker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})

	m.mu.Lock()
	m.collectStop = stop
	m.collectDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.GetMetrics()
			}
		}
	}()
}

// DisablePeriodicCollection cancels the periodic task; idempotent.
func (m *Monitor) DisablePeriodicCollection() {
	m.mu.Lock()
	stop := m.collectStop
	done := m.collectDone
	m.collectStop = nil
	m.collectDone = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// GetHistoricalMetrics returns retained Snapshots with from <= timestamp
// <= to, ordered ascending. Passing the zero time.Time as from returns
// every retained snapshot (spec §4.6 "from = epoch").
func (m *Monitor) GetHistoricalMetrics(from, to time.Time) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.history))
	for _, s := range m.history {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
