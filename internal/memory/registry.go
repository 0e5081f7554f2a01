package memory

import (
	"sync"
	"time"

	"github.com/ianlintner/agentic-memory/internal/logging"
)

// registry is the cell map, tag index, strategy set, and cleanup loop
// shared by InMemorySystem and PersistentSystem. The two Systems differ
// only in what happens on creation/mutation (durable rewrite or not);
// the bookkeeping in spec §4.4/§4.5 is identical, so it lives here once.
type registry struct {
	mu sync.RWMutex

	cells      map[string]Handle
	tagIndex   map[string]map[string]struct{}
	strategies map[string]Strategy

	clock  Clock
	logger logging.Sink

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

func newRegistry(clk Clock, logger logging.Sink) *registry {
	return &registry{
		cells:      make(map[string]Handle),
		tagIndex:   make(map[string]map[string]struct{}),
		strategies: make(map[string]Strategy),
		clock:      clk,
		logger:     logger,
	}
}

// tagChangeCallback returns the closure a newly created cell should use
// as its onTagChange hook, keeping the registry's tag index consistent
// with that single cell's tag set (spec §4.4 concurrency: tag-index
// updates happen after the cell's own tag set changes, under a lock that
// serializes with GetCellsByTag).
func (r *registry) tagChangeCallback(id string) func(tag string, added bool) {
	return func(tag string, added bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if added {
			set := r.tagIndex[tag]
			if set == nil {
				set = make(map[string]struct{})
				r.tagIndex[tag] = set
			}
			set[id] = struct{}{}
		} else if set, ok := r.tagIndex[tag]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.tagIndex, tag)
			}
		}
	}
}

// insert adds a freshly created handle under the given initial tags.
func (r *registry) insert(id string, h Handle, tags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells[id] = h
	for _, t := range tags {
		set := r.tagIndex[t]
		if set == nil {
			set = make(map[string]struct{})
			r.tagIndex[t] = set
		}
		set[id] = struct{}{}
	}
}

// replace swaps the handle stored for id, used by Reopen to upgrade a
// RawReader-only handle into a typed one after a reload.
func (r *registry) replace(id string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells[id] = h
}

func (r *registry) get(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.cells[id]
	return h, ok
}

func (r *registry) getAllCells() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.cells))
	for _, h := range r.cells {
		out = append(out, h)
	}
	return out
}

func (r *registry) getCellsByTag(tag string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.tagIndex[tag]
	out := make([]Handle, 0, len(ids))
	for id := range ids {
		if h, ok := r.cells[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (r *registry) clearTagIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tagIndex = make(map[string]map[string]struct{})
}

func (r *registry) registerCleanupStrategy(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name] = s
}

func (r *registry) unregisterCleanupStrategy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, name)
}

func (r *registry) getCleanupStrategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

// runCleanupWith evaluates strategy against every cell and empties the
// ones it matches, returning the count emptied (spec §4.4, §9 "run_cleanup
// invokes empty() rather than removing the cell from the registry").
func (r *registry) runCleanupWith(strategy Strategy) int {
	cells := r.getAllCells()
	now := r.clock.Now()
	count := 0
	for _, c := range cells {
		if strategy.Predicate(c.Metadata(), now) {
			c.Empty()
			count++
		}
	}
	if r.logger != nil && count > 0 {
		r.logger.Infof("cleanup strategy %q emptied %d cell(s)", strategy.Name, count)
	}
	return count
}

// runCleanup runs every registered strategy and returns the total number
// of cells emptied across all of them.
func (r *registry) runCleanup() int {
	strategies := r.getCleanupStrategies()
	total := 0
	for _, s := range strategies {
		total += r.runCleanupWith(s)
	}
	return total
}

// enableAutomaticCleanup installs a cancellable ticker that calls run
// every interval, replacing any previously installed ticker.
func (r *registry) enableAutomaticCleanup(interval time.Duration, run func()) {
	r.disableAutomaticCleanup()

	ticker := r.clock.Ticker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})

	r.mu.Lock()
	r.cleanupStop = stop
	r.cleanupDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

func (r *registry) disableAutomaticCleanup() {
	r.mu.Lock()
	stop := r.cleanupStop
	done := r.cleanupDone
	r.cleanupStop = nil
	r.cleanupDone = nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
