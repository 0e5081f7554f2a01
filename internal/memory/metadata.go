package memory

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the monotonic now() collaborator the whole subsystem depends
// on instead of calling time.Now() directly, so strategies, cleanup
// loops, and monitor snapshots are deterministic under test. It is a
// straight alias to clock.Clock: production code passes clock.New(),
// tests pass clock.NewMock() and advance it with Add.
type Clock = clock.Clock

// Metadata is an immutable snapshot of a Cell's bookkeeping fields.
// Reading it never advances LastAccessed (spec §4.1 metadata()/
// get_metadata()).
type Metadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	Size         int
	Tags         []string
}

// HasTag reports whether tag is present in the snapshot's tag set.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func tagSetToSlice(tags map[string]struct{}) []string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
