package memory

import (
	"fmt"
	"strings"
	"time"
)

// Strategy is a named, total predicate over a Cell's Metadata deciding
// cleanup eligibility. Predicates are pure: they must not mutate the
// cell they're evaluated against, and in particular must not look like
// a read (spec §4.3).
type Strategy struct {
	Name      string
	Predicate func(meta Metadata, now time.Time) bool
}

// TimeBasedAccess flags cells not read in over maxAge.
func TimeBasedAccess(maxAge time.Duration) Strategy {
	return Strategy{
		Name: fmt.Sprintf("TimeBasedAccess(%s)", maxAge),
		Predicate: func(meta Metadata, now time.Time) bool {
			return now.Sub(meta.LastAccessed) > maxAge
		},
	}
}

// TimeBasedModification flags cells not written in over maxAge.
func TimeBasedModification(maxAge time.Duration) Strategy {
	return Strategy{
		Name: fmt.Sprintf("TimeBasedModification(%s)", maxAge),
		Predicate: func(meta Metadata, now time.Time) bool {
			return now.Sub(meta.LastModified) > maxAge
		},
	}
}

// SizeBasedCleanup flags cells larger than maxBytes.
func SizeBasedCleanup(maxBytes int) Strategy {
	return Strategy{
		Name: fmt.Sprintf("SizeBasedCleanup(%d)", maxBytes),
		Predicate: func(meta Metadata, _ time.Time) bool {
			return meta.Size > maxBytes
		},
	}
}

// TagBasedCleanup flags cells whose tag set intersects tags.
func TagBasedCleanup(tags ...string) Strategy {
	wanted := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		wanted[t] = struct{}{}
	}
	return Strategy{
		Name: fmt.Sprintf("TagBasedCleanup(%s)", strings.Join(tags, ",")),
		Predicate: func(meta Metadata, _ time.Time) bool {
			for _, t := range meta.Tags {
				if _, ok := wanted[t]; ok {
					return true
				}
			}
			return false
		},
	}
}

// Any combines strategies with short-circuiting logical OR.
func Any(strategies ...Strategy) Strategy {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	return Strategy{
		Name: fmt.Sprintf("Any(%s)", strings.Join(names, ",")),
		Predicate: func(meta Metadata, now time.Time) bool {
			for _, s := range strategies {
				if s.Predicate(meta, now) {
					return true
				}
			}
			return false
		},
	}
}

// All combines strategies with short-circuiting logical AND.
func All(strategies ...Strategy) Strategy {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}
	return Strategy{
		Name: fmt.Sprintf("All(%s)", strings.Join(names, ",")),
		Predicate: func(meta Metadata, now time.Time) bool {
			for _, s := range strategies {
				if !s.Predicate(meta, now) {
					return false
				}
			}
			return true
		},
	}
}
