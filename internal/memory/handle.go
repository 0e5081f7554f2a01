package memory

// Handle is the type-erased contract a System's registry, tag index, and
// cleanup loop operate against. It deliberately excludes typed Read/
// Write/Update: per spec note 9 ("dynamic value typing across
// heterogeneous cells"), the registry only ever needs lifecycle and
// metadata operations, so a map[string]Handle can hold Cell[T] instances
// of arbitrarily different T without the registry itself going generic.
// Callers keep the concrete *Cell[T] (or *CompressedCell[T] /
// *PersistentCell[T]) handed back at creation time for typed access.
type Handle interface {
	ID() string
	Metadata() Metadata
	GetMetadata() Metadata
	AddTag(tag string)
	RemoveTag(tag string)
	GetTags() []string
	Clear()
	Empty()
}

// RawReader is implemented by handles that can hand back their payload as
// the raw bytes a codec produced, independent of the concrete T a typed
// wrapper was built with. PersistentSystem relies on this at startup: a
// cell reloaded from disk before any caller has re-supplied a codec is
// only a RawReader until re-opened with Reopen.
type RawReader interface {
	ReadRaw() ([]byte, bool)
}
