package memory

// Codec is the caller-supplied value<->bytes contract spec §1 calls out
// as an external collaborator ("serialization codecs supplied by
// callers"). CompressedCell and PersistentCell both take one instead of
// assuming a single global marshaling format.
type Codec[T any] struct {
	Serialize   func(T) ([]byte, error)
	Deserialize func([]byte) (T, error)
}
