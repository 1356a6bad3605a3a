package sequence

// Store is the SequenceStore contract of spec §4.6: `save(record)`,
// `load(publisher_name) → record | NotFound`, `clear()`. Implemented by a
// file-backed store and a Master-backed store.
type Store interface {
	Save(r *Record) error
	Load(publisherName string) (*Record, error)
	Clear() error

	// Flush forces the backing store to durable state independent of the
	// next Save — useful at clean shutdown. Supplemented from
	// pubsub/SequenceStorage.h's Flush().
	Flush() error

	Close() error
}
