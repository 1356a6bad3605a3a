package sequence

import (
	"errors"
	"fmt"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/master"
)

// MasterStore is the Master-backed SequenceStore: a single Master keyed by
// publisher_name, storing PublisherSequenceRecord as its payload.
type MasterStore struct {
	backend *master.Master
}

// OpenMasterStore opens (or creates) the backing Master, sized exactly to
// PublisherSequenceRecord's layout with no secondary index.
func OpenMasterStore(basePath string, capacity uint64) (*MasterStore, error) {
	m, err := master.Open(master.Options{
		BasePath:         basePath,
		Capacity:         capacity,
		RecordSize:       RecordLayout.Size(),
		BucketCount:      capacity * 2,
		PrimaryKeyLength: publisherNameLength,
	})
	if err != nil {
		return nil, fmt.Errorf("open master-backed sequence store: %w", err)
	}

	return &MasterStore{backend: m}, nil
}

func primaryKeyBytes(publisherName string) []byte {
	buf := make([]byte, publisherNameLength)
	copy(buf, publisherName)

	return buf
}

// Save installs or overwrites r's record. If a record already exists for
// this publisher, it is updated in place via MutateByPrimary rather than
// deleted and re-inserted.
func (s *MasterStore) Save(r *Record) error {
	pkey := primaryKeyBytes(r.PublisherName())

	err := s.backend.MutateByPrimary(pkey, func(payload []byte) error {
		copy(payload, r.Bytes())
		return nil
	})
	if err == nil {
		return nil
	}

	if !errors.Is(err, errs.NotFound) {
		return err
	}

	return s.backend.Put(pkey, nil, r.Bytes())
}

// Load returns the persisted record for publisherName, or NotFound.
func (s *MasterStore) Load(publisherName string) (*Record, error) {
	buf, err := s.backend.GetByPrimary(primaryKeyBytes(publisherName))
	if err != nil {
		return nil, err
	}

	return attachRecord(buf)
}

// MutateInPlace locates publisherName's record and lets fn write directly
// into its Master slot, avoiding the serialization cost of Save on every
// increment — the in-place update access path called for by spec §4.6.
func (s *MasterStore) MutateInPlace(publisherName string, fn func(*Record)) error {
	return s.backend.MutateByPrimary(primaryKeyBytes(publisherName), func(payload []byte) error {
		r, err := attachRecord(payload)
		if err != nil {
			return err
		}

		fn(r)

		return nil
	})
}

// Clear is not supported for a Master-backed store: a Master's capacity and
// layout are fixed at Open time, and there is no bulk-clear primitive short
// of deleting and reopening the backing files outside this type.
func (s *MasterStore) Clear() error {
	return fmt.Errorf("master-backed sequence store does not support Clear: %w", errs.InvalidParameter)
}

// Flush forces the backing Master's records file and indexes to durable
// storage, independent of the next Save — useful at clean shutdown.
func (s *MasterStore) Flush() error {
	return s.backend.Sync()
}

func (s *MasterStore) Close() error {
	return s.backend.Close()
}
