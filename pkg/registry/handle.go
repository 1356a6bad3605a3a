package registry

import (
	"fmt"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/hashindex"
	"github.com/veldra/mdcore/pkg/master"
)

// Handle is the subset of *master.Master's behavior a registry-managed store
// exposes, satisfied directly by *master.Master and by the in-memory
// backend.
type Handle interface {
	Put(pkey, skey, payload []byte) error
	GetByPrimary(pkey []byte) ([]byte, error)
	GetBySecondary(skey []byte) ([]byte, error)
	Del(pkey []byte) error
	Statistics() (master.Statistics, error)
	Close() error
}

func openBackend(d Descriptor) (Handle, error) {
	switch d.Backend {
	case BackendMaster:
		return master.Open(master.Options{
			BasePath:           d.BasePath,
			Capacity:           d.Capacity,
			RecordSize:         d.RecordSize,
			BucketCount:        d.BucketCount,
			PrimaryKeyLength:   d.PrimaryKeyLength,
			SecondaryKeyLength: d.SecondaryKeyLength,
			DisableLocking:     d.DisableLocking,
		})
	case BackendMemory:
		return newMemBackend(d), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: %w", d.Backend, errs.InvalidParameter)
	}
}

// memBackend is an in-memory stand-in for a Master, with no backing files,
// for tests and ephemeral registries. Unlike a Master it does not check
// payload length against record_size and returns payloads at the length
// they were stored with.
type memBackend struct {
	mu sync.RWMutex

	capacity   uint64
	pkeyLen    int
	skeyLen    int
	hasSkey    bool

	byPrimary   map[string][]byte
	bySecondary map[string]string // secondary key -> primary key
}

func newMemBackend(d Descriptor) *memBackend {
	return &memBackend{
		capacity:    d.Capacity,
		pkeyLen:     d.PrimaryKeyLength,
		skeyLen:     d.SecondaryKeyLength,
		hasSkey:     d.SecondaryKeyLength > 0,
		byPrimary:   make(map[string][]byte),
		bySecondary: make(map[string]string),
	}
}

func (m *memBackend) Put(pkey, skey, payload []byte) error {
	if len(pkey) != m.pkeyLen {
		return fmt.Errorf("primary key length %d != %d: %w", len(pkey), m.pkeyLen, errs.InvalidParameter)
	}

	if m.hasSkey && len(skey) != m.skeyLen {
		return fmt.Errorf("secondary key length %d != %d: %w", len(skey), m.skeyLen, errs.InvalidParameter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pk := string(pkey)

	if _, exists := m.byPrimary[pk]; exists {
		return errs.Duplicate
	}

	if m.hasSkey {
		if _, exists := m.bySecondary[string(skey)]; exists {
			return errs.Duplicate
		}
	}

	if uint64(len(m.byPrimary)) >= m.capacity {
		return errs.NoSpace
	}

	stored := append([]byte(nil), payload...)
	m.byPrimary[pk] = stored

	if m.hasSkey {
		m.bySecondary[string(skey)] = pk
	}

	return nil
}

func (m *memBackend) GetByPrimary(pkey []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.byPrimary[string(pkey)]
	if !ok {
		return nil, errs.NotFound
	}

	return append([]byte(nil), v...), nil
}

func (m *memBackend) GetBySecondary(skey []byte) ([]byte, error) {
	if !m.hasSkey {
		return nil, fmt.Errorf("secondary index is disabled: %w", errs.InvalidParameter)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	pk, ok := m.bySecondary[string(skey)]
	if !ok {
		return nil, errs.NotFound
	}

	return append([]byte(nil), m.byPrimary[pk]...), nil
}

func (m *memBackend) Del(pkey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := string(pkey)

	if _, ok := m.byPrimary[pk]; !ok {
		return errs.NotFound
	}

	delete(m.byPrimary, pk)

	if m.hasSkey {
		for sk, p := range m.bySecondary {
			if p == pk {
				delete(m.bySecondary, sk)
				break
			}
		}
	}

	return nil
}

func (m *memBackend) Statistics() (master.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	used := uint64(len(m.byPrimary))

	return master.Statistics{
		Capacity:     m.capacity,
		Used:         used,
		Free:         m.capacity - used,
		Utilization:  float64(used) / float64(m.capacity),
		PrimaryStats: hashindex.Stats{BucketCount: m.capacity, SlotCount: m.capacity, Used: used, Free: m.capacity - used},
		HasSecondary: m.hasSkey,
	}, nil
}

func (m *memBackend) Close() error {
	return nil
}
