package master

import (
	"fmt"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/hashindex"
)

// Put inserts a record keyed by pkey (and, if the secondary index is
// enabled, skey). Fails with Duplicate if either key is already present,
// NoSpace if the free list is empty, InvalidParameter if payload does not
// fit the configured record size. Any failure after slot allocation rolls
// the allocation back.
func (m *Master) Put(pkey, skey, payload []byte) error {
	if len(pkey) != m.pkeyLen {
		return fmt.Errorf("primary key length %d != %d: %w", len(pkey), m.pkeyLen, errs.InvalidParameter)
	}

	if m.skeyLen > 0 && len(skey) != m.skeyLen {
		return fmt.Errorf("secondary key length %d != %d: %w", len(skey), m.skeyLen, errs.InvalidParameter)
	}

	if len(payload) > m.recordSize {
		return fmt.Errorf("payload size %d exceeds record size %d: %w", len(payload), m.recordSize, errs.InvalidParameter)
	}

	return m.withWriteLock(func() error {
		return m.putLocked(pkey, skey, payload)
	})
}

func (m *Master) putLocked(pkey, skey, payload []byte) error {
	if _, err := m.primary.Get(pkey); err == nil {
		return errs.Duplicate
	}

	if m.secondary != nil {
		if _, err := m.secondary.Get(skey); err == nil {
			return errs.Duplicate
		}
	}

	data := m.recordsFile.Bytes()

	freeHead := getFirstFree(data)
	if freeHead == -1 {
		return errs.NoSpace
	}

	slotIdx := freeHead
	slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, slotIdx)

	setFirstFree(data, slot.nextFree())

	rollbackAllocation := func() {
		slot.setNextFree(getFirstFree(data))
		setFirstFree(data, slotIdx)
	}

	if err := m.primary.Add(pkey, slotIdx); err != nil {
		rollbackAllocation()
		return err
	}

	if m.secondary != nil {
		if err := m.secondary.Add(skey, slotIdx); err != nil {
			_ = m.primary.Remove(pkey)
			rollbackAllocation()

			return err
		}
	}

	slot.setOccupied(true)
	copy(slot.primaryKey(m.pkeyLen), pkey)

	if m.skeyLen > 0 {
		copy(slot.secondaryKey(m.pkeyLen, m.skeyLen), skey)
	}

	copy(slot.payload(m.pkeyLen, m.skeyLen, m.recordSize), payload)

	return nil
}

// GetByPrimary returns a copy of the payload bytes for pkey, or NotFound.
func (m *Master) GetByPrimary(pkey []byte) ([]byte, error) {
	return m.getBy(m.primary, pkey)
}

// GetBySecondary returns a copy of the payload bytes for skey, or NotFound.
// InvalidParameter if the secondary index is disabled.
func (m *Master) GetBySecondary(skey []byte) ([]byte, error) {
	if m.secondary == nil {
		return nil, fmt.Errorf("secondary index is disabled: %w", errs.InvalidParameter)
	}

	return m.getBy(m.secondary, skey)
}

func (m *Master) getBy(idx *hashindex.Index, key []byte) ([]byte, error) {
	var result []byte

	err := m.withReadLock(func() error {
		slotIdx, err := idx.Get(key)
		if err != nil {
			return err
		}

		data := m.recordsFile.Bytes()
		slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, slotIdx)

		if !slot.occupied() {
			return errs.IntegrityError
		}

		result = append([]byte(nil), slot.payload(m.pkeyLen, m.skeyLen, m.recordSize)...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MutateByPrimary locates the slot keyed by pkey and invokes fn with a
// direct view into its payload bytes, under the Master's write lock. fn may
// write through the slice in place; the write is visible to subsequent
// reads without any serialization round-trip. NotFound if pkey is absent.
func (m *Master) MutateByPrimary(pkey []byte, fn func(payload []byte) error) error {
	return m.withWriteLock(func() error {
		slotIdx, err := m.primary.Get(pkey)
		if err != nil {
			return err
		}

		data := m.recordsFile.Bytes()
		slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, slotIdx)

		if !slot.occupied() {
			return errs.IntegrityError
		}

		return fn(slot.payload(m.pkeyLen, m.skeyLen, m.recordSize))
	})
}

// Del removes the record keyed by pkey. If the secondary index is enabled,
// its entry (read from the slot's stored secondary-key bytes) is removed
// too. NotFound if pkey is absent.
func (m *Master) Del(pkey []byte) error {
	if len(pkey) != m.pkeyLen {
		return fmt.Errorf("primary key length %d != %d: %w", len(pkey), m.pkeyLen, errs.InvalidParameter)
	}

	return m.withWriteLock(func() error {
		return m.delLocked(pkey)
	})
}

func (m *Master) delLocked(pkey []byte) error {
	slotIdx, err := m.primary.Get(pkey)
	if err != nil {
		return err
	}

	data := m.recordsFile.Bytes()
	slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, slotIdx)

	if m.secondary != nil {
		skey := append([]byte(nil), slot.secondaryKey(m.pkeyLen, m.skeyLen)...)
		_ = m.secondary.Remove(skey)
	}

	if err := m.primary.Remove(pkey); err != nil {
		return err
	}

	slot.setOccupied(false)
	slot.setNextFree(getFirstFree(data))
	setFirstFree(data, slotIdx)

	return nil
}

// Statistics reports capacity, usage, and chain-length statistics for both
// indexes.
type Statistics struct {
	Capacity       uint64
	Used           uint64
	Free           uint64
	Utilization    float64
	PrimaryStats   hashindex.Stats
	SecondaryStats hashindex.Stats
	HasSecondary   bool
}

// Statistics computes current Master-level statistics.
func (m *Master) Statistics() (Statistics, error) {
	var result Statistics

	err := m.withReadLock(func() error {
		pstats, err := m.primary.Stats()
		if err != nil {
			return err
		}

		used := pstats.Used
		result = Statistics{
			Capacity:     m.capacity,
			Used:         used,
			Free:         m.capacity - used,
			Utilization:  float64(used) / float64(m.capacity),
			PrimaryStats: pstats,
			HasSecondary: m.secondary != nil,
		}

		if m.secondary != nil {
			sstats, err := m.secondary.Stats()
			if err != nil {
				return err
			}

			result.SecondaryStats = sstats
		}

		return nil
	})
	if err != nil {
		return Statistics{}, err
	}

	return result, nil
}

// ValidateIntegrity confirms: every occupied slot is reachable from both
// indexes (where applicable); index entries point only to occupied slots;
// free-list length equals capacity - used.
func (m *Master) ValidateIntegrity() error {
	return m.withReadLock(func() error {
		data := m.recordsFile.Bytes()

		var occupiedCount, freeListLen uint64

		for i := int32(0); i < int32(m.capacity); i++ {
			slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, i)
			if !slot.occupied() {
				continue
			}

			occupiedCount++

			pkey := slot.primaryKey(m.pkeyLen)

			got, err := m.primary.Get(pkey)
			if err != nil || got != i {
				return fmt.Errorf("slot %d not reachable from primary index: %w", i, errs.IntegrityError)
			}

			if m.secondary != nil {
				skey := slot.secondaryKey(m.pkeyLen, m.skeyLen)

				got, err := m.secondary.Get(skey)
				if err != nil || got != i {
					return fmt.Errorf("slot %d not reachable from secondary index: %w", i, errs.IntegrityError)
				}
			}
		}

		for _, idx := range []*hashindex.Index{m.primary, m.secondary} {
			if idx == nil {
				continue
			}

			st, err := idx.Stats()
			if err != nil {
				return err
			}

			if st.Used != occupiedCount {
				return fmt.Errorf("index holds %d entries for %d occupied slots: %w", st.Used, occupiedCount, errs.IntegrityError)
			}
		}

		freeIdx := getFirstFree(data)
		for freeIdx != -1 {
			freeListLen++
			freeIdx = slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, freeIdx).nextFree()
		}

		if occupiedCount+freeListLen != m.capacity {
			return fmt.Errorf("used(%d) + free(%d) != capacity(%d): %w", occupiedCount, freeListLen, m.capacity, errs.IntegrityError)
		}

		return nil
	})
}

// Repair walks every slot in order and clears any occupied slot that is not
// reachable from the primary index or (where enabled) the secondary index —
// the orphan state a crash between slot allocation and index insertion can
// leave, per spec §4.4's failure model. Returns the number of slots cleared.
func (m *Master) Repair() (int, error) {
	cleared := 0

	err := m.withWriteLock(func() error {
		data := m.recordsFile.Bytes()

		for i := int32(0); i < int32(m.capacity); i++ {
			slot := slotAt(data, m.pkeyLen, m.skeyLen, m.recordSize, i)
			if !slot.occupied() {
				continue
			}

			pkey := slot.primaryKey(m.pkeyLen)

			got, err := m.primary.Get(pkey)
			reachable := err == nil && got == i

			if !reachable && m.secondary != nil {
				skey := slot.secondaryKey(m.pkeyLen, m.skeyLen)

				got, err := m.secondary.Get(skey)
				reachable = err == nil && got == i
			}

			if reachable {
				continue
			}

			slot.setOccupied(false)
			slot.setNextFree(getFirstFree(data))
			setFirstFree(data, i)
			cleared++
		}

		return nil
	})
	if err != nil {
		return cleared, err
	}

	return cleared, nil
}
