package hashindex

import (
	"fmt"

	"github.com/veldra/mdcore/pkg/errs"
)

func (h *Index) checkKey(key []byte) error {
	if len(key) != h.keyLength {
		return fmt.Errorf("key length %d != %d: %w", len(key), h.keyLength, errs.InvalidParameter)
	}

	return nil
}

func (h *Index) bucketFor(key []byte) uint64 {
	return djb2(key, h.keyIsText) % h.bucketCount
}

// withWriteLock runs fn while holding the in-process write lock and, unless
// locking is disabled, the cross-process exclusive file lock.
func (h *Index) withWriteLock(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disableLocking {
		return fn()
	}

	wlock, err := h.locker.WLock(h.lockPath)
	if err != nil {
		return fmt.Errorf("acquire write lock: %w", errs.LockError)
	}
	defer wlock.Unlock()

	return fn()
}

func (h *Index) withReadLock(fn func() error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.disableLocking {
		return fn()
	}

	rlock, err := h.locker.RLock(h.lockPath)
	if err != nil {
		return fmt.Errorf("acquire read lock: %w", errs.LockError)
	}
	defer rlock.Unlock()

	return fn()
}

// Put inserts key -> dataIndex. Pops the head of the free list, fails with
// NoSpace if it is empty. No duplicate-key check — see Add for that.
func (h *Index) Put(key []byte, dataIndex int32) error {
	if err := h.checkKey(key); err != nil {
		return err
	}

	return h.withWriteLock(func() error {
		return h.putLocked(key, dataIndex)
	})
}

func (h *Index) putLocked(key []byte, dataIndex int32) error {
	bucketData := h.bucketFile.Bytes()
	slotData := h.slotFile.Bytes()

	freeHead := getBucketFreeHead(bucketData)
	if freeHead == slotFreeEnd {
		return errs.NoSpace
	}

	slotIdx := freeHead
	slot := slotAt(slotData, h.keyLength, slotIdx)

	setBucketFreeHead(bucketData, slot.nextFree())

	bucketIdx := h.bucketFor(key)
	oldHead := bucketHead(bucketData, bucketIdx)

	slot.setOccupied(true)
	slot.setNextInChain(oldHead)
	slot.setNextFree(slotFreeEnd)
	slot.setDataIndex(dataIndex)
	copy(slot.key(), key)

	setBucketHead(bucketData, bucketIdx, slotIdx)

	return nil
}

// Add is Put preceded by a duplicate-key check: if key is already present,
// it fails with Duplicate instead of inserting a second slot.
func (h *Index) Add(key []byte, dataIndex int32) error {
	if err := h.checkKey(key); err != nil {
		return err
	}

	return h.withWriteLock(func() error {
		if _, found := h.getLocked(key); found {
			return errs.Duplicate
		}

		return h.putLocked(key, dataIndex)
	})
}

// Get returns the data index associated with key, or NotFound.
func (h *Index) Get(key []byte) (int32, error) {
	if err := h.checkKey(key); err != nil {
		return 0, err
	}

	var result int32

	var found bool

	err := h.withReadLock(func() error {
		result, found = h.getLocked(key)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if !found {
		return 0, errs.NotFound
	}

	return result, nil
}

func (h *Index) getLocked(key []byte) (int32, bool) {
	bucketData := h.bucketFile.Bytes()
	slotData := h.slotFile.Bytes()

	bucketIdx := h.bucketFor(key)
	slotIdx := bucketHead(bucketData, bucketIdx)

	for slotIdx != slotChainTail {
		slot := slotAt(slotData, h.keyLength, slotIdx)

		if keysEqual(slot.key(), key, h.keyIsText) {
			return slot.dataIndex(), true
		}

		slotIdx = slot.nextInChain()
	}

	return 0, false
}

// Remove unlinks the first slot matching key from its bucket chain and
// pushes it to the head of the free list. NotFound if key is absent.
func (h *Index) Remove(key []byte) error {
	if err := h.checkKey(key); err != nil {
		return err
	}

	return h.withWriteLock(func() error {
		return h.removeLocked(key)
	})
}

func (h *Index) removeLocked(key []byte) error {
	bucketData := h.bucketFile.Bytes()
	slotData := h.slotFile.Bytes()

	bucketIdx := h.bucketFor(key)
	slotIdx := bucketHead(bucketData, bucketIdx)

	prev := slotChainTail

	for slotIdx != slotChainTail {
		slot := slotAt(slotData, h.keyLength, slotIdx)

		if !keysEqual(slot.key(), key, h.keyIsText) {
			prev = slotIdx
			slotIdx = slot.nextInChain()

			continue
		}

		next := slot.nextInChain()

		if prev == slotChainTail {
			setBucketHead(bucketData, bucketIdx, next)
		} else {
			slotAt(slotData, h.keyLength, prev).setNextInChain(next)
		}

		slot.setOccupied(false)
		slot.setNextInChain(slotChainTail)
		slot.setNextFree(getBucketFreeHead(bucketData))
		setBucketFreeHead(bucketData, slotIdx)

		return nil
	}

	return errs.NotFound
}

// FindByDataIndex performs a linear scan of all occupied slots for the one
// matching dataIndex, returning its key. Used only for reverse lookups
// during consistency checks; callers should not depend on its performance.
func (h *Index) FindByDataIndex(dataIndex int32) ([]byte, error) {
	var result []byte

	err := h.withReadLock(func() error {
		slotData := h.slotFile.Bytes()

		for i := int32(0); i < int32(h.slotCount); i++ {
			slot := slotAt(slotData, h.keyLength, i)
			if slot.occupied() && slot.dataIndex() == dataIndex {
				result = append([]byte(nil), slot.key()...)
				return nil
			}
		}

		return errs.NotFound
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Stats reports chain-length statistics: max and average occupied-chain
// length across all buckets.
type Stats struct {
	BucketCount    uint64
	SlotCount      uint64
	Used           uint64
	Free           uint64
	MaxChainLength int
	AvgChainLength float64
}

// Stats computes bucket chain statistics. Used primarily by Master.Statistics.
func (h *Index) Stats() (Stats, error) {
	var result Stats

	err := h.withReadLock(func() error {
		bucketData := h.bucketFile.Bytes()
		slotData := h.slotFile.Bytes()

		var totalChainLen, nonEmptyBuckets, used uint64

		maxLen := 0

		for b := uint64(0); b < h.bucketCount; b++ {
			length := 0

			slotIdx := bucketHead(bucketData, b)
			for slotIdx != slotChainTail {
				length++
				slotIdx = slotAt(slotData, h.keyLength, slotIdx).nextInChain()
			}

			if length > 0 {
				nonEmptyBuckets++
				totalChainLen += uint64(length)
			}

			if length > maxLen {
				maxLen = length
			}

			used += uint64(length)
		}

		avg := 0.0
		if nonEmptyBuckets > 0 {
			avg = float64(totalChainLen) / float64(nonEmptyBuckets)
		}

		result = Stats{
			BucketCount:    h.bucketCount,
			SlotCount:      h.slotCount,
			Used:           used,
			Free:           h.slotCount - used,
			MaxChainLength: maxLen,
			AvgChainLength: avg,
		}

		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	return result, nil
}
