// Package master implements a dual-indexed, fixed-capacity record store:
// two HashIndexes (primary, optional secondary) over a memory-mapped
// fixed-size record slot array with a free list, per spec §3.2/§4.4.
package master

import (
	"fmt"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/fs"
	"github.com/veldra/mdcore/pkg/hashindex"
	"github.com/veldra/mdcore/pkg/mmapfile"
)

// Options configures Open.
type Options struct {
	// BasePath is the common path prefix; files are created at
	// {BasePath}_records.dat, {BasePath}.primary.{hashindex,dataindex},
	// and, if SecondaryKeyLength > 0, {BasePath}.secondary.{hashindex,dataindex}.
	BasePath string

	Capacity           uint64
	RecordSize         int
	BucketCount        uint64
	PrimaryKeyLength   int
	SecondaryKeyLength int // 0 disables the secondary index

	// DisableLocking skips the process-shared reader-writer lock, for
	// single-threaded callers.
	DisableLocking bool

	// FS backs the lock file for the Master's own lock and both of its
	// hashindex.Index locks (which Master always disables their own
	// locking for, per Open below). Defaults to [fs.NewReal] if nil.
	FS fs.FS
}

// Master is an open dual-indexed record store.
type Master struct {
	mu sync.RWMutex

	recordsFile *mmapfile.File

	capacity   uint64
	recordSize int
	pkeyLen    int
	skeyLen    int

	primary   *hashindex.Index
	secondary *hashindex.Index // nil if disabled

	disableLocking bool
	locker         *fs.Locker
	lockPath       string
}

// Open opens or creates a Master's three files. Shape mismatches against
// opts on an existing file are fatal (IntegrityError) rather than silently
// reinitialized, since reinitializing a Master would silently drop data in
// a way HashIndex's bucket/slot reinit does not.
func Open(opts Options) (*Master, error) {
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be >= 1: %w", errs.InvalidParameter)
	}

	if opts.RecordSize < 1 {
		return nil, fmt.Errorf("record_size must be >= 1: %w", errs.InvalidParameter)
	}

	if opts.PrimaryKeyLength < 1 {
		return nil, fmt.Errorf("primary_key_length must be >= 1: %w", errs.InvalidParameter)
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	recordsPath := opts.BasePath + "_records.dat"
	sz := slotSize(opts.PrimaryKeyLength, opts.SecondaryKeyLength, opts.RecordSize)
	fileSize := int64(recordsHeaderSize) + int64(opts.Capacity)*int64(sz)

	recordsFile, isNew, err := openOrCreateRecords(recordsPath, fileSize)
	if err != nil {
		return nil, err
	}

	if !isNew {
		hdr, ok := decodeRecordsHeader(recordsFile.Bytes())
		if !ok || hdr.Capacity != opts.Capacity || uint32(sz) != hdr.SlotSize ||
			hdr.PKeyLen != uint32(opts.PrimaryKeyLength) || hdr.SKeyLen != uint32(opts.SecondaryKeyLength) {
			_ = recordsFile.Close()
			return nil, fmt.Errorf("records file shape mismatch: %w", errs.IntegrityError)
		}
	} else {
		initRecordsFile(recordsFile.Bytes(), opts)
	}

	primary, err := hashindex.Open(hashindex.Options{
		BucketPath:     opts.BasePath + ".primary.hashindex",
		SlotPath:       opts.BasePath + ".primary.dataindex",
		BucketCount:    opts.BucketCount,
		SlotCount:      opts.Capacity,
		KeyLength:      opts.PrimaryKeyLength,
		DisableLocking: true, // Master's own lock supersedes the index's lock.
		FS:             fsys,
	})
	if err != nil {
		_ = recordsFile.Close()
		return nil, fmt.Errorf("open primary index: %w", err)
	}

	var secondary *hashindex.Index

	if opts.SecondaryKeyLength > 0 {
		secondary, err = hashindex.Open(hashindex.Options{
			BucketPath:     opts.BasePath + ".secondary.hashindex",
			SlotPath:       opts.BasePath + ".secondary.dataindex",
			BucketCount:    opts.BucketCount,
			SlotCount:      opts.Capacity,
			KeyLength:      opts.SecondaryKeyLength,
			DisableLocking: true,
			FS:             fsys,
		})
		if err != nil {
			_ = primary.Close()
			_ = recordsFile.Close()

			return nil, fmt.Errorf("open secondary index: %w", err)
		}
	}

	return &Master{
		recordsFile:    recordsFile,
		capacity:       opts.Capacity,
		recordSize:     opts.RecordSize,
		pkeyLen:        opts.PrimaryKeyLength,
		skeyLen:        opts.SecondaryKeyLength,
		primary:        primary,
		secondary:      secondary,
		disableLocking: opts.DisableLocking,
		locker:         fs.NewLocker(fsys),
		lockPath:       opts.BasePath + ".lock",
	}, nil
}

func openOrCreateRecords(path string, size int64) (file *mmapfile.File, isNew bool, err error) {
	f, err := mmapfile.OpenExisting(path, size)
	if err == nil {
		return f, false, nil
	}

	f, err = mmapfile.CreateNew(path, size)
	if err != nil {
		return nil, false, fmt.Errorf("open or create %q: %w", path, err)
	}

	return f, true, nil
}

func initRecordsFile(data []byte, opts Options) {
	sz := slotSize(opts.PrimaryKeyLength, opts.SecondaryKeyLength, opts.RecordSize)

	copy(data, encodeRecordsHeader(recordsHeader{
		FirstFree:   0,
		Capacity:    opts.Capacity,
		SlotSize:    uint32(sz),
		BucketCount: opts.BucketCount,
		PKeyLen:     uint32(opts.PrimaryKeyLength),
		SKeyLen:     uint32(opts.SecondaryKeyLength),
		LockEnabled: !opts.DisableLocking,
	}))

	for i := int32(0); i < int32(opts.Capacity); i++ {
		s := slotAt(data, opts.PrimaryKeyLength, opts.SecondaryKeyLength, opts.RecordSize, i)
		s.setOccupied(false)

		if i == int32(opts.Capacity)-1 {
			s.setNextFree(-1)
		} else {
			s.setNextFree(i + 1)
		}
	}
}

// Sync forces the records file and both indexes to durable storage.
func (m *Master) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.recordsFile.Sync(); err != nil {
		return err
	}

	if m.secondary != nil {
		if err := m.secondary.Sync(); err != nil {
			return err
		}
	}

	return m.primary.Sync()
}

// Close closes both indexes and the records file.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error

	if m.secondary != nil {
		if err := m.secondary.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := m.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := m.recordsFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func (m *Master) withWriteLock(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disableLocking {
		return fn()
	}

	wlock, err := m.locker.WLock(m.lockPath)
	if err != nil {
		return fmt.Errorf("acquire write lock: %w", errs.LockError)
	}
	defer wlock.Unlock()

	return fn()
}

func (m *Master) withReadLock(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.disableLocking {
		return fn()
	}

	rlock, err := m.locker.RLock(m.lockPath)
	if err != nil {
		return fmt.Errorf("acquire read lock: %w", errs.LockError)
	}
	defer rlock.Unlock()

	return fn()
}
