// Package hashindex implements a memory-mapped chained-bucket hash table
// from fixed-length keys to 32-bit data-slot indices, with an integrated
// free-slot list and file-format validation on open.
package hashindex

import (
	"fmt"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/fs"
	"github.com/veldra/mdcore/pkg/mmapfile"
)

// Options configures Open.
type Options struct {
	// BucketPath is the bucket file path ({name}.hashindex).
	BucketPath string
	// SlotPath is the slot file path ({name}.dataindex).
	SlotPath string
	// BucketCount is the number of chain-head buckets. Fixed at creation.
	BucketCount uint64
	// SlotCount is the maximum number of occupied entries. Fixed at creation.
	SlotCount uint64
	// KeyLength is the fixed key size in bytes.
	KeyLength int
	// KeyIsText selects DJB2-up-to-NUL hashing and strncmp-style
	// comparison instead of full-length binary comparison.
	KeyIsText bool
	// DisableLocking skips the process-shared reader-writer lock, for
	// single-threaded callers (typically a Master holding its own lock).
	DisableLocking bool

	// FS backs the lock file the reader-writer lock is taken on. Defaults
	// to [fs.NewReal] if nil; callers can inject a fake for tests that
	// don't want to touch the real filesystem.
	FS fs.FS
}

// Index is an open HashIndex handle.
type Index struct {
	mu sync.RWMutex // in-process guard

	bucketFile *mmapfile.File
	slotFile   *mmapfile.File

	bucketCount uint64
	slotCount   uint64
	keyLength   int
	keyIsText   bool

	disableLocking bool
	locker         *fs.Locker
	lockPath       string
}

// Open opens or creates the bucket and slot files described by opts. If
// either file is missing, zero-length, or fails header validation against
// opts' shape, both files are (re)initialized: all buckets set empty, all
// slots linked into a single free list.
func Open(opts Options) (*Index, error) {
	if opts.KeyLength < 1 {
		return nil, fmt.Errorf("key_length must be >= 1: %w", errs.InvalidParameter)
	}

	if opts.BucketCount < 1 || opts.SlotCount < 1 {
		return nil, fmt.Errorf("bucket_count and slot_count must be >= 1: %w", errs.InvalidParameter)
	}

	bucketFileSize := int64(bucketHeaderSize) + int64(opts.BucketCount)*bucketEntrySize
	slotFileSize := int64(opts.SlotCount) * int64(slotSize(opts.KeyLength))

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	bucketFile, bucketIsNew, err := openOrCreate(opts.BucketPath, bucketFileSize)
	if err != nil {
		return nil, err
	}

	slotFile, slotIsNew, err := openOrCreate(opts.SlotPath, slotFileSize)
	if err != nil {
		_ = bucketFile.Close()
		return nil, err
	}

	idx := &Index{
		bucketFile:     bucketFile,
		slotFile:       slotFile,
		bucketCount:    opts.BucketCount,
		slotCount:      opts.SlotCount,
		keyLength:      opts.KeyLength,
		keyIsText:      opts.KeyIsText,
		disableLocking: opts.DisableLocking,
		locker:         fs.NewLocker(fsys),
		lockPath:       opts.BucketPath + ".lock",
	}

	needsInit := bucketIsNew || slotIsNew

	if !needsInit {
		hdr, ok := decodeBucketHeader(bucketFile.Bytes())
		if !ok || hdr.BucketCount != opts.BucketCount || hdr.SlotCount != opts.SlotCount ||
			hdr.KeyLength != uint32(opts.KeyLength) || hdr.KeyIsText != opts.KeyIsText {
			needsInit = true
		}
	}

	if needsInit {
		idx.reinitialize()
	}

	return idx, nil
}

func openOrCreate(path string, size int64) (file *mmapfile.File, isNew bool, err error) {
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

// reinitialize resets both files to the empty state: all buckets hold
// emptyChainHead, and all slots are linked into a single free list with
// free[i].next_free = i+1, free[last].next_free = slotFreeEnd.
func (h *Index) reinitialize() {
	bucketData := h.bucketFile.Bytes()

	copy(bucketData, encodeBucketHeader(bucketHeader{
		BucketCount: h.bucketCount,
		SlotCount:   h.slotCount,
		KeyLength:   uint32(h.keyLength),
		KeyIsText:   h.keyIsText,
	}))

	for i := uint64(0); i < h.bucketCount; i++ {
		setBucketHead(bucketData, i, emptyChainHead)
	}

	slotData := h.slotFile.Bytes()

	for i := int32(0); i < int32(h.slotCount); i++ {
		s := slotAt(slotData, h.keyLength, i)
		s.setOccupied(false)
		s.setNextInChain(slotChainTail)

		if i == int32(h.slotCount)-1 {
			s.setNextFree(slotFreeEnd)
		} else {
			s.setNextFree(i + 1)
		}
	}

	setBucketFreeHead(bucketData, 0)
}

// Sync forces both the bucket and slot files to durable storage.
func (h *Index) Sync() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.bucketFile.Sync(); err != nil {
		return err
	}

	return h.slotFile.Sync()
}

// Close unmaps and closes both files.
func (h *Index) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	slotErr := h.slotFile.Close()
	bucketErr := h.bucketFile.Close()

	if bucketErr != nil {
		return bucketErr
	}

	return slotErr
}
