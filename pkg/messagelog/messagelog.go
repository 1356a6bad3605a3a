// Package messagelog implements an append-only sequential message database:
// a fixed-size index file (one 24-byte entry per message) and a data file
// of concatenated payload bytes, per spec §3.4/§4.2/§6.2.
package messagelog

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
)

// entrySize is the fixed on-disk index entry size:
// offset(8) + size(4) + seq(4) + timestamp_ns(8).
const entrySize = 24

// Entry describes one logged message's index record.
type Entry struct {
	Offset    uint64
	Size      uint32
	Seq       uint32
	Timestamp int64 // nanoseconds
}

func encodeEntry(e Entry) []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(buf[0:], e.Offset)
	binary.LittleEndian.PutUint32(buf[8:], e.Size)
	binary.LittleEndian.PutUint32(buf[12:], e.Seq)
	binary.LittleEndian.PutUint64(buf[16:], uint64(e.Timestamp))

	return buf
}

func decodeEntry(buf []byte) Entry {
	return Entry{
		Offset:    binary.LittleEndian.Uint64(buf[0:]),
		Size:      binary.LittleEndian.Uint32(buf[8:]),
		Seq:       binary.LittleEndian.Uint32(buf[12:]),
		Timestamp: int64(binary.LittleEndian.Uint64(buf[16:])),
	}
}

// Options configures Open.
type Options struct {
	// BasePath is the common path prefix; files are created at
	// {BasePath}.idx and {BasePath}.data.
	BasePath string

	// FlushEvery batches fsyncs: the data and index files are flushed at
	// least every FlushEvery appends. 0 means flush on every append.
	FlushEvery int
}

// Log is an open MessageLog handle. Exactly one writer may call Append at a
// time (caller-enforced, per spec §4.2); Get and Range may run concurrently
// with a writer and observe every entry appended so far, flushed or not.
type Log struct {
	mu sync.Mutex

	idxFile  *os.File
	dataFile *os.File

	flushEvery      int
	appendsSinceSync int

	// count and dataLen mirror the authoritative on-disk state and are
	// updated only while mu is held.
	count   uint32
	dataLen uint64
}

// Open opens or creates the log's index and data files. If the index file's
// length is not a multiple of entrySize, or its data-file offsets are
// inconsistent with the data file's actual length, the logical length is
// truncated to the last fully-written, consistent entry — a partially
// written tail is treated as absent.
func Open(opts Options) (*Log, error) {
	idxPath := opts.BasePath + ".idx"
	dataPath := opts.BasePath + ".data"

	idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open index file %q: %w", idxPath, joinFileError(err))
	}

	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = idxFile.Close()
		return nil, fmt.Errorf("open data file %q: %w", dataPath, joinFileError(err))
	}

	l := &Log{
		idxFile:    idxFile,
		dataFile:   dataFile,
		flushEvery: opts.FlushEvery,
	}

	if err := l.recover(); err != nil {
		_ = idxFile.Close()
		_ = dataFile.Close()

		return nil, err
	}

	return l, nil
}

// recover establishes the authoritative logical length by truncating any
// partially-written tail entry, and any index entries that outrun the data
// file's actual length.
func (l *Log) recover() error {
	idxInfo, err := l.idxFile.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", joinFileError(err))
	}

	dataInfo, err := l.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("stat data file: %w", joinFileError(err))
	}

	validEntries := uint32(idxInfo.Size() / entrySize)

	dataLen := uint64(dataInfo.Size())

	for validEntries > 0 {
		buf := make([]byte, entrySize)

		_, err := l.idxFile.ReadAt(buf, int64(validEntries-1)*entrySize)
		if err != nil {
			return fmt.Errorf("read index entry %d: %w", validEntries-1, joinFileError(err))
		}

		e := decodeEntry(buf)

		if e.Seq != validEntries {
			validEntries--
			continue
		}

		if e.Offset+uint64(e.Size) > dataLen {
			validEntries--
			continue
		}

		break
	}

	truncatedIdxSize := int64(validEntries) * entrySize
	if truncatedIdxSize != idxInfo.Size() {
		if err := l.idxFile.Truncate(truncatedIdxSize); err != nil {
			return fmt.Errorf("truncate index file: %w", joinFileError(err))
		}
	}

	if validEntries == 0 {
		l.count = 0
		l.dataLen = 0

		return nil
	}

	last := make([]byte, entrySize)
	if _, err := l.idxFile.ReadAt(last, int64(validEntries-1)*entrySize); err != nil {
		return fmt.Errorf("read last index entry: %w", joinFileError(err))
	}

	lastEntry := decodeEntry(last)

	l.count = validEntries
	l.dataLen = lastEntry.Offset + uint64(lastEntry.Size)

	if l.dataLen != dataLen {
		if err := l.dataFile.Truncate(int64(l.dataLen)); err != nil {
			return fmt.Errorf("truncate data file: %w", joinFileError(err))
		}
	}

	return nil
}

// Close flushes and closes both files.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	syncErr := l.dataFile.Sync()
	if err := l.idxFile.Sync(); syncErr == nil {
		syncErr = err
	}

	idxErr := l.idxFile.Close()
	dataErr := l.dataFile.Close()

	if syncErr != nil {
		return fmt.Errorf("sync on close: %w", joinFileError(syncErr))
	}

	if idxErr != nil {
		return idxErr
	}

	return dataErr
}

func joinFileError(err error) error {
	return fmt.Errorf("%w: %v", errs.FileError, err)
}
