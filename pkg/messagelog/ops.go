package messagelog

import (
	"fmt"

	"github.com/veldra/mdcore/pkg/errs"
)

// Append writes payload to the data file and a corresponding index entry,
// assigning the next sequence number (1-based). Flushes per FlushEvery.
func (l *Log) Append(payload []byte, timestamp int64) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.count + 1
	offset := l.dataLen

	if _, err := l.dataFile.WriteAt(payload, int64(offset)); err != nil {
		return 0, fmt.Errorf("write payload: %w", joinFileError(err))
	}

	entry := Entry{
		Offset:    offset,
		Size:      uint32(len(payload)),
		Seq:       seq,
		Timestamp: timestamp,
	}

	if _, err := l.idxFile.WriteAt(encodeEntry(entry), int64(seq-1)*entrySize); err != nil {
		return 0, fmt.Errorf("write index entry: %w", joinFileError(err))
	}

	l.appendsSinceSync++

	if l.flushEvery <= 0 || l.appendsSinceSync >= l.flushEvery {
		if err := l.dataFile.Sync(); err != nil {
			return 0, fmt.Errorf("sync data file: %w", joinFileError(err))
		}

		if err := l.idxFile.Sync(); err != nil {
			return 0, fmt.Errorf("sync index file: %w", joinFileError(err))
		}

		l.appendsSinceSync = 0
	}

	l.count = seq
	l.dataLen = offset + uint64(len(payload))

	return seq, nil
}

// Get returns the entry and payload for seq. NotFound if seq is
// out of range.
func (l *Log) Get(seq uint32) (Entry, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq == 0 || seq > l.count {
		return Entry{}, nil, fmt.Errorf("seq %d: %w", seq, errs.NotFound)
	}

	buf := make([]byte, entrySize)
	if _, err := l.idxFile.ReadAt(buf, int64(seq-1)*entrySize); err != nil {
		return Entry{}, nil, fmt.Errorf("read index entry %d: %w", seq, joinFileError(err))
	}

	entry := decodeEntry(buf)

	payload := make([]byte, entry.Size)
	if _, err := l.dataFile.ReadAt(payload, int64(entry.Offset)); err != nil {
		return Entry{}, nil, fmt.Errorf("read payload for seq %d: %w", seq, joinFileError(err))
	}

	return entry, payload, nil
}

// Range invokes callback for every entry with seq in [lo, hi], in ascending
// order, stopping early if callback returns stop=true. If lo exceeds the
// highest stored sequence number, callback is never invoked.
func (l *Log) Range(lo, hi uint32, callback func(Entry, []byte) (stop bool)) error {
	l.mu.Lock()
	count := l.count
	l.mu.Unlock()

	if hi > count {
		hi = count
	}

	for seq := lo; seq <= hi && seq >= lo; seq++ {
		entry, payload, err := l.Get(seq)
		if err != nil {
			return err
		}

		if callback(entry, payload) {
			break
		}

		if seq == hi {
			break
		}
	}

	return nil
}

// Count returns the number of entries currently logged.
func (l *Log) Count() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// VerifyIntegrity cross-checks every index entry's stored sequence number
// against its position, and confirms offsets are monotonically increasing
// and consistent with the data file's length.
func (l *Log) VerifyIntegrity() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var wantOffset uint64

	for seq := uint32(1); seq <= l.count; seq++ {
		buf := make([]byte, entrySize)
		if _, err := l.idxFile.ReadAt(buf, int64(seq-1)*entrySize); err != nil {
			return fmt.Errorf("read index entry %d: %w", seq, joinFileError(err))
		}

		entry := decodeEntry(buf)

		if entry.Seq != seq {
			return fmt.Errorf("index entry %d has seq %d: %w", seq, entry.Seq, errs.IntegrityError)
		}

		if entry.Offset != wantOffset {
			return fmt.Errorf("index entry %d offset %d != expected %d: %w", seq, entry.Offset, wantOffset, errs.IntegrityError)
		}

		wantOffset += uint64(entry.Size)
	}

	if wantOffset != l.dataLen {
		return fmt.Errorf("data length %d != expected %d: %w", l.dataLen, wantOffset, errs.IntegrityError)
	}

	return nil
}
