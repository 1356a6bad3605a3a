package sequence

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
	"github.com/veldra/mdcore/pkg/fs"
)

// FileStore is the flat-file SequenceStore backend: one file per publisher
// at {dir}/{name}.seq holding the raw PublisherSequenceRecord bytes.
type FileStore struct {
	mu  sync.Mutex
	dir string

	// durable selects write-temp-fsync-rename (atomicWriter) over
	// truncate-and-write for Save, per spec §4.6.
	durable      bool
	atomicWriter *fs.AtomicWriter
}

// OpenFileStore returns a FileStore rooted at dir, creating dir if absent.
func OpenFileStore(dir string, durable bool) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sequence store directory %q: %w", dir, joinFileError(err))
	}

	return &FileStore{
		dir:          dir,
		durable:      durable,
		atomicWriter: fs.NewAtomicWriter(fs.NewReal()),
	}, nil
}

func (s *FileStore) path(publisherName string) string {
	return filepath.Join(s.dir, strings.TrimRight(publisherName, "\x00")+".seq")
}

// Save persists r. Write-then-rename if durable, else truncate-and-write.
func (s *FileStore) Save(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(r.PublisherName())

	if s.durable {
		if err := s.atomicWriter.WriteWithDefaults(path, bytes.NewReader(r.Bytes())); err != nil {
			return fmt.Errorf("save sequence record %q: %w", path, joinFileError(err))
		}

		return nil
	}

	if err := os.WriteFile(path, r.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save sequence record %q: %w", path, joinFileError(err))
	}

	return nil
}

// Load returns the persisted record for publisherName, or NotFound.
func (s *FileStore) Load(publisherName string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(publisherName)

	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("sequence record %q: %w", publisherName, errs.NotFound)
		}

		return nil, fmt.Errorf("load sequence record %q: %w", path, joinFileError(err))
	}

	if len(buf) != RecordLayout.Size() {
		return nil, fmt.Errorf("sequence record %q has size %d, want %d: %w", path, len(buf), RecordLayout.Size(), errs.IntegrityError)
	}

	owned := binrecordCopy(buf)

	return attachRecord(owned)
}

// Clear removes every persisted record in the store's directory.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read sequence store directory %q: %w", s.dir, joinFileError(err))
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".seq") {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %q: %w", e.Name(), joinFileError(err))
		}
	}

	return nil
}

// Flush is a no-op for FileStore: Save already commits durably (when
// durable=true) or is immediately visible to Load (when durable=false).
func (s *FileStore) Flush() error {
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func binrecordCopy(buf []byte) []byte {
	owned := make([]byte, len(buf))
	copy(owned, buf)

	return owned
}

func joinFileError(err error) error {
	return fmt.Errorf("%w: %v", errs.FileError, err)
}
