// Package mmapfile wraps a memory-mapped, fixed-size file shared between
// processes: open-or-create with exact-size validation, a shared (MAP_SHARED)
// read/write mapping, and an Identity accessor reporting the file's
// device/inode pair. Two handles opened on the same inode each hold their
// own mapping; nothing in the package tracks or merges them.
package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/veldra/mdcore/pkg/errs"
)

// File is a memory-mapped, fixed-size OS file.
type File struct {
	fd   *os.File
	data []byte
}

// Identity uniquely identifies a file by device and inode, used to detect
// multiple in-process handles onto the same underlying file.
type Identity struct {
	Dev uint64
	Ino uint64
}

// CreateNew creates a new file at path (failing if it already exists),
// truncates it to size bytes, and maps it PROT_READ|PROT_WRITE, MAP_SHARED.
func CreateNew(path string, size int64) (*File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, joinFileError(err))
	}

	f, err := finishOpen(fd, size, true)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return f, nil
}

// OpenExisting opens an existing file at path and maps its first size bytes.
// The file must already be at least size bytes long.
func OpenExisting(path string, size int64) (*File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, joinFileError(err))
	}

	return finishOpen(fd, size, false)
}

func finishOpen(fd *os.File, size int64, truncate bool) (*File, error) {
	if truncate {
		if err := fd.Truncate(size); err != nil {
			_ = fd.Close()
			return nil, fmt.Errorf("truncate: %w", joinFileError(err))
		}
	} else {
		info, err := fd.Stat()
		if err != nil {
			_ = fd.Close()
			return nil, fmt.Errorf("stat: %w", joinFileError(err))
		}

		if info.Size() < size {
			_ = fd.Close()
			return nil, fmt.Errorf("file size %d smaller than required %d: %w", info.Size(), size, errs.IntegrityError)
		}
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = fd.Close()
		return nil, fmt.Errorf("mmap: %w", joinFileError(err))
	}

	return &File{fd: fd, data: data}, nil
}

// Bytes returns the mapped region. Valid until Close.
func (f *File) Bytes() []byte {
	return f.data
}

// Identity returns the file's device/inode pair.
func (f *File) Identity() (Identity, error) {
	var stat unix.Stat_t

	if err := unix.Fstat(int(f.fd.Fd()), &stat); err != nil {
		return Identity{}, fmt.Errorf("fstat: %w", joinFileError(err))
	}

	return Identity{Dev: uint64(stat.Dev), Ino: stat.Ino}, nil
}

// Sync flushes the mapped pages and the file's metadata to durable storage.
func (f *File) Sync() error {
	if err := unix.Msync(f.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", joinFileError(err))
	}

	if err := f.fd.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", joinFileError(err))
	}

	return nil
}

// Close unmaps the region and closes the file descriptor.
func (f *File) Close() error {
	unmapErr := unix.Munmap(f.data)

	closeErr := f.fd.Close()
	if unmapErr != nil {
		return fmt.Errorf("munmap: %w", joinFileError(unmapErr))
	}

	if closeErr != nil {
		return fmt.Errorf("close: %w", joinFileError(closeErr))
	}

	return nil
}

func joinFileError(err error) error {
	return fmt.Errorf("%w: %v", errs.FileError, err)
}
