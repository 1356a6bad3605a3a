package fs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [Locker.TryLock] when the lock is already held
// by another process.
var ErrWouldBlock = errors.New("lock would block")

// Locker acquires advisory, cross-process exclusive locks on regular files
// via flock(2). It does not lock the file's content against other locking
// mechanisms (POSIX fcntl locks, mandatory locks) — only against other
// callers going through the same flock discipline.
type Locker struct {
	fs FS
}

// NewLocker returns a Locker that opens lock files through fsys.
func NewLocker(fsys FS) *Locker {
	return &Locker{fs: fsys}
}

// Lock represents a held advisory lock. Close releases it. The lock file
// itself is never removed — only the flock is dropped — so callers can keep
// reusing the same lock path across process restarts.
type Lock struct {
	file File
}

// TryLock opens (creating if necessary) the file at path and attempts to
// acquire an exclusive, non-blocking flock on it. If another process (or
// another open file description, since flock is per-open-file, not per
// process) already holds the lock, TryLock returns ErrWouldBlock.
func (l *Locker) TryLock(path string) (*Lock, error) {
	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	fd := int(file.Fd())

	err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return &Lock{file: file}, nil
}

// Close releases the flock and closes the underlying file descriptor.
// Safe to call on a nil *Lock.
func (lk *Lock) Close() error {
	if lk == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := unix.Flock(fd, unix.LOCK_UN)

	closeErr := lk.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}

	return closeErr
}

// RWLock is a blocking, process-shared reader-writer lock on a file,
// implemented with flock(2)'s shared/exclusive modes. Unlike [Lock], which
// is always exclusive and non-blocking, RWLock blocks the caller until the
// requested mode is granted — used by components (HashIndex, Master) whose
// own contract calls for "a single process-shared reader-writer lock", not
// writer-only exclusion.
type RWLock struct {
	file File
}

// RLock opens (creating if necessary) the file at path and blocks until a
// shared flock is acquired.
func (l *Locker) RLock(path string) (*RWLock, error) {
	return l.flockBlocking(path, unix.LOCK_SH)
}

// WLock opens (creating if necessary) the file at path and blocks until an
// exclusive flock is acquired.
func (l *Locker) WLock(path string) (*RWLock, error) {
	return l.flockBlocking(path, unix.LOCK_EX)
}

func (l *Locker) flockBlocking(path string, mode int) (*RWLock, error) {
	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	return &RWLock{file: file}, nil
}

// Unlock releases the lock and closes the underlying file descriptor. Safe
// to call on a nil *RWLock.
func (rw *RWLock) Unlock() error {
	if rw == nil {
		return nil
	}

	fd := int(rw.file.Fd())

	unlockErr := unix.Flock(fd, unix.LOCK_UN)

	closeErr := rw.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}

	return closeErr
}
