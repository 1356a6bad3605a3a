package fs

import (
	"errors"
	"path/filepath"
	"testing"
)

func Test_Locker_TryLock_Succeeds_On_Fresh_Path(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "store.lock")

	lk, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer lk.Close()
}

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_Already_Held(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "store.lock")

	first, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer first.Close()

	_, err = locker.TryLock(path)
	if got, want := err, ErrWouldBlock; !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}
}

func Test_Locker_TryLock_Succeeds_Again_After_Close(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "store.lock")

	first, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	defer second.Close()
}

func Test_Locker_RLock_Allows_Multiple_Concurrent_Readers(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "store.lock")

	r1, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("first RLock: %v", err)
	}
	defer r1.Unlock()

	r2, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("second RLock: %v", err)
	}
	defer r2.Unlock()
}

func Test_Locker_WLock_Then_Unlock_Allows_Next_WLock(t *testing.T) {
	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "store.lock")

	w1, err := locker.WLock(path)
	if err != nil {
		t.Fatalf("first WLock: %v", err)
	}

	if err := w1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	w2, err := locker.WLock(path)
	if err != nil {
		t.Fatalf("second WLock: %v", err)
	}
	defer w2.Unlock()
}
