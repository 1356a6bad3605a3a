package sequence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/veldra/mdcore/pkg/errs"
)

func Test_Record_Increment_Bumps_Topic_And_Global_Together(t *testing.T) {
	r := NewRecord("pub1", 7)

	r.Increment(1, 1000)
	r.Increment(1, 2000)
	r.Increment(2, 3000)

	if got := r.TopicCounter(1); got != 2 {
		t.Fatalf("TopicCounter(1)=%d, want 2", got)
	}

	if got := r.TopicCounter(2); got != 1 {
		t.Fatalf("TopicCounter(2)=%d, want 1", got)
	}

	if got := r.GlobalCounter(); got != 3 {
		t.Fatalf("GlobalCounter()=%d, want 3", got)
	}

	if got := r.LastUpdatedNs(); got != 3000 {
		t.Fatalf("LastUpdatedNs()=%d, want 3000", got)
	}
}

func Test_FileStore_Save_Then_Load_Round_Trips(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	r := NewRecord("pub-a", 1)
	r.Increment(1, 42)

	if err := store.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("pub-a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.GlobalCounter() != 1 {
		t.Fatalf("GlobalCounter()=%d, want 1", loaded.GlobalCounter())
	}

	if loaded.LastUpdatedNs() != 42 {
		t.Fatalf("LastUpdatedNs()=%d, want 42", loaded.LastUpdatedNs())
	}
}

func Test_FileStore_Load_Returns_NotFound_For_Unknown_Publisher(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	if _, err := store.Load("nobody"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err=%v, want NotFound", err)
	}
}

func Test_FileStore_Clear_Removes_All_Records(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	if err := store.Save(NewRecord("pub-x", 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := store.Load("pub-x"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err=%v, want NotFound after Clear", err)
	}
}

func Test_MasterStore_Save_Then_Load_Round_Trips(t *testing.T) {
	store, err := OpenMasterStore(filepath.Join(t.TempDir(), "seq"), 4)
	if err != nil {
		t.Fatalf("OpenMasterStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	r := NewRecord("pub-b", 2)
	r.Increment(2, 99)

	if err := store.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("pub-b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.TopicCounter(2) != 1 {
		t.Fatalf("TopicCounter(2)=%d, want 1", loaded.TopicCounter(2))
	}
}

func Test_MasterStore_MutateInPlace_Avoids_Reinsertion(t *testing.T) {
	store, err := OpenMasterStore(filepath.Join(t.TempDir(), "seq"), 4)
	if err != nil {
		t.Fatalf("OpenMasterStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Save(NewRecord("pub-c", 3)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := store.MutateInPlace("pub-c", func(r *Record) {
			r.Increment(1, int64(i))
		}); err != nil {
			t.Fatalf("MutateInPlace: %v", err)
		}
	}

	loaded, err := store.Load("pub-c")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.GlobalCounter() != 5 {
		t.Fatalf("GlobalCounter()=%d, want 5", loaded.GlobalCounter())
	}
}

func Test_MasterStore_Save_Overwrites_Existing_Record_In_Place(t *testing.T) {
	store, err := OpenMasterStore(filepath.Join(t.TempDir(), "seq"), 4)
	if err != nil {
		t.Fatalf("OpenMasterStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	first := NewRecord("pub-d", 9)
	first.Increment(1, 1)

	if err := store.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := NewRecord("pub-d", 9)
	second.Increment(1, 1)
	second.Increment(1, 2)

	if err := store.Save(second); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}

	loaded, err := store.Load("pub-d")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.GlobalCounter() != 2 {
		t.Fatalf("GlobalCounter()=%d, want 2", loaded.GlobalCounter())
	}
}
