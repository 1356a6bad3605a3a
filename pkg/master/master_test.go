package master

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/veldra/mdcore/pkg/errs"
)

func openTestMaster(t *testing.T, capacity uint64, pkeyLen, skeyLen, recordSize int) *Master {
	t.Helper()

	m, err := Open(Options{
		BasePath:           filepath.Join(t.TempDir(), "store"),
		Capacity:           capacity,
		RecordSize:         recordSize,
		BucketCount:        capacity * 2,
		PrimaryKeyLength:   pkeyLen,
		SecondaryKeyLength: skeyLen,
		DisableLocking:     true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { m.Close() })

	return m
}

// Scenario 4 from the end-to-end test catalog: Master dual-key lookup.
func Test_Master_Dual_Key_Lookup_And_Delete(t *testing.T) {
	m := openTestMaster(t, 10, 8, 8, 16)

	payload := []byte("payload-bytes-16")[:16]

	if err := m.Put([]byte("AAAAAAAA"), []byte("BBBBBBBB"), payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := m.GetByPrimary([]byte("AAAAAAAA"))
	if err != nil {
		t.Fatalf("GetByPrimary: %v", err)
	}

	if string(got) != string(payload) {
		t.Fatalf("GetByPrimary()=%q, want %q", got, payload)
	}

	got, err = m.GetBySecondary([]byte("BBBBBBBB"))
	if err != nil {
		t.Fatalf("GetBySecondary: %v", err)
	}

	if string(got) != string(payload) {
		t.Fatalf("GetBySecondary()=%q, want %q", got, payload)
	}

	if err := m.Del([]byte("AAAAAAAA")); err != nil {
		t.Fatalf("Del: %v", err)
	}

	if _, err := m.GetByPrimary([]byte("AAAAAAAA")); !errors.Is(err, errs.NotFound) {
		t.Fatalf("GetByPrimary after Del: err=%v, want NotFound", err)
	}

	if _, err := m.GetBySecondary([]byte("BBBBBBBB")); !errors.Is(err, errs.NotFound) {
		t.Fatalf("GetBySecondary after Del: err=%v, want NotFound", err)
	}

	stats, err := m.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}

	if stats.Used != 0 {
		t.Fatalf("Statistics().Used=%d, want 0", stats.Used)
	}
}

func Test_Master_Put_On_Full_Store_Returns_NoSpace_Without_Mutating(t *testing.T) {
	m := openTestMaster(t, 1, 4, 0, 8)

	if err := m.Put([]byte("key1"), nil, []byte("12345678")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := m.Put([]byte("key2"), nil, []byte("87654321"))
	if !errors.Is(err, errs.NoSpace) {
		t.Fatalf("err=%v, want errs.NoSpace", err)
	}

	stats, err := m.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}

	if stats.Used != 1 {
		t.Fatalf("Statistics().Used=%d, want 1 (unchanged)", stats.Used)
	}
}

func Test_Master_Put_Duplicate_Primary_Key_Returns_Duplicate(t *testing.T) {
	m := openTestMaster(t, 4, 4, 0, 8)

	if err := m.Put([]byte("key1"), nil, []byte("aaaaaaaa")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := m.Put([]byte("key1"), nil, []byte("bbbbbbbb"))
	if !errors.Is(err, errs.Duplicate) {
		t.Fatalf("err=%v, want errs.Duplicate", err)
	}
}

func Test_Master_ValidateIntegrity_Passes_After_Normal_Operations(t *testing.T) {
	m := openTestMaster(t, 4, 4, 4, 8)

	if err := m.Put([]byte("pk01"), []byte("sk01"), []byte("payload1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := m.Put([]byte("pk02"), []byte("sk02"), []byte("payload2")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := m.Del([]byte("pk01")); err != nil {
		t.Fatalf("Del: %v", err)
	}

	if err := m.ValidateIntegrity(); err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
}

func Test_Master_Without_Secondary_Index_Rejects_GetBySecondary(t *testing.T) {
	m := openTestMaster(t, 4, 4, 0, 8)

	_, err := m.GetBySecondary([]byte("anything"))
	if !errors.Is(err, errs.InvalidParameter) {
		t.Fatalf("err=%v, want errs.InvalidParameter", err)
	}
}
