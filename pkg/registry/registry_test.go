package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veldra/mdcore/pkg/errs"
)

func writeDescriptor(t *testing.T, dir, filename, content string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func Test_LoadFrom_Parses_Every_Descriptor_In_Directory(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "quotes.yaml", `
name: quotes
backend: memory
record_layout: quote_v1
capacity: 100
record_size: 64
bucket_count: 64
primary_key_length: 8
`)
	writeDescriptor(t, dir, "trades.yaml", `
name: trades
backend: memory
record_layout: trade_v1
capacity: 50
record_size: 32
bucket_count: 32
primary_key_length: 8
secondary_key_length: 8
`)

	r, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	names := r.Descriptors()
	if len(names) != 2 {
		t.Fatalf("Descriptors()=%v, want 2 entries", names)
	}
}

func Test_LoadFrom_Rejects_Duplicate_Names(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "a.yaml", `
name: same
backend: memory
capacity: 10
record_size: 8
bucket_count: 8
primary_key_length: 4
`)
	writeDescriptor(t, dir, "b.yaml", `
name: same
backend: memory
capacity: 10
record_size: 8
bucket_count: 8
primary_key_length: 4
`)

	_, err := LoadFrom(dir)
	if !errors.Is(err, errs.Duplicate) {
		t.Fatalf("err=%v, want errs.Duplicate", err)
	}
}

func Test_LoadFrom_Rejects_Descriptor_Missing_Required_Field(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "bad.yaml", `
name: incomplete
backend: memory
`)

	_, err := LoadFrom(dir)
	if !errors.Is(err, errs.InvalidParameter) {
		t.Fatalf("err=%v, want errs.InvalidParameter", err)
	}
}

func Test_Open_Lazily_Instantiates_And_Caches_Handle(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "store.yaml", `
name: store
backend: memory
capacity: 4
record_size: 8
bucket_count: 8
primary_key_length: 4
`)

	r, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	h1, err := r.Open("store")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	h2, err := r.Open("store")
	if err != nil {
		t.Fatalf("Open (second): %v", err)
	}

	if h1 != h2 {
		t.Fatalf("Open returned different handles across calls, want cached handle reused")
	}
}

func Test_Open_Returns_NotFound_For_Unknown_Name(t *testing.T) {
	dir := t.TempDir()

	r, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if _, err := r.Open("nope"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err=%v, want errs.NotFound", err)
	}

	if r.LastError() == "" {
		t.Fatalf("LastError() empty after a failed Open")
	}
}

func Test_Open_On_Master_Backend_Creates_File_Backed_Store(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "onfile.yaml", `
name: onfile
backend: master
base_path: `+filepath.Join(dir, "onfile")+`
capacity: 4
record_size: 8
bucket_count: 8
primary_key_length: 4
disable_locking: true
`)

	r, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	h, err := r.Open("onfile")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.Put([]byte("key1"), nil, []byte("12345678")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := h.GetByPrimary([]byte("key1"))
	if err != nil {
		t.Fatalf("GetByPrimary: %v", err)
	}

	if string(got) != "12345678" {
		t.Fatalf("GetByPrimary()=%q, want %q", got, "12345678")
	}

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
}

func Test_MemBackend_Put_Get_Del_Round_Trip(t *testing.T) {
	dir := t.TempDir()

	writeDescriptor(t, dir, "mem.yaml", `
name: mem
backend: memory
capacity: 2
record_size: 4
bucket_count: 2
primary_key_length: 2
secondary_key_length: 2
`)

	r, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	h, err := r.Open("mem")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.Put([]byte("pk"), []byte("sk"), []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := h.GetBySecondary([]byte("sk")); err != nil {
		t.Fatalf("GetBySecondary: %v", err)
	}

	if err := h.Del([]byte("pk")); err != nil {
		t.Fatalf("Del: %v", err)
	}

	if _, err := h.GetByPrimary([]byte("pk")); !errors.Is(err, errs.NotFound) {
		t.Fatalf("GetByPrimary after Del: err=%v, want NotFound", err)
	}
}
