package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veldra/mdcore/pkg/fs"
)

const testContentHello = "hello atomic world"

// There is no fault-injection double in this tree, so this only exercises
// the happy path: write lands, old content is fully replaced, no temp file
// is left behind. It does not simulate a crash mid-rename.
func TestAtomicWriter_WriteWithDefaults_ReplacesFileContents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("dir has %d entries after write, want 1 (no leftover temp file): %v", len(entries), entries)
	}
}

func TestAtomicWriter_Write_CreatesFileWhenAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(path, strings.NewReader(testContentHello), fs.AtomicWriteOptions{
		SyncDir: true,
		Perm:    0o600,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%v, want 0600", info.Mode().Perm())
	}
}

func TestAtomicWriter_Write_RejectsEmptyPath(t *testing.T) {
	t.Parallel()

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write("", strings.NewReader(testContentHello), writer.DefaultOptions())
	if err == nil {
		t.Fatal("Write with empty path: want error, got nil")
	}
}
