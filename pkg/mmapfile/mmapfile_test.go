package mmapfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veldra/mdcore/pkg/errs"
)

func Test_CreateNew_Then_OpenExisting_Shares_Written_Bytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")

	f, err := CreateNew(path, 4096)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}

	copy(f.Bytes(), []byte("hello"))

	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	g, err := OpenExisting(path, 4096)
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	defer g.Close()

	if got, want := string(g.Bytes()[:5]), "hello"; got != want {
		t.Fatalf("Bytes()[:5]=%q, want %q", got, want)
	}
}

func Test_CreateNew_Fails_If_File_Already_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := CreateNew(path, 4096)
	if err == nil {
		t.Fatalf("CreateNew: want error, got nil")
	}
}

func Test_OpenExisting_Rejects_File_Smaller_Than_Requested_Size(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")

	f, err := CreateNew(path, 16)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	f.Close()

	_, err = OpenExisting(path, 4096)
	if !errors.Is(err, errs.IntegrityError) {
		t.Fatalf("err=%v, want errs.IntegrityError", err)
	}
}

func Test_Identity_Returns_Same_Dev_Ino_For_Same_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")

	f, err := CreateNew(path, 4096)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	defer f.Close()

	id1, err := f.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}

	g, err := OpenExisting(path, 4096)
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	defer g.Close()

	id2, err := g.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}

	if id1 != id2 {
		t.Fatalf("id1=%+v, id2=%+v, want equal", id1, id2)
	}
}
