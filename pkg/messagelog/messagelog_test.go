package messagelog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veldra/mdcore/pkg/errs"
)

func openTestLog(t *testing.T, basePath string) *Log {
	t.Helper()

	l, err := Open(Options{BasePath: basePath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { l.Close() })

	return l
}

func Test_Append_Then_Get_Round_Trips_Payload_And_Timestamp(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")
	l := openTestLog(t, base)

	seq, err := l.Append([]byte("hello"), 12345)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if seq != 1 {
		t.Fatalf("seq=%d, want 1", seq)
	}

	entry, payload, err := l.Get(seq)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(payload) != "hello" {
		t.Fatalf("payload=%q, want %q", payload, "hello")
	}

	if entry.Timestamp != 12345 {
		t.Fatalf("Timestamp=%d, want 12345", entry.Timestamp)
	}
}

func Test_Get_Returns_NotFound_For_Seq_Beyond_Count(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")
	l := openTestLog(t, base)

	if _, err := l.Append([]byte("x"), 1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, _, err := l.Get(5); !errors.Is(err, errs.NotFound) {
		t.Fatalf("err=%v, want NotFound", err)
	}
}

func Test_Range_With_Lo_Beyond_Max_Seq_Invokes_Callback_Zero_Times(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")
	l := openTestLog(t, base)

	if _, err := l.Append([]byte("a"), 1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	calls := 0

	if err := l.Range(10, 20, func(Entry, []byte) bool {
		calls++
		return false
	}); err != nil {
		t.Fatalf("Range: %v", err)
	}

	if calls != 0 {
		t.Fatalf("calls=%d, want 0", calls)
	}
}

func Test_Range_Visits_Entries_In_Ascending_Order(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")
	l := openTestLog(t, base)

	for i := 0; i < 5; i++ {
		if _, err := l.Append([]byte{byte('a' + i)}, int64(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	var seen []uint32

	if err := l.Range(2, 4, func(e Entry, _ []byte) bool {
		seen = append(seen, e.Seq)
		return false
	}); err != nil {
		t.Fatalf("Range: %v", err)
	}

	want := []uint32{2, 3, 4}

	if len(seen) != len(want) {
		t.Fatalf("seen=%v, want %v", seen, want)
	}

	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen=%v, want %v", seen, want)
		}
	}
}

// End-to-end scenario 6: reopening after a truncated tail index entry drops
// the last message and resumes sequencing from it.
func Test_Reopen_After_Truncated_Tail_Index_Entry_Drops_Last_Message(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")

	l := openTestLog(t, base)

	for i := 0; i < 10; i++ {
		if _, err := l.Append([]byte{byte(i)}, int64(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idxPath := base + ".idx"

	info, err := os.Stat(idxPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if err := os.Truncate(idxPath, info.Size()-entrySize/2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	reopened, err := Open(Options{BasePath: base})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if reopened.Count() != 9 {
		t.Fatalf("Count()=%d, want 9", reopened.Count())
	}

	if _, _, err := reopened.Get(10); !errors.Is(err, errs.NotFound) {
		t.Fatalf("Get(10) err=%v, want NotFound", err)
	}

	seq, err := reopened.Append([]byte{99}, 999)
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	if seq != 10 {
		t.Fatalf("seq=%d, want 10", seq)
	}
}

func Test_VerifyIntegrity_Passes_After_Normal_Appends(t *testing.T) {
	base := filepath.Join(t.TempDir(), "log")
	l := openTestLog(t, base)

	for i := 0; i < 3; i++ {
		if _, err := l.Append([]byte("payload"), int64(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if err := l.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
}
