package exports

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler("every tuesday", t.TempDir(), newFakeLedger(), nil); err == nil {
		t.Fatalf("expected invalid schedule to fail")
	}
}

func TestSchedulerRunOnceWritesDatedDir(t *testing.T) {
	root := t.TempDir()
	s, err := NewScheduler("@daily", root, newFakeLedger(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }

	dir, err := s.RunOnce()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if dir != filepath.Join(root, "20260301T123000Z") {
		t.Fatalf("unexpected run dir %s", dir)
	}
	for _, name := range []string{LoansFile, LendersFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}
