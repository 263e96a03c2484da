package snapshot

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

type payloadFixture struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json")
	if err := WriteJSON(path, "fixture", payloadFixture{Name: "a", Count: 3}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var got payloadFixture
	if err := ReadJSON(path, "fixture", &got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Name != "a" || got.Count != 3 {
		t.Fatalf("unexpected payload %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestReadJSONMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	var out payloadFixture
	if err := ReadJSON(filepath.Join(dir, "missing.json"), "fixture", &out); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}

	path := filepath.Join(dir, "snap.json")
	if err := WriteJSON(path, "fixture", payloadFixture{Name: "a"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := ReadJSON(path, "other", &out); !domain.IsKind(err, domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt on kind mismatch, got %v", err)
	}

	raw, _ := os.ReadFile(path)
	raw[len(raw)-5] ^= 0x01
	_ = os.WriteFile(path, raw, 0o644)
	if err := ReadJSON(path, "fixture", &out); !domain.IsKind(err, domain.ErrIndexCorrupt) {
		t.Fatalf("expected corrupt on tampering, got %v", err)
	}
}

func TestWriteAtomicKeepsOldFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.bin")
	_ = os.WriteFile(path, []byte("old"), 0o644)

	err := WriteAtomic(path, func(w io.Writer) error { return errors.New("boom") })
	if err == nil {
		t.Fatalf("expected write error")
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "old" {
		t.Fatalf("expected previous content to survive, got %q", raw)
	}
}

func TestWatcherReloadsAfterWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25.json")

	var reloads atomic.Int32
	done := make(chan struct{}, 4)
	w, err := NewWatcher([]string{path}, 30*time.Millisecond, func(context.Context) error {
		reloads.Add(1)
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()

	_ = os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644)
	for i := 0; i < 3; i++ {
		if err := WriteJSON(path, "fixture", payloadFixture{Count: i}); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a reload after snapshot writes")
	}
	cancel()
	if err := <-stopped; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := reloads.Load(); n < 1 || n > 3 {
		t.Fatalf("expected writes to be coalesced, got %d reloads", n)
	}
}

func TestNewWatcherRequiresPaths(t *testing.T) {
	if _, err := NewWatcher(nil, 0, nil); err == nil {
		t.Fatalf("expected error without paths")
	}
}
