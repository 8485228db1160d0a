package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type ingestRecorder struct {
	mu    sync.Mutex
	calls map[string][]byte
	ch    chan string
}

func newIngestRecorder() *ingestRecorder {
	return &ingestRecorder{calls: make(map[string][]byte), ch: make(chan string, 16)}
}

func (r *ingestRecorder) ingest(path string, content []byte) {
	r.mu.Lock()
	r.calls[path] = content
	r.mu.Unlock()
	r.ch <- path
}

func (r *ingestRecorder) content(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[path]
}

func supportedTxt(filename string) bool {
	return strings.HasSuffix(filename, ".txt")
}

func TestWatcherIngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	rec := newIngestRecorder()
	w := NewWatcher([]string{dir}, supportedTxt, rec.ingest, zap.NewNop())
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "dropped.txt")
	if err := os.WriteFile(path, []byte("dropped content"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-rec.ch:
		if got != path {
			t.Errorf("ingested %s, want %s", got, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for ingest")
	}
	if string(rec.content(path)) != "dropped content" {
		t.Errorf("unexpected content: %q", rec.content(path))
	}
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newIngestRecorder()
	w := NewWatcher([]string{dir}, supportedTxt, rec.ingest, zap.NewNop())
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case path := <-rec.ch:
		t.Errorf("unexpected ingest of %s", path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop")
	w := NewWatcher([]string{dir}, supportedTxt, func(string, []byte) {}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory created: %v", err)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher([]string{t.TempDir()}, supportedTxt, func(string, []byte) {}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	w.Stop()
	w.Stop()
}
