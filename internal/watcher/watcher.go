// Package watcher provides drop-directory auto-ingestion with fsnotify.
package watcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc ingests the file contents written at path.
type IngestFunc func(path string, content []byte)

// Watcher watches drop directories and ingests files created or modified in
// them. Files are read once their write events settle (debounced), so a file
// being copied in is not ingested half-written.
type Watcher struct {
	dirs      []string
	supported func(filename string) bool
	onIngest  IngestFunc
	debounce  time.Duration

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timers   map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewWatcher creates a watcher over dirs. supported filters by filename;
// onIngest receives the settled file bytes.
func NewWatcher(dirs []string, supported func(string) bool, onIngest IngestFunc, logger *zap.Logger) *Watcher {
	return &Watcher{
		dirs:      dirs,
		supported: supported,
		onIngest:  onIngest,
		debounce:  defaultDebounce,
		timers:    make(map[string]*time.Timer),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Directories that do not exist are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directories", zap.Strings("dirs", w.dirs))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	path := ev.Name
	if !w.supported(path) {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	w.scheduleIngest(path)
}

// scheduleIngest (re)starts the debounce timer for path; the ingest fires
// once writes stop arriving for the debounce window.
func (w *Watcher) scheduleIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("drop file unreadable", zap.String("path", path), zap.Error(err))
			return
		}
		w.onIngest(path, content)
	})
}

// Stop stops the watcher and cancels pending ingests.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.mu.Unlock()
	})
}
