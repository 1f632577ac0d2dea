package vocab

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/lexmark/internal/debug"
)

// DefaultWatchDebounce is used when the configured debounce is not positive
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher monitors a vocabulary file and triggers a rehighlight when it changes.
// The parent directory is watched so editors that replace the file on save
// (write to temp, rename over) are still observed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()

	timer   *time.Timer
	timerMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu         sync.RWMutex
	eventsProcessed int64
	triggers        int64
	lastTrigger     time.Time
}

// NewWatcher creates a watcher for path. onChange runs on the timer goroutine;
// callers that need loop affinity should post from inside it.
func NewWatcher(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vocabulary path %q: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:  fw,
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.processEvents()

	debug.LogVocab("Watching vocabulary file %s\n", w.path)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
// Pending debounced triggers are dropped.
func (w *Watcher) Stop() error {
	w.cancel()

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Vocabulary watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	debug.LogVocab("Vocabulary event %v for %s\n", event.Op, event.Name)

	w.statsMu.Lock()
	w.eventsProcessed++
	w.statsMu.Unlock()

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}

	w.statsMu.Lock()
	w.triggers++
	w.lastTrigger = time.Now()
	w.statsMu.Unlock()

	if w.onChange != nil {
		w.onChange()
	}
}

// WatchStats contains statistics about vocabulary watching
type WatchStats struct {
	EventsProcessed int64
	Triggers        int64
	LastTrigger     time.Time
	IsActive        bool
}

// GetStats returns current watch statistics
func (w *Watcher) GetStats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	return WatchStats{
		EventsProcessed: w.eventsProcessed,
		Triggers:        w.triggers,
		LastTrigger:     w.lastTrigger,
		IsActive:        w.ctx.Err() == nil,
	}
}
