package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"farmportal/pkg/logging"
)

const (
	// DefaultWatchDebounce is the time to wait after the last file event
	// before notifying. Atomic writes produce a burst of events.
	DefaultWatchDebounce = 200 * time.Millisecond

	// DefaultWatchPollInterval is the fallback polling interval when
	// fsnotify is not available.
	DefaultWatchPollInterval = 2 * time.Second
)

// fileWatcherConfig configures a fileWatcher.
type fileWatcherConfig struct {
	// Dir is the directory containing the watched file.
	Dir string

	// File is the base name of the watched file.
	File string

	// Debounce collapses bursts of events into one notification.
	Debounce time.Duration

	// PollInterval is used when fsnotify cannot watch Dir.
	PollInterval time.Duration

	// OnChange is called after the file was written, replaced or removed.
	OnChange func()
}

// fileWatcher watches a single file for writes, replacement and removal.
// The parent directory is watched rather than the file itself so that
// atomic rename-over writes and deletions are both observed.
type fileWatcher struct {
	mu sync.Mutex

	config fileWatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	// lastState is the last polled stat result, used by the polling fallback.
	lastState fileState

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func newFileWatcher(config fileWatcherConfig) *fileWatcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWatchPollInterval
	}
	return &fileWatcher{config: config}
}

// Start begins watching. It is a no-op when already running.
func (w *fileWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("StoreWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges(w.stopCh)
		return nil
	}

	if err := watcher.Add(w.config.Dir); err != nil {
		logging.Warn("StoreWatcher", "Failed to watch directory %s, falling back to polling: %v",
			w.config.Dir, err)
		watcher.Close()
		go w.pollForChanges(w.stopCh)
		return nil
	}

	w.fsWatcher = watcher
	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Debug("StoreWatcher", "Watching %s for session changes", w.config.Dir)
	return nil
}

// processEvents handles fsnotify events. The channels are passed in so that
// Stop can nil out the watcher without racing this goroutine.
func (w *fileWatcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("StoreWatcher", err, "fsnotify error")
		}
	}
}

func (w *fileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.config.File {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("StoreWatcher", "Session file event: %s", event.Op)
	w.triggerDebounced()
}

func (w *fileWatcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *fileWatcher) pollForChanges(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.lastState = w.stat()

	for {
		select {
		case <-stopCh:
			return

		case <-ticker.C:
			current := w.stat()
			if current != w.lastState {
				w.lastState = current
				logging.Debug("StoreWatcher", "Session file change detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

func (w *fileWatcher) stat() fileState {
	info, err := os.Stat(filepath.Join(w.config.Dir, w.config.File))
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// Stop stops watching and cancels any pending notification.
func (w *fileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("StoreWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	return nil
}
