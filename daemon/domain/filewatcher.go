package domain

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
)

// FileWatcher watches files for changes using fsnotify and triggers
// callbacks. It debounces rapid successive fs events (e.g. editors that
// truncate then write) into a single callback invocation.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	debounce time.Duration
	timers   map[string]*time.Timer
}

// NewFileWatcher creates a new FileWatcher with the given debounce duration.
func NewFileWatcher(debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:  w,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// WatchFile adds a file to the watch list by watching its parent directory.
// fsnotify watches directories, not individual files, so this watches the
// directory and filters events by filename in Run.
func (fw *FileWatcher) WatchFile(path string) error {
	dir := filepath.Dir(path)
	return fw.watcher.Add(dir)
}

// Run starts the event loop. It calls onChange when any of the watched
// files is written or created, debounced to avoid redundant triggers. Run
// blocks until ctx is cancelled.
func (fw *FileWatcher) Run(ctx context.Context, watchedFiles []string, onChange func()) {
	fileSet := make(map[string]struct{}, len(watchedFiles))
	for _, f := range watchedFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			fileSet[f] = struct{}{}
		} else {
			fileSet[abs] = struct{}{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				abs = event.Name
			}
			if _, watched := fileSet[abs]; !watched {
				continue
			}
			logger.Debug("FileWatcher: change detected on %s (op=%s)", event.Name, event.Op)
			fw.debouncedCallback(abs, onChange)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("FileWatcher error: %v", err)
		}
	}
}

// Close releases the underlying fsnotify watcher resources.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

func (fw *FileWatcher) debouncedCallback(key string, cb func()) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if t, exists := fw.timers[key]; exists {
		t.Stop()
	}
	fw.timers[key] = time.AfterFunc(fw.debounce, cb)
}
