package dev

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 500 * time.Millisecond

var watchedExts = map[string]bool{
	".go":    true,
	".templ": true,
	".yaml":  true,
	".yml":   true,
	".css":   true,
	".js":    true,
}

// Watcher reports writes to source files under a set of directories.
// Repeated events for the same file within the debounce window collapse
// into one.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dirs     []string
	onChange func(path string)
	logger   *slog.Logger
	mu       sync.Mutex
	debounce map[string]time.Time
	running  bool
	done     chan struct{}
}

func NewWatcher(dirs []string, onChange func(path string), logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher:  w,
		dirs:     dirs,
		onChange: onChange,
		logger:   logger,
		debounce: make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directories and processes events until ctx is done
// or the watcher is closed. Missing directories are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	watched := 0
	for _, dir := range w.dirs {
		n, err := w.addDir(dir)
		if err != nil {
			w.logger.Warn("Failed to watch directory", "dir", dir, "error", err)
			continue
		}
		watched += n
	}
	if watched == 0 {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("none of %v could be watched", w.dirs)
	}

	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) addDir(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules" || d.Name() == "_examples") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.accept(event.Name, time.Now()) {
				continue
			}

			w.logger.Info("File changed", "path", event.Name, "op", event.Op.String())
			if w.onChange != nil {
				w.onChange(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// accept applies the extension filter and the per-file debounce.
func (w *Watcher) accept(path string, now time.Time) bool {
	if !watchedExts[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	if strings.HasSuffix(path, "_test.go") || strings.HasSuffix(path, "_templ.go") {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.debounce[path]; ok && now.Sub(last) < debounceDuration {
		return false
	}
	w.debounce[path] = now
	return true
}

func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if running {
		<-w.done
	}
	return err
}
