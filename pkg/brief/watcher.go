package brief

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// logger interface for dependency injection, satisfied by lgr.L.
type logger interface {
	Logf(format string, args ...any)
}

// Watcher keeps the current questionnaire and reloads it when the file changes.
// a file that fails to parse is reported and ignored; the last good questionnaire stays active.
type Watcher struct {
	path string
	log  logger

	mu      sync.RWMutex
	current *Questionnaire
}

// NewWatcher loads the questionnaire at path. empty path serves the built-in questionnaire and never reloads.
func NewWatcher(path string, log logger) (*Watcher, error) {
	q, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, log: log, current: q}, nil
}

// Current returns the active questionnaire.
func (w *Watcher) Current() *Questionnaire {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the questionnaire file until ctx is canceled.
// the parent directory is watched so editors replacing the file via rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Logf("[WARN] questionnaire watcher: %v", werr)
		}
	}
}

// reload parses the file and swaps it in on success.
func (w *Watcher) reload() {
	q, err := Load(w.path)
	if err != nil {
		w.log.Logf("[WARN] questionnaire reload failed, keeping previous: %v", err)
		return
	}
	w.mu.Lock()
	w.current = q
	w.mu.Unlock()
	w.log.Logf("[INFO] questionnaire reloaded from %s", w.path)
}
