package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the multi-step writes editors perform (write
// temp, rename over target) into a single reload.
const DefaultDebounce = 300 * time.Millisecond

// watcher hot-reloads the store from filesystem events. Rapid successive
// events for the same path are coalesced by a per-path timer.
type watcher struct {
	store    *Store
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

func newWatcher(s *Store) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: create watcher: %w", err)
	}

	w := &watcher{
		store:    s,
		fs:       fsw,
		debounce: s.debounce,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	for _, dir := range []string{s.projectDir, s.globalDir} {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("store: watch %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isAgentFile(filepath.Base(event.Name)) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.store.warnf("watch error: %v", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a path. Whatever state
// the file is in when the timer fires decides reload vs. removal.
func (w *watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.flush(path)
	})
}

func (w *watcher) flush(path string) {
	scope, ok := w.store.scopeFor(filepath.Dir(path))
	if !ok {
		return
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		w.store.removeByPath(path, scope)
		return
	}

	def, err := ParseFile(path, scope)
	if err != nil {
		// A bad edit must not drop a previously valid agent.
		if prev, ok := w.store.byPath(path, scope); ok {
			w.store.warnf("reload of %s failed, keeping %q as of %s: %v",
				path, prev.Name, prev.LastModified.Format(time.RFC3339), err)
			return
		}
		w.store.warnf("skipping %s: %v", path, err)
		return
	}

	// A rename inside the file means the old name must go away.
	if prev, ok := w.store.byPath(path, scope); ok && prev.Name != def.Name {
		w.store.removeByPath(path, scope)
	}
	w.store.replace(def)
}

func (w *watcher) close() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
