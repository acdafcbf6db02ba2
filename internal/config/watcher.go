package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads settings when any of the watched config files change.
// Events are debounced so editors that write in several steps trigger a
// single reload.
type Watcher struct {
	mu sync.Mutex

	watcher *fsnotify.Watcher
	paths   map[string]bool
	reload  func(Settings, error)
	delay   time.Duration

	closed  bool
	closeCh chan struct{}
	doneWg  sync.WaitGroup
}

// NewWatcher starts watching the given config file paths. The reload
// callback receives the result of re-running Load over the same paths
// after each change. Paths that do not exist yet are watched through
// their parent directory so creating the file also triggers a reload.
func NewWatcher(paths []string, reload func(Settings, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		paths:   make(map[string]bool),
		reload:  reload,
		delay:   200 * time.Millisecond,
		closeCh: make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		// Missing directories are fine; the remaining layers still load.
		_ = fsw.Add(dir)
	}

	w.doneWg.Add(1)
	go w.processLoop(paths)

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.doneWg.Wait()
	return err
}

// processLoop coalesces change events and invokes the reload callback.
func (w *Watcher) processLoop(loadPaths []string) {
	defer w.doneWg.Done()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
				timerCh = timer.C
			} else {
				timer.Reset(w.delay)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			settings, err := Load(loadPaths...)
			w.reload(settings, err)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// relevant reports whether the event touches one of the watched files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[abs]
}
