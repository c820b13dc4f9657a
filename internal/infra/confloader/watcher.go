package confloader

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Watcher reports writes to a set of files. It watches their directories,
// so a file replaced by rename is seen as well.
type Watcher struct {
	fs  *fsnotify.Watcher
	log logger.Logger

	mu       sync.Mutex
	files    map[string]string
	handlers []func(string)

	done chan struct{}
	stop sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for watch events.
func WithWatcherLogger(log logger.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher returns a Watcher with no files. Call Start or StartAsync to
// deliver events.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:    fw,
		log:   logger.Default(),
		files: map[string]string{},
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "confloader")
	return w, nil
}

// Watch adds path. Handlers receive path as given here.
func (w *Watcher) Watch(path string) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fs.Add(filepath.Dir(key)); err != nil {
		w.log.Error("failed to watch directory", "path", filepath.Dir(key), "error", err)
		return err
	}
	w.mu.Lock()
	w.files[key] = path
	w.mu.Unlock()
	w.log.Debug("watching file", "file", path)
	return nil
}

// OnChange adds a handler run for every write or create of a watched file.
// Handlers run on the watch goroutine, in the order added.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Start delivers events until Stop.
func (w *Watcher) Start() {
	w.log.Debug("configuration watcher started")
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error("configuration watcher error", "error", err)
		}
	}
}

// StartAsync runs Start on a new goroutine.
func (w *Watcher) StartAsync() { go w.Start() }

// Stop ends Start and releases the watches. Later calls return nil.
func (w *Watcher) Stop() error {
	var err error
	w.stop.Do(func() {
		close(w.done)
		if err = w.fs.Close(); err != nil {
			w.log.Error("failed to close watcher", "error", err)
		}
	})
	return err
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	path, ok := w.lookup(ev.Name)
	if !ok {
		return
	}
	w.log.Debug("configuration file changed", "file", path, "op", ev.Op.String())
	w.notify(path)
}

func (w *Watcher) lookup(name string) (string, bool) {
	key, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.files[key]
	return path, ok
}

func (w *Watcher) notify(path string) {
	w.mu.Lock()
	handlers := append([]func(string){}, w.handlers...)
	w.mu.Unlock()
	for _, fn := range handlers {
		fn(path)
	}
}
