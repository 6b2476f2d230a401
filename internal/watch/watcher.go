// Package watch reports changes made by other programs to files backing open
// sessions.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/inkwell/internal/eventloop"
)

// All registers a handler for every watched path.
const All = "*"

// Op classifies a change.
type Op int

const (
	OpModify Op = iota
	OpCreate
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "modify"
	}
}

// Event is delivered to handlers on the event loop.
type Event struct {
	Path string
	Op   Op
}

type handler struct {
	fn func(Event)
}

// Watcher watches individual files. It watches their parent directories so
// that editors replacing a file through rename are still noticed.
type Watcher struct {
	fs  *fsnotify.Watcher
	ex  eventloop.Executor
	log *slog.Logger

	mu       sync.Mutex
	paths    map[string]int // Add calls not yet matched by Remove
	dirs     map[string]int
	handlers map[string][]*handler
}

// Options configures a Watcher.
type Options struct {
	Logger *slog.Logger
}

// New creates a Watcher that posts events to ex.
func New(ex eventloop.Executor, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:       fw,
		ex:       ex,
		log:      logger.With("component", "watch"),
		paths:    make(map[string]int),
		dirs:     make(map[string]int),
		handlers: make(map[string][]*handler),
	}, nil
}

func clean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Add starts watching path. Every Add must be balanced by a Remove before
// the path stops being watched.
func (w *Watcher) Add(path string) error {
	path = clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paths[path] > 0 {
		w.paths[path]++
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.paths[path] = 1
	return nil
}

// Remove releases one Add of path. The path stops being watched when the
// last one is released. Handlers stay registered until cancelled, so other
// callers watching the same path keep receiving events.
func (w *Watcher) Remove(path string) error {
	path = clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	switch n := w.paths[path]; {
	case n == 0:
		return nil
	case n > 1:
		w.paths[path]--
		return nil
	}
	delete(w.paths, path)

	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	return w.fs.Remove(dir)
}

// Watching reports whether path is watched.
func (w *Watcher) Watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[clean(path)] > 0
}

// OnChange registers fn for events on path, or on every path when path is
// All. The returned function unregisters it.
func (w *Watcher) OnChange(path string, fn func(Event)) (cancel func()) {
	key := path
	if key != All {
		key = clean(path)
	}
	h := &handler{fn: fn}

	w.mu.Lock()
	w.handlers[key] = append(w.handlers[key], h)
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		hs := w.handlers[key]
		for i, other := range hs {
			if other == h {
				w.handlers[key] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Run forwards filesystem events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			op, relevant := translate(event.Op)
			if !relevant {
				continue
			}
			w.dispatch(Event{Path: clean(event.Name), Op: op})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			w.log.Warn("watch error", "err", err)
		}
	}
}

func translate(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	}
	return 0, false
}

func (w *Watcher) dispatch(ev Event) {
	w.mu.Lock()
	if w.paths[ev.Path] == 0 {
		w.mu.Unlock()
		return
	}
	var targets []*handler
	targets = append(targets, w.handlers[ev.Path]...)
	targets = append(targets, w.handlers[All]...)
	w.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	w.log.Debug("file changed", "path", ev.Path, "op", ev.Op)
	w.ex.Post(func() {
		for _, h := range targets {
			h.fn(ev)
		}
	})
}

// Close releases the underlying watcher; Run returns afterwards.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
