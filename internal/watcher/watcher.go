// Package watcher turns filesystem activity in one watched folder
// into debounced add events. Native fsnotify events are the default;
// a poll interval switches to directory scanning for filesystems
// where native events are unreliable (network mounts, some
// containers).
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the write-stability window: an add is emitted
// only after the path has been quiet this long.
const DefaultDebounce = 1500 * time.Millisecond

// Options configures a folder watcher.
type Options struct {
	// Folder is the absolute path of the directory to watch. Watch
	// depth is one level; subdirectory contents are not observed.
	Folder string
	// IgnoreGlobs are matched against the path relative to Folder
	// (and against the base name) with ** / {a,b} syntax.
	IgnoreGlobs []string
	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// PollInterval switches the watcher to polling when positive.
	PollInterval time.Duration
	// OnAdd receives each stable new path. Called from the watcher
	// goroutine; implementations should hand off quickly.
	OnAdd  func(path string)
	Logger *slog.Logger
}

// Watcher watches one folder. Pre-existing files never produce
// events; only additions observed after Start do.
type Watcher struct {
	opts     Options
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	fsw    *fsnotify.Watcher
	ready  chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// New creates a watcher; Start begins observation.
func New(opts Options) (*Watcher, error) {
	if opts.Folder == "" {
		return nil, fmt.Errorf("watcher: folder is required")
	}
	if opts.OnAdd == nil {
		return nil, fmt.Errorf("watcher: OnAdd is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		opts:     opts,
		debounce: debounce,
		logger:   logger.With("component", "watcher", "folder", opts.Folder),
		pending:  make(map[string]*time.Timer),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Ready is closed once the watcher is attached (or the initial poll
// scan is complete) and events will no longer be missed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start begins watching. It returns once observation is running; the
// event loop continues until Close or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	if w.opts.PollInterval > 0 {
		known, err := w.scan()
		if err != nil {
			return fmt.Errorf("initial scan of %s: %w", w.opts.Folder, err)
		}
		go w.pollLoop(ctx, known)
		close(w.ready)
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.opts.Folder); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.opts.Folder, err)
	}
	w.fsw = fsw
	go w.eventLoop(ctx)
	close(w.ready)
	return nil
}

// Close stops observation and cancels pending debounce timers.
// Events already handed to OnAdd are unaffected.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	<-w.done
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if w.ignored(path) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.touch(path)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		// The path left before settling; drop any pending add.
		w.mu.Lock()
		if timer, ok := w.pending[path]; ok {
			timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
	}
}

// touch starts or resets the stability window for a path.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.settle(path)
	})
}

// settle fires after the stability window: if the path still exists,
// emit it.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	if _, err := os.Lstat(path); err != nil {
		w.logger.Debug("path vanished before settling", "path", path)
		return
	}
	w.logger.Debug("file settled", "path", path)
	w.opts.OnAdd(path)
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.opts.Folder, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, glob := range w.opts.IgnoreGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(glob, base); ok {
			return true
		}
	}
	// Reserved names: state markers and the folder's own config file,
	// which is matched case-insensitively elsewhere too.
	return strings.HasPrefix(base, ".smartfolder") ||
		strings.EqualFold(base, "smartfolder.md")
}

// pollLoop rescans the folder on each tick; entries absent from the
// known set are treated like create events and go through the same
// stability window.
func (w *Watcher) pollLoop(ctx context.Context, known map[string]bool) {
	defer close(w.done)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := w.scan()
			if err != nil {
				w.logger.Warn("poll scan failed", "error", err)
				continue
			}
			for path := range current {
				if !known[path] {
					known[path] = true
					w.touch(path)
				}
			}
			for path := range known {
				if !current[path] {
					delete(known, path)
				}
			}
		}
	}
}

func (w *Watcher) scan() (map[string]bool, error) {
	entries, err := os.ReadDir(w.opts.Folder)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(entries))
	for _, entry := range entries {
		path := filepath.Join(w.opts.Folder, entry.Name())
		if w.ignored(path) {
			continue
		}
		found[path] = true
	}
	return found, nil
}
