package discovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the walk cadence.
const DefaultInterval = 5 * time.Second

// fileStability is the write-settle window for per-file change
// watching.
const fileStability = 500 * time.Millisecond

// Callbacks receive smart-folder lifecycle events. folder is the
// directory containing the config file; path is the config file
// itself.
type Callbacks struct {
	OnAdded   func(folder, path, prompt string)
	OnChanged func(folder, path, prompt string)
	OnRemoved func(folder, path string)
}

// Options configures discovery.
type Options struct {
	Roots       []string
	IgnoreGlobs []string
	Interval    time.Duration
	Callbacks   Callbacks
	Logger      *slog.Logger
}

// Discovery polls roots for smartfolder.md files and watches each
// discovered file for content changes.
type Discovery struct {
	opts     Options
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	known    map[string]bool // abs config path → discovered
	watchers map[string]*fileWatch
	// rejected remembers invalid config files by mtime so each poll
	// tick does not re-log the same failure.
	rejected map[string]time.Time
	closed   bool

	done   chan struct{}
	cancel context.CancelFunc
}

type fileWatch struct {
	fsw    *fsnotify.Watcher
	closed chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Discovery; Run starts the poll loop.
func New(opts Options) *Discovery {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Discovery{
		opts:     opts,
		interval: interval,
		logger:   logger.With("component", "discovery"),
		known:    make(map[string]bool),
		watchers: make(map[string]*fileWatch),
		rejected: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
}

// Run walks immediately, then on every tick, until ctx is cancelled
// or Close is called.
func (d *Discovery) Run(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(d.done)
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()
	defer close(d.done)

	d.tick()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// Close stops the poll loop and detaches all file watchers.
func (d *Discovery) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	watchers := d.watchers
	d.watchers = make(map[string]*fileWatch)
	cancel := d.cancel
	d.mu.Unlock()

	for _, fw := range watchers {
		fw.stop()
	}
	if cancel != nil {
		cancel()
		<-d.done
	}
}

// tick walks every root and diffs the found set against the known
// set.
func (d *Discovery) tick() {
	found := make(map[string]bool)
	for _, root := range d.opts.Roots {
		d.walk(root, root, 0, found)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	var added, removed []string
	for path := range found {
		if !d.known[path] {
			added = append(added, path)
		}
	}
	for path := range d.known {
		if !found[path] {
			removed = append(removed, path)
		}
	}
	for path := range d.rejected {
		if !found[path] {
			delete(d.rejected, path)
		}
	}
	d.mu.Unlock()

	for _, path := range added {
		d.handleAdded(path)
	}
	for _, path := range removed {
		d.handleRemoved(path)
	}
}

const maxWalkDepth = 25

// walk descends one root. Symlinks are skipped at every level,
// including the root itself; overlapping roots dedupe because found
// is keyed by absolute path.
func (d *Discovery) walk(root, dir string, depth int, found map[string]bool) {
	if depth > maxWalkDepth {
		return
	}

	info, err := os.Lstat(dir)
	if err != nil || info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			d.logger.Warn("skipping unreadable directory", "dir", dir)
			return
		}
		d.logger.Warn("cannot read directory", "dir", dir, "error", err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if d.ignored(root, path) {
			continue
		}

		einfo, err := os.Lstat(path)
		if err != nil || einfo.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if einfo.IsDir() {
			d.walk(root, path, depth+1, found)
			continue
		}
		if strings.EqualFold(entry.Name(), ConfigFileName) {
			if abs, err := filepath.Abs(path); err == nil {
				found[abs] = true
			}
		}
	}
}

func (d *Discovery) ignored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, glob := range d.opts.IgnoreGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

func (d *Discovery) handleAdded(path string) {
	info, statErr := os.Lstat(path)

	d.mu.Lock()
	if prev, ok := d.rejected[path]; ok {
		if statErr == nil && prev.Equal(info.ModTime()) {
			// Still the same invalid file; already logged.
			d.mu.Unlock()
			return
		}
		delete(d.rejected, path)
	}
	d.mu.Unlock()

	prompt, warnings, err := ParsePromptFile(path)
	if err != nil {
		d.logger.Error("rejecting smart-folder config", "path", path, "error", err)
		if statErr == nil {
			d.mu.Lock()
			if !d.closed {
				d.rejected[path] = info.ModTime()
			}
			d.mu.Unlock()
		}
		return
	}
	for _, warning := range warnings {
		d.logger.Warn("smart-folder config lint", "path", path, "warning", warning)
	}

	d.mu.Lock()
	if d.closed || d.known[path] {
		d.mu.Unlock()
		return
	}
	d.known[path] = true
	d.mu.Unlock()

	d.logger.Info("smart folder discovered", "path", path)
	if cb := d.opts.Callbacks.OnAdded; cb != nil {
		cb(filepath.Dir(path), path, prompt)
	}
	d.watchFile(path)
}

func (d *Discovery) handleRemoved(path string) {
	d.mu.Lock()
	if !d.known[path] {
		d.mu.Unlock()
		return
	}
	delete(d.known, path)
	fw := d.watchers[path]
	delete(d.watchers, path)
	d.mu.Unlock()

	if fw != nil {
		fw.stop()
	}
	d.logger.Info("smart folder removed", "path", path)
	if cb := d.opts.Callbacks.OnRemoved; cb != nil {
		cb(filepath.Dir(path), path)
	}
}

// watchFile attaches a native watcher on the exact config file so
// prompt edits take effect without waiting for a poll tick.
func (d *Discovery) watchFile(path string) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("cannot watch config file; edits apply on next tick", "path", path, "error", err)
		return
	}
	if err := fsw.Add(path); err != nil {
		d.logger.Warn("cannot watch config file; edits apply on next tick", "path", path, "error", err)
		fsw.Close()
		return
	}

	fw := &fileWatch{fsw: fsw, closed: make(chan struct{})}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		fw.stop()
		return
	}
	d.watchers[path] = fw
	d.mu.Unlock()

	go d.fileLoop(path, fw)
}

func (d *Discovery) fileLoop(path string, fw *fileWatch) {
	for {
		select {
		case <-fw.closed:
			return
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			switch {
			case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
				fw.mu.Lock()
				if fw.timer != nil {
					fw.timer.Stop()
				}
				fw.timer = time.AfterFunc(fileStability, func() {
					d.handleChanged(path)
				})
				fw.mu.Unlock()
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				d.handleRemoved(path)
				return
			}
		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			d.logger.Warn("config watcher error", "path", path, "error", err)
		}
	}
}

func (d *Discovery) handleChanged(path string) {
	d.mu.Lock()
	known := d.known[path]
	d.mu.Unlock()
	if !known {
		return
	}

	prompt, warnings, err := ParsePromptFile(path)
	if err != nil {
		d.logger.Error("smart-folder config became invalid; keeping previous prompt", "path", path, "error", err)
		return
	}
	for _, warning := range warnings {
		d.logger.Warn("smart-folder config lint", "path", path, "warning", warning)
	}

	d.logger.Info("smart folder prompt changed", "path", path)
	if cb := d.opts.Callbacks.OnChanged; cb != nil {
		cb(filepath.Dir(path), path, prompt)
	}
}

func (fw *fileWatch) stop() {
	select {
	case <-fw.closed:
		return
	default:
	}
	close(fw.closed)
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	fw.fsw.Close()
}
