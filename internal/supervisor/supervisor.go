// Package supervisor wires the pieces together: it attaches a
// watcher per configured folder (or runs discovery in root mode),
// funnels events through the per-folder queue, and executes the job
// pipeline for each settled file.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/smartfolderhq/smartfolder/internal/config"
	"github.com/smartfolderhq/smartfolder/internal/discovery"
	"github.com/smartfolderhq/smartfolder/internal/llm"
	"github.com/smartfolderhq/smartfolder/internal/queue"
	"github.com/smartfolderhq/smartfolder/internal/runlog"
	"github.com/smartfolderhq/smartfolder/internal/state"
	"github.com/smartfolderhq/smartfolder/internal/suppress"
	"github.com/smartfolderhq/smartfolder/internal/watcher"
)

// folderWatch pairs a running watcher with its folder spec.
type folderWatch struct {
	watcher *watcher.Watcher
	spec    *config.FolderSpec
}

// Supervisor owns the watchers, the queue, and the job pipeline.
type Supervisor struct {
	cfg        *config.Config
	client     llm.Client
	runs       *runlog.Store
	suppressor *suppress.Set
	queue      *queue.Manager
	logger     *slog.Logger

	mu       sync.Mutex
	watchers map[string]*folderWatch
	// specs outlives watchers so jobs still in flight during a
	// detach or shutdown can finish against their folder's spec.
	specs map[string]*config.FolderSpec

	discovery *discovery.Discovery
	discDone  chan struct{}
	ready     chan struct{}
}

// New creates a supervisor. runs may be nil to skip the run index;
// the caller owns its lifecycle.
func New(cfg *config.Config, client llm.Client, runs *runlog.Store, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:        cfg,
		client:     client,
		runs:       runs,
		suppressor: suppress.New(),
		logger:     logger.With("component", "supervisor"),
		watchers:   make(map[string]*folderWatch),
		specs:      make(map[string]*config.FolderSpec),
		ready:      make(chan struct{}),
	}
	s.queue = queue.NewManager(s.processJob, s.suppressor, logger)
	return s
}

// Start attaches watchers (folder mode) or begins discovery (root
// mode) and returns once observation is underway. Run the returned
// error through the caller's exit path; a failed Start leaves nothing
// running.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.cfg.RootDirectories) > 0 {
		return s.startRootMode(ctx)
	}
	return s.startFolderMode(ctx)
}

func (s *Supervisor) startFolderMode(ctx context.Context) error {
	// Plain group: the watchers must outlive Start, so they run on
	// the caller's context, not a group-scoped one.
	var g errgroup.Group
	for i := range s.cfg.Folders {
		spec := &s.cfg.Folders[i]
		g.Go(func() error {
			return s.attachFolder(ctx, spec)
		})
	}
	if err := g.Wait(); err != nil {
		s.closeWatchers()
		return err
	}
	close(s.ready)
	s.logger.Info("watching folders", "count", len(s.cfg.Folders))
	return nil
}

func (s *Supervisor) startRootMode(ctx context.Context) error {
	s.discovery = discovery.New(discovery.Options{
		Roots:       s.cfg.RootDirectories,
		IgnoreGlobs: config.DefaultIgnoreGlobs(),
		Interval:    s.cfg.DiscoveryInterval,
		Logger:      s.logger,
		Callbacks: discovery.Callbacks{
			OnAdded:   func(folder, path, prompt string) { s.onFolderDiscovered(ctx, folder, prompt) },
			OnChanged: func(folder, path, prompt string) { s.onPromptChanged(folder, prompt) },
			OnRemoved: func(folder, path string) { s.detachFolder(folder) },
		},
	})
	s.discDone = make(chan struct{})
	go func() {
		defer close(s.discDone)
		s.discovery.Run(ctx)
	}()
	close(s.ready)
	s.logger.Info("discovering smart folders", "roots", s.cfg.RootDirectories)
	return nil
}

// Ready is closed once watchers are attached (folder mode) or the
// discovery loop is running (root mode).
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown stops accepting events, waits for in-flight jobs, and
// releases the watchers.
func (s *Supervisor) Shutdown() {
	s.logger.Info("shutting down")
	if s.discovery != nil {
		s.discovery.Close()
		<-s.discDone
	}
	s.closeWatchers()
	s.queue.Close()
	s.logger.Info("shutdown complete")
}

func (s *Supervisor) closeWatchers() {
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = make(map[string]*folderWatch)
	s.mu.Unlock()

	for folder, fw := range watchers {
		if err := fw.watcher.Close(); err != nil {
			s.logger.Warn("closing watcher", "folder", folder, "error", err)
		}
	}
}

// attachFolder prepares state and starts one folder watcher. The
// state directory must exist before the watcher starts.
func (s *Supervisor) attachFolder(ctx context.Context, spec *config.FolderSpec) error {
	if _, err := state.EnsureStateDir(spec.Path); err != nil {
		return fmt.Errorf("prepare state for %s: %w", spec.Path, err)
	}
	if _, err := state.EnsureMetadata(spec.Path, spec.Prompt); err != nil {
		s.logger.Warn("cannot write folder metadata", "folder", spec.Path, "error", err)
	}

	w, err := watcher.New(watcher.Options{
		Folder:       spec.Path,
		IgnoreGlobs:  spec.IgnoreGlobs,
		Debounce:     spec.Debounce,
		PollInterval: spec.PollInterval,
		Logger:       s.logger,
		OnAdd: func(path string) {
			// Jobs must run to completion even after the watch
			// context is cancelled for shutdown; the queue drains
			// in-flight work before the process exits.
			s.queue.Enqueue(context.WithoutCancel(ctx), spec.Path, path, spec.DryRun)
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-w.Ready()

	s.mu.Lock()
	if old, exists := s.watchers[spec.Path]; exists {
		old.spec.Prompt = spec.Prompt
		s.mu.Unlock()
		w.Close()
		return nil
	}
	s.watchers[spec.Path] = &folderWatch{watcher: w, spec: spec}
	s.specs[spec.Path] = spec
	s.mu.Unlock()

	s.logger.Info("watching folder", "folder", spec.Path, "dryRun", spec.DryRun)
	return nil
}

func (s *Supervisor) detachFolder(folder string) {
	s.mu.Lock()
	fw, ok := s.watchers[folder]
	delete(s.watchers, folder)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := fw.watcher.Close(); err != nil {
		s.logger.Warn("closing watcher", "folder", folder, "error", err)
	}
	s.logger.Info("stopped watching folder", "folder", folder)
}

// onFolderDiscovered builds a spec for a discovered smartfolder.md
// and attaches a watcher.
func (s *Supervisor) onFolderDiscovered(ctx context.Context, folder, prompt string) {
	spec, err := config.NewFolderSpec(config.FolderEntry{
		Path:   folder,
		Prompt: prompt,
		// The config file itself must never become a job.
		Ignore: []string{discovery.ConfigFileName},
	}, s.cfg)
	if err != nil {
		s.logger.Error("cannot build folder spec", "folder", folder, "error", err)
		return
	}
	if err := s.attachFolder(ctx, spec); err != nil {
		s.logger.Error("cannot attach discovered folder", "folder", folder, "error", err)
	}
}

func (s *Supervisor) onPromptChanged(folder, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fw, ok := s.watchers[folder]; ok {
		fw.spec.Prompt = prompt
		s.logger.Info("folder prompt updated", "folder", folder)
	}
}

// specFor returns a snapshot of the folder's spec. Prompts may change
// between a job's enqueue and its run; the copy keeps one job on one
// prompt while edits apply to the next job.
func (s *Supervisor) specFor(folder string) *config.FolderSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[folder]
	if !ok {
		return nil
	}
	snapshot := *spec
	return &snapshot
}
