// Package queue serializes jobs per watched folder: one folder's jobs
// run strictly in arrival order, independent folders run in parallel.
package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Handler processes one queued job. Errors are logged and never break
// the folder's chain.
type Handler func(ctx context.Context, folder, path string, dryRun bool) error

// Ignorer reports whether a path is currently suppressed (the agent's
// own recent output). Consulted before a job is appended.
type Ignorer interface {
	IsIgnored(path string) bool
}

type job struct {
	path   string
	dryRun bool
}

// folderQueue is the tail of one folder's chain. A drain goroutine
// exists only while jobs are pending.
type folderQueue struct {
	mu      sync.Mutex
	pending []job
	running bool
}

// Manager owns all folder queues.
type Manager struct {
	handler Handler
	ignorer Ignorer
	logger  *slog.Logger

	mu      sync.Mutex
	folders map[string]*folderQueue
	closed  bool
	wg      sync.WaitGroup
}

// NewManager creates a queue manager. ignorer may be nil.
func NewManager(handler Handler, ignorer Ignorer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		handler: handler,
		ignorer: ignorer,
		logger:  logger.With("component", "queue"),
		folders: make(map[string]*folderQueue),
	}
}

// Enqueue appends a job to the folder's chain. Suppressed paths are
// dropped here so the agent's own writes never re-trigger jobs.
// Returns false when the event was dropped.
func (m *Manager) Enqueue(ctx context.Context, folder, path string, dryRun bool) bool {
	if m.ignorer != nil && m.ignorer.IsIgnored(path) {
		m.logger.Debug("dropping self-change event", "folder", folder, "path", path)
		return false
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("dropping event after close", "path", path)
		return false
	}
	fq, ok := m.folders[folder]
	if !ok {
		fq = &folderQueue{}
		m.folders[folder] = fq
	}
	m.mu.Unlock()

	fq.mu.Lock()
	fq.pending = append(fq.pending, job{path: path, dryRun: dryRun})
	if !fq.running {
		fq.running = true
		m.wg.Add(1)
		go m.drain(ctx, folder, fq)
	}
	fq.mu.Unlock()
	return true
}

// drain runs the folder's pending jobs in order, then exits.
func (m *Manager) drain(ctx context.Context, folder string, fq *folderQueue) {
	defer m.wg.Done()
	for {
		fq.mu.Lock()
		if len(fq.pending) == 0 {
			fq.running = false
			fq.mu.Unlock()
			return
		}
		next := fq.pending[0]
		fq.pending = fq.pending[1:]
		fq.mu.Unlock()

		m.runJob(ctx, folder, next)
	}
}

func (m *Manager) runJob(ctx context.Context, folder string, j job) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked",
				"folder", folder,
				"path", j.path,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := m.handler(ctx, folder, j.path, j.dryRun); err != nil {
		m.logger.Error("job failed", "folder", folder, "path", j.path, "error", err)
	}
}

// Wait blocks until every queued job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops accepting new events and waits for in-flight jobs to
// complete.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}
