package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartfolderhq/smartfolder/internal/config"
	"github.com/smartfolderhq/smartfolder/internal/llm"
	"github.com/smartfolderhq/smartfolder/internal/state"
)

// scriptedClient replays canned responses per job.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	err       error
	lastUser  string
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range messages {
		if m.Role == "user" && m.Content != "" {
			c.lastUser = m.Content
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return &llm.ChatResponse{Message: llm.TextMessage("assistant", "nothing to do")}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func (c *scriptedClient) userMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUser
}

// blockingClient holds its one model call open until released, so
// tests can line a shutdown up against an in-flight job.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	c.once.Do(func() { close(c.started) })
	<-c.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Message: llm.TextMessage("assistant", "finished after shutdown began")}, nil
}

func (c *blockingClient) Ping(ctx context.Context) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func folderConfig(t *testing.T, watchDir, prompt string, dryRun bool) *config.Config {
	t.Helper()
	cfg, err := config.Normalize(&config.File{
		Folders: []config.FolderEntry{{
			Path:       watchDir,
			Prompt:     prompt,
			DebounceMs: 50,
			DryRun:     &dryRun,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEndRename(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "rename files descriptively", false)

	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{
			llm.NewToolCall("c1", "rename_file", map[string]any{
				"from": "a.txt", "to": "2026-08-notes.txt",
			}),
		}}},
		{Message: llm.TextMessage("assistant", "renamed to 2026-08-notes.txt")},
	}}

	sup := New(cfg, client, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	if err := os.WriteFile(filepath.Join(watchDir, "a.txt"), []byte("meeting notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	renamed := filepath.Join(watchDir, "2026-08-notes.txt")
	waitFor(t, "rename", func() bool {
		_, err := os.Stat(renamed)
		return err == nil
	})
	sup.Shutdown()

	// The agent's own output must be suppressed.
	if !sup.suppressor.IsIgnored(renamed) {
		t.Error("renamed path not in the ignored set")
	}

	records, err := state.ReadHistory(cfg.Folders[0].HistoryPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("history records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.File != "a.txt" || rec.Error != "" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Result["finalText"] != "renamed to 2026-08-notes.txt" {
		t.Errorf("result = %v", rec.Result)
	}

	meta, err := state.EnsureMetadata(watchDir, "")
	if err != nil {
		t.Fatal(err)
	}
	if meta.FirstWatchedAt.IsZero() {
		t.Error("metadata not written")
	}
}

func TestDryRunLeavesDiskUntouched(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "rename files", true)

	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{
			llm.NewToolCall("c1", "rename_file", map[string]any{
				"from": "a.pdf", "to": "b.pdf",
			}),
		}}},
		{Message: llm.TextMessage("assistant", "would rename")},
	}}

	sup := New(cfg, client, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	original := filepath.Join(watchDir, "a.pdf")
	if err := os.WriteFile(original, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "history record", func() bool {
		records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
		return len(records) == 1
	})
	sup.Shutdown()

	if _, err := os.Stat(original); err != nil {
		t.Error("dry-run renamed the file on disk")
	}
	records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
	if records[0].Result["dryRun"] != true {
		t.Errorf("result = %v", records[0].Result)
	}
}

func TestProviderFailureRecordsError(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "sort", false)

	sup := New(cfg, &scriptedClient{err: errors.New("gateway unreachable")}, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	if err := os.WriteFile(filepath.Join(watchDir, "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "error record", func() bool {
		records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
		return len(records) == 1
	})
	sup.Shutdown()

	records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
	if records[0].Error == "" {
		t.Error("provider failure must be recorded")
	}
}

func readMetadata(t *testing.T, folder string) *state.Metadata {
	t.Helper()
	data, err := os.ReadFile(state.MetadataPath(folder))
	if err != nil {
		t.Fatal(err)
	}
	var meta state.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	return &meta
}

func TestShutdownLetsInFlightJobFinish(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "sort", false)

	client := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	sup := New(cfg, client, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	if err := os.WriteFile(filepath.Join(watchDir, "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached the model")
	}

	// The shutdown signal lands while the model call is in flight;
	// the job must still run to completion.
	cancel()
	close(client.release)
	sup.Shutdown()

	records, err := state.ReadHistory(cfg.Folders[0].HistoryPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("history records = %d, want 1", len(records))
	}
	if records[0].Error != "" {
		t.Errorf("shutdown aborted the job: %s", records[0].Error)
	}
	if records[0].Result["finalText"] != "finished after shutdown began" {
		t.Errorf("result = %v", records[0].Result)
	}
}

func TestPromptSnapshotStableDuringEdits(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "original", false)

	sup := New(cfg, &scriptedClient{}, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()
	defer sup.Shutdown()

	folder := cfg.Folders[0].Path
	snapshot := sup.specFor(folder)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			sup.onPromptChanged(folder, fmt.Sprintf("edit %d", i))
		}
	}()
	// A job reading its snapshot never sees concurrent edits, and
	// taking fresh snapshots during the edit burst is safe.
	for i := 0; i < 500; i++ {
		if got := snapshot.Prompt; got != "original" {
			t.Fatalf("in-flight snapshot changed to %q", got)
		}
		_ = sup.specFor(folder).Prompt
	}
	<-done

	if got := sup.specFor(folder).Prompt; got != "edit 499" {
		t.Errorf("next job's prompt = %q", got)
	}
}

func TestContentLimitOverridesReachPipeline(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()

	cfg, err := config.Normalize(&config.File{
		Folders: []config.FolderEntry{{Path: watchDir, Prompt: "sort", DebounceMs: 50}},
		GlobalDefaults: config.GlobalDefaults{
			Content: config.ContentLimits{PartialTextMaxBytes: 4},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{}
	sup := New(cfg, client, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	if err := os.WriteFile(filepath.Join(watchDir, "data.txt"), []byte("well past four bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "history record", func() bool {
		records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
		return len(records) == 1
	})
	sup.Shutdown()

	// The shrunken threshold keeps the body out of the prompt.
	if msg := client.userMessage(); !strings.Contains(msg, "content omitted") {
		t.Errorf("user message carried a body despite the override:\n%s", msg)
	}
}

func TestMetadataLastRunRefreshed(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	watchDir := t.TempDir()
	cfg := folderConfig(t, watchDir, "sort", false)

	sup := New(cfg, &scriptedClient{}, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()
	before := readMetadata(t, watchDir)

	if err := os.WriteFile(filepath.Join(watchDir, "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "history record", func() bool {
		records, _ := state.ReadHistory(cfg.Folders[0].HistoryPath)
		return len(records) == 1
	})
	sup.Shutdown()

	after := readMetadata(t, watchDir)
	if !after.LastRunAt.After(before.LastRunAt) {
		t.Errorf("lastRunAt not refreshed by the run: before %v, after %v",
			before.LastRunAt, after.LastRunAt)
	}
	if !after.FirstWatchedAt.Equal(before.FirstWatchedAt) {
		t.Error("firstWatchedAt must survive the refresh")
	}
}

func TestRootModeDiscoversAndProcesses(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	root := t.TempDir()
	proj := filepath.Join(root, "inbox")
	if err := os.Mkdir(proj, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(proj, "smartfolder.md"), []byte("organize"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Normalize(&config.File{
		RootDirectories:     []string{root},
		DiscoveryIntervalMs: 40,
		GlobalDefaults:      config.GlobalDefaults{DebounceMs: 50},
	})
	if err != nil {
		t.Fatal(err)
	}

	sup := New(cfg, &scriptedClient{}, nil, discardLogger())
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-sup.Ready()

	waitFor(t, "discovery", func() bool {
		return sup.specFor(proj) != nil
	})
	if got := sup.specFor(proj).Prompt; got != "organize" {
		t.Errorf("prompt = %q", got)
	}

	if err := os.WriteFile(filepath.Join(proj, "drop.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	historyPath := state.HistoryPath(proj)
	waitFor(t, "processed file", func() bool {
		records, _ := state.ReadHistory(historyPath)
		return len(records) == 1
	})

	// Removing the config detaches the watcher.
	if err := os.Remove(filepath.Join(proj, "smartfolder.md")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "detach", func() bool {
		sup.mu.Lock()
		defer sup.mu.Unlock()
		return len(sup.watchers) == 0
	})
	sup.Shutdown()
}
