package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParsePromptFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("valid", func(t *testing.T) {
		prompt, warnings, err := ParsePromptFile(write("ok.md", "organize my files\n"))
		if err != nil {
			t.Fatal(err)
		}
		if prompt != "organize my files" {
			t.Errorf("prompt = %q", prompt)
		}
		if len(warnings) != 0 {
			t.Errorf("warnings = %v", warnings)
		}
	})

	t.Run("too large", func(t *testing.T) {
		path := write("big.md", strings.Repeat("a", MaxFileBytes+1))
		_, _, err := ParsePromptFile(path)
		if _, ok := err.(*FileTooLargeError); !ok {
			t.Errorf("err = %v, want FileTooLargeError", err)
		}
	})

	t.Run("too long", func(t *testing.T) {
		// Under the byte limit but over the character limit is
		// impossible for ASCII; use prompt chars up to the char cap.
		path := write("long.md", strings.Repeat("xy", (MaxPromptChars/2)+10))
		_, _, err := ParsePromptFile(path)
		if _, ok := err.(*PromptTooLongError); !ok {
			t.Errorf("err = %v, want PromptTooLongError", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := ParsePromptFile(write("empty.md", "  \n\t\n"))
		if _, ok := err.(*EmptyPromptError); !ok {
			t.Errorf("err = %v, want EmptyPromptError", err)
		}
	})

	t.Run("nul byte", func(t *testing.T) {
		_, _, err := ParsePromptFile(write("nul.md", "organize\x00files"))
		if _, ok := err.(*PromptContainsNulError); !ok {
			t.Errorf("err = %v, want PromptContainsNulError", err)
		}
	})

	t.Run("repeated run warns", func(t *testing.T) {
		prompt, warnings, err := ParsePromptFile(write("run.md", "sort "+strings.Repeat("!", 1500)))
		if err != nil {
			t.Fatalf("long runs must warn, not fail: %v", err)
		}
		if prompt == "" || len(warnings) == 0 {
			t.Errorf("prompt = %q, warnings = %v", prompt, warnings)
		}
	})

	t.Run("control char warns", func(t *testing.T) {
		_, warnings, err := ParsePromptFile(write("ctl.md", "organize\x07files"))
		if err != nil {
			t.Fatalf("control chars must warn, not fail: %v", err)
		}
		if len(warnings) == 0 {
			t.Error("expected a control-character warning")
		}
	})
}

type discoveryEvents struct {
	added   chan string
	changed chan string
	removed chan string
	prompts chan string
}

func runDiscovery(t *testing.T, roots []string, globs []string) *discoveryEvents {
	t.Helper()
	ev := &discoveryEvents{
		added:   make(chan string, 8),
		changed: make(chan string, 8),
		removed: make(chan string, 8),
		prompts: make(chan string, 8),
	}
	d := New(Options{
		Roots:       roots,
		IgnoreGlobs: globs,
		Interval:    40 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Callbacks: Callbacks{
			OnAdded: func(folder, path, prompt string) {
				ev.added <- folder
				ev.prompts <- prompt
			},
			OnChanged: func(folder, path, prompt string) {
				ev.changed <- prompt
			},
			OnRemoved: func(folder, path string) {
				ev.removed <- folder
			},
		},
	})
	go d.Run(context.Background())
	t.Cleanup(d.Close)
	return ev
}

func await(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func TestDiscoveryLifecycle(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "proj")
	if err := os.Mkdir(proj, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(proj, "smartfolder.md")
	if err := os.WriteFile(cfg, []byte("organize"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := runDiscovery(t, []string{root}, nil)

	if got := await(t, ev.added, "added"); got != proj {
		t.Errorf("added folder = %s, want %s", got, proj)
	}
	if got := await(t, ev.prompts, "prompt"); got != "organize" {
		t.Errorf("prompt = %q", got)
	}

	if err := os.WriteFile(cfg, []byte("organize by month"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := await(t, ev.changed, "changed"); got != "organize by month" {
		t.Errorf("changed prompt = %q", got)
	}

	if err := os.Remove(cfg); err != nil {
		t.Fatal(err)
	}
	if got := await(t, ev.removed, "removed"); got != proj {
		t.Errorf("removed folder = %s", got)
	}
}

func TestDiscoveryCaseInsensitiveName(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "SmartFolder.MD"), []byte("sort"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := runDiscovery(t, []string{root}, nil)
	if got := await(t, ev.added, "added"); got != root {
		t.Errorf("added = %s", got)
	}
}

func TestDiscoverySkipsSymlinks(t *testing.T) {
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "smartfolder.md"), []byte("sneaky"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	ev := runDiscovery(t, []string{root}, nil)
	select {
	case folder := <-ev.added:
		t.Errorf("symlinked config discovered: %s", folder)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDiscoveryIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules", "pkg")
	if err := os.MkdirAll(nm, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nm, "smartfolder.md"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := runDiscovery(t, []string{root}, []string{"**/node_modules/**", "node_modules"})
	select {
	case folder := <-ev.added:
		t.Errorf("ignored config discovered: %s", folder)
	case <-time.After(300 * time.Millisecond):
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDiscoveryRejectionLoggedOnce(t *testing.T) {
	root := t.TempDir()
	cfg := filepath.Join(root, "smartfolder.md")
	if err := os.WriteFile(cfg, []byte("bad\x00prompt"), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs syncBuffer
	added := make(chan string, 4)
	d := New(Options{
		Roots:    []string{root},
		Interval: 30 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
		Callbacks: Callbacks{
			OnAdded: func(folder, path, prompt string) { added <- prompt },
		},
	})
	go d.Run(context.Background())
	t.Cleanup(d.Close)

	// Many ticks pass over the same invalid file.
	time.Sleep(300 * time.Millisecond)
	if n := strings.Count(logs.String(), "rejecting smart-folder config"); n != 1 {
		t.Errorf("rejection logged %d times, want 1", n)
	}

	// A rewrite clears the memory and the file is picked up.
	if err := os.WriteFile(cfg, []byte("organize"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case prompt := <-added:
		if prompt != "organize" {
			t.Errorf("prompt = %q", prompt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("repaired config never discovered")
	}
}

func TestDiscoveryCloseDuringConfigEdits(t *testing.T) {
	root := t.TempDir()
	cfg := filepath.Join(root, "smartfolder.md")
	if err := os.WriteFile(cfg, []byte("organize"), 0o644); err != nil {
		t.Fatal(err)
	}

	added := make(chan string, 4)
	d := New(Options{
		Roots:    []string{root},
		Interval: 30 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Callbacks: Callbacks{
			OnAdded: func(folder, path, prompt string) { added <- folder },
		},
	})
	go d.Run(context.Background())
	select {
	case <-added:
	case <-time.After(5 * time.Second):
		t.Fatal("config never discovered")
	}

	// Keep resetting the change timer while Close runs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			os.WriteFile(cfg, []byte(fmt.Sprintf("organize %d", i)), 0o644)
			time.Sleep(2 * time.Millisecond)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	d.Close()
	<-done
}

func TestDiscoveryRejectsOversizeConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "smartfolder.md"),
		[]byte(strings.Repeat("a", MaxFileBytes+1)), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := runDiscovery(t, []string{root}, nil)
	select {
	case folder := <-ev.added:
		t.Errorf("oversize config attached a watcher: %s", folder)
	case <-time.After(300 * time.Millisecond):
	}
}
