package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticIgnorer map[string]bool

func (s staticIgnorer) IsIgnored(path string) bool { return s[path] }

func TestJobsRunInArrivalOrderPerFolder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		mu.Lock()
		got = append(got, path)
		mu.Unlock()
		return nil
	}, nil, discard())

	for i := 0; i < 20; i++ {
		m.Enqueue(context.Background(), "/watch", fmt.Sprintf("file-%02d", i), false)
	}
	m.Wait()

	if len(got) != 20 {
		t.Fatalf("ran %d jobs, want 20", len(got))
	}
	for i, path := range got {
		if want := fmt.Sprintf("file-%02d", i); path != want {
			t.Fatalf("got[%d] = %s, want %s", i, path, want)
		}
	}
}

func TestFoldersRunIndependently(t *testing.T) {
	release := make(chan struct{})
	otherRan := make(chan struct{})

	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		switch folder {
		case "/slow":
			<-release
		case "/fast":
			close(otherRan)
		}
		return nil
	}, nil, discard())

	m.Enqueue(context.Background(), "/slow", "blocker", false)
	m.Enqueue(context.Background(), "/fast", "quick", false)

	select {
	case <-otherRan:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked folder must not stall other folders")
	}
	close(release)
	m.Wait()
}

func TestSuppressedPathsDropped(t *testing.T) {
	var ran int
	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		ran++
		return nil
	}, staticIgnorer{"/watch/renamed.pdf": true}, discard())

	if m.Enqueue(context.Background(), "/watch", "/watch/renamed.pdf", false) {
		t.Error("suppressed path must be dropped")
	}
	if !m.Enqueue(context.Background(), "/watch", "/watch/new.pdf", false) {
		t.Error("unsuppressed path must be accepted")
	}
	m.Wait()
	if ran != 1 {
		t.Errorf("ran = %d, want 1", ran)
	}
}

func TestFailuresNeverBreakTheChain(t *testing.T) {
	var mu sync.Mutex
	var got []string

	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		mu.Lock()
		got = append(got, path)
		mu.Unlock()
		switch path {
		case "boom":
			panic("handler exploded")
		case "fail":
			return errors.New("job error")
		}
		return nil
	}, nil, discard())

	m.Enqueue(context.Background(), "/watch", "boom", false)
	m.Enqueue(context.Background(), "/watch", "fail", false)
	m.Enqueue(context.Background(), "/watch", "after", false)
	m.Wait()

	if len(got) != 3 || got[2] != "after" {
		t.Errorf("chain broke: %v", got)
	}
}

func TestCloseDropsNewEvents(t *testing.T) {
	var ran int
	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		ran++
		return nil
	}, nil, discard())

	m.Enqueue(context.Background(), "/watch", "before", false)
	m.Close()
	if m.Enqueue(context.Background(), "/watch", "late", false) {
		t.Error("enqueue after close must be rejected")
	}
	if ran != 1 {
		t.Errorf("ran = %d, want 1", ran)
	}
}

func TestDryRunFlagPropagates(t *testing.T) {
	var sawDryRun bool
	m := NewManager(func(ctx context.Context, folder, path string, dryRun bool) error {
		sawDryRun = dryRun
		return nil
	}, nil, discard())

	m.Enqueue(context.Background(), "/watch", "a.pdf", true)
	m.Wait()
	if !sawDryRun {
		t.Error("dry-run flag lost")
	}
}
