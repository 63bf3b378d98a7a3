package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartfolderhq/smartfolder/internal/state"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{
		"ai": {"model": "openai/gpt-4o-mini"},
		"folders": [{"path": "`+dir+`", "prompt": "organize"}]
	}`)

	out, err := runCommand(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if !strings.Contains(out, "config valid") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Run("both modes set", func(t *testing.T) {
		path := writeConfig(t, `{
			"folders": [{"path": "/tmp/a", "prompt": "x"}],
			"rootDirectories": ["/tmp/b"]
		}`)
		if _, err := runCommand(t, "validate", "--config", path); err == nil {
			t.Error("config with both folders and rootDirectories must fail")
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		path := writeConfig(t, `{
			"folders": [{"path": "/tmp/a", "prompt": "x", "tools": ["rm_rf"]}]
		}`)
		if _, err := runCommand(t, "validate", "--config", path); err == nil {
			t.Error("unknown tool must fail validation")
		}
	})

	t.Run("env var not allowed", func(t *testing.T) {
		path := writeConfig(t, `{
			"ai": {"apiKey": "$SECRET_TOKEN"},
			"folders": [{"path": "/tmp/a", "prompt": "x"}]
		}`)
		if _, err := runCommand(t, "validate", "--config", path); err == nil {
			t.Error("non-whitelisted env var must fail validation")
		}
	})
}

func TestHistoryEmpty(t *testing.T) {
	t.Setenv(state.HomeEnv, t.TempDir())
	out, err := runCommand(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Errorf("output = %q", out)
	}
}

func TestRootRequiresPrompt(t *testing.T) {
	if _, err := runCommand(t, t.TempDir()); err == nil {
		t.Error("watching without --prompt must fail")
	}
}
