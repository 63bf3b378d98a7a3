// Package state manages the per-folder state directories kept under
// the smartfolder home: hashed directory names, the append-only run
// history, and the folder metadata marker.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HomeEnv relocates the state/config root when set.
const HomeEnv = "SMARTFOLDER_HOME"

// Home returns the smartfolder home directory: $SMARTFOLDER_HOME if
// set, otherwise ~/.smartfolder.
func Home() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		// Last resort: relative to the working directory.
		return ".smartfolder"
	}
	return filepath.Join(userHome, ".smartfolder")
}

// Hash16 returns the first 16 hex characters of the SHA-256 of the
// normalized absolute folder path. It is the stable name of the
// folder's state directory.
func Hash16(folderPath string) string {
	abs, err := filepath.Abs(folderPath)
	if err != nil {
		abs = filepath.Clean(folderPath)
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}

// StateDir returns the state directory for a folder. It always lies
// under Home()/state, never inside the watched folder itself.
func StateDir(folderPath string) string {
	return filepath.Join(Home(), "state", Hash16(folderPath))
}

// HistoryPath returns the history.jsonl path for a folder.
func HistoryPath(folderPath string) string {
	return filepath.Join(StateDir(folderPath), "history.jsonl")
}

// EnsureStateDir creates the state directory if needed and returns it.
func EnsureStateDir(folderPath string) (string, error) {
	dir := StateDir(folderPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return dir, nil
}

// HistoryRecord is one line of history.jsonl.
type HistoryRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	File      string         `json:"file"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AppendHistory appends one JSON line to the history file. The file is
// opened O_APPEND so concurrent appenders to different folders cannot
// interleave bytes. Callers treat failures as log-and-continue.
func AppendHistory(historyPath string, rec HistoryRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	f, err := os.OpenFile(historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

// ReadHistory parses a history.jsonl file. Blank lines are skipped;
// a malformed line aborts with an error naming its position.
func ReadHistory(historyPath string) ([]HistoryRecord, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var records []HistoryRecord
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec HistoryRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("history line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Metadata is the per-folder marker file written alongside history.
type Metadata struct {
	FolderPath     string    `json:"folderPath"`
	Hash           string    `json:"hash"`
	FirstWatchedAt time.Time `json:"firstWatchedAt"`
	LastRunAt      time.Time `json:"lastRunAt"`
	Prompt         string    `json:"prompt,omitempty"`
}

// MetadataPath returns the metadata.json path for a folder.
func MetadataPath(folderPath string) string {
	return filepath.Join(StateDir(folderPath), "metadata.json")
}

// EnsureMetadata reads or creates the folder metadata marker. LastRunAt
// is always refreshed; FirstWatchedAt is preserved across runs.
func EnsureMetadata(folderPath, prompt string) (*Metadata, error) {
	if _, err := EnsureStateDir(folderPath); err != nil {
		return nil, err
	}

	path := MetadataPath(folderPath)
	now := time.Now().UTC()

	meta := &Metadata{
		FolderPath:     folderPath,
		Hash:           Hash16(folderPath),
		FirstWatchedAt: now,
	}
	if data, err := os.ReadFile(path); err == nil {
		var existing Metadata
		if err := json.Unmarshal(data, &existing); err == nil && !existing.FirstWatchedAt.IsZero() {
			meta.FirstWatchedAt = existing.FirstWatchedAt
		}
	}
	meta.LastRunAt = now
	meta.Prompt = prompt

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return meta, nil
}

// TokenPath returns the optional credential fallback file.
func TokenPath() string {
	return filepath.Join(Home(), "token")
}

// ReadToken reads the fallback credential file. Returns an empty
// string when the file is absent.
func ReadToken() (string, error) {
	data, err := os.ReadFile(TokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
