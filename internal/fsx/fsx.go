// Package fsx provides the filesystem sandbox primitives shared by the
// tool registry and the content providers. Every path the agent touches
// goes through [Contain] first; nothing in this package ever resolves a
// path outside the folder it was given.
package fsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxReadBytes is the hard cap for any single sandboxed read. Larger
// files are summarized through metadata instead of raw bytes.
const MaxReadBytes = 256 * 1024

// PathEscapeError reports a path that resolved outside its folder root.
type PathEscapeError struct {
	Path string
	Root string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path escapes folder: %s", e.Path)
}

// SizeExceededError reports a file larger than the read cap.
type SizeExceededError struct {
	Path string
	Size int64
	Max  int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("file too large: %s is %d bytes (limit %d)", e.Path, e.Size, e.Max)
}

// ExistsError reports a target that must not exist but does.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("already exists: %s", e.Path)
}

// MissingError reports a source that must exist but does not.
type MissingError struct {
	Path string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// Contain resolves p relative to root and verifies the result stays
// inside root. Absolute inputs are accepted as long as they point into
// the root. Returns the cleaned absolute path or a [*PathEscapeError].
func Contain(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve folder root: %w", err)
	}

	var candidate string
	if filepath.IsAbs(p) {
		candidate = filepath.Clean(p)
	} else {
		candidate = filepath.Join(rootAbs, p)
	}

	rel, err := filepath.Rel(rootAbs, candidate)
	if err != nil {
		return "", &PathEscapeError{Path: p, Root: rootAbs}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", &PathEscapeError{Path: p, Root: rootAbs}
	}
	return candidate, nil
}

// EnsureParentDir creates the parent directory of abs if needed.
func EnsureParentDir(abs string) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return nil
}

// AssertExists returns a [*MissingError] unless abs exists.
func AssertExists(abs string) error {
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return &MissingError{Path: abs}
		}
		return fmt.Errorf("stat %s: %w", abs, err)
	}
	return nil
}

// AssertNotExists returns a [*ExistsError] if abs exists. Lstat is used
// so dangling symlinks still count as occupied.
func AssertNotExists(abs string) error {
	if _, err := os.Lstat(abs); err == nil {
		return &ExistsError{Path: abs}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", abs, err)
	}
	return nil
}

// ReadCapped reads a regular file of at most max bytes. Non-regular
// files and oversized files are refused before any bytes are read.
func ReadCapped(abs string, max int64) ([]byte, error) {
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingError{Path: abs}
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", abs)
	}
	if info.Size() > max {
		return nil, &SizeExceededError{Path: abs, Size: info.Size(), Max: max}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	defer f.Close()

	// LimitReader guards against the file growing between stat and read.
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	if int64(len(data)) > max {
		return nil, &SizeExceededError{Path: abs, Size: int64(len(data)), Max: max}
	}
	return data, nil
}
