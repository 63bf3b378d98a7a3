// Package metadata extracts file metadata for the prompt builder.
// Core stats and a streaming SHA-256 are always collected; typed
// extractors (EXIF, PDF, audio, image, archive, folder) run
// opportunistically and report "unavailable" instead of failing.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smartfolderhq/smartfolder/internal/classify"
)

// Core is the always-present metadata block.
type Core struct {
	AbsolutePath string
	RelativePath string
	Name         string
	Extension    string
	Size         int64
	Created      time.Time
	Modified     time.Time
	Category     classify.Category
	SHA256       string
	IsDir        bool
}

// Field is one key/value line of a typed metadata section. Slices keep
// prompt output stable; maps would shuffle it.
type Field struct {
	Key   string
	Value string
}

// Typed is a category-specific metadata section.
type Typed struct {
	Kind   string // "exif", "pdf", "audio", "image", "archive", "folder"
	Fields []Field
}

// Extractor is a typed metadata source. Available reports whether the
// underlying capability exists in this build; unavailable extractors
// are skipped at composition time rather than probed per file.
// Extract errors mean "no typed metadata for this file", never a
// pipeline failure.
type Extractor interface {
	Name() string
	Available() bool
	Extract(absPath string) (*Typed, error)
}

// ExtractCore stats the file and streams its SHA-256. Directories get
// stats without a hash.
func ExtractCore(absPath, relPath string, cat classify.Category) (*Core, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", absPath, err)
	}

	core := &Core{
		AbsolutePath: absPath,
		RelativePath: relPath,
		Name:         filepath.Base(absPath),
		Extension:    strings.ToLower(filepath.Ext(absPath)),
		Size:         info.Size(),
		// Portable birth time is unavailable; mtime stands in for both.
		Created:  info.ModTime(),
		Modified: info.ModTime(),
		Category: cat,
		IsDir:    info.IsDir(),
	}
	if core.IsDir {
		core.Category = classify.Folder
		return core, nil
	}

	hash, err := hashFile(absPath)
	if err != nil {
		return nil, err
	}
	core.SHA256 = hash
	return core, nil
}

// hashFile streams the file through SHA-256. Multi-gigabyte videos are
// in scope, so the file is never loaded into memory.
func hashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", absPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ForCategory returns the typed extractors that apply to a category,
// already filtered to the available ones.
func ForCategory(cat classify.Category) []Extractor {
	var candidates []Extractor
	switch cat {
	case classify.Image:
		candidates = []Extractor{&imageExtractor{}, &exifExtractor{}}
	case classify.PDF:
		candidates = []Extractor{&pdfExtractor{}}
	case classify.Audio:
		candidates = []Extractor{&audioExtractor{}}
	case classify.Video:
		candidates = []Extractor{&videoExtractor{}}
	case classify.Archive:
		candidates = []Extractor{&archiveExtractor{}}
	case classify.Folder:
		candidates = []Extractor{&folderExtractor{}}
	}

	var available []Extractor
	for _, e := range candidates {
		if e.Available() {
			available = append(available, e)
		}
	}
	return available
}

// ExtractTyped runs every applicable extractor for the category.
// Failures are silent by contract; the caller only sees the sections
// that worked.
func ExtractTyped(absPath string, cat classify.Category) []*Typed {
	var sections []*Typed
	for _, e := range ForCategory(cat) {
		typed, err := e.Extract(absPath)
		if err != nil || typed == nil {
			continue
		}
		sections = append(sections, typed)
	}
	return sections
}
