package metadata

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// archiveExtractor lists zip contents. Other archive formats report
// core stats only.
type archiveExtractor struct{}

func (e *archiveExtractor) Name() string    { return "archive" }
func (e *archiveExtractor) Available() bool { return true }

// entry listing is capped so a zip bomb cannot balloon the prompt.
const maxListedEntries = 20

func (e *archiveExtractor) Extract(absPath string) (*Typed, error) {
	if strings.ToLower(filepath.Ext(absPath)) != ".zip" {
		return nil, fmt.Errorf("unsupported archive format")
	}

	r, err := zip.OpenReader(absPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var total uint64
	var names []string
	for _, f := range r.File {
		total += f.UncompressedSize64
		if len(names) < maxListedEntries {
			names = append(names, f.Name)
		}
	}

	fields := []Field{
		{Key: "Entries", Value: strconv.Itoa(len(r.File))},
		{Key: "Uncompressed size", Value: humanize.Bytes(total)},
	}
	listed := strings.Join(names, ", ")
	if len(r.File) > maxListedEntries {
		listed += fmt.Sprintf(", … %d more", len(r.File)-maxListedEntries)
	}
	if listed != "" {
		fields = append(fields, Field{Key: "Contents", Value: listed})
	}

	return &Typed{Kind: "archive", Fields: fields}, nil
}
