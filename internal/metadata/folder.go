package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// folderExtractor summarizes a dropped directory: file and subfolder
// counts, total size, and an extension histogram. The walk is depth
// limited and skips dotfiles.
type folderExtractor struct{}

const maxFolderDepth = 10

func (e *folderExtractor) Name() string    { return "folder" }
func (e *folderExtractor) Available() bool { return true }

func (e *folderExtractor) Extract(absPath string) (*Typed, error) {
	var files, subfolders int
	var totalSize int64
	histogram := map[string]int{}

	if err := walkFolder(absPath, 0, &files, &subfolders, &totalSize, histogram); err != nil {
		return nil, err
	}

	fields := []Field{
		{Key: "Files", Value: strconv.Itoa(files)},
		{Key: "Subfolders", Value: strconv.Itoa(subfolders)},
		{Key: "Total size", Value: humanize.Bytes(uint64(totalSize))},
	}

	if len(histogram) > 0 {
		exts := make([]string, 0, len(histogram))
		for ext := range histogram {
			exts = append(exts, ext)
		}
		sort.Slice(exts, func(i, j int) bool {
			if histogram[exts[i]] != histogram[exts[j]] {
				return histogram[exts[i]] > histogram[exts[j]]
			}
			return exts[i] < exts[j]
		})
		var parts []string
		for _, ext := range exts {
			parts = append(parts, fmt.Sprintf("%s (%d)", ext, histogram[ext]))
		}
		fields = append(fields, Field{Key: "Extensions", Value: strings.Join(parts, ", ")})
	}

	return &Typed{Kind: "folder", Fields: fields}, nil
}

func walkFolder(dir string, depth int, files, subfolders *int, totalSize *int64, histogram map[string]int) error {
	if depth > maxFolderDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("read folder: %w", err)
		}
		return nil // unreadable subfolder, keep tallying the rest
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			*subfolders++
			if err := walkFolder(filepath.Join(dir, entry.Name()), depth+1, files, subfolders, totalSize, histogram); err != nil {
				return err
			}
			continue
		}
		*files++
		if info, err := entry.Info(); err == nil {
			*totalSize += info.Size()
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == "" {
			ext = "(none)"
		}
		histogram[ext]++
	}
	return nil
}
