package metadata

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dhowden/tag"
)

// audioExtractor reads ID3/MP4/FLAC tags.
type audioExtractor struct{}

func (e *audioExtractor) Name() string    { return "audio" }
func (e *audioExtractor) Available() bool { return true }

func (e *audioExtractor) Extract(absPath string) (*Typed, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read audio tags: %w", err)
	}

	var fields []Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, Field{Key: key, Value: value})
		}
	}
	add("Title", m.Title())
	add("Artist", m.Artist())
	add("Album", m.Album())
	add("Genre", m.Genre())
	if y := m.Year(); y != 0 {
		add("Year", strconv.Itoa(y))
	}
	add("Container", string(m.FileType()))

	if len(fields) == 0 {
		return nil, fmt.Errorf("no audio tags")
	}
	return &Typed{Kind: "audio", Fields: fields}, nil
}

// videoExtractor is a placeholder: there is no in-process video prober
// in this build, so Available reports false and composition skips it.
// Core stats and the hash still describe the file.
type videoExtractor struct{}

func (e *videoExtractor) Name() string    { return "video" }
func (e *videoExtractor) Available() bool { return false }

func (e *videoExtractor) Extract(absPath string) (*Typed, error) {
	return nil, fmt.Errorf("video metadata unavailable")
}
