package metadata

import (
	"fmt"
	"image"
	"os"

	// Registered decoders for DecodeConfig. SVG/HEIC fall through to
	// the "unknown format" path and report no dimensions.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageExtractor reads pixel dimensions without decoding pixel data.
type imageExtractor struct{}

func (e *imageExtractor) Name() string    { return "image" }
func (e *imageExtractor) Available() bool { return true }

func (e *imageExtractor) Extract(absPath string) (*Typed, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	return &Typed{
		Kind: "image",
		Fields: []Field{
			{Key: "Format", Value: format},
			{Key: "Dimensions", Value: fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)},
		},
	}, nil
}
