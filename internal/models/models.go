// Package models holds the static model capability registry and the
// scoring-based selector that picks a model for a file category.
package models

import (
	"github.com/smartfolderhq/smartfolder/internal/classify"
)

// DefaultModel is the fallback when no registered model claims a
// category and the user expressed no preference.
const DefaultModel = "openai/gpt-4o-mini"

// Capability declares what a model natively accepts, what it costs,
// and what it is good at.
type Capability struct {
	ID string // "provider/model"

	SupportsText  bool
	SupportsImage bool
	SupportsPDF   bool
	SupportsAudio bool
	SupportsVideo bool

	MaxInputTokens  int
	MaxOutputTokens int

	// InputCostPerMTok is USD per million input tokens.
	InputCostPerMTok float64

	Strengths []string
	BestFor   []classify.Category
}

// registry order matters: scoring ties break toward earlier entries.
var registry = []Capability{
	// The gateway's file-part path carries PDFs for the OpenAI chat
	// completions models, so both entries are PDF-capable.
	{
		ID:               "openai/gpt-4o-mini",
		SupportsText:     true,
		SupportsImage:    true,
		SupportsPDF:      true,
		MaxInputTokens:   128_000,
		MaxOutputTokens:  16_384,
		InputCostPerMTok: 0.15,
		Strengths:        []string{"fast", "cheap", "general"},
		BestFor: []classify.Category{
			classify.TextDocument, classify.Code, classify.Data, classify.Image,
		},
	},
	{
		ID:               "openai/gpt-4o",
		SupportsText:     true,
		SupportsImage:    true,
		SupportsPDF:      true,
		MaxInputTokens:   128_000,
		MaxOutputTokens:  16_384,
		InputCostPerMTok: 2.50,
		Strengths:        []string{"vision", "reasoning"},
		BestFor:          []classify.Category{classify.Image, classify.Office},
	},
	{
		ID:               "anthropic/claude-sonnet-4",
		SupportsText:     true,
		SupportsImage:    true,
		SupportsPDF:      true,
		MaxInputTokens:   200_000,
		MaxOutputTokens:  64_000,
		InputCostPerMTok: 3.00,
		Strengths:        []string{"documents", "code", "long context"},
		BestFor: []classify.Category{
			classify.PDF, classify.TextDocument, classify.Code,
		},
	},
	{
		ID:               "google/gemini-2.0-flash",
		SupportsText:     true,
		SupportsImage:    true,
		SupportsPDF:      true,
		SupportsAudio:    true,
		SupportsVideo:    true,
		MaxInputTokens:   1_000_000,
		MaxOutputTokens:  8_192,
		InputCostPerMTok: 0.10,
		Strengths:        []string{"multimodal", "cheap", "huge context"},
		BestFor: []classify.Category{
			classify.Audio, classify.Video, classify.Image, classify.Data,
			classify.Archive, classify.Folder,
		},
	},
	{
		ID:               "google/gemini-1.5-pro",
		SupportsText:     true,
		SupportsImage:    true,
		SupportsPDF:      true,
		SupportsAudio:    true,
		SupportsVideo:    true,
		MaxInputTokens:   2_000_000,
		MaxOutputTokens:  8_192,
		InputCostPerMTok: 1.25,
		Strengths:        []string{"video", "long documents"},
		BestFor:          []classify.Category{classify.Video, classify.PDF},
	},
}

// Registry returns a copy of the capability table.
func Registry() []Capability {
	out := make([]Capability, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a capability by its "provider/model" id.
func Lookup(id string) (Capability, bool) {
	for _, c := range registry {
		if c.ID == id {
			return c, true
		}
	}
	return Capability{}, false
}

// Select picks a model for a category and file size. A registered user
// preference wins outright. Otherwise candidates claiming the category
// are scored; with no claimants the default model is used.
func Select(cat classify.Category, sizeBytes int64, userPref string) Capability {
	if userPref != "" {
		if c, ok := Lookup(userPref); ok {
			return c
		}
	}

	var candidates []Capability
	for _, c := range registry {
		for _, best := range c.BestFor {
			if best == cat {
				candidates = append(candidates, c)
				break
			}
		}
	}
	if len(candidates) == 0 {
		c, _ := Lookup(DefaultModel)
		return c
	}

	best := candidates[0]
	bestScore := score(candidates[0], cat, sizeBytes)
	for _, c := range candidates[1:] {
		// Strictly greater: ties break toward registry order.
		if s := score(c, cat, sizeBytes); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func score(c Capability, cat classify.Category, sizeBytes int64) float64 {
	var s float64

	if c.SupportsVideo && cat == classify.Video {
		s += 100
	}
	if c.SupportsAudio && cat == classify.Audio {
		s += 100
	}
	if c.SupportsPDF && cat == classify.PDF {
		s += 50
	}
	if c.SupportsImage && cat == classify.Image {
		s += 50
	}
	if c.InputCostPerMTok > 0 {
		s += 10 / c.InputCostPerMTok
	}
	if sizeBytes > 50_000 && c.MaxInputTokens > 500_000 {
		s += 20
	}
	return s
}
