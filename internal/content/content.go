// Package content decides, per file category and model capability,
// which bytes accompany the prompt: full text, head+tail excerpts,
// base64 binary, or metadata only.
package content

import (
	"fmt"
	"mime"
	"os"
	"strings"

	"github.com/smartfolderhq/smartfolder/internal/classify"
	"github.com/smartfolderhq/smartfolder/internal/fsx"
	"github.com/smartfolderhq/smartfolder/internal/metadata"
	"github.com/smartfolderhq/smartfolder/internal/models"
)

// Limits holds the body-size thresholds. Zero values mean "use the
// spec defaults"; config may override any of them.
type Limits struct {
	FullTextMax    int64 // send entire text file at or below this
	PartialTextMax int64 // send head+tail up to this; nothing above
	ImageMax       int64
	PDFMax         int64
	AudioMax       int64
	VideoMax       int64
	HeadLines      int
	TailLines      int
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		FullTextMax:    10 * 1024,
		PartialTextMax: 100 * 1024,
		ImageMax:       5 * 1024 * 1024,
		PDFMax:         10 * 1024 * 1024,
		AudioMax:       10 * 1024 * 1024,
		VideoMax:       20 * 1024 * 1024,
		HeadLines:      50,
		TailLines:      50,
	}
}

// BodyKind discriminates the body variant attached to a prompt.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyFullText
	BodyPartialText
	BodyFullBinary
)

// Mode is the outcome of the body-mode decision for sendable files.
type Mode int

const (
	ModeFull Mode = iota
	ModePartial
)

// Body is the optional byte payload of a prompt.
type Body struct {
	Kind BodyKind

	// Text fields (BodyFullText, BodyPartialText).
	Text       string
	Truncation string // omission marker text, empty when nothing was cut
	CSVHeader  string // verbatim header line for CSV/TSV excerpts

	// Binary fields (BodyFullBinary).
	Data      []byte
	MediaType string
}

// File is the assembled input for the prompt builder.
type File struct {
	Core           *metadata.Core
	Typed          []*metadata.Typed
	Body           Body
	AvailableTools []string
}

// Strategy is the per-category body policy. The four pipeline steps
// (extract metadata, gate, choose mode, fetch) stay explicit: Provide
// runs them in order for whichever strategy the category selects.
type Strategy interface {
	ShouldSendBody(core *metadata.Core, cap models.Capability) bool
	BodyMode(core *metadata.Core) Mode
	FetchBody(core *metadata.Core, mode Mode) (Body, error)
}

// ForCategory selects the strategy for a category.
func ForCategory(cat classify.Category, limits Limits) Strategy {
	limits = withDefaults(limits)
	switch cat {
	case classify.TextDocument, classify.Code, classify.Data:
		return &textStrategy{limits: limits}
	case classify.Image:
		return &binaryStrategy{max: limits.ImageMax, supports: func(c models.Capability) bool { return c.SupportsImage }}
	case classify.PDF:
		return &binaryStrategy{max: limits.PDFMax, supports: func(c models.Capability) bool { return c.SupportsPDF }}
	case classify.Audio:
		return &binaryStrategy{max: limits.AudioMax, supports: func(c models.Capability) bool { return c.SupportsAudio }}
	case classify.Video:
		return &binaryStrategy{max: limits.VideoMax, supports: func(c models.Capability) bool { return c.SupportsVideo }}
	default: // archive, office, folder: metadata describes contents
		return metadataOnlyStrategy{}
	}
}

// Provide runs the strategy template for an already-extracted core:
// gate, mode, fetch. Tool availability is filtered later against the
// folder's configured tool set.
func Provide(core *metadata.Core, typed []*metadata.Typed, cap models.Capability, limits Limits) (*File, error) {
	strategy := ForCategory(core.Category, limits)

	file := &File{
		Core:           core,
		Typed:          typed,
		AvailableTools: ToolsFor(core.Category),
	}

	if !strategy.ShouldSendBody(core, cap) {
		return file, nil
	}

	body, err := strategy.FetchBody(core, strategy.BodyMode(core))
	if err != nil {
		return nil, fmt.Errorf("fetch body for %s: %w", core.RelativePath, err)
	}
	file.Body = body
	return file, nil
}

// ToolsFor returns the tool ids appropriate for a category, in
// registry order. Text tools are withheld from binary files; the
// bytes are already attached to the prompt.
func ToolsFor(cat classify.Category) []string {
	if classify.IsTextual(cat) {
		return []string{
			"read_file", "write_file", "rename_file", "move_file",
			"grep", "sed", "head", "tail", "create_folder",
		}
	}
	if cat == classify.Folder {
		return []string{"rename_file", "move_file", "create_folder"}
	}
	return []string{"write_file", "rename_file", "move_file", "create_folder"}
}

func withDefaults(l Limits) Limits {
	d := DefaultLimits()
	if l.FullTextMax <= 0 {
		l.FullTextMax = d.FullTextMax
	}
	if l.PartialTextMax <= 0 {
		l.PartialTextMax = d.PartialTextMax
	}
	if l.ImageMax <= 0 {
		l.ImageMax = d.ImageMax
	}
	if l.PDFMax <= 0 {
		l.PDFMax = d.PDFMax
	}
	if l.AudioMax <= 0 {
		l.AudioMax = d.AudioMax
	}
	if l.VideoMax <= 0 {
		l.VideoMax = d.VideoMax
	}
	if l.HeadLines <= 0 {
		l.HeadLines = d.HeadLines
	}
	if l.TailLines <= 0 {
		l.TailLines = d.TailLines
	}
	return l
}

// textStrategy sends full text for small files, head+tail excerpts
// for medium ones, and nothing beyond the partial cap.
type textStrategy struct {
	limits Limits
}

func (s *textStrategy) ShouldSendBody(core *metadata.Core, cap models.Capability) bool {
	return core.Size <= s.limits.PartialTextMax
}

func (s *textStrategy) BodyMode(core *metadata.Core) Mode {
	if core.Size <= s.limits.FullTextMax {
		return ModeFull
	}
	return ModePartial
}

func (s *textStrategy) FetchBody(core *metadata.Core, mode Mode) (Body, error) {
	data, err := fsx.ReadCapped(core.AbsolutePath, s.limits.PartialTextMax)
	if err != nil {
		return Body{}, err
	}
	text := string(data)

	if mode == ModeFull {
		return Body{Kind: BodyFullText, Text: text}, nil
	}

	body := Body{Kind: BodyPartialText}
	if isCSV(core.Extension) {
		if line, _, found := strings.Cut(text, "\n"); found || line != "" {
			body.CSVHeader = strings.TrimRight(line, "\r")
		}
	}

	lines := strings.Split(text, "\n")
	head, tail := s.limits.HeadLines, s.limits.TailLines
	if len(lines) <= head+tail {
		body.Text = text
		return body, nil
	}

	omitted := len(lines) - head - tail
	body.Truncation = fmt.Sprintf("... [%d lines omitted] ...", omitted)
	body.Text = strings.Join(lines[:head], "\n") + "\n" +
		body.Truncation + "\n" +
		strings.Join(lines[len(lines)-tail:], "\n")
	return body, nil
}

func isCSV(ext string) bool {
	return ext == ".csv" || ext == ".tsv"
}

// binaryStrategy attaches raw bytes when the model natively accepts
// the modality and the file fits the size cap.
type binaryStrategy struct {
	max      int64
	supports func(models.Capability) bool
}

func (s *binaryStrategy) ShouldSendBody(core *metadata.Core, cap models.Capability) bool {
	return s.supports(cap) && core.Size <= s.max
}

func (s *binaryStrategy) BodyMode(core *metadata.Core) Mode {
	return ModeFull
}

func (s *binaryStrategy) FetchBody(core *metadata.Core, mode Mode) (Body, error) {
	data, err := os.ReadFile(core.AbsolutePath)
	if err != nil {
		return Body{}, fmt.Errorf("read %s: %w", core.AbsolutePath, err)
	}
	return Body{
		Kind:      BodyFullBinary,
		Data:      data,
		MediaType: MediaType(core.Extension),
	}, nil
}

// metadataOnlyStrategy never sends bytes.
type metadataOnlyStrategy struct{}

func (metadataOnlyStrategy) ShouldSendBody(*metadata.Core, models.Capability) bool { return false }
func (metadataOnlyStrategy) BodyMode(*metadata.Core) Mode                          { return ModeFull }
func (metadataOnlyStrategy) FetchBody(*metadata.Core, Mode) (Body, error) {
	return Body{}, nil
}

// mediaTypeFallback covers extensions the host mime database may miss.
var mediaTypeFallback = map[string]string{
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// MediaType maps a file extension to a media type, defaulting to
// application/octet-stream.
func MediaType(ext string) string {
	ext = strings.ToLower(ext)
	if t := mime.TypeByExtension(ext); t != "" {
		// Strip parameters like "; charset=utf-8".
		if i := strings.Index(t, ";"); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	if t, ok := mediaTypeFallback[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
