package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartfolderhq/smartfolder/internal/classify"
	"github.com/smartfolderhq/smartfolder/internal/metadata"
	"github.com/smartfolderhq/smartfolder/internal/models"
)

func makeCore(t *testing.T, name, content string, cat classify.Category) *metadata.Core {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	core, err := metadata.ExtractCore(path, name, cat)
	if err != nil {
		t.Fatal(err)
	}
	return core
}

func capFor(id string) models.Capability {
	c, _ := models.Lookup(id)
	return c
}

func TestSmallTextSendsFullBody(t *testing.T) {
	core := makeCore(t, "notes.txt", "line one\nline two\n", classify.TextDocument)
	file, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyFullText {
		t.Fatalf("kind = %v, want BodyFullText", file.Body.Kind)
	}
	if file.Body.Text != "line one\nline two\n" {
		t.Errorf("full body altered: %q", file.Body.Text)
	}
}

func TestMediumTextSendsHeadAndTail(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 400; i++ {
		// Pad every line so the file crosses the 10 KiB full-text line.
		fmt.Fprintf(&sb, "row %04d %s\n", i, strings.Repeat("x", 40))
	}
	core := makeCore(t, "big.txt", sb.String(), classify.TextDocument)
	if core.Size <= 10*1024 || core.Size > 100*1024 {
		t.Fatalf("test file size %d outside the partial window", core.Size)
	}

	file, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyPartialText {
		t.Fatalf("kind = %v, want BodyPartialText", file.Body.Kind)
	}
	if !strings.Contains(file.Body.Text, "row 0001") {
		t.Error("head missing")
	}
	if !strings.Contains(file.Body.Text, "row 0400") {
		t.Error("tail missing")
	}
	if !strings.Contains(file.Body.Text, "lines omitted") {
		t.Error("omission marker missing")
	}
	if strings.Contains(file.Body.Text, "row 0200") {
		t.Error("middle rows leaked into the excerpt")
	}
}

func TestCSVHeaderPreserved(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,name,email\n")
	for i := 0; i < 900; i++ {
		fmt.Fprintf(&sb, "%d,user%d,user%d@example.com%s\n", i, i, i, strings.Repeat(" ", 30))
	}
	core := makeCore(t, "notes.csv", sb.String(), classify.Data)
	if core.Size <= 10*1024 || core.Size > 100*1024 {
		t.Fatalf("csv size %d outside the partial window", core.Size)
	}

	file, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.CSVHeader != "id,name,email" {
		t.Errorf("csv header = %q", file.Body.CSVHeader)
	}
}

func TestHugeTextSendsNoBody(t *testing.T) {
	core := makeCore(t, "huge.txt", strings.Repeat("a\n", 120_000), classify.TextDocument)
	if core.Size <= 100*1024 {
		t.Fatalf("test file too small: %d", core.Size)
	}
	file, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyNone {
		t.Errorf("kind = %v, want BodyNone", file.Body.Kind)
	}
}

func TestImageBodyGatedByCapability(t *testing.T) {
	core := makeCore(t, "pic.png", "fake png bytes", classify.Image)

	withImage, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if withImage.Body.Kind != BodyFullBinary {
		t.Errorf("image-capable model should get bytes, kind = %v", withImage.Body.Kind)
	}
	if withImage.Body.MediaType != "image/png" {
		t.Errorf("media type = %q", withImage.Body.MediaType)
	}

	noImage := models.Capability{ID: "test/text-only", SupportsText: true}
	without, err := Provide(core, nil, noImage, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if without.Body.Kind != BodyNone {
		t.Errorf("text-only model should get no bytes, kind = %v", without.Body.Kind)
	}
}

func TestPDFAttachedForPreferredMiniModel(t *testing.T) {
	// A 2 MB PDF with the cheap default model still ships its bytes;
	// the gateway handles the file part.
	core := makeCore(t, "a.pdf", "%PDF-1.4 "+strings.Repeat("q", 2<<20), classify.PDF)

	file, err := Provide(core, nil, capFor("openai/gpt-4o-mini"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyFullBinary {
		t.Fatalf("kind = %v, want BodyFullBinary", file.Body.Kind)
	}
	if file.Body.MediaType != "application/pdf" {
		t.Errorf("media type = %q", file.Body.MediaType)
	}
	if int64(len(file.Body.Data)) != core.Size {
		t.Errorf("attached %d bytes, file has %d", len(file.Body.Data), core.Size)
	}
}

func TestPDFSizeCap(t *testing.T) {
	core := makeCore(t, "doc.pdf", "%PDF-1.4 tiny", classify.PDF)
	cap := capFor("anthropic/claude-sonnet-4")

	file, err := Provide(core, nil, cap, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyFullBinary {
		t.Errorf("small pdf should attach, kind = %v", file.Body.Kind)
	}

	// Shrink the cap below the file size: no body.
	file, err = Provide(core, nil, cap, Limits{PDFMax: 4})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyNone {
		t.Errorf("over-cap pdf should not attach, kind = %v", file.Body.Kind)
	}
}

func TestArchiveNeverSendsBody(t *testing.T) {
	core := makeCore(t, "x.zip", "PK fake", classify.Archive)
	file, err := Provide(core, nil, capFor("google/gemini-2.0-flash"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if file.Body.Kind != BodyNone {
		t.Errorf("archive body kind = %v, want BodyNone", file.Body.Kind)
	}
}

func TestToolsFor(t *testing.T) {
	if got := ToolsFor(classify.Code); len(got) != 9 {
		t.Errorf("text categories get all nine tools, got %d", len(got))
	}
	for _, id := range ToolsFor(classify.Image) {
		switch id {
		case "read_file", "grep", "sed", "head", "tail":
			t.Errorf("text tool %s offered for binary category", id)
		}
	}
}

func TestMediaType(t *testing.T) {
	if got := MediaType(".pdf"); got != "application/pdf" {
		t.Errorf("pdf = %q", got)
	}
	if got := MediaType(".xyzunknown"); got != "application/octet-stream" {
		t.Errorf("unknown = %q", got)
	}
	if got := MediaType(".txt"); strings.Contains(got, ";") {
		t.Errorf("parameters not stripped: %q", got)
	}
}
