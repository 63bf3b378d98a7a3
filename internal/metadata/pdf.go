package metadata

import (
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// pdfExtractor reports page count for PDF documents.
type pdfExtractor struct{}

func (e *pdfExtractor) Name() string    { return "pdf" }
func (e *pdfExtractor) Available() bool { return true }

func (e *pdfExtractor) Extract(absPath string) (*Typed, error) {
	// Malformed PDFs make the parser panic; contain it so a corrupt
	// download degrades to core metadata instead of killing the job.
	defer func() { _ = recover() }()

	f, r, err := pdf.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	return &Typed{
		Kind: "pdf",
		Fields: []Field{
			{Key: "Pages", Value: strconv.Itoa(r.NumPage())},
		},
	}, nil
}
