package script

import (
	"bytes"
	"fmt"
	"os"

	"github.com/unidoc/unipdf/v3/model"
)

// UnipdfInspector reports page counts via unipdf, grounding Stage A's
// page-threshold check in a real PDF parser rather than an external
// collaborator.
type UnipdfInspector struct{}

// PageCount opens path and returns its page count.
func (UnipdfInspector) PageCount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("script: read pdf for page count: %w", err)
	}
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("script: open pdf reader: %w", err)
	}
	n, err := reader.GetNumPages()
	if err != nil {
		return 0, fmt.Errorf("script: get num pages: %w", err)
	}
	return n, nil
}

// UnipdfSlicer extracts a subset of pages into a new, smaller PDF so an
// oversized document can be attached inline without its untouched pages.
type UnipdfSlicer struct{}

// SlicePages builds a new PDF containing only pages (1-indexed, in order)
// from the document at path.
func (UnipdfSlicer) SlicePages(path string, pages []int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read pdf for slicing: %w", err)
	}
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("script: open pdf reader: %w", err)
	}

	writer := model.NewPdfWriter()
	for _, p := range pages {
		page, err := reader.GetPage(p)
		if err != nil {
			return nil, fmt.Errorf("script: get page %d: %w", p, err)
		}
		if err := writer.AddPage(page); err != nil {
			return nil, fmt.Errorf("script: add page %d: %w", p, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.Write(&buf); err != nil {
		return nil, fmt.Errorf("script: write sliced pdf: %w", err)
	}
	return buf.Bytes(), nil
}
