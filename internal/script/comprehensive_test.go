package script

import (
	"fmt"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

type recordingSlicer struct {
	pages []int
	fail  bool
}

func (s *recordingSlicer) SlicePages(path string, pages []int) ([]byte, error) {
	if s.fail {
		return nil, fmt.Errorf("slice failed")
	}
	s.pages = pages
	return []byte("sliced-pdf"), nil
}

func intPtr(n int) *int { return &n }

func TestSectionPDFSliceUsesOutlinePageRange(t *testing.T) {
	slicer := &recordingSlicer{}
	mat := Material{SourcePath: "/tmp/doc.pdf", PageCount: 20}
	os := models.OutlineSection{PageStart: intPtr(4), PageEnd: intPtr(6)}

	parts := sectionPDFSlice(mat, os, slicer)
	if len(parts) != 1 || parts[0].MIMEType != "application/pdf" {
		t.Fatalf("expected one PDF inline part, got %+v", parts)
	}
	if len(slicer.pages) != 3 || slicer.pages[0] != 4 || slicer.pages[2] != 6 {
		t.Fatalf("expected pages 4-6 requested, got %v", slicer.pages)
	}
}

func TestSectionPDFSliceClampsToDocumentBounds(t *testing.T) {
	slicer := &recordingSlicer{}
	mat := Material{SourcePath: "/tmp/doc.pdf", PageCount: 5}
	os := models.OutlineSection{PageStart: intPtr(0), PageEnd: intPtr(9)}

	if parts := sectionPDFSlice(mat, os, slicer); parts == nil {
		t.Fatalf("expected a clamped slice, got nil")
	}
	if slicer.pages[0] != 1 || slicer.pages[len(slicer.pages)-1] != 5 {
		t.Fatalf("expected pages clamped to 1-5, got %v", slicer.pages)
	}
}

func TestSectionPDFSliceFallsBackOnMissingRangeOrFailure(t *testing.T) {
	mat := Material{SourcePath: "/tmp/doc.pdf", PageCount: 20}

	if parts := sectionPDFSlice(mat, models.OutlineSection{}, &recordingSlicer{}); parts != nil {
		t.Fatalf("expected nil without a page range, got %+v", parts)
	}
	os := models.OutlineSection{PageStart: intPtr(2), PageEnd: intPtr(3)}
	if parts := sectionPDFSlice(mat, os, &recordingSlicer{fail: true}); parts != nil {
		t.Fatalf("expected nil when slicing fails, got %+v", parts)
	}
	if parts := sectionPDFSlice(Material{PageCount: 20}, os, &recordingSlicer{}); parts != nil {
		t.Fatalf("expected nil without a source path, got %+v", parts)
	}
	if parts := sectionPDFSlice(mat, os, nil); parts != nil {
		t.Fatalf("expected nil without a slicer, got %+v", parts)
	}
}
