package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// Material is the ingested representation of a source document, carrying
// either text ready to splice into prompts or binary parts to attach
// inline to a gateway call.
type Material struct {
	Text        string
	InlineParts []llmgateway.InlinePart
	PageCount   int
	TopicHint   string
	// SourcePath is the original on-disk document, kept so comprehensive
	// mode can slice section-scoped page ranges out of a PDF after
	// ingestion has already attached the whole (or representative) slice.
	SourcePath string
}

// Analyzer is the narrow shared contract of the three input kinds: PDF,
// image, text. Per §9's explicit "no deep inheritance" note, each kind is
// a flat type; there is no base class, only this one interface.
type Analyzer interface {
	Analyze(ctx context.Context, filePath, fileID string) (Material, error)
}

// defaultPageThreshold is the page count above which a PDF is sliced down
// to representative pages instead of attached whole, used when
// PDFAnalyzer.PageThreshold is not set.
const defaultPageThreshold = 15

// PDFAnalyzer attaches a PDF inline, slicing down to representative pages
// (first two, two around the middle, last two) when the document exceeds
// PageThreshold.
type PDFAnalyzer struct {
	PageThreshold int
	Inspector     PDFInspector
	Slicer        PDFSlicer
}

// PDFInspector reports a PDF's page count without rendering it.
type PDFInspector interface {
	PageCount(path string) (int, error)
}

// PDFSlicer extracts a subset of pages into a new, smaller PDF.
type PDFSlicer interface {
	SlicePages(path string, pages []int) ([]byte, error)
}

func (a *PDFAnalyzer) Analyze(ctx context.Context, filePath, fileID string) (Material, error) {
	threshold := a.PageThreshold
	if threshold <= 0 {
		threshold = defaultPageThreshold
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Material{}, fmt.Errorf("script: read pdf %s: %w", fileID, err)
	}

	pageCount := 0
	if a.Inspector != nil {
		if n, err := a.Inspector.PageCount(filePath); err == nil {
			pageCount = n
		}
	}

	if pageCount > threshold && a.Slicer != nil {
		pages := representativePages(pageCount)
		sliced, err := a.Slicer.SlicePages(filePath, pages)
		if err == nil {
			return Material{
				InlineParts: []llmgateway.InlinePart{{MIMEType: "application/pdf", Data: sliced}},
				PageCount:   pageCount,
				SourcePath:  filePath,
			}, nil
		}
	}

	return Material{
		InlineParts: []llmgateway.InlinePart{{MIMEType: "application/pdf", Data: data}},
		PageCount:   pageCount,
		SourcePath:  filePath,
	}, nil
}

// representativePages picks the first two, two around the middle, and the
// last two pages (1-indexed), deduplicated and in order.
func representativePages(pageCount int) []int {
	if pageCount <= 6 {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}
	mid := pageCount / 2
	candidates := []int{1, 2, mid, mid + 1, pageCount - 1, pageCount}
	seen := make(map[int]bool)
	var out []int
	for _, p := range candidates {
		if p < 1 || p > pageCount || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ImageAnalyzer attaches an image inline with its MIME type.
type ImageAnalyzer struct {
	MIMEType string
}

func (a *ImageAnalyzer) Analyze(ctx context.Context, filePath, fileID string) (Material, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Material{}, fmt.Errorf("script: read image %s: %w", fileID, err)
	}
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = mimeTypeFromExt(filePath)
	}
	return Material{InlineParts: []llmgateway.InlinePart{{MIMEType: mimeType, Data: data}}, SourcePath: filePath}, nil
}

func mimeTypeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// TextAnalyzer reads the source straight into memory.
type TextAnalyzer struct{}

func (a *TextAnalyzer) Analyze(ctx context.Context, filePath, fileID string) (Material, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Material{}, fmt.Errorf("script: read text %s: %w", fileID, err)
	}
	return Material{Text: string(data), SourcePath: filePath}, nil
}

// AnalyzerFor resolves the Analyzer for a file by its extension.
func AnalyzerFor(filePath string, pageThreshold int, inspector PDFInspector, slicer PDFSlicer) Analyzer {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return &PDFAnalyzer{PageThreshold: pageThreshold, Inspector: inspector, Slicer: slicer}
	case ".png", ".jpg", ".jpeg", ".webp":
		return &ImageAnalyzer{}
	default:
		return &TextAnalyzer{}
	}
}
