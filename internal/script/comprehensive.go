package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

var outlineSchema = map[string]any{
	"type":     "object",
	"required": []any{"title", "subject_area", "overview", "learning_objectives", "sections_outline"},
	"properties": map[string]any{
		"title":               map[string]any{"type": "string"},
		"subject_area":        map[string]any{"type": "string"},
		"overview":            map[string]any{"type": "string"},
		"learning_objectives": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"sections_outline": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "title", "section_type", "content_to_cover"},
				"properties": map[string]any{
					"id":                         map[string]any{"type": "string"},
					"title":                      map[string]any{"type": "string"},
					"section_type":               map[string]any{"type": "string"},
					"content_to_cover":           map[string]any{"type": "string"},
					"key_points":                 map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"visual_type":                map[string]any{"type": "string"},
					"estimated_duration_seconds": map[string]any{"type": "number"},
				},
			},
		},
	},
}

// GenerateOutline is comprehensive-mode Stage C.1: one gateway call
// returning the sections_outline schema, with up to maxAttempts attempts
// in all (default 3) and a strict-JSON suffix appended to every attempt
// after the first.
func GenerateOutline(ctx context.Context, gw *llmgateway.Gateway, jobID string, mat Material, language, topicHint string, maxAttempts int) (*models.Outline, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	prompt := fmt.Sprintf("Produce a structured outline for an educational video in language %q covering the attached/source material. Break the material into coherent sections.", language)
	if topicHint != "" {
		prompt += " Topic hint: " + topicHint
	}
	if mat.Text != "" {
		prompt += "\n\nSource text:\n" + mat.Text
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p := prompt
		if attempt > 0 {
			p += "\n\nRespond with STRICT, complete, parseable JSON matching the schema exactly. Do not truncate."
		}
		result := gw.Generate(ctx, jobID, p, llmgateway.Config{
			Temperature:      0.3,
			MaxRetries:       2,
			ResponseFormat:   llmgateway.ResponseJSON,
			ResponseSchema:   outlineSchema,
			RequireJSONValid: true,
			Timeout:          90,
		}, llmgateway.Opts{InlineParts: mat.InlineParts})

		if !result.Success {
			lastErr = result.Error
			continue
		}
		data, err := json.Marshal(result.ParsedJSON)
		if err != nil {
			lastErr = err
			continue
		}
		var outline models.Outline
		if err := json.Unmarshal(data, &outline); err != nil {
			lastErr = err
			continue
		}
		if len(outline.SectionsOutline) == 0 {
			lastErr = fmt.Errorf("outline has no sections")
			continue
		}
		return &outline, nil
	}
	return nil, fmt.Errorf("script: outline generation exhausted %d attempts: %w", maxAttempts, lastErr)
}

// compressedTail produces the "titles + last ~200 chars" carry-forward
// context for comprehensive-mode sequential section generation.
func compressedTail(outline *models.Outline, generated []SectionDraft) string {
	var b strings.Builder
	b.WriteString("Outline (all sections): ")
	titles := make([]string, len(outline.SectionsOutline))
	for i, s := range outline.SectionsOutline {
		titles[i] = s.Title
	}
	b.WriteString(strings.Join(titles, "; "))
	b.WriteString("\n")

	n := len(generated)
	for i := maxInt(0, n-2); i < n; i++ {
		tail := generated[i].Narration
		if len(tail) > 200 {
			tail = tail[len(tail)-200:]
		}
		b.WriteString(fmt.Sprintf("Previous section %q ended: ...%s\n", generated[i].Title, tail))
	}
	return b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GenerateSections runs comprehensive-mode Stage C.2: sections are
// generated sequentially (not in parallel) to maintain narrative
// coherence, each call carrying the compressed tail of what came before
// plus keyword-selected passages from the source.
func GenerateSections(ctx context.Context, gw *llmgateway.Gateway, jobID string, outline *models.Outline, mat Material, language, sourceText string, pdfSlicer PDFSlicer) ([]SectionDraft, error) {
	generated := make([]SectionDraft, 0, len(outline.SectionsOutline))

	for i, os := range outline.SectionsOutline {
		position := "middle"
		if i == 0 {
			position = "first"
		} else if i == len(outline.SectionsOutline)-1 {
			position = "last"
		}

		var passages string
		if i > 0 && sourceText != "" {
			keywords := keywordsFromOutline(os.ContentToCover, os.KeyPoints)
			passages = SelectPassages(sourceText, keywords, i, len(outline.SectionsOutline), 3000)
		}

		prompt := buildSectionPrompt(os, position, compressedTail(outline, generated), passages, language)

		var inline []llmgateway.InlinePart
		if slice := sectionPDFSlice(mat, os, pdfSlicer); slice != nil {
			inline = slice
		} else if i == 0 {
			inline = mat.InlineParts
		}

		var draft *SectionDraft
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			result := gw.Generate(ctx, jobID, prompt, llmgateway.Config{
				Temperature: 0.5,
				MaxRetries:  1,
				Timeout:     60,
			}, llmgateway.Opts{InlineParts: inline})
			if !result.Success {
				lastErr = result.Error
				continue
			}
			narration := strings.TrimSpace(result.Response)
			if narration == "" {
				lastErr = fmt.Errorf("empty narration")
				continue
			}
			draft = &SectionDraft{ID: os.ID, Title: os.Title, Narration: narration, SourcePageStart: os.PageStart, SourcePageEnd: os.PageEnd}
			break
		}
		if draft == nil {
			return nil, fmt.Errorf("script: section %q generation failed after retries: %w", os.ID, lastErr)
		}
		generated = append(generated, *draft)
	}

	return generated, nil
}

// sectionPDFSlice builds the section-scoped inline attachment: only the
// outline's page range for this section, sliced out of the source PDF.
// Returns nil (caller falls back to whole-document parts for the first
// section, nothing for the rest) when slicing is disabled, the outline
// carries no page range, or the slice fails.
func sectionPDFSlice(mat Material, os models.OutlineSection, slicer PDFSlicer) []llmgateway.InlinePart {
	if slicer == nil || mat.SourcePath == "" || mat.PageCount <= 0 || os.PageStart == nil || os.PageEnd == nil {
		return nil
	}
	start, end := *os.PageStart, *os.PageEnd
	if start < 1 {
		start = 1
	}
	if end > mat.PageCount {
		end = mat.PageCount
	}
	if end < start {
		return nil
	}
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	data, err := slicer.SlicePages(mat.SourcePath, pages)
	if err != nil {
		return nil
	}
	return []llmgateway.InlinePart{{MIMEType: "application/pdf", Data: data}}
}

func buildSectionPrompt(os models.OutlineSection, position, tail, passages, language string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Write narration (in language %q) for the %s section titled %q.\n", language, position, os.Title))
	b.WriteString("Content to cover: " + os.ContentToCover + "\n")
	if len(os.KeyPoints) > 0 {
		b.WriteString("Key points: " + strings.Join(os.KeyPoints, "; ") + "\n")
	}
	b.WriteString(tail)
	if passages != "" {
		b.WriteString("\nRelevant source passages:\n" + passages)
	}
	b.WriteString("\nNarration must be self-contained: rewrite any reference to a figure, table, or equation so a listener without the visual can still follow.")
	return b.String()
}
