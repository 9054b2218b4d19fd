package script

import (
	"context"
	"fmt"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// Mode selects overview (single-call) vs comprehensive (two-phase)
// generation.
type Mode string

const (
	ModeOverview       Mode = "overview"
	ModeComprehensive  Mode = "comprehensive"
)

// Pipeline runs Stage B through E of §4.4 over already-ingested material;
// Stage A (ingestion) is done beforehand by an Analyzer.
type Pipeline struct {
	Gateway       *llmgateway.Gateway
	Constraints   OverviewConstraints
	SegmentConfig SegmentConfig
	MaxOutlineAttempts int
	PDFSlicer     PDFSlicer
}

// Run takes the ingested material, detects language when none is given,
// dispatches to the requested
// mode, segments every section's narration, and returns the assembled
// Script. sourceText is the raw extracted text used for keyword-selected
// passages in comprehensive mode; it may be empty for image/PDF-only
// input.
func (p *Pipeline) Run(ctx context.Context, jobID string, mat Material, sourceText string, mode Mode, language, topicHint string) (*models.Script, error) {
	if language == "" {
		sample := sourceText
		if sample == "" {
			sample = topicHint
		}
		language = DetectLanguage(ctx, p.Gateway, jobID, sample)
	}

	var sections []SectionDraft
	var title, subjectArea, overview string
	var objectives []string

	switch mode {
	case ModeComprehensive:
		outline, err := GenerateOutline(ctx, p.Gateway, jobID, mat, language, topicHint, p.MaxOutlineAttempts)
		if err != nil {
			return nil, fmt.Errorf("script: comprehensive outline: %w", err)
		}
		title, subjectArea, overview, objectives = outline.Title, outline.SubjectArea, outline.Overview, outline.LearningObjectives
		sections, err = GenerateSections(ctx, p.Gateway, jobID, outline, mat, language, sourceText, p.PDFSlicer)
		if err != nil {
			return nil, fmt.Errorf("script: comprehensive sections: %w", err)
		}
	default:
		draft, err := GenerateOverview(ctx, p.Gateway, jobID, mat, language, topicHint, p.Constraints)
		if err != nil {
			return nil, fmt.Errorf("script: overview generation: %w", err)
		}
		title, subjectArea, overview, objectives = draft.Title, draft.SubjectArea, draft.Overview, draft.LearningObjectives
		sections = draft.Sections
	}

	script := &models.Script{
		Title:              title,
		SubjectArea:        subjectArea,
		Overview:           overview,
		LearningObjectives: objectives,
		Language:           language,
	}

	var totalDuration float64
	for _, sd := range sections {
		ttsNarration := normalizeForTTS(sd.Narration)
		segments := SegmentNarration(ttsNarration, p.SegmentConfig)

		section := models.Section{
			ID:              sd.ID,
			Title:           sd.Title,
			Narration:       sd.Narration,
			TTSNarration:    ttsNarration,
			Segments:        segments,
			SourcePageStart: sd.SourcePageStart,
			SourcePageEnd:   sd.SourcePageEnd,
		}
		for _, seg := range segments {
			totalDuration += seg.EndTime - seg.StartTime
		}
		script.Sections = append(script.Sections, section)
	}
	script.TotalDuration = totalDuration

	return script, nil
}

// normalizeForTTS is the pronunciation-normalization pass over narration
// text before segmentation; the engine treats the substitution table as
// opaque configuration rather than hardcoding locale rules here, so this
// is currently the identity transform with the hook left in place for
// callers that need to inject a normalizer.
func normalizeForTTS(narration string) string {
	return narration
}
