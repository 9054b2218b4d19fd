package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// OverviewConstraints are the post-validation bounds for single-call
// script generation (§4.4, overview mode).
type OverviewConstraints struct {
	MinSections       int
	MaxSections       int
	SectionMinWords   int
	SectionMaxWords   int
	MinDurationSeconds float64
	MaxDurationSeconds float64
	CharsPerSecond     float64
	RetryCount         int
}

var overviewSchema = map[string]any{
	"type":     "object",
	"required": []any{"title", "subject_area", "overview", "learning_objectives", "sections"},
	"properties": map[string]any{
		"title":               map[string]any{"type": "string"},
		"subject_area":        map[string]any{"type": "string"},
		"overview":            map[string]any{"type": "string"},
		"learning_objectives": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "title", "narration"},
				"properties": map[string]any{
					"id":        map[string]any{"type": "string"},
					"title":     map[string]any{"type": "string"},
					"narration": map[string]any{"type": "string"},
				},
			},
		},
	},
}

type overviewPayload struct {
	Title              string `json:"title"`
	SubjectArea        string `json:"subject_area"`
	Overview           string `json:"overview"`
	LearningObjectives []string `json:"learning_objectives"`
	Sections           []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Narration string `json:"narration"`
	} `json:"sections"`
}

// GenerateOverview produces a compact script (target ~3-7 minutes) in one
// gateway call, with a bounded number of corrective retries when
// constraints are violated (§4.4 overview mode).
func GenerateOverview(ctx context.Context, gw *llmgateway.Gateway, jobID string, mat Material, language, topicHint string, c OverviewConstraints) (*ScriptDraft, error) {
	if c.RetryCount <= 0 && c.RetryCount != 0 {
		c.RetryCount = 1
	}
	prompt := buildOverviewPrompt(mat, language, topicHint, c, nil)

	var draft *ScriptDraft
	var violations []string
	for attempt := 0; attempt <= c.RetryCount; attempt++ {
		result := gw.Generate(ctx, jobID, prompt, llmgateway.Config{
			Temperature:      0.4,
			MaxRetries:       3,
			ResponseFormat:   llmgateway.ResponseJSON,
			ResponseSchema:   overviewSchema,
			RequireJSONValid: true,
			Timeout:          90,
		}, llmgateway.Opts{InlineParts: mat.InlineParts})

		if !result.Success {
			return nil, fmt.Errorf("script: overview generation failed: %w", result.Error)
		}

		payload, err := parseOverviewPayload(result.ParsedJSON)
		if err != nil {
			return nil, fmt.Errorf("script: overview payload malformed: %w", err)
		}
		draft = payload

		violations = validateOverview(draft, c)
		if len(violations) == 0 {
			return draft, nil
		}
		if attempt < c.RetryCount {
			prompt = buildOverviewPrompt(mat, language, topicHint, c, violations)
		}
	}
	// Best-effort: return the last draft even though violations remain.
	return draft, nil
}

func buildOverviewPrompt(mat Material, language, topicHint string, c OverviewConstraints, violations []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Produce an educational video script in language %q.\n", language))
	b.WriteString(fmt.Sprintf("Target %d-%d sections, each narration between %d and %d words.\n", c.MinSections, c.MaxSections, c.SectionMinWords, c.SectionMaxWords))
	b.WriteString(fmt.Sprintf("Target total duration between %.0f and %.0f seconds at %.1f characters per second.\n", c.MinDurationSeconds, c.MaxDurationSeconds, c.CharsPerSecond))
	b.WriteString("Narration referencing figures, tables, or equations must be rewritten to be self-contained.\n")
	if topicHint != "" {
		b.WriteString("Topic hint: " + topicHint + "\n")
	}
	if mat.PageCount > 0 {
		b.WriteString(fmt.Sprintf("Source material is %d pages.\n", mat.PageCount))
	}
	if len(violations) > 0 {
		b.WriteString("\nThe previous attempt violated these constraints; fix them:\n")
		for _, v := range violations {
			b.WriteString("- " + v + "\n")
		}
	}
	if mat.Text != "" {
		b.WriteString("\nSource text:\n" + mat.Text)
	}
	return b.String()
}

func parseOverviewPayload(raw map[string]any) (*ScriptDraft, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var payload overviewPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	draft := &ScriptDraft{
		Title:              payload.Title,
		SubjectArea:        payload.SubjectArea,
		Overview:           payload.Overview,
		LearningObjectives: payload.LearningObjectives,
	}
	for _, s := range payload.Sections {
		draft.Sections = append(draft.Sections, SectionDraft{ID: s.ID, Title: s.Title, Narration: s.Narration})
	}
	return draft, nil
}

// validateOverview checks §4.4's overview-mode constraints and returns a
// human-readable violation per failure.
func validateOverview(draft *ScriptDraft, c OverviewConstraints) []string {
	var violations []string
	n := len(draft.Sections)
	if n < c.MinSections || n > c.MaxSections {
		violations = append(violations, fmt.Sprintf("section count %d must be between %d and %d", n, c.MinSections, c.MaxSections))
	}
	totalChars := 0
	for _, s := range draft.Sections {
		words := wordCount(s.Narration)
		if words < c.SectionMinWords || words > c.SectionMaxWords {
			violations = append(violations, fmt.Sprintf("section %q has %d words, must be between %d and %d", s.ID, words, c.SectionMinWords, c.SectionMaxWords))
		}
		totalChars += len(s.Narration)
	}
	if c.CharsPerSecond > 0 {
		totalDuration := float64(totalChars) / c.CharsPerSecond
		if totalDuration < c.MinDurationSeconds || totalDuration > c.MaxDurationSeconds {
			violations = append(violations, fmt.Sprintf("estimated total duration %.0fs must be between %.0f and %.0f", totalDuration, c.MinDurationSeconds, c.MaxDurationSeconds))
		}
	}
	return violations
}

// ScriptDraft and SectionDraft are the pre-segmentation intermediate shape
// shared by overview and comprehensive mode, before Stage D produces
// Narration Segments and the result is converted to models.Script.
type ScriptDraft struct {
	Title              string
	SubjectArea        string
	Overview           string
	LearningObjectives []string
	Sections           []SectionDraft
}

type SectionDraft struct {
	ID              string
	Title           string
	Narration       string
	SourcePageStart *int
	SourcePageEnd   *int
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
