package animation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// ErrRefinementExhausted is returned when the adaptive loop exhausts its
// turns without every validator going green.
var ErrRefinementExhausted = errors.New("animation: refinement attempts exhausted")

// ValidationError is one structured finding from a Validate pass, carrying
// enough to drive classification, context selection, and (for spatial
// issues) severity.
type ValidationError struct {
	Message    string
	LineNumber int // 0 if unknown
	Spatial    *models.SpatialIssue
}

// Validator is the narrow injected contract over the renderer's internal
// checks (§1: renderer internals are out of scope for this engine). A
// Validate call runs static, runtime-preflight, and (only if runtime
// passes) spatial checks, stopping at the first category with errors.
type Validator interface {
	Validate(ctx context.Context, code string) ([]ValidationError, error)
}

// Refiner runs the adaptive fixer loop (§4.5.3).
type Refiner struct {
	Gateway         *llmgateway.Gateway
	JobID           string
	Validator       Validator
	MaxAttempts     int
	ExcerptRadius   int
	MaxExcerptLines int

	// LastErrors holds the most recent validation failures seen by Refine,
	// populated on every turn and left in place when Refine returns
	// ErrRefinementExhausted so a caller's full-rewrite fallback can seed
	// its prompt with concrete error context instead of guessing.
	LastErrors []ValidationError
}

// turnHistory is the compressed record of the last two turns included in
// the edit-request prompt.
type turnHistory struct {
	status   string
	strategy Strategy
	edits    int
	reason   string
}

// Refine runs up to MaxAttempts turns of validate -> classify -> select
// context -> prompt -> apply, returning the stabilized code on success.
func (r *Refiner) Refine(ctx context.Context, code string) (string, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var history []turnHistory
	current := code

	for turn := 0; turn < maxAttempts; turn++ {
		errs, err := r.Validator.Validate(ctx, current)
		if err != nil {
			return "", fmt.Errorf("animation: validator error: %w", err)
		}
		if len(errs) == 0 {
			return current, nil
		}
		r.LastErrors = errs

		primary := errs[0]
		strategy := Classify(primary.Message)
		excerpt := r.selectContext(current, errs)

		patchSchema := map[string]any{
			"type":     "object",
			"required": []any{"analysis", "edits"},
			"properties": map[string]any{
				"analysis": map[string]any{"type": "string"},
				"edits": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"search_text", "replacement_text"},
						"properties": map[string]any{
							"search_text":      map[string]any{"type": "string"},
							"replacement_text": map[string]any{"type": "string"},
						},
					},
				},
			},
		}

		prompt := buildRefinerPrompt(errs, strategy, excerpt, history)
		result := r.Gateway.Generate(ctx, r.JobID, prompt, llmgateway.Config{
			Temperature:      0.2,
			MaxRetries:       2,
			ResponseFormat:   llmgateway.ResponseJSON,
			ResponseSchema:   patchSchema,
			RequireJSONValid: true,
			Timeout:          60,
		}, llmgateway.Opts{})

		if !result.Success || result.ParsedJSON == nil {
			history = appendHistory(history, turnHistory{status: "failed", strategy: strategy, edits: 0, reason: "gateway call failed"})
			continue
		}

		edits := parseEdits(result.ParsedJSON)
		if len(edits) == 0 {
			history = appendHistory(history, turnHistory{status: "failed", strategy: strategy, edits: 0, reason: "empty edit set"})
			continue
		}
		if len(edits) > 10 {
			edits = edits[:10]
		}

		next, outcomes, ok := ApplyPatches(current, edits)
		applied := countApplied(outcomes)
		if !ok {
			reason := "no edit applied"
			if len(outcomes) > 0 {
				reason = outcomes[len(outcomes)-1].Reason
			}
			history = appendHistory(history, turnHistory{status: "failed", strategy: strategy, edits: applied, reason: reason})
			continue
		}

		current = next
		history = appendHistory(history, turnHistory{status: "applied", strategy: strategy, edits: applied, reason: ""})
	}

	return "", ErrRefinementExhausted
}

// LastErrorExcerpt renders LastErrors as a single block of text, trimmed to
// the last n characters like the renderer's own stderr excerpting
// (media.LastNBytes), for seeding the §4.5.3 full-rewrite fallback prompt.
func (r *Refiner) LastErrorExcerpt(n int) string {
	var b strings.Builder
	for _, e := range r.LastErrors {
		b.WriteString(e.Message)
		b.WriteString("\n")
	}
	s := b.String()
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func countApplied(outcomes []EditOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}

func appendHistory(history []turnHistory, h turnHistory) []turnHistory {
	history = append(history, h)
	if len(history) > 2 {
		history = history[len(history)-2:]
	}
	return history
}

// selectContext excerpts a configurable radius around each error's line
// number (merging overlapping ranges, capped at MaxExcerptLines), or
// head/tail slicing when line numbers are unavailable.
func (r *Refiner) selectContext(code string, errs []ValidationError) string {
	lines := strings.Split(code, "\n")
	radius := r.ExcerptRadius
	if radius <= 0 {
		radius = 6
	}
	maxLines := r.MaxExcerptLines
	if maxLines <= 0 {
		maxLines = 140
	}

	if len(lines) <= maxLines {
		return code
	}

	type rng = struct{ start, end int }
	var ranges []rng
	haveLineNumbers := false
	for _, e := range errs {
		if e.LineNumber <= 0 {
			continue
		}
		haveLineNumbers = true
		start := e.LineNumber - radius
		if start < 1 {
			start = 1
		}
		end := e.LineNumber + radius
		if end > len(lines) {
			end = len(lines)
		}
		ranges = append(ranges, rng{start, end})
	}

	if !haveLineNumbers {
		head := lines[:maxLines/2]
		tail := lines[len(lines)-maxLines/2:]
		return strings.Join(head, "\n") + "\n...\n" + strings.Join(tail, "\n")
	}

	merged := mergeRanges(ranges)
	var b strings.Builder
	total := 0
	for _, rg := range merged {
		if total >= maxLines {
			break
		}
		for i := rg.start; i <= rg.end && total < maxLines; i++ {
			b.WriteString(lines[i-1])
			b.WriteString("\n")
			total++
		}
		b.WriteString("...\n")
	}
	return b.String()
}

func mergeRanges(ranges []struct{ start, end int }) []struct{ start, end int } {
	if len(ranges) == 0 {
		return nil
	}
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].start < ranges[j-1].start; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
	var out []struct{ start, end int }
	cur := ranges[0]
	for _, r := range ranges[1:] {
		if r.start <= cur.end+1 {
			if r.end > cur.end {
				cur.end = r.end
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

func buildRefinerPrompt(errs []ValidationError, strategy Strategy, excerpt string, history []turnHistory) string {
	var b strings.Builder
	b.WriteString("The following code failed validation:\n")
	for _, e := range errs {
		b.WriteString("- " + e.Message + "\n")
	}
	b.WriteString(fmt.Sprintf("\nClassified strategy: %s\n", strategy))
	for _, h := range Hints(strategy) {
		b.WriteString("Hint: " + h + "\n")
	}
	if len(history) > 0 {
		b.WriteString("\nRecent turn history:\n")
		for _, h := range history {
			b.WriteString(fmt.Sprintf("- status=%s strategy=%s edits=%d reason=%q\n", h.status, h.strategy, h.edits, h.reason))
		}
	}
	b.WriteString("\nCode excerpt:\n" + excerpt)
	b.WriteString("\nPropose up to 10 surgical search/replace edits as structured JSON {analysis, edits:[{search_text, replacement_text}]}.\n")
	b.WriteString("Each search_text must match the excerpt's corresponding code exactly once.\n")
	return b.String()
}

func parseEdits(raw map[string]any) []models.Patch {
	editsRaw, ok := raw["edits"].([]any)
	if !ok {
		return nil
	}
	var out []models.Patch
	for _, e := range editsRaw {
		em, ok := e.(map[string]any)
		if !ok {
			continue
		}
		search, _ := em["search_text"].(string)
		replace, _ := em["replacement_text"].(string)
		if search == "" {
			continue
		}
		out = append(out, models.Patch{Search: search, Replace: replace})
	}
	return out
}
