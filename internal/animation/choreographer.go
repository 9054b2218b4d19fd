package animation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

var planSchema = map[string]any{
	"type":     "object",
	"required": []any{"scene", "objects", "timeline", "constraints"},
	"properties": map[string]any{
		"scene":       map[string]any{"type": "object"},
		"objects":     map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		"timeline":    map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		"constraints": map[string]any{"type": "object"},
	},
}

// compactPlanSchema is the shorter fallback shape used when both the
// strict-schema call and its schema-less retry have failed; it is written
// into the compact prompt, not enforced as a response schema.
var compactPlanSchema = map[string]any{
	"type":     "object",
	"required": []any{"objects", "timeline"},
	"properties": map[string]any{
		"objects":  map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		"timeline": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
	},
}

// ChoreographerInput is a section's worth of context the Choreographer
// needs to produce a plan.
type ChoreographerInput struct {
	SectionID      string
	Title          string
	Narration      string
	Segments       []models.NarrationSegment
	TargetDuration float64
	StyleTag       string
	Language       string
	VisualHints    string
	SupportingData []models.SupportingDatum
	// SchemaIncompatible skips the schema attempt entirely when the
	// configured model is known not to support response_schema.
	SchemaIncompatible bool
	// SkipCache forces a fresh plan even when the Choreographer has a Cache
	// configured, for a section being deliberately re-planned after a prior
	// attempt failed downstream.
	SkipCache bool
}

// Choreographer produces a normalized Choreography Plan v2 for a section
// (§4.5.1).
type Choreographer struct {
	Gateway *llmgateway.Gateway
	JobID   string

	// Cache skips this call entirely on an exact-content re-run (same
	// job/section/narration/style/duration); nil disables it.
	Cache *PlanCache
}

// Plan runs the four-step algorithm: strict-schema call, schema-less retry
// whenever that call fails or its plan does not normalize, compact
// fallback, normalize-or-fail. A
// cache hit short-circuits all four steps; in.SkipCache forces a fresh
// generation (still populating the cache afterward) for a section the
// caller is deliberately retrying with a new temperature.
func (c *Choreographer) Plan(ctx context.Context, in ChoreographerInput, temperature float64) (*Plan, error) {
	var cacheKey string
	if c.Cache != nil {
		cacheKey = Key(c.JobID, in.SectionID, in.Narration, in.StyleTag, in.TargetDuration)
		if !in.SkipCache {
			if cached, ok := c.Cache.Get(cacheKey); ok {
				return cached, nil
			}
		}
	}

	plan, err := c.plan(ctx, in, temperature)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		c.Cache.Put(cacheKey, plan)
	}
	return plan, nil
}

func (c *Choreographer) plan(ctx context.Context, in ChoreographerInput, temperature float64) (*Plan, error) {
	prompt := buildPlanPrompt(in, false)

	if !in.SchemaIncompatible {
		if raw, ok := c.callForPlan(ctx, prompt, planSchema, temperature); ok {
			if plan, err := Normalize(raw); err == nil {
				return plan, nil
			}
		}
	}

	// Step 2: retry once without schema enforcement (same prompt).
	if raw, ok := c.callForPlan(ctx, prompt, nil, temperature); ok {
		if plan, err := Normalize(raw); err == nil {
			return plan, nil
		}
	}

	// Step 3: compact fallback prompt, shorter schema, no enforcement.
	compactPrompt := buildPlanPrompt(in, true)
	if shape, err := json.Marshal(compactPlanSchema); err == nil {
		compactPrompt += "JSON shape: " + string(shape) + "\n"
	}
	if raw, ok := c.callForPlan(ctx, compactPrompt, nil, temperature); ok {
		if plan, err := Normalize(raw); err == nil {
			return plan, nil
		}
	}

	return nil, ErrChoreographyExhausted
}

func (c *Choreographer) callForPlan(ctx context.Context, prompt string, schema map[string]any, temperature float64) (map[string]any, bool) {
	cfg := llmgateway.Config{
		Temperature:      temperature,
		MaxRetries:       2,
		ResponseFormat:   llmgateway.ResponseJSON,
		ResponseSchema:   schema,
		RequireJSONValid: schema != nil,
		Timeout:          60,
	}
	result := c.Gateway.Generate(ctx, c.JobID, prompt, cfg, llmgateway.Opts{})
	if !result.Success || result.ParsedJSON == nil {
		return nil, false
	}
	return result.ParsedJSON, true
}

func buildPlanPrompt(in ChoreographerInput, compact bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Design an animation choreography plan for section %q (language %q, style %q).\n", in.Title, in.Language, in.StyleTag))
	b.WriteString(fmt.Sprintf("Target duration: %.1f seconds across %d narration segments.\n", in.TargetDuration, len(in.Segments)))
	b.WriteString("Narration: " + in.Narration + "\n")
	if in.VisualHints != "" {
		b.WriteString("Visual hints: " + in.VisualHints + "\n")
	}
	for _, sd := range in.SupportingData {
		if sd.RecreateInVideo {
			b.WriteString("Must recreate visually: " + sd.Detail + "\n")
		}
	}
	if compact {
		b.WriteString("\nRespond with a minimal plan: just objects and a timeline; keep it small and unambiguous.\n")
	} else {
		b.WriteString("\nRespond with the full Choreography Plan v2 shape: scene, objects, timeline, constraints.\n")
	}
	return b.String()
}
