// Package animation implements the Choreographer, Implementer/Scaffolder,
// and Refiner that together produce a validated animation source file for
// one section.
package animation

import (
	"errors"
	"math"
)

// ErrChoreographyExhausted is raised when every plan-generation path
// (schema call, schema-less retry, compact fallback) has failed or the
// resulting plan cannot be normalized.
var ErrChoreographyExhausted = errors.New("animation: choreography plan attempts exhausted")

var defaultSafeBounds = SafeBounds{XMin: -5.5, XMax: 5.5, YMin: -3.0, YMax: 3.0}

// Plan is the normalized Choreography Plan v2 (§3).
type Plan struct {
	Scene       Scene             `json:"scene"`
	Objects     []Object          `json:"objects"`
	Timeline    []TimelineSegment `json:"timeline"`
	Constraints Constraints       `json:"constraints"`
}

type Scene struct {
	Mode       string     `json:"mode"` // "2D" or "3D"
	Camera     map[string]any `json:"camera,omitempty"`
	SafeBounds SafeBounds `json:"safe_bounds"`
}

type SafeBounds struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

type Object struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   Content   `json:"content"`
	Placement Placement `json:"placement"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

type Content struct {
	Text      string `json:"text,omitempty"`
	LaTeX     string `json:"latex,omitempty"`
	AssetPath string `json:"asset_path,omitempty"`
}

type Placement struct {
	Type     string    `json:"type"` // "absolute" or "relative"
	Absolute *Absolute `json:"absolute,omitempty"`
	Relative *Relative `json:"relative,omitempty"`
}

type Absolute struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Relative struct {
	RelativeTo string  `json:"relative_to"`
	Relation   string  `json:"relation"` // above, below, left_of, right_of
	Spacing    float64 `json:"spacing"`
}

type Lifecycle struct {
	AppearAt float64 `json:"appear_at"`
	RemoveAt float64 `json:"remove_at"`
}

type TimelineSegment struct {
	SegmentIndex int      `json:"segment_index"`
	StartAt      float64  `json:"start_at"`
	EndAt        float64  `json:"end_at"`
	Actions      []Action `json:"actions"`
}

type Action struct {
	At      float64 `json:"at"`
	Op      string  `json:"op"`
	Target  string  `json:"target"`
	Source  string  `json:"source,omitempty"`
	RunTime float64 `json:"run_time"`
}

type Constraints struct {
	Language           string   `json:"language"`
	MaxVisibleObjects  int      `json:"max_visible_objects"`
	ForbiddenConstants []string `json:"forbidden_constants"`
}

var validRelations = map[string]bool{"above": true, "below": true, "left_of": true, "right_of": true}

// Normalize accepts either a v2 plan or a legacy plan shape (both decoded
// into untyped JSON beforehand) and coerces it to the v2 shape: unknown
// relation strings default to "below"; unknown placement types default to
// "absolute" anchored at the origin; durations are quantized to
// milliseconds; missing safe_bounds default to {-5.5,5.5,-3.0,3.0}.
// Normalize is idempotent (P7): normalizing an already-normalized plan
// returns an equal plan.
func Normalize(raw map[string]any) (*Plan, error) {
	plan := &Plan{}

	sceneRaw, _ := raw["scene"].(map[string]any)
	plan.Scene = normalizeScene(sceneRaw)

	if objs, ok := raw["objects"].([]any); ok {
		for _, o := range objs {
			if om, ok := o.(map[string]any); ok {
				plan.Objects = append(plan.Objects, normalizeObject(om))
			}
		}
	}

	timelineRaw, hasTimeline := raw["timeline"].([]any)
	if !hasTimeline {
		// Legacy plans may call it "timeline_segments".
		timelineRaw, _ = raw["timeline_segments"].([]any)
	}
	for _, t := range timelineRaw {
		if tm, ok := t.(map[string]any); ok {
			plan.Timeline = append(plan.Timeline, normalizeTimelineSegment(tm))
		}
	}
	sortTimeline(plan.Timeline)

	constraintsRaw, _ := raw["constraints"].(map[string]any)
	plan.Constraints = normalizeConstraints(constraintsRaw)

	return plan, nil
}

func normalizeScene(raw map[string]any) Scene {
	scene := Scene{Mode: "2D", SafeBounds: defaultSafeBounds}
	if raw == nil {
		return scene
	}
	if mode, ok := raw["mode"].(string); ok && (mode == "2D" || mode == "3D") {
		scene.Mode = mode
	}
	if cam, ok := raw["camera"].(map[string]any); ok {
		scene.Camera = cam
	}
	if sb, ok := raw["safe_bounds"].(map[string]any); ok {
		scene.SafeBounds = SafeBounds{
			XMin: floatOr(sb["x_min"], defaultSafeBounds.XMin),
			XMax: floatOr(sb["x_max"], defaultSafeBounds.XMax),
			YMin: floatOr(sb["y_min"], defaultSafeBounds.YMin),
			YMax: floatOr(sb["y_max"], defaultSafeBounds.YMax),
		}
	}
	return scene
}

func normalizeObject(raw map[string]any) Object {
	obj := Object{
		ID:   stringOr(raw["id"], ""),
		Kind: stringOr(raw["kind"], "text"),
	}
	if c, ok := raw["content"].(map[string]any); ok {
		obj.Content = Content{
			Text:      stringOr(c["text"], ""),
			LaTeX:     stringOr(c["latex"], ""),
			AssetPath: stringOr(c["asset_path"], ""),
		}
	}
	obj.Placement = normalizePlacement(raw["placement"])
	if lc, ok := raw["lifecycle"].(map[string]any); ok {
		appear := quantizeMS(floatOr(lc["appear_at"], 0))
		remove := quantizeMS(floatOr(lc["remove_at"], appear))
		if remove < appear {
			remove = appear
		}
		obj.Lifecycle = Lifecycle{AppearAt: appear, RemoveAt: remove}
	}
	return obj
}

func normalizePlacement(raw any) Placement {
	pm, ok := raw.(map[string]any)
	if !ok {
		return Placement{Type: "absolute", Absolute: &Absolute{X: 0, Y: 0}}
	}
	t, _ := pm["type"].(string)
	if t == "relative" {
		if rel, ok := pm["relative"].(map[string]any); ok {
			relation := stringOr(rel["relation"], "below")
			if !validRelations[relation] {
				relation = "below"
			}
			return Placement{Type: "relative", Relative: &Relative{
				RelativeTo: stringOr(rel["relative_to"], ""),
				Relation:   relation,
				Spacing:    floatOr(rel["spacing"], 0.5),
			}}
		}
	}
	if abs, ok := pm["absolute"].(map[string]any); ok {
		return Placement{Type: "absolute", Absolute: &Absolute{X: floatOr(abs["x"], 0), Y: floatOr(abs["y"], 0)}}
	}
	return Placement{Type: "absolute", Absolute: &Absolute{X: 0, Y: 0}}
}

func normalizeTimelineSegment(raw map[string]any) TimelineSegment {
	seg := TimelineSegment{
		SegmentIndex: intOr(raw["segment_index"], 0),
		StartAt:      quantizeMS(floatOr(raw["start_at"], 0)),
		EndAt:        quantizeMS(floatOr(raw["end_at"], 0)),
	}
	if actions, ok := raw["actions"].([]any); ok {
		for _, a := range actions {
			if am, ok := a.(map[string]any); ok {
				seg.Actions = append(seg.Actions, Action{
					At:      quantizeMS(floatOr(am["at"], 0)),
					Op:      stringOr(am["op"], ""),
					Target:  stringOr(am["target"], ""),
					Source:  stringOr(am["source"], ""),
					RunTime: quantizeMS(floatOr(am["run_time"], 0.5)),
				})
			}
		}
	}
	return seg
}

func normalizeConstraints(raw map[string]any) Constraints {
	c := Constraints{Language: "en", MaxVisibleObjects: 6}
	if raw == nil {
		return c
	}
	if lang, ok := raw["language"].(string); ok && lang != "" {
		c.Language = lang
	}
	if mv := intOr(raw["max_visible_objects"], 0); mv > 0 {
		c.MaxVisibleObjects = mv
	}
	if forbidden, ok := raw["forbidden_constants"].([]any); ok {
		for _, f := range forbidden {
			if s, ok := f.(string); ok {
				c.ForbiddenConstants = append(c.ForbiddenConstants, s)
			}
		}
	}
	return c
}

func sortTimeline(segs []TimelineSegment) {
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j].StartAt < segs[j-1].StartAt; j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
}

func quantizeMS(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func floatOr(v any, fallback float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return fallback
	}
}

func intOr(v any, fallback int) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	default:
		return fallback
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}
