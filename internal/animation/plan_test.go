package animation

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestNormalizeDefaultsSafeBounds(t *testing.T) {
	plan, err := Normalize(decode(t, `{"objects":[],"timeline":[]}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if plan.Scene.SafeBounds != defaultSafeBounds {
		t.Fatalf("expected default safe bounds, got %+v", plan.Scene.SafeBounds)
	}
}

func TestNormalizeUnknownRelationDefaultsBelow(t *testing.T) {
	raw := decode(t, `{
		"objects": [{"id":"a","kind":"text","placement":{"type":"relative","relative":{"relative_to":"b","relation":"diagonal","spacing":0.5}}}],
		"timeline": []
	}`)
	plan, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if plan.Objects[0].Placement.Relative.Relation != "below" {
		t.Fatalf("expected unknown relation to default to below, got %q", plan.Objects[0].Placement.Relative.Relation)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := decode(t, `{
		"scene": {"mode":"3D","safe_bounds":{"x_min":-4,"x_max":4,"y_min":-2,"y_max":2}},
		"objects": [{"id":"a","kind":"text","content":{"text":"hi"},"placement":{"type":"absolute","absolute":{"x":1.23456,"y":2}},"lifecycle":{"appear_at":0.1,"remove_at":3.4}}],
		"timeline": [{"segment_index":1,"start_at":2,"end_at":4,"actions":[{"at":2,"op":"FadeIn","target":"a","run_time":0.5}]},
		             {"segment_index":0,"start_at":0,"end_at":2,"actions":[]}],
		"constraints": {"language":"en","max_visible_objects":4,"forbidden_constants":["PI"]}
	}`)

	first, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	firstJSON, _ := json.Marshal(first)

	var reencoded map[string]any
	json.Unmarshal(firstJSON, &reencoded)
	second, err := Normalize(reencoded)
	if err != nil {
		t.Fatalf("Normalize (second pass): %v", err)
	}
	secondJSON, _ := json.Marshal(second)

	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("normalize is not idempotent:\nfirst:  %s\nsecond: %s", firstJSON, secondJSON)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize is not idempotent (struct compare)")
	}
}

func TestNormalizeSortsTimelineSegments(t *testing.T) {
	raw := decode(t, `{"objects":[],"timeline":[{"segment_index":1,"start_at":5,"end_at":8},{"segment_index":0,"start_at":0,"end_at":5}]}`)
	plan, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if plan.Timeline[0].StartAt != 0 || plan.Timeline[1].StartAt != 5 {
		t.Fatalf("expected timeline sorted by start_at, got %+v", plan.Timeline)
	}
}

func TestNormalizeLegacyTimelineSegmentsKey(t *testing.T) {
	raw := decode(t, `{"objects":[],"timeline_segments":[{"segment_index":0,"start_at":0,"end_at":1}]}`)
	plan, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(plan.Timeline) != 1 {
		t.Fatalf("expected legacy timeline_segments key to be accepted, got %d segments", len(plan.Timeline))
	}
}
