package script

import (
	"math"
	"testing"
)

func TestSegmentNarrationTimelineContiguous(t *testing.T) {
	text := "This is sentence one. This is sentence two, a bit longer than the first one here. " +
		"This is sentence three, which is also reasonably long in content. Sentence four ends it."
	segments := SegmentNarration(text, SegmentConfig{TargetSeconds: 4, CharsPerSecond: 12.5, MinSeconds: 1})

	if len(segments) == 0 {
		t.Fatalf("expected at least one segment")
	}
	if segments[0].StartTime != 0 {
		t.Fatalf("first segment must start at 0, got %f", segments[0].StartTime)
	}
	for i := 1; i < len(segments); i++ {
		if math.Abs(segments[i].StartTime-segments[i-1].EndTime) > 1e-9 {
			t.Fatalf("segment %d start_time %f does not equal segment %d end_time %f", i, segments[i].StartTime, i-1, segments[i-1].EndTime)
		}
	}
	for i, s := range segments {
		if s.SegmentIndex != i {
			t.Fatalf("segment %d has index %d, want contiguous reassignment", i, s.SegmentIndex)
		}
	}
}

func TestSegmentNarrationRespectsPauseMarker(t *testing.T) {
	text := "First part of the narration here. [PAUSE] Second part of the narration starts fresh now."
	segments := SegmentNarration(text, SegmentConfig{TargetSeconds: 100, CharsPerSecond: 12.5, MinSeconds: 1})
	if len(segments) < 2 {
		t.Fatalf("expected [PAUSE] to force a split even though target duration was not reached, got %d segments", len(segments))
	}
}

func TestSegmentNarrationMergesShortSegments(t *testing.T) {
	text := "A. This is a much longer sentence that should not be merged away with the short one before it."
	segments := SegmentNarration(text, SegmentConfig{TargetSeconds: 1, CharsPerSecond: 12.5, MinSeconds: 3})
	for i, s := range segments {
		// Only the first segment has no predecessor to merge into.
		if i > 0 && s.EstimatedDuration < 3 {
			t.Fatalf("segment %d lasts %.2fs; segments after the first must be merged up to the 3s minimum", i, s.EstimatedDuration)
		}
	}
	if len(segments) == 0 {
		t.Fatalf("expected segments")
	}
}

func TestSegmentNarrationEnforcesHardCapMidSentence(t *testing.T) {
	// A single sentence of ~220 chars against a 10-second target
	// (targetChars=125, hardCapChars=187.5) must not be emitted whole.
	longSentence := "This single sentence deliberately runs on for quite a long while so that it alone, with no punctuation to offer an earlier boundary, would blow straight past both the target length and the hard cap if nothing forced a cut partway through it."
	segments := SegmentNarration(longSentence, SegmentConfig{TargetSeconds: 10, CharsPerSecond: 12.5, MinSeconds: 1})

	hardCapChars := 10 * 12.5 * 1.5
	for _, s := range segments {
		if float64(len(s.Text)) > hardCapChars+1 {
			t.Fatalf("expected every segment to respect the hard cap of %.0f chars, got %d: %q", hardCapChars, len(s.Text), s.Text)
		}
	}
	if len(segments) < 2 {
		t.Fatalf("expected the oversized sentence to be force-cut into multiple segments, got %d", len(segments))
	}
}

func TestSelectPassagesFallsBackToSlidingWindow(t *testing.T) {
	source := "Para one about rivers.\n\nPara two about mountains.\n\nPara three about oceans.\n\nPara four about deserts."
	got := SelectPassages(source, []string{"nonexistent", "keyword"}, 1, 4, 1000)
	if got == "" {
		t.Fatalf("expected sliding-window fallback to return something")
	}
}

func TestSelectPassagesScoresByOverlap(t *testing.T) {
	source := "Photosynthesis converts light energy into chemical energy.\n\nVolcanoes erupt molten rock called magma."
	got := SelectPassages(source, []string{"photosynthesis", "energy"}, 1, 2, 1000)
	if got == "" || !contains(got, "Photosynthesis") {
		t.Fatalf("expected the photosynthesis paragraph to be selected, got %q", got)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
