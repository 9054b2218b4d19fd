package script

import (
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

// SegmentConfig drives Stage D narration segmentation.
type SegmentConfig struct {
	TargetSeconds  float64
	HardCapFactor  float64 // default 1.5
	MinSeconds     float64 // default 3
	CharsPerSecond float64
}

// pauseMarker is the explicit forced-split token narration may contain.
const pauseMarker = "[PAUSE]"

// SegmentNarration splits a section's tts_narration into Narration
// Segments at sentence boundaries, targeting TargetSeconds per segment
// with a hard cap of HardCapFactor*TargetSeconds, honoring [PAUSE] as a
// forced cut point, then merging any segment shorter than MinSeconds into
// the previous one and reassigning indices contiguously (§4.4 Stage D).
func SegmentNarration(text string, cfg SegmentConfig) []models.NarrationSegment {
	if cfg.HardCapFactor <= 0 {
		cfg.HardCapFactor = 1.5
	}
	if cfg.MinSeconds <= 0 {
		cfg.MinSeconds = 3
	}
	if cfg.CharsPerSecond <= 0 {
		cfg.CharsPerSecond = 12.5
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	targetChars := cfg.TargetSeconds * cfg.CharsPerSecond
	hardCapChars := targetChars * cfg.HardCapFactor

	chunks := splitOnPause(text)
	var rawSegments []string
	for _, chunk := range chunks {
		rawSegments = append(rawSegments, splitChunkBySentences(chunk, targetChars, hardCapChars)...)
	}

	rawSegments = mergeShort(rawSegments, cfg.MinSeconds*cfg.CharsPerSecond)

	segments := make([]models.NarrationSegment, 0, len(rawSegments))
	start := 0.0
	for i, s := range rawSegments {
		dur := float64(len([]rune(s))) / cfg.CharsPerSecond
		segments = append(segments, models.NarrationSegment{
			Text:              s,
			EstimatedDuration: dur,
			StartTime:         start,
			EndTime:           start + dur,
			SegmentIndex:      i,
		})
		start += dur
	}
	return segments
}

func splitOnPause(text string) []string {
	parts := strings.Split(text, pauseMarker)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitChunkBySentences greedily accumulates sentences until targetChars
// is reached, emitting a segment boundary at the nearest sentence ending;
// a segment is forced to close once it would exceed hardCapChars even
// mid-sentence.
func splitChunkBySentences(chunk string, targetChars, hardCapChars float64) []string {
	var segments []string
	pos := 0
	segStart := 0

	for pos < len(chunk) {
		next := nextSentenceBoundary(chunk, pos)
		if next < 0 {
			next = len(chunk)
		}
		segLen := float64(next - segStart)
		if segLen > hardCapChars {
			// The sentence ending at next would push this segment past the
			// hard cap on its own; force a cut at the cap even without a
			// sentence boundary, regardless of how short of target we are.
			cut := segStart + int(hardCapChars)
			if cut <= segStart {
				cut = next
			}
			if cut > len(chunk) {
				cut = len(chunk)
			}
			segments = append(segments, strings.TrimSpace(chunk[segStart:cut]))
			segStart = cut
			pos = cut
			continue
		}
		if segLen >= targetChars || next >= len(chunk) {
			segments = append(segments, strings.TrimSpace(chunk[segStart:next]))
			segStart = next
			pos = next
			continue
		}
		pos = next
	}
	if segStart < len(chunk) {
		tail := strings.TrimSpace(chunk[segStart:])
		if tail != "" {
			segments = append(segments, tail)
		}
	}

	out := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mergeShort merges any segment whose estimated length (in chars) is
// below minChars into the previous segment, reassigning nothing itself —
// callers reassign indices from the returned slice's order.
func mergeShort(segments []string, minChars float64) []string {
	if len(segments) <= 1 {
		return segments
	}
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if len(out) > 0 && float64(len([]rune(s))) < minChars {
			out[len(out)-1] = strings.TrimSpace(out[len(out)-1] + " " + s)
			continue
		}
		out = append(out, s)
	}
	return out
}
