// Package tts turns one narration segment's text into audio bytes for the
// Section Processor to write to disk and feed into the FFmpeg pipeline.
package tts

import "context"

// Result is one synthesis call's output.
type Result struct {
	Data     []byte
	MIMEType string
}

// Synthesizer is the narrow contract the Section Processor depends on;
// TTS provider internals are out of scope for this engine (§1).
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Result, error)
}
