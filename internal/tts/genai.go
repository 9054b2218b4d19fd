package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	genai "google.golang.org/genai"
)

// GenaiSynthesizer uses the unified genai SDK's streaming audio modality
// (gemini TTS models respond with raw PCM, which is converted to WAV).
type GenaiSynthesizer struct {
	Client *genai.Client
	Model  string
}

// NewGenaiSynthesizer wraps client for TTS using model (e.g.
// "gemini-2.5-pro-preview-tts").
func NewGenaiSynthesizer(client *genai.Client, model string) *GenaiSynthesizer {
	return &GenaiSynthesizer{Client: client, Model: model}
}

// Synthesize calls the model with ResponseModalities: ["audio"] and a
// prebuilt voice, collecting streamed inline audio data into a single
// buffer, converting raw PCM to WAV when needed.
func (s *GenaiSynthesizer) Synthesize(ctx context.Context, text, voice string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("tts: empty narration text")
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(text)},
		},
	}

	temp := float32(1.0)
	cfg := &genai.GenerateContentConfig{
		Temperature:        &temp,
		ResponseModalities: []string{"audio"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	log.Debug().Str("model", s.Model).Str("voice", voice).Msg("tts: synthesizing narration segment")

	var buf bytes.Buffer
	var lastMimeType string
	for resp, err := range s.Client.Models.GenerateContentStream(ctx, s.Model, contents, cfg) {
		if err != nil {
			return Result{}, fmt.Errorf("tts: stream error: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				buf.Write(part.InlineData.Data)
				if part.InlineData.MIMEType != "" {
					lastMimeType = part.InlineData.MIMEType
				}
			}
		}
	}

	if buf.Len() == 0 {
		return Result{}, fmt.Errorf("tts: no audio data returned")
	}

	data := buf.Bytes()
	mimeType := lastMimeType
	if strings.HasPrefix(lastMimeType, "audio/L") {
		data = pcmToWAV(data, lastMimeType)
		mimeType = "audio/wav"
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	return Result{Data: data, MIMEType: mimeType}, nil
}

var sampleBitsRe = regexp.MustCompile(`audio/L(\d+)`)

type pcmParams struct {
	bitsPerSample int
	rate          int
}

func parsePCMMimeType(mimeType string) pcmParams {
	params := pcmParams{bitsPerSample: 16, rate: 24000}
	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(strings.ToLower(part), "rate="):
			if rate, err := strconv.Atoi(strings.Split(part, "=")[1]); err == nil {
				params.rate = rate
			}
		case strings.HasPrefix(part, "audio/L"):
			if m := sampleBitsRe.FindStringSubmatch(part); len(m) > 1 {
				if bits, err := strconv.Atoi(m[1]); err == nil {
					params.bitsPerSample = bits
				}
			}
		}
	}
	return params
}

// pcmToWAV wraps raw PCM audio data in a minimal WAV container.
func pcmToWAV(pcm []byte, mimeType string) []byte {
	p := parsePCMMimeType(mimeType)
	numChannels := 1
	bytesPerSample := p.bitsPerSample / 8
	blockAlign := numChannels * bytesPerSample
	byteRate := p.rate * blockAlign
	dataSize := len(pcm)
	chunkSize := 36 + dataSize

	header := new(bytes.Buffer)
	binary.Write(header, binary.LittleEndian, []byte("RIFF"))
	binary.Write(header, binary.LittleEndian, uint32(chunkSize))
	binary.Write(header, binary.LittleEndian, []byte("WAVE"))
	binary.Write(header, binary.LittleEndian, []byte("fmt "))
	binary.Write(header, binary.LittleEndian, uint32(16))
	binary.Write(header, binary.LittleEndian, uint16(1))
	binary.Write(header, binary.LittleEndian, uint16(numChannels))
	binary.Write(header, binary.LittleEndian, uint32(p.rate))
	binary.Write(header, binary.LittleEndian, uint32(byteRate))
	binary.Write(header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(header, binary.LittleEndian, uint16(p.bitsPerSample))
	binary.Write(header, binary.LittleEndian, []byte("data"))
	binary.Write(header, binary.LittleEndian, uint32(dataSize))

	return append(header.Bytes(), pcm...)
}
