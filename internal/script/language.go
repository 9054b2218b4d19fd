package script

import (
	"context"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// supportedLanguages is the closed set a detected code is validated
// against; anything else defaults to "en".
var supportedLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
	"nl": true, "ru": true, "zh": true, "ja": true, "ko": true, "ar": true,
	"hi": true, "tr": true, "pl": true, "sv": true, "vi": true, "id": true,
}

// DetectLanguage issues a single short gateway call returning a 2-letter
// code (§4.4 Stage B). Any failure, including an unrecognized code,
// defaults to "en".
func DetectLanguage(ctx context.Context, gw *llmgateway.Gateway, jobID, sample string) string {
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	prompt := "Identify the language of the following text. Respond with only the ISO 639-1 two-letter code, nothing else.\n\n" + sample

	result := gw.Generate(ctx, jobID, prompt, llmgateway.Config{
		Temperature: 0.0,
		MaxRetries:  2,
		Timeout:     20,
	}, llmgateway.Opts{})

	if !result.Success {
		return "en"
	}
	code := strings.ToLower(strings.TrimSpace(result.Response))
	if len(code) > 2 {
		code = code[:2]
	}
	if supportedLanguages[code] {
		return code
	}
	return "en"
}
