package animation

import (
	"context"
	"strings"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// toolSessionProvider scripts a function-calling session: one
// write_manim_code call, an optional patch call, then a closing text turn.
type toolSessionProvider struct {
	calls   int
	patches bool
}

func (p *toolSessionProvider) Call(ctx context.Context, req llmgateway.ProviderRequest) (llmgateway.ProviderResponse, error) {
	p.calls++
	switch {
	case p.calls == 1:
		return llmgateway.ProviderResponse{
			FunctionCalls: []llmgateway.FunctionCall{{
				Name: toolWriteManimCode,
				Args: map[string]any{"code": "circle = Circle()\nself.play(Create(circle))"},
			}},
			ResolvedModel: "fake-model",
		}, nil
	case p.calls == 2 && p.patches:
		return llmgateway.ProviderResponse{
			FunctionCalls: []llmgateway.FunctionCall{{
				Name: toolPatchManimCode,
				Args: map[string]any{"search_text": "Circle()", "replacement_text": "Square()"},
			}},
			ResolvedModel: "fake-model",
		}, nil
	default:
		return llmgateway.ProviderResponse{Text: "submitted", ResolvedModel: "fake-model"}, nil
	}
}

func TestImplementViaToolsCapturesSubmittedCode(t *testing.T) {
	provider := &toolSessionProvider{}
	im := &Implementer{Gateway: llmgateway.New(provider, nil, nil), JobID: "job-1", UseTools: true}

	body, err := im.Implement(context.Background(), "Shapes", &Plan{}, "SceneShapes", 30, 0.5, 8)
	if err != nil {
		t.Fatalf("Implement: %v", err)
	}
	if !strings.Contains(body, "        circle = Circle()") {
		t.Fatalf("expected captured code reindented to 8 spaces, got %q", body)
	}
	if provider.calls != 2 {
		t.Fatalf("expected write turn + closing turn, got %d provider calls", provider.calls)
	}
}

func TestImplementViaToolsAppliesPatchTool(t *testing.T) {
	provider := &toolSessionProvider{patches: true}
	im := &Implementer{Gateway: llmgateway.New(provider, nil, nil), JobID: "job-1", UseTools: true}

	body, err := im.Implement(context.Background(), "Shapes", &Plan{}, "SceneShapes", 30, 0.5, 8)
	if err != nil {
		t.Fatalf("Implement: %v", err)
	}
	if !strings.Contains(body, "Square()") || strings.Contains(body, "Circle()") {
		t.Fatalf("expected patch_manim_code applied to the captured buffer, got %q", body)
	}
}

func TestCodeCapturePatchBeforeWriteFails(t *testing.T) {
	capture := &codeCapture{}
	handlers := capture.handlers()
	if _, err := handlers[toolPatchManimCode](context.Background(), map[string]any{"search_text": "a", "replacement_text": "b"}); err == nil {
		t.Fatalf("expected patching before any write to fail")
	}
}
