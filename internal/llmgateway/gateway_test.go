package llmgateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []ProviderRequest
	fail  int // number of leading calls to fail before succeeding
}

func (f *fakeProvider) Call(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.calls) <= f.fail {
		return ProviderResponse{}, fmt.Errorf("transient failure")
	}
	return ProviderResponse{Text: "ok", ResolvedModel: "test-model", InputTokens: 10, OutputTokens: 5}, nil
}

type memCostSink struct {
	mu      sync.Mutex
	records []float64
}

func (m *memCostSink) Record(ctx context.Context, jobID, model string, inputTokens, outputTokens int, dollars float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, dollars)
	return nil
}

type flatPrices struct{}

func (flatPrices) Price(model string, inputTokens, outputTokens int) float64 {
	return float64(inputTokens+outputTokens) * 0.001
}

func TestGenerateRetriesAndEscalatesTemperature(t *testing.T) {
	provider := &fakeProvider{fail: 2}
	gw := New(provider, nil, nil)

	result := gw.Generate(context.Background(), "job-1", "prompt", Config{MaxRetries: 3, Temperature: 0.2}, Opts{})
	if !result.Success {
		t.Fatalf("expected success after retries, got error %v", result.Error)
	}
	if len(provider.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(provider.calls))
	}
	for i, call := range provider.calls {
		want := 0.2 + float64(i)*0.15
		if diff := call.Temperature - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("attempt %d: expected temperature %.4f, got %.4f", i, want, call.Temperature)
		}
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	provider := &fakeProvider{fail: 10}
	gw := New(provider, nil, nil)

	result := gw.Generate(context.Background(), "job-1", "prompt", Config{MaxRetries: 2}, Opts{})
	if result.Success {
		t.Fatalf("expected failure")
	}
	if len(provider.calls) != 2 {
		t.Fatalf("expected exactly MaxRetries attempts, got %d", len(provider.calls))
	}
}

func TestCostMonotonicity(t *testing.T) {
	provider := &fakeProvider{}
	sink := &memCostSink{}
	gw := New(provider, sink, flatPrices{})

	for i := 0; i < 5; i++ {
		result := gw.Generate(context.Background(), "job-1", "prompt", Config{MaxRetries: 1}, Opts{})
		if !result.Success {
			t.Fatalf("call %d failed: %v", i, result.Error)
		}
	}

	var total float64
	for _, r := range sink.records {
		total += r
	}
	want := 5 * (10 + 5) * 0.001
	if total != want {
		t.Fatalf("expected total cost %.4f, got %.4f", want, total)
	}
}

func TestGenerateJSONResponse(t *testing.T) {
	provider := &jsonProvider{}
	gw := New(provider, nil, nil)

	schema := map[string]any{
		"type":     "object",
		"required": []any{"boundaries"},
		"properties": map[string]any{
			"boundaries": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
	}
	result := gw.Generate(context.Background(), "job-1", "prompt", Config{MaxRetries: 1, ResponseFormat: ResponseJSON, ResponseSchema: schema}, Opts{})
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Error)
	}
	if result.ParsedJSON == nil {
		t.Fatalf("expected parsed JSON")
	}
}

type jsonProvider struct{}

func (jsonProvider) Call(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	return ProviderResponse{Text: `{"boundaries": [10, 20]}`, ResolvedModel: "test-model"}, nil
}
