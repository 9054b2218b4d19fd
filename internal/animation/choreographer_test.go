package animation

import (
	"context"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// countingPlanProvider returns a minimal valid plan response and counts calls.
type countingPlanProvider struct{ calls int }

func (p *countingPlanProvider) Call(ctx context.Context, req llmgateway.ProviderRequest) (llmgateway.ProviderResponse, error) {
	p.calls++
	return llmgateway.ProviderResponse{
		Text:          `{"scene": {}, "objects": [], "timeline": [], "constraints": {}}`,
		ResolvedModel: "fake-model",
	}, nil
}

func TestChoreographerPlanCachesExactRerun(t *testing.T) {
	provider := &countingPlanProvider{}
	c := &Choreographer{Gateway: llmgateway.New(provider, nil, nil), JobID: "job-1", Cache: NewPlanCache()}
	in := ChoreographerInput{SectionID: "sec-1", Narration: "same narration", TargetDuration: 30}

	if _, err := c.Plan(context.Background(), in, 0.7); err != nil {
		t.Fatalf("first plan call failed: %v", err)
	}
	if _, err := c.Plan(context.Background(), in, 0.7); err != nil {
		t.Fatalf("second plan call failed: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected the second identical call to hit the cache, got %d provider calls", provider.calls)
	}
}

func TestChoreographerPlanSkipCacheForcesFreshCall(t *testing.T) {
	provider := &countingPlanProvider{}
	c := &Choreographer{Gateway: llmgateway.New(provider, nil, nil), JobID: "job-1", Cache: NewPlanCache()}
	in := ChoreographerInput{SectionID: "sec-1", Narration: "same narration", TargetDuration: 30}

	if _, err := c.Plan(context.Background(), in, 0.7); err != nil {
		t.Fatalf("first plan call failed: %v", err)
	}
	in.SkipCache = true
	if _, err := c.Plan(context.Background(), in, 0.9); err != nil {
		t.Fatalf("second plan call failed: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected SkipCache to force a fresh call, got %d provider calls", provider.calls)
	}
}
