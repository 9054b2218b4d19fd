package animation

import (
	"context"
	"strings"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// fixedValidator reports errs for the first `remaining` calls, then clean.
type fixedValidator struct {
	remaining int
	errs      []ValidationError
	calls     int
}

func (f *fixedValidator) Validate(ctx context.Context, code string) ([]ValidationError, error) {
	f.calls++
	if f.remaining <= 0 {
		return nil, nil
	}
	f.remaining--
	return f.errs, nil
}

// alwaysFailValidator never goes clean, used to exercise exhaustion.
type alwaysFailValidator struct {
	errs []ValidationError
}

func (a *alwaysFailValidator) Validate(ctx context.Context, code string) ([]ValidationError, error) {
	return a.errs, nil
}

// editProvider is a fake llmgateway.Provider that always proposes one edit
// turning "broken" into "fixed".
type editProvider struct{ calls int }

func (e *editProvider) Call(ctx context.Context, req llmgateway.ProviderRequest) (llmgateway.ProviderResponse, error) {
	e.calls++
	return llmgateway.ProviderResponse{
		Text:          `{"analysis": "fix it", "edits": [{"search_text": "broken", "replacement_text": "fixed"}]}`,
		ResolvedModel: "fake-model",
	}, nil
}

func TestRefineAppliesEditAndConverges(t *testing.T) {
	gw := llmgateway.New(&editProvider{}, nil, nil)
	validator := &fixedValidator{remaining: 1, errs: []ValidationError{{Message: "NameError: broken is not defined", LineNumber: 1}}}
	r := &Refiner{Gateway: gw, JobID: "job-1", Validator: validator, MaxAttempts: 5}

	out, err := r.Refine(context.Background(), "x = broken\n")
	if err != nil {
		t.Fatalf("expected refine to converge, got err %v", err)
	}
	if out != "x = fixed\n" {
		t.Fatalf("expected edit applied, got %q", out)
	}
	if validator.calls != 2 {
		t.Fatalf("expected validate called once per turn plus the final clean check, got %d", validator.calls)
	}
}

func TestRefineExhaustsAttempts(t *testing.T) {
	gw := llmgateway.New(&editProvider{}, nil, nil)
	validator := &alwaysFailValidator{errs: []ValidationError{{Message: "NameError: broken is not defined", LineNumber: 1}}}
	r := &Refiner{Gateway: gw, JobID: "job-1", Validator: validator, MaxAttempts: 3}

	_, err := r.Refine(context.Background(), "x = nope\n")
	if err != ErrRefinementExhausted {
		t.Fatalf("expected ErrRefinementExhausted, got %v", err)
	}
}

func TestSelectContextReturnsFullCodeWhenShort(t *testing.T) {
	r := &Refiner{ExcerptRadius: 6, MaxExcerptLines: 140}
	code := "line1\nline2\nline3\n"
	got := r.selectContext(code, []ValidationError{{Message: "boom", LineNumber: 1}})
	if got != code {
		t.Fatalf("expected short code returned verbatim, got %q", got)
	}
}

func TestSelectContextHeadTailWithoutLineNumbers(t *testing.T) {
	r := &Refiner{ExcerptRadius: 2, MaxExcerptLines: 10}
	code := ""
	for i := 0; i < 200; i++ {
		code += "x\n"
	}
	got := r.selectContext(code, []ValidationError{{Message: "boom"}})
	if got == code {
		t.Fatalf("expected excerpt to be shorter than full code")
	}
}

func TestMergeRangesOverlapping(t *testing.T) {
	ranges := []struct{ start, end int }{{5, 10}, {8, 15}, {30, 40}}
	merged := mergeRanges(ranges)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged ranges, got %d: %+v", len(merged), merged)
	}
	if merged[0].start != 5 || merged[0].end != 15 {
		t.Fatalf("expected first merged range 5-15, got %+v", merged[0])
	}
}

func TestParseEditsExtractsSearchReplace(t *testing.T) {
	raw := map[string]any{
		"edits": []any{
			map[string]any{"search_text": "a = 1", "replacement_text": "a = 2"},
			map[string]any{"search_text": "", "replacement_text": "skipped"},
		},
	}
	edits := parseEdits(raw)
	if len(edits) != 1 {
		t.Fatalf("expected empty search_text to be skipped, got %d edits", len(edits))
	}
	if edits[0].Search != "a = 1" || edits[0].Replace != "a = 2" {
		t.Fatalf("unexpected edit: %+v", edits[0])
	}
}

func TestRefineExhaustionLeavesLastErrorsForFallback(t *testing.T) {
	gw := llmgateway.New(&editProvider{}, nil, nil)
	validator := &alwaysFailValidator{errs: []ValidationError{{Message: "ValueError: shape mismatch", LineNumber: 4}}}
	r := &Refiner{Gateway: gw, JobID: "job-1", Validator: validator, MaxAttempts: 2}

	if _, err := r.Refine(context.Background(), "x = nope\n"); err != ErrRefinementExhausted {
		t.Fatalf("expected ErrRefinementExhausted, got %v", err)
	}
	if len(r.LastErrors) != 1 || r.LastErrors[0].Message != "ValueError: shape mismatch" {
		t.Fatalf("expected LastErrors to retain the final turn's validation errors, got %+v", r.LastErrors)
	}
	if excerpt := r.LastErrorExcerpt(1500); excerpt == "" {
		t.Fatalf("expected a non-empty excerpt to seed the full-rewrite fallback")
	}
}

func TestLastErrorExcerptTrimsToTail(t *testing.T) {
	r := &Refiner{LastErrors: []ValidationError{{Message: strings.Repeat("a", 2000)}}}
	got := r.LastErrorExcerpt(100)
	if len(got) != 100 {
		t.Fatalf("expected excerpt trimmed to 100 bytes, got %d", len(got))
	}
}

func TestAppendHistoryCapsAtTwo(t *testing.T) {
	var h []turnHistory
	h = appendHistory(h, turnHistory{status: "a"})
	h = appendHistory(h, turnHistory{status: "b"})
	h = appendHistory(h, turnHistory{status: "c"})
	if len(h) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(h))
	}
	if h[0].status != "b" || h[1].status != "c" {
		t.Fatalf("expected oldest entry dropped, got %+v", h)
	}
}
