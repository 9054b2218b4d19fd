package costs

import "testing"

func TestStaticPriceTableKnownModel(t *testing.T) {
	t.Parallel()
	pt := NewStaticPriceTable(1.0, 2.0)
	pt.SetRate("gemini-pro", 0.5, 1.5)

	got := pt.Price("gemini-pro", 2_000_000, 1_000_000)
	want := 2.0*0.5 + 1.0*1.5
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStaticPriceTableUnknownModelUsesDefault(t *testing.T) {
	t.Parallel()
	pt := NewStaticPriceTable(1.0, 2.0)
	got := pt.Price("unknown-model", 1_000_000, 1_000_000)
	want := 1.0 + 2.0
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStaticPriceTableZeroTokens(t *testing.T) {
	t.Parallel()
	pt := NewStaticPriceTable(5.0, 5.0)
	if got := pt.Price("any", 0, 0); got != 0 {
		t.Fatalf("expected zero cost for zero tokens, got %v", got)
	}
}
