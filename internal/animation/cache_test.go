package animation

import "testing"

func TestPlanCacheRoundTrip(t *testing.T) {
	c := NewPlanCache()
	key := Key("job-1", "sec-1", "narration text", "default", 30.0)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected empty cache to miss")
	}
	plan := &Plan{}
	c.Put(key, plan)
	got, ok := c.Get(key)
	if !ok || got != plan {
		t.Fatalf("expected cache hit returning the stored plan")
	}
}

func TestKeyChangesWithNarration(t *testing.T) {
	a := Key("job-1", "sec-1", "one narration", "default", 30.0)
	b := Key("job-1", "sec-1", "different narration", "default", 30.0)
	if a == b {
		t.Fatalf("expected differing narration to produce different keys")
	}
}

func TestKeyStableForIdenticalInputs(t *testing.T) {
	a := Key("job-1", "sec-1", "narration", "default", 30.0)
	b := Key("job-1", "sec-1", "narration", "default", 30.0)
	if a != b {
		t.Fatalf("expected identical inputs to produce identical keys")
	}
}

func TestQCWhitelistAllow(t *testing.T) {
	w := NewQCWhitelist()
	key := IssueKey("sec-1", 3, "object slightly outside safe bounds")
	if w.IsAllowed(key) {
		t.Fatalf("expected fresh whitelist to reject unknown key")
	}
	w.Allow(key)
	if !w.IsAllowed(key) {
		t.Fatalf("expected key to be allowed after Allow")
	}
}
