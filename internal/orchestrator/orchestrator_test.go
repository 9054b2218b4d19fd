package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

func TestAggregateDropsFailedAndKeepsOrder(t *testing.T) {
	results := []SectionResult{
		{Index: 0, Section: models.Section{Title: "Intro"}, VideoPath: "v0.mp4", AudioPath: "a0.mp3", Duration: 10},
		{Index: 1, Section: models.Section{Title: "Broken"}, Error: errFake("render failed")},
		{Index: 2, Section: models.Section{Title: "Outro"}, VideoPath: "v2.mp4", AudioPath: "a2.mp3", Duration: 5},
	}

	included, chapters, sections, total := aggregate(results)

	if len(included) != 2 {
		t.Fatalf("expected 2 included sections, got %d", len(included))
	}
	if included[0].Section.Title != "Intro" || included[1].Section.Title != "Outro" {
		t.Fatalf("expected script order preserved, got %+v", included)
	}
	if !sections[1].Abandoned {
		t.Fatalf("expected failed section marked abandoned")
	}
	if total != 15 {
		t.Fatalf("expected total duration 15, got %f", total)
	}
	if len(chapters) != 2 || chapters[0].StartTime != 0 || chapters[1].StartTime != 10 {
		t.Fatalf("expected cumulative chapter timeline, got %+v", chapters)
	}
}

func TestAggregateVideoOnlyIsTolerated(t *testing.T) {
	results := []SectionResult{
		{Index: 0, Section: models.Section{Title: "Silent"}, VideoPath: "v0.mp4", AudioPath: "", Duration: 8},
	}
	included, chapters, _, total := aggregate(results)
	if len(included) != 1 {
		t.Fatalf("expected video-only section tolerated, got %d included", len(included))
	}
	if total != 8 || len(chapters) != 1 {
		t.Fatalf("expected one chapter totaling 8s, got total=%f chapters=%+v", total, chapters)
	}
}

func TestAggregateAllAbandonedYieldsNoneIncluded(t *testing.T) {
	results := []SectionResult{
		{Index: 0, Section: models.Section{Title: "A"}, Error: errFake("fail")},
		{Index: 1, Section: models.Section{Title: "B"}, Error: errFake("fail")},
	}
	included, chapters, sections, total := aggregate(results)
	if len(included) != 0 || len(chapters) != 0 || total != 0 {
		t.Fatalf("expected nothing included, got included=%d chapters=%d total=%f", len(included), len(chapters), total)
	}
	for _, s := range sections {
		if !s.Abandoned {
			t.Fatalf("expected every section abandoned")
		}
	}
}

func TestCachedSectionResultRequiresNonEmptyFinalArtifact(t *testing.T) {
	dir := t.TempDir()
	if _, ok := cachedSectionResult(0, models.Section{}, dir); ok {
		t.Fatalf("expected miss when final_section.mp4 is absent")
	}

	finalPath := filepath.Join(dir, "final_section.mp4")
	if err := os.WriteFile(finalPath, []byte("not actually empty"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, ok := cachedSectionResult(3, models.Section{Title: "Cached"}, dir)
	if !ok {
		t.Fatalf("expected hit once final_section.mp4 exists")
	}
	if r.Index != 3 || !r.Cached || r.VideoPath != finalPath {
		t.Fatalf("unexpected cached result: %+v", r)
	}
}

func TestFileNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	nonEmpty := filepath.Join(dir, "full")
	os.WriteFile(empty, nil, 0o644)
	os.WriteFile(nonEmpty, []byte("x"), 0o644)

	if fileNonEmpty(empty) {
		t.Errorf("expected empty file to report false")
	}
	if !fileNonEmpty(nonEmpty) {
		t.Errorf("expected non-empty file to report true")
	}
	if fileNonEmpty(filepath.Join(dir, "missing")) {
		t.Errorf("expected missing file to report false")
	}
}

func TestPersistScriptRoundTrips(t *testing.T) {
	dir := t.TempDir()
	sc := &models.Script{Title: "My Script", Sections: []models.Section{{ID: "s1", Title: "One"}}}

	if err := persistScript(dir, sc); err != nil {
		t.Fatalf("persistScript: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "script.json"))
	if err != nil {
		t.Fatalf("read script.json: %v", err)
	}
	var got models.Script
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Title != sc.Title || len(got.Sections) != 1 || got.Sections[0].ID != "s1" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "script.json" {
			t.Fatalf("expected only script.json to remain (no leftover temp file), found %q", e.Name())
		}
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
