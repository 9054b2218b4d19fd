package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

func TestSceneClassNameFromSnakeCaseID(t *testing.T) {
	cases := map[string]string{
		"intro":        "SceneIntro",
		"section_two":  "SceneSectionTwo",
		"step-3-recap": "SceneStep3Recap",
		"":             "SceneS",
	}
	for id, want := range cases {
		if got := sceneClassName(id); got != want {
			t.Errorf("sceneClassName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestSceneClassNameStartsWithLetter(t *testing.T) {
	got := sceneClassName("3d_view")
	if len(got) == 0 || !isLetter(rune(got[0])) {
		t.Fatalf("expected class name to start with a letter, got %q", got)
	}
}

func TestExtForMIME(t *testing.T) {
	if ext := extForMIME("audio/wav"); ext != ".wav" {
		t.Errorf("expected .wav, got %q", ext)
	}
	if ext := extForMIME("audio/mpeg"); ext != ".mp3" {
		t.Errorf("expected .mp3 fallback, got %q", ext)
	}
}

func TestValidOutputRejectsMissingFile(t *testing.T) {
	if ok, err := validOutput(""); ok || err == nil {
		t.Fatalf("expected rejection for empty path")
	}
	if ok, err := validOutput(filepath.Join(t.TempDir(), "missing.mp4")); ok || err == nil {
		t.Fatalf("expected rejection for nonexistent file")
	}
}

func TestValidOutputRejectsTinyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := validOutput(path); ok {
		t.Fatalf("expected rejection for a file under the size floor")
	}
}

func TestValidOutputAcceptsNonTrivialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.mp4")
	data := make([]byte, 2048)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err := validOutput(path)
	if !ok || err != nil {
		t.Fatalf("expected acceptance, got ok=%v err=%v", ok, err)
	}
}

func TestMaxRenderAttemptsOrFallback(t *testing.T) {
	p := &SectionProcessor{}
	if got := p.maxRenderAttemptsOr(2); got != 2 {
		t.Errorf("expected fallback 2, got %d", got)
	}
	p.MaxRenderAttempts = 5
	if got := p.maxRenderAttemptsOr(2); got != 5 {
		t.Errorf("expected configured 5, got %d", got)
	}
}

func TestRefinerMaxAttemptsOrFallback(t *testing.T) {
	p := &SectionProcessor{}
	if got := p.refinerMaxAttemptsOr(5); got != 5 {
		t.Errorf("expected fallback 5, got %d", got)
	}
	p.RefinerMaxAttempts = 3
	if got := p.refinerMaxAttemptsOr(5); got != 3 {
		t.Errorf("expected configured 3, got %d", got)
	}
}

func TestEstimatedSectionDurationFromSegments(t *testing.T) {
	section := models.Section{Segments: []models.NarrationSegment{
		{StartTime: 0, EndTime: 8},
		{StartTime: 8, EndTime: 20},
	}}
	if got := estimatedSectionDuration(section); got != 20 {
		t.Fatalf("expected the segment timeline's span, got %f", got)
	}
}

func TestEstimatedSectionDurationFallsBackToNarrationLength(t *testing.T) {
	section := models.Section{TTSNarration: strings.Repeat("a", 125)}
	if got := estimatedSectionDuration(section); got != 10 {
		t.Fatalf("expected 125 chars at 12.5 chars/s = 10s, got %f", got)
	}
}

func TestCopyArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rendered.mp4")
	dst := filepath.Join(dir, "final_section.mp4")
	if err := os.WriteFile(src, []byte("frames"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := copyArtifact(src, dst); err != nil {
		t.Fatalf("copyArtifact: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "frames" {
		t.Fatalf("got %q", string(data))
	}
}
