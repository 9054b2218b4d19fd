package jobstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenJobRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.OpenJob("../escape"); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := store.OpenJob("a/b"); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID for embedded separator, got %v", err)
	}
	if _, err := store.OpenJob(""); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID for empty id, got %v", err)
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("traversal attempt must produce no filesystem side effect, found %d entries", len(entries))
	}
}

func TestOpenJobCreatesTree(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := store.OpenJob("job-123")
	if err != nil {
		t.Fatalf("OpenJob: %v", err)
	}
	if _, err := os.Stat(h.SectionsDir); err != nil {
		t.Fatalf("sections dir not created: %v", err)
	}
}

func TestWriteStatusAtomic(t *testing.T) {
	dir := t.TempDir()
	if err := WriteStatus(dir, StatusGeneratingAudio, ""); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	status, detail, err := ReadStatus(dir)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status != StatusGeneratingAudio || detail != "" {
		t.Fatalf("got status=%q detail=%q", status, detail)
	}

	if err := WriteStatus(dir, StatusFixingError, "name_error: XYZ undefined"); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	status, detail, err = ReadStatus(dir)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status != StatusFixingError || detail != "name_error: XYZ undefined" {
		t.Fatalf("got status=%q detail=%q", status, detail)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestInspectReconstructsCompletionFromDisk(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := store.OpenJob("job-abc")
	if err != nil {
		t.Fatalf("OpenJob: %v", err)
	}

	dir0, err := h.SectionDir(0)
	if err != nil {
		t.Fatalf("SectionDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir0, "final_section.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.SectionDir(1); err != nil {
		t.Fatalf("SectionDir: %v", err)
	}

	state, err := h.Inspect()
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(state.CompletedSections) != 1 || state.CompletedSections[0] != 0 {
		t.Fatalf("expected only section 0 complete, got %v", state.CompletedSections)
	}
}

func TestCleanupKeepFinalOnly(t *testing.T) {
	dir := t.TempDir()
	keep := []string{"final_video.mp4", "video_info.json", "error_info.json"}
	for _, name := range keep {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "translations", "fr"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sections", "0"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(dir, CleanupKeepFinalOnly); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	for _, name := range keep {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s should survive cleanup: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "translations")); err != nil {
		t.Fatalf("translations should survive cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sections")); !os.IsNotExist(err) {
		t.Fatalf("sections should be removed by cleanup")
	}
}
