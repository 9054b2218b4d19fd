package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/jobstore"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// A persisted script with zero sections is a fatal job-level failure; the
// first fatal cause must land in error_info.json so the retention
// scheduler classifies the directory as failed.
func TestGenerateVideoFailureWritesErrorInfo(t *testing.T) {
	root := t.TempDir()
	store, err := jobstore.New(root)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := store.OpenJob("job-empty")
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(&models.Script{Title: "Empty"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(handle.Dir, "script.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	orch := &Orchestrator{Store: store}
	result := orch.GenerateVideo(context.Background(), GenerateVideoParams{JobID: "job-empty", Resume: true})

	if result.Status != "failed" {
		t.Fatalf("expected failed status, got %q", result.Status)
	}

	raw, err := os.ReadFile(filepath.Join(handle.Dir, "error_info.json"))
	if err != nil {
		t.Fatalf("expected error_info.json written: %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("error_info.json not valid JSON: %v", err)
	}
	if info["job_id"] != "job-empty" || info["error"] == "" {
		t.Fatalf("unexpected error info: %+v", info)
	}
}

func TestWriteVideoInfoSurvivesKeepFinalOnlyCleanup(t *testing.T) {
	dir := t.TempDir()
	chapters := []models.Chapter{{SectionIndex: 0, Title: "Intro", Duration: 10}}
	if err := writeVideoInfo(dir, "job-1", filepath.Join(dir, "final_video.mp4"), chapters, 10, models.CostSummary{}); err != nil {
		t.Fatalf("writeVideoInfo: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := jobstore.Cleanup(dir, jobstore.CleanupKeepFinalOnly); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "video_info.json")); err != nil {
		t.Fatalf("expected video_info.json preserved by cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scratch.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected scratch file removed by cleanup")
	}
}
