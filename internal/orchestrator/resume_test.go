package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bareyan/EduViz-sub001/internal/jobstore"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// TestGenerateVideoShortCircuitsOnExistingFinalVideo exercises the §4.7
// step 1 resume path end to end against a real jobstore.Store: a job
// directory that already has final_video.mp4 and a persisted script must
// be returned as "completed" without touching the script pipeline, the
// section processor, or the media runner (all left nil here — a panic
// would mean the short-circuit regressed into doing real work).
func TestGenerateVideoShortCircuitsOnExistingFinalVideo(t *testing.T) {
	root := t.TempDir()
	store, err := jobstore.New(root)
	require.NoError(t, err)

	handle, err := store.OpenJob("job-1")
	require.NoError(t, err)

	sc := &models.Script{
		Title: "Cached Run",
		Sections: []models.Section{
			{ID: "intro", Title: "Intro", Duration: 12.5},
		},
	}
	data, err := json.Marshal(sc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(handle.Dir, "script.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(handle.Dir, "final_video.mp4"), []byte("not-empty"), 0o644))

	orch := &Orchestrator{Store: store}
	result := orch.GenerateVideo(context.Background(), GenerateVideoParams{JobID: "job-1"})

	require.Equal(t, "completed", result.Status)
	require.Equal(t, filepath.Join(handle.Dir, "final_video.mp4"), result.VideoPath)
	require.Len(t, result.Chapters, 1)
	require.Equal(t, "Intro", result.Chapters[0].Title)
	require.InDelta(t, 12.5, result.TotalDuration, 0.001)
}

// TestGenerateVideoFailsOnInvalidJobID exercises P3 (path safety) through
// the orchestrator's public entry point: a traversal attempt must fail
// fast with no section work attempted and no directory created.
func TestGenerateVideoFailsOnInvalidJobID(t *testing.T) {
	root := t.TempDir()
	store, err := jobstore.New(root)
	require.NoError(t, err)

	orch := &Orchestrator{Store: store}
	result := orch.GenerateVideo(context.Background(), GenerateVideoParams{JobID: "../escape"})

	require.Equal(t, "failed", result.Status)
	require.NotEmpty(t, result.Error)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}
