package storage

import (
	"context"
	"fmt"
	"os"
)

// ArchiveFinalVideo uploads a job's final_video.mp4 to archival storage
// under a job-scoped key before the cleanup service deletes everything but
// the final artifact from the job store (§6 CLEANUP_MODE=keep_final_only).
// Archival is best-effort from the orchestrator's point of view: a failed
// upload is surfaced to the caller so it can decide whether to skip
// cleanup for this job, but it never changes the job's own completed
// status, which is determined solely by the on-disk artifact.
func (c *Client) ArchiveFinalVideo(ctx context.Context, jobID, videoPath string) (string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("storage: open final video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("storage: stat final video: %w", err)
	}

	key := fmt.Sprintf("jobs/%s/final_video.mp4", jobID)
	if err := c.Upload(ctx, key, f, "video/mp4", info.Size()); err != nil {
		return "", fmt.Errorf("storage: archive final video for job %s: %w", jobID, err)
	}
	return key, nil
}
