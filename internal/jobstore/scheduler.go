package jobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionPolicy holds the per-terminal-status TTLs the periodic cleanup
// scheduler enforces. Active-status directories are never deleted.
type RetentionPolicy struct {
	CompletedHours   int
	FailedHours      int
	OrphanHours      int
	MaxDeletionsPass int
	Interval         time.Duration
}

// CleanupScheduler periodically scans Root for terminal-status job
// directories older than their policy's TTL and deletes them, capped at
// MaxDeletionsPass per pass.
type CleanupScheduler struct {
	Store  *Store
	Policy RetentionPolicy
}

// Run blocks, ticking every Policy.Interval until ctx is cancelled.
func (c *CleanupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *CleanupScheduler) runOnce() {
	entries, err := os.ReadDir(c.Store.Root)
	if err != nil {
		log.Warn().Err(err).Msg("jobstore: cleanup scan failed")
		return
	}

	deletions := 0
	for _, e := range entries {
		if deletions >= c.Policy.MaxDeletionsPass {
			log.Info().Int("deletions", deletions).Msg("jobstore: cleanup pass hit max deletions cap")
			return
		}
		if !e.IsDir() {
			continue
		}
		jobDir := filepath.Join(c.Store.Root, e.Name())
		status, age, ok := c.terminalStatus(jobDir)
		if !ok {
			continue
		}
		ttl := time.Duration(c.ttlHoursFor(status)) * time.Hour
		if age < ttl {
			continue
		}
		if err := Cleanup(jobDir, CleanupExpired); err != nil {
			log.Warn().Err(err).Str("job_dir", jobDir).Msg("jobstore: cleanup delete failed")
			continue
		}
		deletions++
	}
}

// terminalStatus reports the job's terminal classification (completed,
// failed, orphan) and its age, derived from filesystem evidence only. A
// job with no final video and no section activity in its age window is
// treated as orphan.
func (c *CleanupScheduler) terminalStatus(jobDir string) (status string, age time.Duration, ok bool) {
	info, err := os.Stat(jobDir)
	if err != nil {
		return "", 0, false
	}
	age = time.Since(info.ModTime())

	if _, err := os.Stat(filepath.Join(jobDir, "final_video.mp4")); err == nil {
		return "completed", age, true
	}
	if _, err := os.Stat(filepath.Join(jobDir, "error_info.json")); err == nil {
		return "failed", age, true
	}
	if hasAnyActiveSection(jobDir) {
		return "", age, false
	}
	return "orphan", age, true
}

func hasAnyActiveSection(jobDir string) bool {
	sectionsDir := filepath.Join(jobDir, "sections")
	entries, err := os.ReadDir(sectionsDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		status, _, err := ReadStatus(filepath.Join(sectionsDir, e.Name()))
		if err != nil {
			continue
		}
		if status != StatusCompleted && !strings.HasPrefix(status, "#") {
			return true
		}
	}
	return false
}

func (c *CleanupScheduler) ttlHoursFor(status string) int {
	switch status {
	case "completed":
		return c.Policy.CompletedHours
	case "failed":
		return c.Policy.FailedHours
	default:
		return c.Policy.OrphanHours
	}
}
