// Package progress is the single source of truth for "what is done" per
// job while the job is in memory, backed by filesystem evidence on
// recovery.
package progress

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bareyan/EduViz-sub001/internal/jobstore"
)

// Callback is the external progress_callback(stage, percent, message).
type Callback func(stage string, percent int, message string)

// Publisher is the narrow upward edge to an external event sink (e.g. a
// message queue), used so progress can be observed without polling the
// filesystem. Publish is best-effort (it returns no error); ReportX calls
// it synchronously, after the callback.
type Publisher interface {
	Publish(ctx context.Context, jobID, event, detail string)
}

// Tracker serializes all mutation for one job through its own mutex; the
// owning orchestrator task is expected to be the sole caller, but the lock
// makes that a guarantee rather than a convention.
type Tracker struct {
	mu        sync.Mutex
	jobID     string
	completed map[int]bool
	failed    map[int]bool
	total     int
	callback  Callback
	publisher Publisher
}

// New builds a Tracker for jobID. callback and publisher may be nil.
func New(jobID string, total int, callback Callback, publisher Publisher) *Tracker {
	return &Tracker{
		jobID:     jobID,
		completed: make(map[int]bool),
		failed:    make(map[int]bool),
		total:     total,
		callback:  callback,
		publisher: publisher,
	}
}

// FromInspect reconstructs a Tracker's completion set from a JobState
// produced by jobstore.Inspect.
func FromInspect(jobID string, state jobstore.JobState, callback Callback, publisher Publisher) *Tracker {
	t := New(jobID, state.TotalSections, callback, publisher)
	for _, i := range state.CompletedSections {
		t.completed[i] = true
	}
	return t
}

// MarkSectionComplete records section i as done.
func (t *Tracker) MarkSectionComplete(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[i] = true
	delete(t.failed, i)
}

// MarkSectionFailed records section i as abandoned.
func (t *Tracker) MarkSectionFailed(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[i] = true
}

// IsSectionComplete reports whether section i has been marked complete.
func (t *Tracker) IsSectionComplete(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed[i]
}

// CompletedCount returns the number of sections marked complete.
func (t *Tracker) CompletedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.completed)
}

// ReportStageProgress invokes the user-supplied callback (if present) and
// then best-effort publishes the same event externally. The callback call
// is synchronous and must not block; callers are responsible for keeping
// their callback implementation fast.
func (t *Tracker) ReportStageProgress(ctx context.Context, stage string, percent int, message string) {
	t.mu.Lock()
	cb := t.callback
	pub := t.publisher
	jobID := t.jobID
	t.mu.Unlock()

	if cb != nil {
		cb(stage, percent, message)
	}
	if pub != nil {
		pub.Publish(ctx, jobID, stage, message)
	}
	log.Debug().Str("job_id", jobID).Str("stage", stage).Int("percent", percent).Str("message", message).Msg("progress")
}

// ReportSectionProgress reports done/total sections, optionally noting a
// cached (resume short-circuit) completion.
func (t *Tracker) ReportSectionProgress(ctx context.Context, done, total int, cached bool) {
	percent := 0
	if total > 0 {
		percent = (done * 100) / total
	}
	msg := ""
	if cached {
		msg = "cached"
	}
	t.ReportStageProgress(ctx, "sections", percent, msg)
}
