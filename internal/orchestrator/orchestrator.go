package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/bareyan/EduViz-sub001/internal/costs"
	"github.com/bareyan/EduViz-sub001/internal/jobstore"
	"github.com/bareyan/EduViz-sub001/internal/media"
	"github.com/bareyan/EduViz-sub001/internal/models"
	"github.com/bareyan/EduViz-sub001/internal/progress"
	"github.com/bareyan/EduViz-sub001/internal/script"
)

// DefaultMaxConcurrent is the generic section-orchestrator default (§4.7
// step 3). GenerateVideo does not apply it: with params.MaxConcurrent
// unset it falls back to MainPipelineMaxConcurrent.
const DefaultMaxConcurrent = 8

// MainPipelineMaxConcurrent is the default used when this orchestrator is
// invoked as part of the overall job pipeline rather than standalone.
const MainPipelineMaxConcurrent = 3

// Orchestrator fans a job's sections out across a bounded worker pool,
// aggregates their outcomes, concatenates the result, and cleans up
// (C7, §4.7).
type Orchestrator struct {
	Store     *jobstore.Store
	Script    *script.Pipeline
	Processor *SectionProcessor
	Media     *media.Runner
	Costs     *costs.Store
	Storage   ArchiveStore
}

// ArchiveStore is the narrow contract for archiving the final artifact
// before cleanup; nil disables archival entirely.
type ArchiveStore interface {
	ArchiveFinalVideo(ctx context.Context, jobID, videoPath string) (string, error)
}

// GenerateVideoParams is the call signature's input bundle (§4.7).
type GenerateVideoParams struct {
	JobID         string
	Material      script.Material
	SourceText    string
	Voice         string
	StyleTag      string
	Language      string
	Mode          script.Mode
	TopicHint     string
	Resume        bool
	ProgressCB    progress.Callback
	Publisher     progress.Publisher
	MaxConcurrent int
}

// GenerateVideo runs the full per-job procedure: open the job dir, inspect
// progress, load-or-generate the script, fan out section processing with
// bounded concurrency, aggregate, concatenate, clean up, and return a
// VideoResult.
func (o *Orchestrator) GenerateVideo(ctx context.Context, params GenerateVideoParams) models.VideoResult {
	handle, err := o.Store.OpenJob(params.JobID)
	if err != nil {
		return failResult(params.JobID, fmt.Errorf("open job: %w", err))
	}

	state, err := handle.Inspect()
	if err != nil {
		return o.failJob(handle, params.JobID, fmt.Errorf("inspect job: %w", err))
	}

	// Step 1: short-circuit if the final artifact already exists.
	if state.HasFinalVideo {
		return o.cachedResult(ctx, params.JobID, handle, state)
	}

	// Step 2: load or generate the script.
	var sc *models.Script
	if state.HasScript && params.Resume {
		sc = state.Script
	} else {
		sc, err = o.Script.Run(ctx, params.JobID, params.Material, params.SourceText, params.Mode, params.Language, params.TopicHint)
		if err != nil {
			return o.failJob(handle, params.JobID, fmt.Errorf("script generation: %w", err))
		}
		if err := persistScript(handle.Dir, sc); err != nil {
			return o.failJob(handle, params.JobID, fmt.Errorf("persist script: %w", err))
		}
	}

	if len(sc.Sections) == 0 {
		return o.failJob(handle, params.JobID, fmt.Errorf("script has no sections"))
	}

	maxConcurrent := params.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = MainPipelineMaxConcurrent
	}

	tracker := progress.New(params.JobID, len(sc.Sections), params.ProgressCB, params.Publisher)
	if params.Resume {
		for _, idx := range state.CompletedSections {
			tracker.MarkSectionComplete(idx)
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Step 3/4: bounded fan-out, one task per section.
	results := o.runSections(jobCtx, handle, sc, params, tracker, maxConcurrent)

	// Step 6: aggregate.
	included, chapters, updatedSections, totalDuration := aggregate(results)
	sc.Sections = updatedSections
	sc.TotalDuration = totalDuration
	if err := persistScript(handle.Dir, sc); err != nil {
		log.Warn().Err(err).Str("job_id", params.JobID).Msg("orchestrator: persist updated script failed")
	}

	if len(included) == 0 {
		return o.failJob(handle, params.JobID, fmt.Errorf("every section was abandoned or produced no usable artifact"))
	}

	// Step 7: concatenate.
	finalPath := filepath.Join(handle.Dir, "final_video.mp4")
	videoPaths := make([]string, 0, len(included))
	for _, r := range included {
		videoPaths = append(videoPaths, r.VideoPath)
	}
	if err := o.Media.ConcatVideos(jobCtx, videoPaths, finalPath); err != nil {
		return o.failJob(handle, params.JobID, fmt.Errorf("concatenate sections: %w", err))
	}

	// Step 9 bookkeeping happens before cleanup so the sidecar files are
	// already on disk when Cleanup sweeps everything else away.
	var costSummary models.CostSummary
	if o.Costs != nil {
		if cs, csErr := o.Costs.Summary(jobCtx, params.JobID); csErr == nil {
			costSummary = cs
		} else {
			log.Warn().Err(csErr).Str("job_id", params.JobID).Msg("orchestrator: cost summary failed")
		}
	}
	if err := writeVideoInfo(handle.Dir, params.JobID, finalPath, chapters, totalDuration, costSummary); err != nil {
		log.Warn().Err(err).Str("job_id", params.JobID).Msg("orchestrator: write video_info.json failed")
	}

	// Step 8: cleanup, keeping only the final artifact and sidecar files.
	if o.Storage != nil {
		if _, archErr := o.Storage.ArchiveFinalVideo(jobCtx, params.JobID, finalPath); archErr != nil {
			log.Warn().Err(archErr).Str("job_id", params.JobID).Msg("orchestrator: archive final video failed")
		}
	}
	if err := jobstore.Cleanup(handle.Dir, jobstore.CleanupKeepFinalOnly); err != nil {
		log.Warn().Err(err).Str("job_id", params.JobID).Msg("orchestrator: cleanup failed")
	}

	tracker.ReportStageProgress(jobCtx, "completed", 100, "")

	return models.VideoResult{
		JobID:         params.JobID,
		VideoPath:     finalPath,
		Script:        sc,
		Chapters:      chapters,
		TotalDuration: totalDuration,
		CostSummary:   costSummary,
		Status:        "completed",
	}
}

// runSections spawns one goroutine per section index, bounded by a
// weighted semaphore of capacity maxConcurrent (P2). Failures are
// captured per section and never cancel siblings (§4.7 step 5).
func (o *Orchestrator) runSections(ctx context.Context, handle *jobstore.JobHandle, sc *models.Script, params GenerateVideoParams, tracker *progress.Tracker, maxConcurrent int) []SectionResult {
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([]SectionResult, len(sc.Sections))

	var wg sync.WaitGroup
	for i, section := range sc.Sections {
		wg.Add(1)
		go func(i int, section models.Section) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = SectionResult{Index: i, Section: section, Error: fmt.Errorf("acquire semaphore: %w", err)}
				return
			}
			defer sem.Release(1)

			sectionDir, err := handle.SectionDir(i)
			if err != nil {
				results[i] = SectionResult{Index: i, Section: section, Error: fmt.Errorf("section dir: %w", err)}
				return
			}

			if params.Resume && tracker.IsSectionComplete(i) {
				if r, ok := cachedSectionResult(i, section, sectionDir); ok {
					tracker.ReportSectionProgress(ctx, tracker.CompletedCount(), len(sc.Sections), true)
					results[i] = r
					return
				}
			}

			r, procErr := o.Processor.Process(ctx, params.JobID, i, section, sectionDir)
			if procErr != nil {
				r.Error = procErr
				r.Abandoned = true
				tracker.MarkSectionFailed(i)
				log.Warn().Err(procErr).Str("job_id", params.JobID).Int("section", i).Msg("orchestrator: section failed")
			} else {
				tracker.MarkSectionComplete(i)
			}
			tracker.ReportSectionProgress(ctx, tracker.CompletedCount(), len(sc.Sections), false)
			results[i] = r
		}(i, section)
	}
	wg.Wait()

	return results
}

// cachedSectionResult reconstructs a SectionResult from an already-merged
// artifact on disk, used for the resume short-circuit (§4.7 step 4).
func cachedSectionResult(i int, section models.Section, sectionDir string) (SectionResult, bool) {
	finalPath := filepath.Join(sectionDir, "final_section.mp4")
	if !fileNonEmpty(finalPath) {
		return SectionResult{}, false
	}
	return SectionResult{
		Index:     i,
		Section:   section,
		VideoPath: finalPath,
		AudioPath: filepath.Join(sectionDir, "section_audio.mp3"),
		Duration:  section.Duration,
		Cached:    true,
	}, true
}

// aggregate applies §4.7 step 6: a section contributes only if both video
// and audio exist; video-only is tolerated as silent; audio-only is
// dropped. It returns the included results in script order, the resulting
// chapter timeline, the sections slice with realized paths/durations, and
// the total duration.
func aggregate(results []SectionResult) (included []SectionResult, chapters []models.Chapter, sections []models.Section, totalDuration float64) {
	sections = make([]models.Section, len(results))
	var cumulative float64

	for i, r := range results {
		sections[i] = r.Section
		if r.Error != nil || r.VideoPath == "" {
			// Audio-only (no video) or an outright failure: dropped from
			// the final concatenation and excluded from the chapter list.
			sections[i].Abandoned = true
			continue
		}

		included = append(included, r)
		chapters = append(chapters, models.Chapter{
			SectionIndex: i,
			Title:        r.Section.Title,
			StartTime:    cumulative,
			Duration:     r.Duration,
		})
		cumulative += r.Duration
	}
	totalDuration = cumulative
	return included, chapters, sections, totalDuration
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// persistScript atomically writes sc to <jobDir>/script.json (temp-write +
// rename, mirroring jobstore.WriteStatus's protocol).
func persistScript(jobDir string, sc *models.Script) error {
	return writeJSONAtomic(filepath.Join(jobDir, "script.json"), sc)
}

func failResult(jobID string, err error) models.VideoResult {
	return models.VideoResult{JobID: jobID, Status: "failed", Error: err.Error()}
}

// failJob records the first fatal cause in <jobDir>/error_info.json (§7:
// the file survives keep_final_only cleanup and is what classifies the
// job as failed for the retention scheduler) and returns the failure
// result.
func (o *Orchestrator) failJob(handle *jobstore.JobHandle, jobID string, cause error) models.VideoResult {
	info := map[string]any{
		"job_id": jobID,
		"error":  cause.Error(),
	}
	if err := writeJSONAtomic(filepath.Join(handle.Dir, "error_info.json"), info); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: write error_info.json failed")
	}
	return failResult(jobID, cause)
}

// writeVideoInfo persists the final video's sidecar metadata (chapter
// timeline, total duration, cost summary) next to final_video.mp4.
func writeVideoInfo(jobDir, jobID, videoPath string, chapters []models.Chapter, totalDuration float64, costSummary models.CostSummary) error {
	info := map[string]any{
		"job_id":         jobID,
		"video_path":     videoPath,
		"chapters":       chapters,
		"total_duration": totalDuration,
		"cost_summary":   costSummary,
	}
	return writeJSONAtomic(filepath.Join(jobDir, "video_info.json"), info)
}

func writeJSONAtomic(target string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(target), err)
	}
	tmp := target + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s temp file: %w", filepath.Base(target), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(target), err)
	}
	return nil
}

// cachedResult builds the return value for the has_final_video
// short-circuit (§4.7 step 1); the script and chapters are reconstructed
// from the persisted script.json rather than re-derived.
func (o *Orchestrator) cachedResult(ctx context.Context, jobID string, handle *jobstore.JobHandle, state jobstore.JobState) models.VideoResult {
	var costSummary models.CostSummary
	if o.Costs != nil {
		if cs, err := o.Costs.Summary(ctx, jobID); err == nil {
			costSummary = cs
		}
	}

	var chapters []models.Chapter
	var total float64
	if state.Script != nil {
		var cumulative float64
		for i, s := range state.Script.Sections {
			if s.Abandoned {
				continue
			}
			chapters = append(chapters, models.Chapter{SectionIndex: i, Title: s.Title, StartTime: cumulative, Duration: s.Duration})
			cumulative += s.Duration
		}
		total = cumulative
	}

	return models.VideoResult{
		JobID:         jobID,
		VideoPath:     filepath.Join(handle.Dir, "final_video.mp4"),
		Script:        state.Script,
		Chapters:      chapters,
		TotalDuration: total,
		CostSummary:   costSummary,
		Status:        "completed",
	}
}
