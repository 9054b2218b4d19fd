// Package orchestrator implements the Section Processor (C6) and Section
// Orchestrator (C7): the per-section pipeline and the bounded fan-out over
// a job's sections that aggregates, concatenates, and finalizes a video.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bareyan/EduViz-sub001/internal/animation"
	"github.com/bareyan/EduViz-sub001/internal/jobstore"
	"github.com/bareyan/EduViz-sub001/internal/media"
	"github.com/bareyan/EduViz-sub001/internal/models"
	"github.com/bareyan/EduViz-sub001/internal/tts"
)

// SectionResult is one section task's outcome, gathered by the orchestrator
// without cancelling siblings on failure (§4.7 step 5).
type SectionResult struct {
	Index     int
	Section   models.Section
	VideoPath string
	AudioPath string
	Duration  float64
	Cached    bool
	Abandoned bool
	Error     error
}

// SectionProcessor turns one validated section into a merged
// final_section.mp4 (§4.6).
type SectionProcessor struct {
	Media              *media.Runner
	Renderer           *media.Renderer
	TTS                tts.Synthesizer
	Gateway            ChoreographerGateway
	Quality                string
	MaxRenderAttempts      int
	RefinerMaxAttempts     int
	RefinerExcerptRadius   int
	RefinerMaxExcerptLines int
	MaxSectionRetries      int
	Voice                  string
	StyleTag               string

	// QCWhitelist filters known-false-positive spatial findings out of the
	// refiner's input; nil disables whitelisting (every blocking spatial
	// issue is sent to the refiner).
	QCWhitelist *animation.QCWhitelist
}

// ChoreographerGateway is the subset of the animation pipeline the Section
// Processor drives directly; it is a struct (not an interface) because
// Choreographer/Implementer/Scaffolder/Refiner are concrete collaborators
// wired per job, not swappable strategies.
type ChoreographerGateway struct {
	Choreographer *animation.Choreographer
	Implementer   *animation.Implementer
	Scaffolder    *animation.Scaffolder
}

// Process runs the seven-step per-section procedure. sectionDir must
// already be held by the caller's semaphore slot for the task's lifetime.
func (p *SectionProcessor) Process(ctx context.Context, jobID string, index int, section models.Section, sectionDir string) (SectionResult, error) {
	result := SectionResult{Index: index, Section: section}

	// Step 1: acquire the section directory, write status.
	if err := jobstore.WriteStatus(sectionDir, jobstore.StatusGeneratingAudio, ""); err != nil {
		return result, fmt.Errorf("orchestrator: write status: %w", err)
	}

	audioPath, duration, err := p.generateAudio(ctx, &section, sectionDir)
	if err != nil {
		// A failed TTS pass degrades the section to silent video rather
		// than abandoning it (§7: video-only succeeds with silent audio);
		// the animation targets the estimated narration timeline instead
		// of a measured one.
		log.Warn().Err(err).Str("job_id", jobID).Int("section", index).
			Msg("orchestrator: audio generation failed, continuing video-only")
		audioPath = ""
		duration = estimatedSectionDuration(section)
	}
	result.AudioPath = audioPath
	result.Duration = duration
	section.Duration = duration
	section.AudioPath = audioPath

	// Step 3: animation.
	if err := jobstore.WriteStatus(sectionDir, jobstore.StatusGeneratingAnimation, ""); err != nil {
		return result, fmt.Errorf("orchestrator: write status: %w", err)
	}
	className := sceneClassName(section.ID)
	sourcePath, plan, err := p.generateAnimation(ctx, jobID, index, section, sectionDir, duration, className)
	if err != nil {
		jobstore.WriteStatus(sectionDir, jobstore.StatusFixingError, "animation: "+err.Error())
		return result, fmt.Errorf("orchestrator: section %d animation: %w", index, err)
	}
	section.AnimationSourcePath = sourcePath

	// Step 4/5: render, with a Correct->Render loop on failure (§4.6 step
	// 5 / §4.5.3 state machine).
	videoPath, err := p.renderWithRetries(ctx, jobID, section, sectionDir, sourcePath, index, className, plan)
	if err != nil {
		jobstore.WriteStatus(sectionDir, jobstore.StatusFixingError, "render: "+err.Error())
		return result, fmt.Errorf("orchestrator: section %d render: %w", index, err)
	}
	section.VideoPath = videoPath

	// Step 6: merge. With no audio track there is nothing to merge: the
	// rendered video becomes final_section.mp4 at its original length.
	finalPath := filepath.Join(sectionDir, "final_section.mp4")
	videoDuration, _ := p.Media.Duration(ctx, videoPath)
	if audioPath == "" {
		if err := copyArtifact(videoPath, finalPath); err != nil {
			jobstore.WriteStatus(sectionDir, jobstore.StatusFixingError, "finalize silent section: "+err.Error())
			return result, fmt.Errorf("orchestrator: section %d finalize: %w", index, err)
		}
		if videoDuration > 0 {
			result.Duration = videoDuration
			section.Duration = videoDuration
		}
	} else if err := p.Media.MergeNoCut(ctx, videoPath, audioPath, videoDuration, duration, finalPath); err != nil {
		jobstore.WriteStatus(sectionDir, jobstore.StatusFixingError, "merge: "+err.Error())
		return result, fmt.Errorf("orchestrator: section %d merge: %w", index, err)
	}

	// Step 7: done.
	if err := jobstore.WriteStatus(sectionDir, jobstore.StatusCompleted, ""); err != nil {
		return result, fmt.Errorf("orchestrator: write status: %w", err)
	}

	result.Section = section
	result.VideoPath = finalPath
	result.AudioPath = audioPath
	return result, nil
}

// generateAudio synthesizes every Narration Segment's TTS output, measures
// each segment's real audio duration right after synthesis, rewrites the
// section's segment timeline from those measured cumulative times (the
// chars-per-second estimate from script generation is only a planning
// figure; real speech never matches it exactly), then concatenates the
// segments and probes the final file for its overall duration.
func (p *SectionProcessor) generateAudio(ctx context.Context, section *models.Section, sectionDir string) (string, float64, error) {
	if len(section.Segments) == 0 {
		return "", 0, fmt.Errorf("section has no narration segments")
	}

	segmentPaths := make([]string, 0, len(section.Segments))
	cursor := 0.0
	for i, seg := range section.Segments {
		res, err := p.TTS.Synthesize(ctx, seg.Text, p.Voice)
		if err != nil {
			return "", 0, fmt.Errorf("tts segment %d: %w", i, err)
		}
		segPath := filepath.Join(sectionDir, fmt.Sprintf("segment_%d%s", i, extForMIME(res.MIMEType)))
		if err := os.WriteFile(segPath, res.Data, 0o644); err != nil {
			return "", 0, fmt.Errorf("write segment %d: %w", i, err)
		}
		segmentPaths = append(segmentPaths, segPath)

		segDuration, derr := p.Media.Duration(ctx, segPath)
		if derr != nil || segDuration <= 0 {
			segDuration = seg.EstimatedDuration
		}
		section.Segments[i].StartTime = cursor
		section.Segments[i].EndTime = cursor + segDuration
		cursor += segDuration
	}

	audioPath := filepath.Join(sectionDir, "section_audio.mp3")
	if err := p.Media.ConcatAudio(ctx, segmentPaths, audioPath); err != nil {
		return "", 0, fmt.Errorf("concat audio: %w", err)
	}

	duration, err := p.Media.Duration(ctx, audioPath)
	if err != nil {
		return "", 0, fmt.Errorf("probe audio duration: %w", err)
	}

	// Concat is lossless, but container rounding can drift the probed
	// total a few milliseconds from the per-segment sum; pin the last
	// boundary to the measured file so the timeline sums to the audio's
	// real duration.
	if last := len(section.Segments) - 1; duration > section.Segments[last].StartTime {
		section.Segments[last].EndTime = duration
	}

	return audioPath, duration, nil
}

// estimatedSectionDuration is the fallback animation target when no
// measured audio exists: the segment timeline's own span, or a
// chars-per-second estimate over the narration when segmentation produced
// nothing.
func estimatedSectionDuration(section models.Section) float64 {
	var total float64
	for _, seg := range section.Segments {
		total += seg.EndTime - seg.StartTime
	}
	if total > 0 {
		return total
	}
	return float64(len([]rune(section.TTSNarration))) / 12.5
}

func copyArtifact(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %q: %w", src, err)
	}
	return os.WriteFile(dst, data, 0o644)
}

func extForMIME(mimeType string) string {
	if strings.Contains(mimeType, "wav") {
		return ".wav"
	}
	return ".mp3"
}

// generateAnimation drives C5 (Choreographer -> Implementer/Scaffolder ->
// Refiner) with the measured audio duration as the target, persists the
// resulting source file, and returns the plan alongside its path so a
// later render-time correction can reuse the same choreography. On
// refinement exhaustion it falls through to the §4.5.3 full-rewrite path;
// if that also fails, the whole Choreographer step restarts (a fresh plan,
// forcing past the PlanCache). MaxSectionRetries (default 2) bounds the
// total number of attempts, the first one included.
func (p *SectionProcessor) generateAnimation(ctx context.Context, jobID string, index int, section models.Section, sectionDir string, targetDuration float64, className string) (string, *animation.Plan, error) {
	var lastErr error
	attempts := p.maxSectionRetriesOr(2)
	for attempt := 0; attempt < attempts; attempt++ {
		plan, source, err := p.planImplementRefine(ctx, jobID, section, sectionDir, targetDuration, className, attempt)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("job_id", jobID).Str("section_id", section.ID).Int("attempt", attempt).
				Msg("orchestrator: animation generation failed, restarting at choreographer")
			continue
		}

		sourcePath := filepath.Join(sectionDir, fmt.Sprintf("scene_%d.py", index))
		if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
			return "", nil, fmt.Errorf("persist animation source: %w", err)
		}
		return sourcePath, plan, nil
	}
	return "", nil, lastErr
}

// planImplementRefine runs one Plan -> Implement -> Scaffold -> Refine
// pass. On ErrRefinementExhausted it performs the §4.5.3 full-rewrite
// fallback: a single gateway call seeded with the refiner's last known
// errors produces a complete replacement snippet, which is then sent
// around the refiner once more.
func (p *SectionProcessor) planImplementRefine(ctx context.Context, jobID string, section models.Section, sectionDir string, targetDuration float64, className string, attempt int) (*animation.Plan, string, error) {
	// Section-level retries raise the temperature so a restarted section
	// explores a different plan and implementation instead of replaying
	// the one that just failed.
	planTemp := 0.7 + 0.2*float64(attempt)
	implTemp := 0.5 + 0.2*float64(attempt)

	plan, err := p.Gateway.Choreographer.Plan(ctx, animation.ChoreographerInput{
		SectionID:      section.ID,
		Title:          section.Title,
		Narration:      section.TTSNarration,
		Segments:       section.Segments,
		TargetDuration: targetDuration,
		StyleTag:       p.StyleTag,
		SupportingData: section.SupportingData,
		SkipCache:      attempt > 0,
	}, planTemp)
	if err != nil {
		return nil, "", fmt.Errorf("choreography: %w", err)
	}

	body, err := p.Gateway.Implementer.Implement(ctx, section.Title, plan, className, targetDuration, implTemp, 8)
	if err != nil {
		return nil, "", fmt.Errorf("implementation: %w", err)
	}
	scaffold := p.Gateway.Scaffolder.Scaffold(className, body)

	refiner := p.newRefiner(jobID, p.newValidator(sectionDir, className, scaffold.PreludeLines, section.ID))
	finalSource, err := refiner.Refine(ctx, scaffold.Source)
	if err == nil {
		return plan, finalSource, nil
	}
	if !errors.Is(err, animation.ErrRefinementExhausted) {
		return nil, "", fmt.Errorf("refinement: %w", err)
	}

	rewritten, rerr := p.Gateway.Implementer.FullRewrite(ctx, section.Title, plan, className, targetDuration, 0.6, 8, refiner.LastErrorExcerpt(1500))
	if rerr != nil {
		return nil, "", fmt.Errorf("refinement exhausted, full rewrite failed: %w", rerr)
	}
	rescaffold := p.Gateway.Scaffolder.Scaffold(className, rewritten)
	rescueRefiner := p.newRefiner(jobID, p.newValidator(sectionDir, className, rescaffold.PreludeLines, section.ID))
	finalSource, rerr = rescueRefiner.Refine(ctx, rescaffold.Source)
	if rerr != nil {
		return nil, "", fmt.Errorf("refinement exhausted, full-rewrite refinement also failed: %w", rerr)
	}
	return plan, finalSource, nil
}

func (p *SectionProcessor) newValidator(sectionDir, className string, preludeLines int, sectionID string) *media.RenderValidator {
	return &media.RenderValidator{
		Renderer:     p.Renderer,
		ScratchDir:   sectionDir,
		SceneClass:   className,
		Quality:      p.Quality,
		PreludeLines: preludeLines,
		Spatial:      p.Renderer,
		Whitelist:    p.QCWhitelist,
		SectionID:    sectionID,
	}
}

func (p *SectionProcessor) newRefiner(jobID string, validator animation.Validator) *animation.Refiner {
	return &animation.Refiner{
		Gateway:         p.Gateway.Choreographer.Gateway,
		JobID:           jobID,
		Validator:       validator,
		MaxAttempts:     p.refinerMaxAttemptsOr(5),
		ExcerptRadius:   p.RefinerExcerptRadius,
		MaxExcerptLines: p.RefinerMaxExcerptLines,
	}
}

func (p *SectionProcessor) refinerMaxAttemptsOr(fallback int) int {
	if p.RefinerMaxAttempts > 0 {
		return p.RefinerMaxAttempts
	}
	return fallback
}

func (p *SectionProcessor) maxSectionRetriesOr(fallback int) int {
	if p.MaxSectionRetries > 0 {
		return p.MaxSectionRetries
	}
	return fallback
}

// renderWithRetries renders the scene, validating output existence/size/
// probe. On failure it runs the Correct state (§4.6 step 5 / §4.5.3 state
// machine): the same full-rewrite mechanism as the refinement fallback,
// seeded with this render attempt's own stderr instead of a validator's
// findings, producing a corrected source that is persisted and re-rendered
// on the next attempt, up to MaxRenderAttempts times.
func (p *SectionProcessor) renderWithRetries(ctx context.Context, jobID string, section models.Section, sectionDir, sourcePath string, index int, className string, plan *animation.Plan) (string, error) {
	mediaDir := filepath.Join(sectionDir, "media")
	maxAttempts := p.maxRenderAttemptsOr(3)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		stem := trimExtBase(filepath.Base(sourcePath))
		if err := p.Renderer.CleanupPartials(mediaDir, stem, p.Quality); err != nil {
			log.Warn().Err(err).Msg("orchestrator: cleanup partials failed")
		}

		renderResult, err := p.Renderer.Render(ctx, sourcePath, className, mediaDir, index, p.Quality)
		switch {
		case err != nil:
			lastErr = err
		default:
			if ok, verr := validOutput(renderResult.VideoPath); !ok {
				lastErr = verr
			} else if _, derr := p.Media.Duration(ctx, renderResult.VideoPath); derr != nil {
				lastErr = fmt.Errorf("probe rendered video: %w", derr)
			} else {
				return renderResult.VideoPath, nil
			}
		}

		if attempt == maxAttempts-1 {
			break
		}

		jobstore.WriteStatus(sectionDir, jobstore.StatusFixingError, fmt.Sprintf("render attempt %d failed, correcting", attempt+1))
		corrected, cerr := p.correctFromStderr(ctx, jobID, section, sectionDir, plan, className, section.Duration, media.LastNBytes(renderResult.Stderr, 1500))
		if cerr != nil {
			lastErr = fmt.Errorf("render failed and correction failed: %w (render error: %v)", cerr, lastErr)
			continue
		}
		if werr := os.WriteFile(sourcePath, []byte(corrected), 0o644); werr != nil {
			lastErr = fmt.Errorf("persist corrected source: %w", werr)
			continue
		}
	}
	return "", fmt.Errorf("render exhausted retries: %w", lastErr)
}

// correctFromStderr drives the Correct state: one full-rewrite call seeded
// with stderrExcerpt, then one refiner pass over the rewritten scaffold.
func (p *SectionProcessor) correctFromStderr(ctx context.Context, jobID string, section models.Section, sectionDir string, plan *animation.Plan, className string, targetDuration float64, stderrExcerpt string) (string, error) {
	rewritten, err := p.Gateway.Implementer.FullRewrite(ctx, section.Title, plan, className, targetDuration, 0.6, 8, stderrExcerpt)
	if err != nil {
		return "", fmt.Errorf("full rewrite: %w", err)
	}
	scaffold := p.Gateway.Scaffolder.Scaffold(className, rewritten)
	refiner := p.newRefiner(jobID, p.newValidator(sectionDir, className, scaffold.PreludeLines, section.ID))
	return refiner.Refine(ctx, scaffold.Source)
}

func (p *SectionProcessor) maxRenderAttemptsOr(fallback int) int {
	if p.MaxRenderAttempts > 0 {
		return p.MaxRenderAttempts
	}
	return fallback
}

func validOutput(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("no output file produced")
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat rendered output: %w", err)
	}
	if info.Size() <= 1024 {
		return false, fmt.Errorf("rendered output too small (%d bytes)", info.Size())
	}
	return true, nil
}

func sceneClassName(id string) string {
	var b strings.Builder
	nextUpper := true
	for _, r := range id {
		switch {
		case r == '_' || r == '-':
			nextUpper = true
		case nextUpper:
			b.WriteRune(toUpper(r))
			nextUpper = false
		default:
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" || !isLetter(rune(name[0])) {
		name = "S" + name
	}
	return "Scene" + name
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func trimExtBase(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
