package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// qualityFlags maps a configured quality name to the renderer's CLI flag.
// Unknown values fall back to the lowest quality, matching the renderer's
// own default-to-fast-iteration behavior.
var qualityFlags = map[string]string{
	"low":    "-ql",
	"medium": "-qm",
	"high":   "-qh",
	"4k":     "-qk",
}

func qualityFlag(quality string) string {
	if f, ok := qualityFlags[quality]; ok {
		return f
	}
	return "-ql"
}

var qualityDirs = map[string]string{
	"-ql": "480p15",
	"-qm": "720p30",
	"-qh": "1080p60",
	"-qk": "2160p60",
}

// Renderer invokes the rendering module (Manim-compatible CLI) as a
// subprocess. Its internal scene-graph algorithms are out of scope for
// this engine; this wrapper only shells out and interprets exit status,
// stderr, and the output file it leaves behind.
type Renderer struct {
	PythonBinary string // not read by Render, which runs Module directly
	Module       string // e.g. "manim"
	Timeout      time.Duration
}

// NewRenderer returns a Renderer invoking module (default "manim") with the
// given per-attempt timeout (default 5 minutes).
func NewRenderer(module string, timeout time.Duration) *Renderer {
	if module == "" {
		module = "manim"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Renderer{Module: module, Timeout: timeout}
}

// RenderResult carries the outcome of one render attempt.
type RenderResult struct {
	VideoPath string
	Stderr    string
}

// CleanupPartials removes a quality directory's partial-movie-file cache
// before re-rendering so a retried render doesn't pick up stale fragments
// left over from the code version that just failed.
func (r *Renderer) CleanupPartials(mediaDir, codeFileStem, quality string) error {
	qualityDir := qualityDirs[qualityFlag(quality)]
	videoBase := filepath.Join(mediaDir, "videos", codeFileStem, qualityDir)
	partialDir := filepath.Join(videoBase, "partial_movie_files")

	if err := os.RemoveAll(partialDir); err != nil {
		return fmt.Errorf("media: remove partial movie files: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(videoBase, "*.mp4"))
	if err != nil {
		return fmt.Errorf("media: glob stale output: %w", err)
	}
	for _, m := range matches {
		if rmErr := os.Remove(m); rmErr != nil {
			return fmt.Errorf("media: remove stale output %q: %w", m, rmErr)
		}
	}
	return nil
}

// Render invokes the renderer on codeFile's sceneName class, writing
// section_<sectionIndex>.mp4 under mediaDir, and returns the resulting
// video's path on success.
func (r *Renderer) Render(ctx context.Context, codeFile, sceneName, mediaDir string, sectionIndex int, quality string) (RenderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Module,
		qualityFlag(quality),
		"--format=mp4",
		fmt.Sprintf("--output_file=section_%d", sectionIndex),
		fmt.Sprintf("--media_dir=%s", mediaDir),
		codeFile,
		sceneName,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := RenderResult{Stderr: stderr.String()}
	if runErr != nil {
		return result, fmt.Errorf("media: render failed: %w", runErr)
	}

	video, err := r.findRenderedVideo(mediaDir, codeFile, quality)
	if err != nil {
		return result, err
	}
	result.VideoPath = video
	return result, nil
}

func (r *Renderer) findRenderedVideo(mediaDir, codeFile, quality string) (string, error) {
	stem := trimExt(filepath.Base(codeFile))
	qualityDir := qualityDirs[qualityFlag(quality)]

	primary := filepath.Join(mediaDir, "videos", stem, qualityDir)
	if matches, _ := filepath.Glob(filepath.Join(primary, "*.mp4")); len(matches) > 0 {
		return matches[0], nil
	}

	matches, err := filepath.Glob(filepath.Join(mediaDir, "**", "*.mp4"))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}

	return "", fmt.Errorf("media: no rendered video found under %q", mediaDir)
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// tracebackLineRe matches a Python traceback's file/line marker, e.g.
// `  File "scene.py", line 42, in construct`.
var tracebackLineRe = regexp.MustCompile(`File "[^"]*", line (\d+)`)

// ParseTracebackLines extracts every line number a traceback in stderr
// references, in the order they appear in stderr (Python prints the
// most recent call last). An empty result means the
// error has no recoverable line information and context selection should
// fall back to a head/tail excerpt.
func ParseTracebackLines(stderr string) []int {
	matches := tracebackLineRe.FindAllStringSubmatch(stderr, -1)
	lines := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		lines = append(lines, n)
	}
	return lines
}

// LastNBytes returns the trailing n bytes of s, matching the renderer's
// own convention of reporting only the tail of a long stderr capture.
func LastNBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
