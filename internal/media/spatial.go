package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

// spatialIssueWire mirrors the renderer's own spatial-report schema field
// for field, so ValidateSpatial only has to unmarshal it, not reinterpret
// it: the severity classification (object-pair overlaps, occlusions,
// boundary violations, font-size excess, overlong text, highlight-box
// checks) is the renderer's own internal algorithm (out of scope per spec
// §1), already baked into each entry by the time it reaches Go.
type spatialIssueWire struct {
	LineNumber   int    `json:"line_number"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	SuggestedFix string `json:"suggested_fix"`
	FrameID      string `json:"frame_id"`
}

// ValidateSpatial invokes the renderer a second time with spatial
// reporting enabled (§4.5.3 step 1's "Spatial (only if runtime passes)"
// category), reading back the JSON report the renderer writes describing
// its own bounding-box findings. Only meant to be called after a runtime
// render of the same code has already succeeded.
func (r *Renderer) ValidateSpatial(ctx context.Context, codeFile, sceneClass, outDir string) ([]models.SpatialIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	reportPath := filepath.Join(outDir, "spatial_report.json")
	os.Remove(reportPath)

	cmd := exec.CommandContext(ctx, r.Module,
		"--format=mp4",
		"--output_file=spatial_probe",
		fmt.Sprintf("--media_dir=%s", filepath.Join(outDir, "spatial_media")),
		fmt.Sprintf("--spatial_report=%s", reportPath),
		codeFile,
		sceneClass,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if _, statErr := os.Stat(reportPath); statErr != nil {
			return nil, fmt.Errorf("media: spatial validation run: %w", err)
		}
		// The renderer exited non-zero after the scene played out (e.g. a
		// headless display warning) but still flushed its report; fall
		// through and trust the report on disk.
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("media: read spatial report: %w", err)
	}

	var wire []spatialIssueWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("media: decode spatial report: %w", err)
	}

	issues := make([]models.SpatialIssue, 0, len(wire))
	for _, w := range wire {
		issues = append(issues, models.SpatialIssue{
			LineNumber:   w.LineNumber,
			Severity:     w.Severity,
			Message:      w.Message,
			SuggestedFix: w.SuggestedFix,
			FrameID:      w.FrameID,
		})
	}
	return issues, nil
}
