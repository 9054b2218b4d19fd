package animation

import (
	"context"
	"strconv"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

// SpatialValidator is the narrow injected contract over the renderer's own
// bounding-box/layout analysis (§1: renderer internals are out of scope for
// this engine; only the act of invoking it and classifying its findings is
// ours). A media.Renderer.ValidateSpatial implementation is injected by the
// caller.
type SpatialValidator interface {
	ValidateSpatial(ctx context.Context, codeFile, sceneClass, outDir string) ([]models.SpatialIssue, error)
}

// FilterSpatialIssues keeps only the blocking ("error" severity) issues
// (mirroring SpatialValidationResult.has_blocking_issues: warnings and info
// are reported but never sent to the refiner), drops anything the
// whitelist has marked a known false positive for this section, and wraps
// the survivors as refiner-ready ValidationErrors.
func FilterSpatialIssues(issues []models.SpatialIssue, sectionID string, whitelist *QCWhitelist) []ValidationError {
	var out []ValidationError
	for i := range issues {
		issue := issues[i]
		if issue.Severity != "error" {
			continue
		}
		if whitelist != nil {
			key := IssueKey(sectionID, frameOrdinal(issue.FrameID), issue.Message)
			if whitelist.IsAllowed(key) {
				continue
			}
		}
		out = append(out, ValidationError{
			Message:    issue.Message,
			LineNumber: issue.LineNumber,
			Spatial:    &issue,
		})
	}
	return out
}

// frameOrdinal bridges SpatialIssue's string FrameID (the renderer's own
// identifier, e.g. a screenshot path) to IssueKey's integer parameter: a
// numeric frame id parses straight through, and anything else collapses to
// 0 (all non-numeric frame ids for a section/message pair then share one
// whitelist entry, which is the conservative choice for a best-effort
// cache).
func frameOrdinal(frameID string) int {
	n, err := strconv.Atoi(frameID)
	if err != nil {
		return 0
	}
	return n
}
