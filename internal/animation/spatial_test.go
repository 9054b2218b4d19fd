package animation

import (
	"testing"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

func TestFilterSpatialIssuesKeepsOnlyErrors(t *testing.T) {
	issues := []models.SpatialIssue{
		{Severity: "error", Message: "label overlaps shape (crosses boundary)", LineNumber: 5},
		{Severity: "warning", Message: "font size too large"},
		{Severity: "info", Message: "object occluded by another"},
	}
	errs := FilterSpatialIssues(issues, "sec-1", nil)
	if len(errs) != 1 {
		t.Fatalf("expected only the error-severity issue to survive, got %d", len(errs))
	}
	if errs[0].Spatial == nil || errs[0].Spatial.Message != issues[0].Message {
		t.Fatalf("expected the surviving ValidationError to carry the original SpatialIssue, got %+v", errs[0])
	}
}

func TestFilterSpatialIssuesRespectsWhitelist(t *testing.T) {
	issue := models.SpatialIssue{Severity: "error", Message: "circle overlaps square", FrameID: "3"}
	whitelist := NewQCWhitelist()
	whitelist.Allow(IssueKey("sec-1", 3, issue.Message))

	errs := FilterSpatialIssues([]models.SpatialIssue{issue}, "sec-1", whitelist)
	if len(errs) != 0 {
		t.Fatalf("expected a whitelisted issue to be dropped, got %d", len(errs))
	}
}

func TestFrameOrdinalParsesNumericFrameID(t *testing.T) {
	if got := frameOrdinal("7"); got != 7 {
		t.Fatalf("expected numeric frame id to parse through, got %d", got)
	}
	if got := frameOrdinal("screenshot-path.png"); got != 0 {
		t.Fatalf("expected non-numeric frame id to collapse to 0, got %d", got)
	}
}
