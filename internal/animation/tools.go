package animation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// Tool names the model may call during implementation. Dispatch is a
// static table keyed by name; no reflection.
const (
	toolWriteManimCode   = "write_manim_code"
	toolPatchManimCode   = "patch_manim_code"
	toolApplySurgicalEdit = "apply_surgical_edit"
)

var writeCodeTool = llmgateway.ToolDeclaration{
	Name:        toolWriteManimCode,
	Description: "Submit the complete body of the construct() method for the scene.",
	Parameters: map[string]any{
		"type":     "object",
		"required": []any{"code"},
		"properties": map[string]any{
			"code": map[string]any{"type": "string", "description": "The construct() body. No class, def, or import lines."},
		},
	},
}

// codeCapture collects the snippets submitted through the tool loop. The
// last write wins; patches and surgical edits are applied to the current
// buffer as they arrive.
type codeCapture struct {
	code string
}

func (c *codeCapture) handlers() map[string]llmgateway.ToolHandler {
	return map[string]llmgateway.ToolHandler{
		toolWriteManimCode: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			code, _ := args["code"].(string)
			if strings.TrimSpace(code) == "" {
				return nil, fmt.Errorf("code argument is empty")
			}
			c.code = code
			return map[string]any{"status": "accepted", "lines": strings.Count(code, "\n") + 1}, nil
		},
		toolPatchManimCode:    c.patchHandler(),
		toolApplySurgicalEdit: c.patchHandler(),
	}
}

// patchHandler serves both patch-shaped tools: a single search/replace
// against the code buffer captured so far, with the same exactly-once
// matching rule the refiner enforces.
func (c *codeCapture) patchHandler() llmgateway.ToolHandler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		if c.code == "" {
			return nil, fmt.Errorf("no code submitted yet; call %s first", toolWriteManimCode)
		}
		search, _ := args["search_text"].(string)
		replace, _ := args["replacement_text"].(string)
		if search == "" {
			search, _ = args["search"].(string)
			replace, _ = args["replace"].(string)
		}
		next, err := applyOne(c.code, models.Patch{Search: search, Replace: replace})
		if err != nil {
			return nil, err
		}
		c.code = next
		return map[string]any{"status": "applied"}, nil
	}
}
