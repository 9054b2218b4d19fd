package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/animation"
)

// sceneClassRe finds a Scene subclass declaration so a structural check can
// run without invoking the renderer.
var sceneClassRe = regexp.MustCompile(`class\s+\w+\s*\(\s*Scene\s*\)`)

// RenderValidator adapts a Renderer into the animation.Validator contract:
// a cheap structural check first, then a real render attempt in a scratch
// directory (translating any traceback lines back to the caller's snippet
// numbering via prelude length), and finally — only once the render comes
// back clean — the spatial stage (§4.5.3 step 1: "Spatial (only if runtime
// passes)").
type RenderValidator struct {
	Renderer     *Renderer
	ScratchDir   string
	SceneClass   string
	Quality      string
	PreludeLines int

	// Spatial is the injected bounding-box/layout checker; nil skips the
	// spatial stage entirely (the renderer internals it wraps are out of
	// scope per spec §1, so a caller that has none to inject is valid).
	Spatial   animation.SpatialValidator
	Whitelist *animation.QCWhitelist
	SectionID string
}

// Validate runs the structural check, then a real render attempt, then
// (only if that render succeeded) the spatial stage.
func (v *RenderValidator) Validate(ctx context.Context, code string) ([]animation.ValidationError, error) {
	if !sceneClassRe.MatchString(code) {
		return []animation.ValidationError{{Message: "no Scene subclass found in generated code"}}, nil
	}

	scratchDir, err := os.MkdirTemp(v.ScratchDir, "render-validate-")
	if err != nil {
		return nil, fmt.Errorf("media: validate scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	codeFile := filepath.Join(scratchDir, "scene.py")
	if err := os.WriteFile(codeFile, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("media: write scratch scene: %w", err)
	}

	result, renderErr := v.Renderer.Render(ctx, codeFile, v.SceneClass, scratchDir, 0, v.Quality)
	if renderErr != nil {
		stderr := LastNBytes(result.Stderr, 1500)
		lines := ParseTracebackLines(stderr)
		if len(lines) == 0 {
			return []animation.ValidationError{{Message: strings.TrimSpace(stderr)}}, nil
		}

		errs := make([]animation.ValidationError, 0, len(lines))
		for _, l := range lines {
			errs = append(errs, animation.ValidationError{
				Message:    strings.TrimSpace(stderr),
				LineNumber: animation.TranslateLine(l, v.PreludeLines),
			})
		}
		return errs, nil
	}

	if v.Spatial == nil {
		return nil, nil
	}
	issues, spatialErr := v.Spatial.ValidateSpatial(ctx, codeFile, v.SceneClass, scratchDir)
	if spatialErr != nil {
		return nil, fmt.Errorf("media: spatial validation: %w", spatialErr)
	}
	return animation.FilterSpatialIssues(issues, v.SectionID, v.Whitelist), nil
}
