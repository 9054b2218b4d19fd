package animation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
)

// Implementer produces a code snippet (the body of a single rendering
// routine) from a plan, which the Scaffolder then wraps into a full
// source file (§4.5.2).
type Implementer struct {
	Gateway *llmgateway.Gateway
	JobID   string

	// UseTools runs implementation through the gateway's function-calling
	// loop: the model submits code via write_manim_code instead of emitting
	// a fenced block. Only write_manim_code is declared to the model; the
	// patch_manim_code / apply_surgical_edit handlers answer calls by those
	// names if the model makes them anyway. Falls back to the plain-prompt
	// path when the tool session yields nothing usable.
	UseTools bool
}

// Implement produces the construct() body for a plan and cleans it: it
// extracts the longest fenced code block if present, strips imports and
// the enclosing class/signature lines, and normalizes indentation so the
// snippet's outermost level sits at indent spaces.
func (im *Implementer) Implement(ctx context.Context, sectionTitle string, plan *Plan, className string, targetDuration, temperature float64, indent int) (string, error) {
	prompt := buildImplementerPrompt(sectionTitle, plan, className, targetDuration)

	if im.UseTools {
		if code, ok := im.implementViaTools(ctx, prompt, temperature); ok {
			return CleanSnippet(code, indent), nil
		}
	}

	result := im.Gateway.Generate(ctx, im.JobID, prompt, llmgateway.Config{
		Temperature: temperature,
		MaxRetries:  2,
		Timeout:     90,
	}, llmgateway.Opts{})
	if !result.Success {
		return "", fmt.Errorf("animation: implementer call failed: %w", result.Error)
	}
	return CleanSnippet(result.Response, indent), nil
}

// implementViaTools drives one function-calling session. The returned bool
// is false when the session failed or the model never called
// write_manim_code, in which case the caller retries with the plain path.
func (im *Implementer) implementViaTools(ctx context.Context, prompt string, temperature float64) (string, bool) {
	capture := &codeCapture{}
	toolPrompt := prompt + "\nSubmit the body by calling " + toolWriteManimCode + " instead of writing a fenced block.\n"

	result := im.Gateway.RunToolLoop(ctx, im.JobID, toolPrompt, llmgateway.Config{
		Temperature: temperature,
		MaxRetries:  2,
		Timeout:     90,
	}, llmgateway.Opts{Tools: []llmgateway.ToolDeclaration{writeCodeTool}}, capture.handlers())

	if !result.Success || strings.TrimSpace(capture.code) == "" {
		return "", false
	}
	return capture.code, true
}

// FullRewrite produces a complete replacement implementation body from a
// single gateway call seeded with errorExcerpt (the last ~1500 chars of
// renderer stderr or refiner validation errors), used by the §4.5.3
// full-rewrite fallback when the adaptive refiner loop exhausts its turns,
// and reused for the Correct step between render attempts (§4.6 step 5).
func (im *Implementer) FullRewrite(ctx context.Context, sectionTitle string, plan *Plan, className string, targetDuration, temperature float64, indent int, errorExcerpt string) (string, error) {
	prompt := buildImplementerPrompt(sectionTitle, plan, className, targetDuration)
	prompt += "\nA previous attempt at this scene failed with the following error. Do not patch it; write a complete, corrected replacement body that avoids it entirely:\n"
	prompt += errorExcerpt + "\n"

	result := im.Gateway.Generate(ctx, im.JobID, prompt, llmgateway.Config{
		Temperature: temperature,
		MaxRetries:  2,
		Timeout:     90,
	}, llmgateway.Opts{})
	if !result.Success {
		return "", fmt.Errorf("animation: full-rewrite call failed: %w", result.Error)
	}
	return CleanSnippet(result.Response, indent), nil
}

func buildImplementerPrompt(sectionTitle string, plan *Plan, className string, targetDuration float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Write the body of the construct() method for scene class %s (section %q).\n", className, sectionTitle))
	b.WriteString(fmt.Sprintf("Target runtime: %.1f seconds. Follow this choreography plan exactly:\n", targetDuration))
	b.WriteString(fmt.Sprintf("Objects: %d, timeline segments: %d.\n", len(plan.Objects), len(plan.Timeline)))
	b.WriteString("Return ONLY the method body (no class/def/imports), as a single fenced code block.\n")
	return b.String()
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:python)?\\n(.*?)```")
var importLineRe = regexp.MustCompile(`(?m)^\s*(import|from)\s+\S.*$`)
var classOrDefLineRe = regexp.MustCompile(`(?m)^\s*(class\s+\w+.*:|def\s+construct\s*\(.*\)\s*:)\s*$`)

// CleanSnippet extracts the longest fenced code block (if any), strips
// import lines and the enclosing class/def signature, and reindents so
// the snippet's least-indented non-blank line sits at indent spaces.
func CleanSnippet(raw string, indent int) string {
	body := raw
	if matches := fencedBlockRe.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		longest := matches[0][1]
		for _, m := range matches[1:] {
			if len(m[1]) > len(longest) {
				longest = m[1]
			}
		}
		body = longest
	}

	body = importLineRe.ReplaceAllString(body, "")
	body = classOrDefLineRe.ReplaceAllString(body, "")

	return reindent(body, indent)
}

func reindent(body string, indent int) string {
	lines := strings.Split(body, "\n")

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " "))
		if minIndent == -1 || n < minIndent {
			minIndent = n
		}
	}
	if minIndent < 0 {
		minIndent = 0
	}

	pad := strings.Repeat(" ", indent)
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		trimmed := line
		if len(line) >= minIndent {
			trimmed = line[minIndent:]
		}
		out = append(out, pad+trimmed)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// importSymbols maps a snippet-referenced symbol to the import line the
// Scaffolder must add for it.
var importSymbols = map[string]string{
	"np.":        "import numpy as np",
	"math.":      "import math",
	"random.":    "import random",
	"itertools.": "import itertools",
}

// Scaffolder assembles the final source file: a fixed import block with
// auto-detected extra imports, the scene class header, and the indented
// body.
type Scaffolder struct {
	ModulePackage string // e.g. "manim"
}

// ScaffoldResult carries the assembled source and the number of prelude
// lines, so a renderer error line number can be translated back to a
// snippet-local line.
type ScaffoldResult struct {
	Source      string
	PreludeLines int
}

// Scaffold assembles className's full source file around body.
func (s *Scaffolder) Scaffold(className, body string) ScaffoldResult {
	var prelude strings.Builder
	prelude.WriteString(fmt.Sprintf("from %s import *\n", s.modulePackageOr("manim")))
	for symbol, importLine := range importSymbols {
		if strings.Contains(body, symbol) {
			prelude.WriteString(importLine + "\n")
		}
	}
	prelude.WriteString("\n\n")
	prelude.WriteString(fmt.Sprintf("class %s(Scene):\n", className))
	prelude.WriteString("    def construct(self):\n")

	preludeText := prelude.String()
	preludeLines := strings.Count(preludeText, "\n")

	return ScaffoldResult{
		Source:       preludeText + body,
		PreludeLines: preludeLines,
	}
}

func (s *Scaffolder) modulePackageOr(fallback string) string {
	if s.ModulePackage != "" {
		return s.ModulePackage
	}
	return fallback
}

// TranslateLine converts a line number reported against the full scaffolded
// file back to a snippet-local line number.
func TranslateLine(fullFileLine, preludeLines int) int {
	local := fullFileLine - preludeLines
	if local < 1 {
		return 1
	}
	return local
}
