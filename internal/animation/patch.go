package animation

import (
	"errors"
	"strings"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

// ErrEmptySearch, ErrAmbiguous, ErrNotFound classify why a single patch
// was rejected.
var (
	ErrEmptySearch = errors.New("patch: search text is empty")
	ErrAmbiguous   = errors.New("patch: search text matches more than once")
	ErrNotFound    = errors.New("patch: search text not found")
)

// EditOutcome records one edit's fate for the next turn's compressed
// history.
type EditOutcome struct {
	Patch   models.Patch
	Applied bool
	Reason  string
}

// ApplyPatches applies edits to code atomically (P4): either every edit
// commits, or the original buffer is returned unchanged along with the
// per-edit outcomes showing what blocked the turn. Edits are evaluated and
// applied in order against successive intermediate buffers so that one
// edit may legally depend on a prior edit's effect, but validation (found
// exactly once, or exactly once after whitespace normalization) runs
// against the buffer as it stood before that edit.
func ApplyPatches(code string, edits []models.Patch) (string, []EditOutcome, bool) {
	if len(edits) == 0 {
		return code, nil, false
	}

	buf := code
	outcomes := make([]EditOutcome, 0, len(edits))
	for _, p := range edits {
		next, err := applyOne(buf, p)
		if err != nil {
			outcomes = append(outcomes, EditOutcome{Patch: p, Applied: false, Reason: err.Error()})
			return code, outcomes, false
		}
		outcomes = append(outcomes, EditOutcome{Patch: p, Applied: true})
		buf = next
	}
	return buf, outcomes, true
}

func applyOne(code string, p models.Patch) (string, error) {
	if strings.TrimSpace(p.Search) == "" {
		return "", ErrEmptySearch
	}

	if n := strings.Count(code, p.Search); n == 1 {
		return strings.Replace(code, p.Search, p.Replace, 1), nil
	} else if n > 1 {
		return "", ErrAmbiguous
	}

	// Exact match failed; try again after whitespace normalization.
	normCode, codeMap := normalizeWhitespaceWithMap(code)
	normSearch := strings.Join(strings.Fields(p.Search), " ")
	if normSearch == "" {
		return "", ErrEmptySearch
	}

	count := strings.Count(normCode, normSearch)
	if count == 0 {
		return "", ErrNotFound
	}
	if count > 1 {
		return "", ErrAmbiguous
	}

	start := strings.Index(normCode, normSearch)
	end := start + len(normSearch)
	origStart := codeMap[start]
	origEnd := codeMap[end]
	return code[:origStart] + p.Replace + code[origEnd:], nil
}

// normalizeWhitespaceWithMap collapses runs of whitespace in s to single
// spaces and returns the collapsed string plus a map from each byte
// offset in the collapsed string back to the corresponding offset in s
// (needed so a match found in the normalized string can be spliced back
// into the original buffer).
func normalizeWhitespaceWithMap(s string) (string, map[int]int) {
	var b strings.Builder
	offsetMap := make(map[int]int)
	inSpace := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			if !inSpace {
				offsetMap[b.Len()] = i
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		offsetMap[b.Len()] = i
		b.WriteRune(r)
	}
	offsetMap[b.Len()] = len(s)
	return b.String(), offsetMap
}
