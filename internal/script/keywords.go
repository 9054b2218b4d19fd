package script

import (
	"regexp"
	"sort"
	"strings"
)

var wordSplitRe = regexp.MustCompile(`[A-Za-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"and": true, "or": true, "to": true, "is": true, "are": true, "was": true,
	"were": true, "for": true, "with": true, "by": true, "as": true, "at": true,
	"it": true, "this": true, "that": true, "be": true, "will": true, "can": true,
}

// contentWords lowercases and splits s into its non-stopword tokens.
func contentWords(s string) []string {
	matches := wordSplitRe.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(matches))
	for _, w := range matches {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// paragraphs splits text on blank lines into non-empty trimmed paragraphs.
func paragraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SelectPassages scores each paragraph of source by content-word overlap
// with keywords (bag-of-content-words scoring) and returns the top-scoring
// passages concatenated, capped at maxChars. When no paragraph scores
// above zero, or no scored paragraph fits within maxChars, it falls back
// to an overlapping sliding window anchored at sectionIndex (§4.4
// Stage C.2).
func SelectPassages(source string, keywords []string, sectionIndex, totalSections, maxChars int) string {
	paras := paragraphs(source)
	if len(paras) == 0 {
		return ""
	}

	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[strings.ToLower(k)] = true
	}

	type scored struct {
		idx   int
		score int
		text  string
	}
	var candidates []scored
	for i, p := range paras {
		score := 0
		for _, w := range contentWords(p) {
			if keywordSet[w] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{idx: i, score: score, text: p})
		}
	}

	if len(candidates) == 0 {
		return slidingWindow(paras, sectionIndex, totalSections, maxChars)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var b strings.Builder
	for _, c := range candidates {
		if b.Len()+len(c.text) > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.text)
	}
	if b.Len() == 0 {
		return slidingWindow(paras, sectionIndex, totalSections, maxChars)
	}
	return b.String()
}

// slidingWindow picks a contiguous, overlapping window of paragraphs
// proportional to sectionIndex's position in totalSections.
func slidingWindow(paras []string, sectionIndex, totalSections, maxChars int) string {
	if totalSections <= 0 {
		totalSections = 1
	}
	n := len(paras)
	windowSize := n / totalSections
	if windowSize < 1 {
		windowSize = 1
	}
	overlap := windowSize / 3
	start := sectionIndex*windowSize - overlap
	if start < 0 {
		start = 0
	}
	end := start + windowSize + overlap
	if end > n {
		end = n
	}
	if start >= end {
		start = 0
		end = n
	}

	var b strings.Builder
	for _, p := range paras[start:end] {
		if b.Len()+len(p) > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

// keywordsFromOutline derives a bag of content words from an outline
// section's content_to_cover and key_points, used to score passages for
// that section's generation call.
func keywordsFromOutline(contentToCover string, keyPoints []string) []string {
	words := contentWords(contentToCover)
	for _, kp := range keyPoints {
		words = append(words, contentWords(kp)...)
	}
	return words
}
