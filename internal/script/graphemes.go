package script

import "github.com/rivo/uniseg"

// byteOffsets returns a slice where offsets[i] is the byte index of the
// i-th grapheme cluster (visual character) in s, and offsets[len-1] ==
// len(s). This matches how an LLM counts "characters" (an emoji is one
// grapheme cluster, not one rune), which matters whenever the gateway
// returns character positions that must slice a Go byte string correctly.
func byteOffsets(s string) []int {
	offsets := make([]int, 0, len(s)/2)
	pos := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		offsets = append(offsets, pos)
		pos += len(gr.Bytes())
	}
	offsets = append(offsets, len(s))
	return offsets
}

// graphemeForBytePos finds the largest grapheme index i such that
// offsets[i] <= targetByte.
func graphemeForBytePos(offsets []int, targetByte int) int {
	for i := len(offsets) - 1; i >= 0; i-- {
		if offsets[i] <= targetByte {
			return i
		}
	}
	return 0
}

// isSentenceBoundary reports whether bytePos is right after
// sentence-ending punctuation, allowing for trailing quotes/parens/spaces.
func isSentenceBoundary(text string, bytePos int) bool {
	if bytePos <= 0 || bytePos > len(text) {
		return false
	}
	i := bytePos - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\n' || text[i] == ')' || text[i] == '"' || text[i] == '*') {
		i--
	}
	if i < 0 {
		return false
	}
	return text[i] == '.' || text[i] == '!' || text[i] == '?'
}

// nextSentenceBoundary searches forward from bytePos (inclusive) for the
// first byte offset right after sentence-ending punctuation, or -1.
func nextSentenceBoundary(text string, fromByte int) int {
	for i := fromByte; i < len(text); i++ {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\n' || text[j] == ')' || text[j] == '"' || text[j] == '*') {
				j++
			}
			return j
		}
	}
	return -1
}
