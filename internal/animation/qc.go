package animation

import (
	"strconv"
	"sync"
)

// QCWhitelist remembers spatial issues a human or a prior pass judged to be
// false positives, keyed by the section and a stable fingerprint of the
// issue, so the same warning is not re-raised every refinement turn for a
// shape the renderer actually draws correctly (an Open Question resolved
// in DESIGN.md: an in-process cache, not a durable allow-list).
type QCWhitelist struct {
	entries sync.Map // key: string -> struct{}
}

// NewQCWhitelist returns an empty whitelist.
func NewQCWhitelist() *QCWhitelist {
	return &QCWhitelist{}
}

// IssueKey derives a stable fingerprint for a spatial issue within a
// section, independent of which render pass produced it.
func IssueKey(sectionID string, frameID int, message string) string {
	return sectionID + "|" + strconv.Itoa(frameID) + "|" + message
}

// Allow marks key as a known false positive.
func (w *QCWhitelist) Allow(key string) {
	w.entries.Store(key, struct{}{})
}

// IsAllowed reports whether key was previously whitelisted.
func (w *QCWhitelist) IsAllowed(key string) bool {
	_, ok := w.entries.Load(key)
	return ok
}
