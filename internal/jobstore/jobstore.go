// Package jobstore owns the on-disk layout of a job: directory creation,
// traversal-safe path resolution, atomic status writes, and cleanup.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bareyan/EduViz-sub001/internal/models"
)

// ErrInvalidID is fatal: the caller supplied a job/section/analysis id that
// is either shaped wrong or would resolve outside the configured root.
var ErrInvalidID = errors.New("jobstore: invalid id")

const (
	StatusGeneratingAudio     = "generating_audio"
	StatusGeneratingAnimation = "generating_animation"
	StatusFixingError         = "fixing_error"
	StatusCompleted           = "completed"
)

// CleanupMode selects which Cleanup behavior to run.
type CleanupMode int

const (
	// CleanupKeepFinalOnly deletes everything except final_video.mp4,
	// video_info.json, error_info.json, and translations/.
	CleanupKeepFinalOnly CleanupMode = iota
	// CleanupExpired deletes the whole job tree.
	CleanupExpired
)

// Store resolves job ids to directory trees under Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root. The root is created if absent.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("jobstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("jobstore: create root: %w", err)
	}
	return &Store{Root: abs}, nil
}

// safeJoin resolves id against root and rejects any id that is shaped
// wrong or whose resolved absolute path escapes root. This is the single
// implementation of path-traversal safety (P3): every caller accepting an
// externally supplied id must route through here.
func safeJoin(root, id string) (string, error) {
	if !models.ValidID(id) {
		return "", ErrInvalidID
	}
	joined := filepath.Join(root, id)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", ErrInvalidID
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", ErrInvalidID
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidID
	}
	return abs, nil
}

// JobHandle is a resolved, existing job directory.
type JobHandle struct {
	ID          string
	Dir         string
	SectionsDir string
}

// OpenJob creates <root>/<id>/ and <root>/<id>/sections/ if absent.
func (s *Store) OpenJob(id string) (*JobHandle, error) {
	dir, err := safeJoin(s.Root, id)
	if err != nil {
		return nil, err
	}
	sectionsDir := filepath.Join(dir, "sections")
	if err := os.MkdirAll(sectionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobstore: create job dir: %w", err)
	}
	return &JobHandle{ID: id, Dir: dir, SectionsDir: sectionsDir}, nil
}

// SectionDir resolves the directory for section index i, creating it if
// absent. i is a trusted internal index, not externally supplied, but is
// still routed through the same safe join for uniformity.
func (h *JobHandle) SectionDir(i int) (string, error) {
	name := strconv.Itoa(i)
	dir, err := safeJoin(h.SectionsDir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("jobstore: create section dir: %w", err)
	}
	return dir, nil
}

// JobState summarizes what is known about a job from disk.
type JobState struct {
	HasScript        bool
	Script           *models.Script
	CompletedSections []int
	HasFinalVideo    bool
	TotalSections    int
}

// Inspect returns {has_script, script?, completed_sections[], has_final_video, total_sections}.
func (h *JobHandle) Inspect() (JobState, error) {
	var state JobState

	scriptPath := filepath.Join(h.Dir, "script.json")
	if data, err := os.ReadFile(scriptPath); err == nil {
		var script models.Script
		if err := json.Unmarshal(data, &script); err != nil {
			return state, fmt.Errorf("jobstore: parse script.json: %w", err)
		}
		state.HasScript = true
		state.Script = &script
		state.TotalSections = len(script.Sections)
	}

	if _, err := os.Stat(filepath.Join(h.Dir, "final_video.mp4")); err == nil {
		state.HasFinalVideo = true
	}

	entries, err := os.ReadDir(h.SectionsDir)
	if err != nil && !os.IsNotExist(err) {
		return state, fmt.Errorf("jobstore: read sections dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		mergedConvenience := filepath.Join(h.SectionsDir, fmt.Sprintf("merged_%d.mp4", idx))
		finalSection := filepath.Join(h.SectionsDir, e.Name(), "final_section.mp4")
		if fileExists(mergedConvenience) || fileExists(finalSection) {
			state.CompletedSections = append(state.CompletedSections, idx)
		}
	}
	return state, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteStatus atomically writes a single-line status file (temp-write +
// rename) into sectionDir. detail is optional free text appended after a
// tab.
func WriteStatus(sectionDir, status, detail string) error {
	line := status
	if detail != "" {
		line = status + "\t" + detail
	}
	line += "\n"

	target := filepath.Join(sectionDir, "status")
	tmp := target + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.WriteFile(tmp, []byte(line), 0o644); err != nil {
		return fmt.Errorf("jobstore: write status temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jobstore: rename status file: %w", err)
	}
	return nil
}

// ReadStatus reads back a status file written by WriteStatus.
func ReadStatus(sectionDir string) (status, detail string, err error) {
	data, err := os.ReadFile(filepath.Join(sectionDir, "status"))
	if err != nil {
		return "", "", err
	}
	line := strings.TrimRight(string(data), "\n")
	parts := strings.SplitN(line, "\t", 2)
	status = parts[0]
	if len(parts) == 2 {
		detail = parts[1]
	}
	return status, detail, nil
}

// keepFinalOnlyAllow is the set of top-level entries CleanupKeepFinalOnly
// preserves.
var keepFinalOnlyAllow = map[string]bool{
	"final_video.mp4": true,
	"video_info.json": true,
	"error_info.json": true,
	"translations":    true,
}

// Cleanup runs the given mode against jobDir. keep_final_only deletes
// everything except final_video.mp4, video_info.json, error_info.json, and
// translations/; expired deletes the whole tree.
func Cleanup(jobDir string, mode CleanupMode) error {
	if mode == CleanupExpired {
		return os.RemoveAll(jobDir)
	}

	entries, err := os.ReadDir(jobDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jobstore: read job dir for cleanup: %w", err)
	}
	for _, e := range entries {
		if keepFinalOnlyAllow[e.Name()] {
			continue
		}
		path := filepath.Join(jobDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("jobstore: cleanup failed to remove entry")
		}
	}
	return nil
}
