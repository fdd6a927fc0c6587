// Package history holds the per-job stateful trackers behind the Commit Guru
// metrics. Both trackers are write-then-read-old: Update mutates state and
// returns what the state was before the call.
//
// Commits must be fed oldest first. Out-of-order input does not fail, it
// silently produces wrong ages and experience values; DaysSinceLastChange is
// clamped at zero so it never goes negative.
package history

import (
	"sort"

	"github.com/rohankatakam/commitguru/internal/models"
)

const secondsPerDay = 86400

type fileState struct {
	lines       int // may go negative transiently on inconsistent numstat input
	authors     map[string]struct{}
	lastChanged int64
	changes     int
}

// FileSnapshot is a file's state before the current commit touched it
type FileSnapshot struct {
	PrevLineCount       int
	PrevChangeCount     int
	DaysSinceLastChange float64
	PriorAuthors        []string
}

// FileTracker tracks per-path line count, authors, last change and change
// count for one job.
type FileTracker struct {
	files map[string]*fileState
}

// NewFileTracker returns an empty tracker
func NewFileTracker() *FileTracker {
	return &FileTracker{files: make(map[string]*fileState)}
}

// Update records change by author at timestamp and returns the prior state.
// A path seen for the first time starts from zero with lastChanged set to
// timestamp. A rename carries the old path's history to the new path.
func (t *FileTracker) Update(change models.FileChangeLine, author string, timestamp int64) FileSnapshot {
	if change.OldPath != "" && change.OldPath != change.Path {
		if old, ok := t.files[change.OldPath]; ok {
			if _, exists := t.files[change.Path]; !exists {
				t.files[change.Path] = old
			}
			delete(t.files, change.OldPath)
		}
	}

	state, ok := t.files[change.Path]
	if !ok {
		state = &fileState{
			authors:     make(map[string]struct{}),
			lastChanged: timestamp,
		}
		t.files[change.Path] = state
	}

	snap := FileSnapshot{
		PrevLineCount:       state.lines,
		PrevChangeCount:     state.changes,
		DaysSinceLastChange: daysBetween(state.lastChanged, timestamp),
		PriorAuthors:        sortedKeys(state.authors),
	}

	state.lines += change.Added - change.Deleted
	state.changes++
	state.authors[author] = struct{}{}
	state.lastChanged = timestamp

	return snap
}

// LineCount returns the tracked line count of path
func (t *FileTracker) LineCount(path string) (int, bool) {
	state, ok := t.files[path]
	if !ok {
		return 0, false
	}
	return state.lines, true
}

// Len is the number of tracked paths
func (t *FileTracker) Len() int {
	return len(t.files)
}

func daysBetween(from, to int64) float64 {
	delta := to - from
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / secondsPerDay
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
