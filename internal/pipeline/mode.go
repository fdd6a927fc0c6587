// Package pipeline sequences the mining steps of one ingestion job.
package pipeline

import (
	"fmt"
	"strings"
)

// Mode selects the step sequence of a job
type Mode int

const (
	// ModeFullHistory mines the whole history of the default branch
	ModeFullHistory Mode = iota
	// ModeSingleCommit extracts metrics for one commit and its parent
	ModeSingleCommit
)

func (m Mode) String() string {
	switch m {
	case ModeFullHistory:
		return "full-history"
	case ModeSingleCommit:
		return "single-commit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names printed by String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full-history", "full":
		return ModeFullHistory, nil
	case "single-commit", "single":
		return ModeSingleCommit, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want full-history or single-commit)", s)
}
