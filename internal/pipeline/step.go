package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
)

// ErrCancelled marks a job stopped between steps
var ErrCancelled = stderrors.New("job cancelled")

// Step is one named stage of a job
type Step interface {
	Name() string
	Run(ctx context.Context, c *Context) error
}

// StepError is a job failure, naming the step that failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Type is the error taxonomy entry of the underlying failure
func (e *StepError) Type() apperrors.ErrorType {
	return apperrors.GetType(e.Err)
}

var registry = map[Mode][]Step{
	ModeFullHistory: {
		prepareRepository{},
		computeMetrics{},
		persistMetricsAndLinkIssues{},
		linkBugs{},
		runClassMetrics{},
		persistClassMetrics{},
	},
	ModeSingleCommit: {
		prepareRepository{},
		resolveCommits{},
		verifyCommits{},
		computeMetrics{},
		persistMetricsAndLinkIssues{},
		runClassMetrics{},
		persistClassMetrics{},
		notifyDownstream{},
	},
}

// Steps returns the step sequence of mode
func Steps(mode Mode) ([]Step, error) {
	steps, ok := registry[mode]
	if !ok {
		return nil, apperrors.ValidationErrorf("no steps registered for %s", mode)
	}
	return append([]Step(nil), steps...), nil
}

// StepNames lists the names of the steps of mode
func StepNames(mode Mode) []string {
	steps, _ := Steps(mode)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return names
}
