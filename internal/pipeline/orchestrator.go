package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/logging"
	"github.com/rohankatakam/commitguru/internal/observability"
)

// restoreTimeout bounds the checkout that leaves the working copy on its
// default branch after a job
const restoreTimeout = 2 * time.Minute

// Orchestrator runs jobs step by step. It holds no per-job state and may run
// several jobs concurrently as long as their working copies differ.
type Orchestrator struct {
	deps     *Deps
	reporter Reporter
	logger   logrus.FieldLogger
}

// Result summarizes a finished job
type Result struct {
	JobID        uuid.UUID     `yaml:"job_id"`
	RepoID       string        `yaml:"repo_id"`
	Mode         string        `yaml:"mode"`
	Succeeded    bool          `yaml:"succeeded"`
	FailedStep   string        `yaml:"failed_step,omitempty"`
	Error        string        `yaml:"error,omitempty"`
	Commits      int           `yaml:"commits"`
	FixCommits   int           `yaml:"fix_commits"`
	BuggyCommits int           `yaml:"buggy_commits"`
	IssuesLinked int           `yaml:"issues_linked"`
	ClassRows    int           `yaml:"class_rows"`
	Warnings     []string      `yaml:"warnings,omitempty"`
	Duration     time.Duration `yaml:"duration"`
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps *Deps, reporter Reporter) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		deps:     deps,
		reporter: reporter,
		logger:   logger.WithField("component", "pipeline"),
	}
}

// Run executes the steps of job.Mode in order. The first failing step
// aborts the job and is reported as a *StepError; cancellation is honored
// between steps. The Result is returned in both cases.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	start := time.Now()
	log := o.logger.WithFields(logrus.Fields{
		"job_id":  job.ID.String(),
		"repo_id": job.RepoID,
		"mode":    job.Mode.String(),
	})

	steps, err := Steps(job.Mode)
	if err != nil {
		return nil, err
	}

	c := newContext(job, o.deps, log)
	c.Repo = o.deps.OpenRepository(job.WorkDir)
	defer o.restore(c)

	tracker := &progressTracker{jobID: job.ID, reporter: o.reporter, total: len(steps)}
	result := &Result{JobID: job.ID, RepoID: job.RepoID, Mode: job.Mode.String()}

	log.WithField("steps", len(steps)).Info("job started")
	for i, step := range steps {
		name := step.Name()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err := &StepError{Step: name, Err: apperrors.Cancelled(fmt.Errorf("%w: %w", ErrCancelled, ctxErr))}
			observability.StepDuration.WithLabelValues(job.Mode.String(), name, "cancelled").Observe(0)
			return o.finish(c, result, start, err), err
		}

		index := i
		c.progress = func(done, total int) { tracker.report(name, index, done, total) }
		tracker.report(name, i, 0, 0)

		stepStart := time.Now()
		stepLog := log.WithField("step", name)
		stepLog.Debug("step started")

		if err := step.Run(ctx, c); err != nil {
			observability.StepDuration.WithLabelValues(job.Mode.String(), name, "error").Observe(time.Since(stepStart).Seconds())
			stepErr := &StepError{Step: name, Err: err}
			stepLog.WithError(err).Error("step failed")
			var detailed *apperrors.Error
			if stderrors.As(err, &detailed) {
				detailed.WithContext("step", name).WithContext("repo", job.RepoID)
				stepLog.Debug(detailed.DetailedString())
			}
			return o.finish(c, result, start, stepErr), stepErr
		}

		observability.StepDuration.WithLabelValues(job.Mode.String(), name, "ok").Observe(time.Since(stepStart).Seconds())
		stepLog.WithField("duration", time.Since(stepStart).Round(time.Millisecond).String()).Debug("step finished")
	}
	tracker.report("done", len(steps), 0, 0)

	return o.finish(c, result, start, nil), nil
}

func (o *Orchestrator) finish(c *Context, result *Result, start time.Time, stepErr *StepError) *Result {
	result.Commits = len(c.Vectors)
	result.FixCommits = len(c.FixCommits)
	result.BuggyCommits = len(c.BugLinks)
	result.IssuesLinked = c.IssuesLinked
	for _, rows := range c.ClassMetrics {
		result.ClassRows += len(rows)
	}
	result.Warnings = c.Warnings
	result.Duration = time.Since(start)
	result.Succeeded = stepErr == nil

	fields := logrus.Fields{
		"duration": result.Duration.Round(time.Millisecond).String(),
		"commits":  result.Commits,
		"warnings": len(result.Warnings),
	}
	if stepErr != nil {
		result.FailedStep = stepErr.Step
		result.Error = stepErr.Err.Error()
		observability.JobsTotal.WithLabelValues(c.Job.Mode.String(), "failed").Inc()
		c.logger.WithFields(fields).WithField("failed_step", stepErr.Step).Error("job failed")
		return result
	}

	observability.JobsTotal.WithLabelValues(c.Job.Mode.String(), "succeeded").Inc()
	c.logger.WithFields(fields).Info("job completed")
	return result
}

// restore leaves the working copy on its default branch when a step moved it
func (o *Orchestrator) restore(c *Context) {
	if !c.checkedOut || c.DefaultBranch == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := c.Repo.Checkout(ctx, c.DefaultBranch); err != nil {
		c.logger.WithError(err).Error("failed to restore working copy")
		return
	}
	c.checkedOut = false
}
