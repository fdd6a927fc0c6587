package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/linker"
	"github.com/rohankatakam/commitguru/internal/models"
	"github.com/rohankatakam/commitguru/internal/notify"
	"github.com/rohankatakam/commitguru/internal/observability"
	"github.com/rohankatakam/commitguru/internal/storage"
)

// Job is what a runner asks the pipeline to do
type Job struct {
	ID      uuid.UUID
	RepoID  string
	RepoURL string // empty = use the existing working copy at WorkDir
	WorkDir string
	Mode    Mode

	// single-commit mode
	TargetHash string
	ParentHash string // empty = first parent of TargetHash

	// issue tracker repository; derived from the remote URL when empty
	IssueOwner string
	IssueRepo  string
}

// IssueFetcher looks up one issue, see github.Client
type IssueFetcher interface {
	Fetch(ctx context.Context, number int, cached *models.CachedIssue) (*models.CachedIssue, error)
}

// IssueClientFactory builds the issue client of one repository
type IssueClientFactory func(owner, repo string) (IssueFetcher, error)

// ClassMetricRunner runs the external class-metric tool, see classmetrics.Runner
type ClassMetricRunner interface {
	Run(ctx context.Context, treeDir, label string) ([]models.ClassMetricRow, error)
}

// Repository is the git working copy a job operates on, see git.Service
type Repository interface {
	linker.GitOps

	CloneOrUpdate(ctx context.Context, url string) error
	DefaultBranch(ctx context.Context) (string, error)
	Checkout(ctx context.Context, rev string) error
	ResolveRef(ctx context.Context, ref string) (string, error)
	CommitExists(ctx context.Context, hash string) (bool, error)
	CountCommits(ctx context.Context, rev string) (int, error)
	Log(ctx context.Context, revisionRange string) (io.ReadCloser, error)
	RemoteURL(ctx context.Context) (string, error)
	Dir() string
}

// Deps are the collaborators shared by all jobs of a process
type Deps struct {
	Store storage.Store
	// OpenRepository returns the working copy at dir
	OpenRepository func(dir string) Repository
	Issues       IssueClientFactory // nil disables issue linking
	ClassMetrics ClassMetricRunner  // nil disables class metrics
	Notifier     notify.Notifier    // nil logs only
	Logger       logrus.FieldLogger

	FixKeywords      []string
	WeightedREXP     bool
	SourceExtensions []string
	BatchSize        int
}

// Context is the mutable state threaded through the steps of one job
type Context struct {
	Job  Job
	Repo Repository

	DefaultBranch string
	TargetHash    string
	ParentHash    string

	// Vectors holds the metric vectors of this job, oldest first
	Vectors      []*models.CommitMetricVector
	CommitIDs    map[string]int64
	FixCommits   map[string]*time.Time
	BugLinks     models.BugLinks
	ClassMetrics map[string][]models.ClassMetricRow
	IssuesLinked int
	Warnings     []string

	deps       *Deps
	logger     logrus.FieldLogger
	checkedOut bool
	issues     map[int]int64 // issue number -> stored row id
	progress   func(done, total int)
}

func newContext(job Job, deps *Deps, logger logrus.FieldLogger) *Context {
	return &Context{
		Job:          job,
		CommitIDs:    make(map[string]int64),
		FixCommits:   make(map[string]*time.Time),
		BugLinks:     make(models.BugLinks),
		ClassMetrics: make(map[string][]models.ClassMetricRow),
		deps:         deps,
		logger:       logger,
		issues:       make(map[int]int64),
		progress:     func(int, int) {},
	}
}

// Logger returns the job logger
func (c *Context) Logger() logrus.FieldLogger {
	return c.logger
}

// Warn records a non-fatal problem on the job
func (c *Context) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	observability.JobWarnings.Inc()
	c.logger.Warn(msg)
}

// SubProgress reports progress inside the running step
func (c *Context) SubProgress(done, total int) {
	c.progress(done, total)
}
