package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rohankatakam/commitguru/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Store is the persistence layer the pipeline writes to. Every write is an
// idempotent upsert so concurrent jobs and re-runs never duplicate rows.
type Store interface {
	// EnsureSchema creates missing tables and indexes
	EnsureSchema(ctx context.Context) error

	// Commit operations
	UpsertCommitMetrics(ctx context.Context, repoID string, batch []*models.CommitMetricVector) (map[string]int64, error)
	GetCommit(ctx context.Context, repoID, hash string) (*models.CommitRecord, error)
	ListFixCommits(ctx context.Context, repoID string) ([]models.CommitRef, error)
	UpdateBugFlags(ctx context.Context, repoID string, links models.BugLinks) error

	// Issue operations
	GetIssue(ctx context.Context, repoID string, number int) (*models.CachedIssue, error)
	SaveIssue(ctx context.Context, repoID string, issue *models.CachedIssue) (int64, error)
	LinkIssuesToCommit(ctx context.Context, commitID int64, issueIDs []int64) error
	GetEarliestLinkedIssueTimestamp(ctx context.Context, commitID int64) (*time.Time, error)

	// Class metric operations
	UpsertClassMetrics(ctx context.Context, repoID, commitHash string, rows []models.ClassMetricRow) error

	// Close connection
	Close() error
}
