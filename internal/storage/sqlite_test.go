package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/models"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func vector(hash string, ts int64, fix bool) *models.CommitMetricVector {
	return &models.CommitMetricVector{
		Hash:        hash,
		AuthorName:  "Ada",
		AuthorEmail: "ada@example.com",
		Timestamp:   ts,
		Message:     "change " + hash,
		NS:          1,
		ND:          1,
		NF:          2,
		Entropy:     sql.NullFloat64{Float64: 0.97, Valid: true},
		LA:          10,
		LD:          4,
		LT:          sql.NullFloat64{Float64: 12.5, Valid: true},
		NDev:        1,
		Age:         sql.NullFloat64{},
		NUC:         sql.NullFloat64{Float64: 1, Valid: true},
		Exp:         sql.NullFloat64{Float64: 3, Valid: true},
		REXP:        sql.NullFloat64{Float64: 3, Valid: true},
		SEXP:        sql.NullFloat64{Float64: 2, Valid: true},
		Fix:         fix,
		Files:       []string{"src/a.go", "src/b.go"},
	}
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.EnsureSchema(context.Background()))
}

func TestUpsertCommitMetricsIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	batch := []*models.CommitMetricVector{vector("aaa", 100, false), vector("bbb", 200, true)}

	first, err := s.UpsertCommitMetrics(ctx, "repo", batch)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.UpsertCommitMetrics(ctx, "repo", batch)
	require.NoError(t, err)
	assert.Equal(t, first, second, "ids are stable across re-runs")

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM commits`))
	assert.Equal(t, 2, n)

	rec, err := s.GetCommit(ctx, "repo", "bbb")
	require.NoError(t, err)
	assert.Equal(t, first["bbb"], rec.ID)
	assert.True(t, rec.Fix)
	assert.False(t, rec.IsBuggy)
	assert.InDelta(t, 0.97, rec.Entropy.Float64, 1e-9)
	assert.False(t, rec.Age.Valid, "missing metric stays NULL")
	assert.JSONEq(t, `["src/a.go","src/b.go"]`, rec.FileList)
	assert.JSONEq(t, `[]`, rec.Fixes)
}

func TestUpsertCommitMetricsUpdatesValues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	v := vector("aaa", 100, false)
	_, err := s.UpsertCommitMetrics(ctx, "repo", []*models.CommitMetricVector{v})
	require.NoError(t, err)

	v.LA = 99
	_, err = s.UpsertCommitMetrics(ctx, "repo", []*models.CommitMetricVector{v})
	require.NoError(t, err)

	rec, err := s.GetCommit(ctx, "repo", "aaa")
	require.NoError(t, err)
	assert.Equal(t, 99, rec.LA)
}

func TestRepositoriesAreIsolated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertCommitMetrics(ctx, "repo-a", []*models.CommitMetricVector{vector("aaa", 1, true)})
	require.NoError(t, err)
	b, err := s.UpsertCommitMetrics(ctx, "repo-b", []*models.CommitMetricVector{vector("aaa", 1, true)})
	require.NoError(t, err)
	assert.NotEqual(t, a["aaa"], b["aaa"])

	_, err = s.GetCommit(ctx, "repo-c", "aaa")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFixCommits(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids, err := s.UpsertCommitMetrics(ctx, "repo", []*models.CommitMetricVector{
		vector("c3", 300, true),
		vector("c1", 100, true),
		vector("c2", 200, false),
	})
	require.NoError(t, err)

	refs, err := s.ListFixCommits(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, []models.CommitRef{
		{ID: ids["c1"], Hash: "c1"},
		{ID: ids["c3"], Hash: "c3"},
	}, refs)
}

func TestUpdateBugFlagsMergesAndIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertCommitMetrics(ctx, "repo", []*models.CommitMetricVector{
		vector("intro", 100, false),
		vector("fix1", 200, true),
		vector("fix2", 300, true),
	})
	require.NoError(t, err)

	links := models.BugLinks{"intro": {"fix1"}, "unknown": {"fix2"}}
	require.NoError(t, s.UpdateBugFlags(ctx, "repo", links))
	require.NoError(t, s.UpdateBugFlags(ctx, "repo", links))
	require.NoError(t, s.UpdateBugFlags(ctx, "repo", models.BugLinks{"intro": {"fix2", "fix1"}}))

	rec, err := s.GetCommit(ctx, "repo", "intro")
	require.NoError(t, err)
	assert.True(t, rec.IsBuggy)
	assert.JSONEq(t, `["fix1","fix2"]`, rec.Fixes)

	rec, err = s.GetCommit(ctx, "repo", "fix1")
	require.NoError(t, err)
	assert.False(t, rec.IsBuggy)
}

func TestIssueRoundTripAndLinking(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetIssue(ctx, "repo", 7)
	assert.ErrorIs(t, err, ErrNotFound)

	early := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	fetched := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	id7, err := s.SaveIssue(ctx, "repo", &models.CachedIssue{ID: 70, Number: 7, State: "closed", CreatedAt: &late, ETag: `"e7"`, FetchedAt: fetched})
	require.NoError(t, err)
	id8, err := s.SaveIssue(ctx, "repo", &models.CachedIssue{ID: 80, Number: 8, State: "open", CreatedAt: &early, FetchedAt: fetched})
	require.NoError(t, err)
	id9, err := s.SaveIssue(ctx, "repo", &models.CachedIssue{Number: 9, State: models.IssueStateDeleted, FetchedAt: fetched})
	require.NoError(t, err)

	again, err := s.SaveIssue(ctx, "repo", &models.CachedIssue{ID: 70, Number: 7, State: "open", CreatedAt: &late, ETag: `"e7b"`, FetchedAt: fetched})
	require.NoError(t, err)
	assert.Equal(t, id7, again)

	issue, err := s.GetIssue(ctx, "repo", 7)
	require.NoError(t, err)
	assert.Equal(t, "open", issue.State)
	assert.Equal(t, `"e7b"`, issue.ETag)
	assert.Equal(t, int64(70), issue.ID)
	require.NotNil(t, issue.CreatedAt)
	assert.True(t, late.Equal(*issue.CreatedAt))
	assert.Nil(t, issue.ClosedAt)
	assert.True(t, fetched.Equal(issue.FetchedAt))

	ids, err := s.UpsertCommitMetrics(ctx, "repo", []*models.CommitMetricVector{vector("fix", 100, true), vector("plain", 50, false)})
	require.NoError(t, err)

	require.NoError(t, s.LinkIssuesToCommit(ctx, ids["fix"], []int64{id7, id8, id9}))
	require.NoError(t, s.LinkIssuesToCommit(ctx, ids["fix"], []int64{id7, id8}))

	var links int
	require.NoError(t, s.DB().Get(&links, `SELECT COUNT(*) FROM commit_issues`))
	assert.Equal(t, 3, links)

	ts, err := s.GetEarliestLinkedIssueTimestamp(ctx, ids["fix"])
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, early.Equal(*ts))

	ts, err = s.GetEarliestLinkedIssueTimestamp(ctx, ids["plain"])
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestUpsertClassMetrics(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	rows := []models.ClassMetricRow{
		{File: "src/A.java", Class: "pkg.A", Metrics: map[string]string{"wmc": "3", "loc": "40"}},
		{File: "src/B.java", Class: "pkg.B", Metrics: map[string]string{"wmc": "1"}},
	}

	require.NoError(t, s.UpsertClassMetrics(ctx, "repo", "abc", rows))
	rows[0].Metrics["wmc"] = "4"
	require.NoError(t, s.UpsertClassMetrics(ctx, "repo", "abc", rows))

	n, err := s.CountClassMetrics(ctx, "repo", "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var raw string
	require.NoError(t, s.DB().Get(&raw, `SELECT metrics FROM class_metrics WHERE class_name = 'pkg.A'`))
	assert.JSONEq(t, `{"wmc":"4","loc":"40"}`, raw)
}

func TestWriteFailuresAreDatabaseErrors(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.UpsertCommitMetrics(context.Background(), "repo", []*models.CommitMetricVector{vector("a", 1, false)})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeDatabase, apperrors.GetType(err))
	assert.True(t, apperrors.IsFatal(err))
}
