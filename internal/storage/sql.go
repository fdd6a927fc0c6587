package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/models"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries use ? placeholders and are rebound for the driver.
type sqlStore struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
	schema []string
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and tooling
func (s *sqlStore) DB() *sqlx.DB {
	return s.db
}

func (s *sqlStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.DatabaseError(err, "ensure schema")
		}
	}
	return nil
}

// Commit operations

const upsertCommitQuery = `
	INSERT INTO commits (repo_id, commit_hash, author_name, author_email,
		author_date_unix_timestamp, commit_message, ns, nd, nf, entropy, la, ld,
		lt, ndev, age, nuc, exp, rexp, sexp, fix, file_list)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (repo_id, commit_hash) DO UPDATE SET
		author_name = excluded.author_name,
		author_email = excluded.author_email,
		author_date_unix_timestamp = excluded.author_date_unix_timestamp,
		commit_message = excluded.commit_message,
		ns = excluded.ns,
		nd = excluded.nd,
		nf = excluded.nf,
		entropy = excluded.entropy,
		la = excluded.la,
		ld = excluded.ld,
		lt = excluded.lt,
		ndev = excluded.ndev,
		age = excluded.age,
		nuc = excluded.nuc,
		exp = excluded.exp,
		rexp = excluded.rexp,
		sexp = excluded.sexp,
		fix = excluded.fix,
		file_list = excluded.file_list
	RETURNING id
`

func (s *sqlStore) UpsertCommitMetrics(ctx context.Context, repoID string, batch []*models.CommitMetricVector) (map[string]int64, error) {
	ids := make(map[string]int64, len(batch))
	if len(batch) == 0 {
		return ids, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := s.db.Rebind(upsertCommitQuery)
	for _, v := range batch {
		files, err := json.Marshal(nonNil(v.Files))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, apperrors.SeverityHigh, "encode file list")
		}

		var id int64
		err = tx.QueryRowxContext(ctx, query,
			repoID, v.Hash, v.AuthorName, v.AuthorEmail, v.Timestamp, v.Message,
			v.NS, v.ND, v.NF, v.Entropy, v.LA, v.LD,
			v.LT, v.NDev, v.Age, v.NUC, v.Exp, v.REXP, v.SEXP, v.Fix, string(files),
		).Scan(&id)
		if err != nil {
			return nil, apperrors.DatabaseErrorf(err, "upsert commit %s", v.Hash)
		}
		ids[v.Hash] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.DatabaseError(err, "commit transaction")
	}

	s.logger.WithFields(logrus.Fields{
		"repo_id": repoID,
		"commits": len(ids),
	}).Debug("commit metrics upserted")
	return ids, nil
}

func (s *sqlStore) GetCommit(ctx context.Context, repoID, hash string) (*models.CommitRecord, error) {
	var rec models.CommitRecord
	query := s.db.Rebind(`SELECT id, repo_id, commit_hash, author_name, author_email,
		author_date_unix_timestamp, commit_message, ns, nd, nf, entropy, la, ld,
		lt, ndev, age, nuc, exp, rexp, sexp, fix, file_list, is_buggy, fixes
		FROM commits WHERE repo_id = ? AND commit_hash = ?`)

	if err := s.db.GetContext(ctx, &rec, query, repoID, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.DatabaseErrorf(err, "get commit %s", hash)
	}
	return &rec, nil
}

func (s *sqlStore) ListFixCommits(ctx context.Context, repoID string) ([]models.CommitRef, error) {
	var refs []models.CommitRef
	query := s.db.Rebind(`SELECT id, commit_hash FROM commits
		WHERE repo_id = ? AND fix = ?
		ORDER BY author_date_unix_timestamp, commit_hash`)

	if err := s.db.SelectContext(ctx, &refs, query, repoID, true); err != nil {
		return nil, apperrors.DatabaseError(err, "list fix commits")
	}
	return refs, nil
}

// UpdateBugFlags marks every introducing commit buggy and merges the fixing
// hashes into its fixes list. Re-applying the same links is a no-op.
func (s *sqlStore) UpdateBugFlags(ctx context.Context, repoID string, links models.BugLinks) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	selectQuery := s.db.Rebind(`SELECT fixes FROM commits WHERE repo_id = ? AND commit_hash = ?`)
	updateQuery := s.db.Rebind(`UPDATE commits SET is_buggy = ?, fixes = ? WHERE repo_id = ? AND commit_hash = ?`)

	introducing := make([]string, 0, len(links))
	for h := range links {
		introducing = append(introducing, h)
	}
	sort.Strings(introducing)

	updated := 0
	for _, hash := range introducing {
		var raw string
		err := tx.GetContext(ctx, &raw, selectQuery, repoID, hash)
		if err == sql.ErrNoRows {
			s.logger.WithField("commit", hash).Debug("introducing commit not persisted, skipping bug flag")
			continue
		}
		if err != nil {
			return apperrors.DatabaseErrorf(err, "read fixes of %s", hash)
		}

		merged, err := mergeFixes(raw, links[hash])
		if err != nil {
			return apperrors.DatabaseErrorf(err, "decode fixes of %s", hash)
		}
		if _, err := tx.ExecContext(ctx, updateQuery, true, merged, repoID, hash); err != nil {
			return apperrors.DatabaseErrorf(err, "update bug flag of %s", hash)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(err, "commit transaction")
	}
	s.logger.WithFields(logrus.Fields{
		"repo_id": repoID,
		"buggy":   updated,
	}).Debug("bug flags updated")
	return nil
}

func mergeFixes(raw string, fixes []string) (string, error) {
	var existing []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return "", err
		}
	}
	seen := make(map[string]struct{}, len(existing)+len(fixes))
	merged := make([]string, 0, len(existing)+len(fixes))
	for _, h := range append(existing, fixes...) {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		merged = append(merged, h)
	}
	out, err := json.Marshal(merged)
	return string(out), err
}

// Issue operations

type issueRow struct {
	ID        int64         `db:"id"`
	GitHubID  int64         `db:"github_id"`
	Number    int           `db:"number"`
	State     string        `db:"state"`
	CreatedAt sql.NullInt64 `db:"created_at"`
	ClosedAt  sql.NullInt64 `db:"closed_at"`
	ETag      string        `db:"etag"`
	FetchedAt int64         `db:"fetched_at"`
}

func (r issueRow) toModel() *models.CachedIssue {
	return &models.CachedIssue{
		ID:        r.GitHubID,
		Number:    r.Number,
		State:     r.State,
		CreatedAt: fromUnix(r.CreatedAt),
		ClosedAt:  fromUnix(r.ClosedAt),
		ETag:      r.ETag,
		FetchedAt: time.Unix(r.FetchedAt, 0).UTC(),
	}
}

func (s *sqlStore) GetIssue(ctx context.Context, repoID string, number int) (*models.CachedIssue, error) {
	var row issueRow
	query := s.db.Rebind(`SELECT id, github_id, number, state, created_at, closed_at, etag, fetched_at
		FROM issues WHERE repo_id = ? AND number = ?`)

	if err := s.db.GetContext(ctx, &row, query, repoID, number); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.DatabaseErrorf(err, "get issue #%d", number)
	}
	return row.toModel(), nil
}

// SaveIssue upserts the issue mirror and returns its row id
func (s *sqlStore) SaveIssue(ctx context.Context, repoID string, issue *models.CachedIssue) (int64, error) {
	query := s.db.Rebind(`
		INSERT INTO issues (repo_id, number, github_id, state, created_at, closed_at, etag, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, number) DO UPDATE SET
			github_id = excluded.github_id,
			state = excluded.state,
			created_at = excluded.created_at,
			closed_at = excluded.closed_at,
			etag = excluded.etag,
			fetched_at = excluded.fetched_at
		RETURNING id
	`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		repoID, issue.Number, issue.ID, issue.State,
		toUnix(issue.CreatedAt), toUnix(issue.ClosedAt), issue.ETag, issue.FetchedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, apperrors.DatabaseErrorf(err, "save issue #%d", issue.Number)
	}
	return id, nil
}

func (s *sqlStore) LinkIssuesToCommit(ctx context.Context, commitID int64, issueIDs []int64) error {
	if len(issueIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := s.db.Rebind(`INSERT INTO commit_issues (commit_id, issue_id) VALUES (?, ?)
		ON CONFLICT (commit_id, issue_id) DO NOTHING`)
	for _, issueID := range issueIDs {
		if _, err := tx.ExecContext(ctx, query, commitID, issueID); err != nil {
			return apperrors.DatabaseErrorf(err, "link issue %d to commit %d", issueID, commitID)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(err, "commit transaction")
	}
	return nil
}

// GetEarliestLinkedIssueTimestamp returns the creation time of the oldest
// issue linked to the commit, or nil when no linked issue has one
func (s *sqlStore) GetEarliestLinkedIssueTimestamp(ctx context.Context, commitID int64) (*time.Time, error) {
	var earliest sql.NullInt64
	query := s.db.Rebind(`SELECT MIN(i.created_at) FROM issues i
		JOIN commit_issues ci ON ci.issue_id = i.id
		WHERE ci.commit_id = ? AND i.created_at IS NOT NULL`)

	if err := s.db.GetContext(ctx, &earliest, query, commitID); err != nil {
		return nil, apperrors.DatabaseErrorf(err, "earliest issue of commit %d", commitID)
	}
	return fromUnix(earliest), nil
}

// Class metric operations

func (s *sqlStore) UpsertClassMetrics(ctx context.Context, repoID, commitHash string, rows []models.ClassMetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := s.db.Rebind(`
		INSERT INTO class_metrics (repo_id, commit_hash, file_path, class_name, metrics)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, commit_hash, file_path, class_name) DO UPDATE SET
			metrics = excluded.metrics
	`)
	for _, row := range rows {
		encoded, err := json.Marshal(row.Metrics)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInternal, apperrors.SeverityHigh, "encode class metrics")
		}
		if _, err := tx.ExecContext(ctx, query, repoID, commitHash, row.File, row.Class, string(encoded)); err != nil {
			return apperrors.DatabaseErrorf(err, "upsert class metrics %s:%s", row.File, row.Class)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(err, "commit transaction")
	}
	return nil
}

// CountClassMetrics returns the number of class rows stored for a commit
func (s *sqlStore) CountClassMetrics(ctx context.Context, repoID, commitHash string) (int, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(*) FROM class_metrics WHERE repo_id = ? AND commit_hash = ?`)
	if err := s.db.GetContext(ctx, &n, query, repoID, commitHash); err != nil {
		return 0, apperrors.DatabaseError(err, "count class metrics")
	}
	return n, nil
}

func toUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
