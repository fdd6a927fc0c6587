package storage

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/logging"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS commits (
		id BIGSERIAL PRIMARY KEY,
		repo_id TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		author_date_unix_timestamp BIGINT NOT NULL DEFAULT 0,
		commit_message TEXT NOT NULL DEFAULT '',
		ns INTEGER NOT NULL DEFAULT 0,
		nd INTEGER NOT NULL DEFAULT 0,
		nf INTEGER NOT NULL DEFAULT 0,
		entropy DOUBLE PRECISION,
		la INTEGER NOT NULL DEFAULT 0,
		ld INTEGER NOT NULL DEFAULT 0,
		lt DOUBLE PRECISION,
		ndev INTEGER NOT NULL DEFAULT 0,
		age DOUBLE PRECISION,
		nuc DOUBLE PRECISION,
		exp DOUBLE PRECISION,
		rexp DOUBLE PRECISION,
		sexp DOUBLE PRECISION,
		fix BOOLEAN NOT NULL DEFAULT FALSE,
		file_list TEXT NOT NULL DEFAULT '[]',
		is_buggy BOOLEAN NOT NULL DEFAULT FALSE,
		fixes TEXT NOT NULL DEFAULT '[]',
		UNIQUE (repo_id, commit_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commits_fix ON commits (repo_id, fix)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGSERIAL PRIMARY KEY,
		repo_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		github_id BIGINT NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT '',
		created_at BIGINT,
		closed_at BIGINT,
		etag TEXT NOT NULL DEFAULT '',
		fetched_at BIGINT NOT NULL DEFAULT 0,
		UNIQUE (repo_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS commit_issues (
		commit_id BIGINT NOT NULL REFERENCES commits(id) ON DELETE CASCADE,
		issue_id BIGINT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		PRIMARY KEY (commit_id, issue_id)
	)`,
	`CREATE TABLE IF NOT EXISTS class_metrics (
		repo_id TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		file_path TEXT NOT NULL,
		class_name TEXT NOT NULL,
		metrics JSONB NOT NULL DEFAULT '{}',
		PRIMARY KEY (repo_id, commit_hash, file_path, class_name)
	)`,
}

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger logrus.FieldLogger) (*PostgresStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{sqlStore{
		db:     db,
		logger: logger.WithField("component", "storage.postgres"),
		schema: postgresSchema,
	}}, nil
}
