package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/logging"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		author_date_unix_timestamp INTEGER NOT NULL DEFAULT 0,
		commit_message TEXT NOT NULL DEFAULT '',
		ns INTEGER NOT NULL DEFAULT 0,
		nd INTEGER NOT NULL DEFAULT 0,
		nf INTEGER NOT NULL DEFAULT 0,
		entropy REAL,
		la INTEGER NOT NULL DEFAULT 0,
		ld INTEGER NOT NULL DEFAULT 0,
		lt REAL,
		ndev INTEGER NOT NULL DEFAULT 0,
		age REAL,
		nuc REAL,
		exp REAL,
		rexp REAL,
		sexp REAL,
		fix BOOLEAN NOT NULL DEFAULT 0,
		file_list TEXT NOT NULL DEFAULT '[]',
		is_buggy BOOLEAN NOT NULL DEFAULT 0,
		fixes TEXT NOT NULL DEFAULT '[]',
		UNIQUE (repo_id, commit_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commits_fix ON commits (repo_id, fix)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		github_id INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT '',
		created_at INTEGER,
		closed_at INTEGER,
		etag TEXT NOT NULL DEFAULT '',
		fetched_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (repo_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS commit_issues (
		commit_id INTEGER NOT NULL REFERENCES commits(id) ON DELETE CASCADE,
		issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		PRIMARY KEY (commit_id, issue_id)
	)`,
	`CREATE TABLE IF NOT EXISTS class_metrics (
		repo_id TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		file_path TEXT NOT NULL,
		class_name TEXT NOT NULL,
		metrics TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (repo_id, commit_hash, file_path, class_name)
	)`,
}

// SQLiteStore implements storage using SQLite (for local/development)
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens the database at path. ":memory:" gives a private
// in-memory database.
func NewSQLiteStore(path string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	// one writer; an in-memory database also exists per connection
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys = ON")

	return &SQLiteStore{sqlStore{
		db:     db,
		logger: logger.WithField("component", "storage.sqlite"),
		schema: sqliteSchema,
	}}, nil
}
