package models

import (
	"database/sql"
	"time"
)

// RawCommit is one parsed git log entry. Immutable once parsed.
type RawCommit struct {
	Hash           string           `json:"hash"`
	Parents        []string         `json:"parents"`
	AuthorName     string           `json:"author_name"`
	AuthorEmail    string           `json:"author_email"`
	CommitterName  string           `json:"committer_name"`
	CommitterEmail string           `json:"committer_email"`
	AuthorDate     string           `json:"author_date"`
	Timestamp      int64            `json:"timestamp"` // author time, unix seconds
	Message        string           `json:"message"`
	Files          []FileChangeLine `json:"files"`
}

// Author returns the identity the trackers key on
func (c *RawCommit) Author() string {
	return c.AuthorName
}

// FirstParent returns the first parent hash, or "" for a root commit
func (c *RawCommit) FirstParent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// FileChangeLine is one numstat line of a commit
type FileChangeLine struct {
	Added     int    `json:"added"`
	Deleted   int    `json:"deleted"`
	Path      string `json:"path"`
	OldPath   string `json:"old_path,omitempty"` // set for renames
	Subsystem string `json:"subsystem"`
	Directory string `json:"directory"`
}

// CommitMetricVector is the Commit Guru metric set for one commit.
// Invalid NullFloat64 values mark metrics that were NaN or infinite.
type CommitMetricVector struct {
	Hash        string          `json:"hash" db:"commit_hash"`
	AuthorName  string          `json:"author_name" db:"author_name"`
	AuthorEmail string          `json:"author_email" db:"author_email"`
	Timestamp   int64           `json:"timestamp" db:"author_date_unix_timestamp"`
	Message     string          `json:"message" db:"commit_message"`
	Parents     []string        `json:"parents"`
	NS          int             `json:"ns" db:"ns"`
	ND          int             `json:"nd" db:"nd"`
	NF          int             `json:"nf" db:"nf"`
	Entropy     sql.NullFloat64 `json:"entropy" db:"entropy"`
	LA          int             `json:"la" db:"la"`
	LD          int             `json:"ld" db:"ld"`
	LT          sql.NullFloat64 `json:"lt" db:"lt"`
	NDev        int             `json:"ndev" db:"ndev"`
	Age         sql.NullFloat64 `json:"age" db:"age"`
	NUC         sql.NullFloat64 `json:"nuc" db:"nuc"`
	Exp         sql.NullFloat64 `json:"exp" db:"exp"`
	REXP        sql.NullFloat64 `json:"rexp" db:"rexp"`
	SEXP        sql.NullFloat64 `json:"sexp" db:"sexp"`
	Fix         bool            `json:"fix" db:"fix"`
	Files       []string        `json:"files"`
	IssueRefs   []int           `json:"issue_refs"`
}

// CommitRecord is a persisted commit row as read back from storage
type CommitRecord struct {
	ID          int64           `db:"id"`
	RepoID      string          `db:"repo_id"`
	Hash        string          `db:"commit_hash"`
	AuthorName  string          `db:"author_name"`
	AuthorEmail string          `db:"author_email"`
	Timestamp   int64           `db:"author_date_unix_timestamp"`
	Message     string          `db:"commit_message"`
	NS          int             `db:"ns"`
	ND          int             `db:"nd"`
	NF          int             `db:"nf"`
	Entropy     sql.NullFloat64 `db:"entropy"`
	LA          int             `db:"la"`
	LD          int             `db:"ld"`
	LT          sql.NullFloat64 `db:"lt"`
	NDev        int             `db:"ndev"`
	Age         sql.NullFloat64 `db:"age"`
	NUC         sql.NullFloat64 `db:"nuc"`
	Exp         sql.NullFloat64 `db:"exp"`
	REXP        sql.NullFloat64 `db:"rexp"`
	SEXP        sql.NullFloat64 `db:"sexp"`
	Fix         bool            `db:"fix"`
	FileList    string          `db:"file_list"` // JSON array
	IsBuggy     bool            `db:"is_buggy"`
	Fixes       string          `db:"fixes"` // JSON array of fixing hashes
}

// CommitRef identifies a persisted commit
type CommitRef struct {
	ID   int64  `db:"id"`
	Hash string `db:"commit_hash"`
}

// BugLinks maps a defect-introducing commit hash to the hashes that fixed it
type BugLinks map[string][]string

// Add appends fix to the fix list of introducing, ignoring duplicates
func (b BugLinks) Add(introducing, fix string) {
	for _, existing := range b[introducing] {
		if existing == fix {
			return
		}
	}
	b[introducing] = append(b[introducing], fix)
}

// IssueStateDeleted is the tombstone state for issues the tracker no longer serves
const IssueStateDeleted = "deleted"

// CachedIssue mirrors an issue-tracker issue
type CachedIssue struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	State     string     `json:"state"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ETag      string     `json:"etag"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Deleted reports whether the issue is a tombstone
func (i *CachedIssue) Deleted() bool {
	return i.State == IssueStateDeleted
}

// ClassMetricRow is one row of external class-metric output
type ClassMetricRow struct {
	File    string            `json:"file"`
	Class   string            `json:"class"`
	Metrics map[string]string `json:"metrics"`
}
