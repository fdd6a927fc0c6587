// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo is a scratch repository on the main branch
type Repo struct {
	t   testing.TB
	Dir string
}

// RequireGit skips the test when git is not installed
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// NewRepo initializes an empty repository in a temp dir
func NewRepo(t testing.TB) *Repo {
	t.Helper()
	RequireGit(t)
	r := &Repo{t: t, Dir: t.TempDir()}
	r.Git(0, "init", "--quiet")
	r.Git(0, "checkout", "--quiet", "-b", "main")
	return r
}

// Git runs git in the repository with author and committer time set to ts
// (unix seconds, 0 = now) and returns trimmed stdout.
func (r *Repo) Git(ts int64, args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_NOSYSTEM=1",
		"HOME="+r.Dir,
		"GIT_AUTHOR_NAME=Test Author",
		"GIT_AUTHOR_EMAIL=author@example.com",
		"GIT_COMMITTER_NAME=Test Author",
		"GIT_COMMITTER_EMAIL=author@example.com",
	)
	if ts > 0 {
		date := fmt.Sprintf("@%d +0000", ts)
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_DATE="+date, "GIT_COMMITTER_DATE="+date)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Write creates or replaces a file relative to the repository root
func (r *Repo) Write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.Dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		r.t.Fatal(err)
	}
}

// Commit stages everything and commits at ts, returning the new hash
func (r *Repo) Commit(ts int64, message string) string {
	r.t.Helper()
	r.Git(ts, "add", "-A")
	r.Git(ts, "commit", "--quiet", "--allow-empty", "-m", message)
	return r.Git(0, "rev-parse", "HEAD")
}
