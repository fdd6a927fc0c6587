package git

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/commitguru/internal/gitlog"
	"github.com/rohankatakam/commitguru/internal/testutil"
)

const day = 86400

func TestRevisionQueries(t *testing.T) {
	repo := testutil.NewRepo(t)
	ctx := context.Background()

	repo.Write("src/a.go", "package a\n\nfunc A() {}\n")
	c1 := repo.Commit(1_000_000_000, "first")
	repo.Write("src/a.go", "package a\n\nfunc A() { panic(1) }\n")
	c2 := repo.Commit(1_000_000_000+10*day, "second")

	svc := NewService(repo.Dir)

	head, err := svc.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, c2, head)

	_, err = svc.ResolveRef(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, ErrUnknownRevision), "got %v", err)

	parent, err := svc.FirstParent(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, c1, parent)

	_, err = svc.FirstParent(ctx, c1)
	assert.ErrorIs(t, err, ErrNoParent)

	ok, err := svc.CommitExists(ctx, c1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.CommitExists(ctx, strings.Repeat("0", 40))
	require.NoError(t, err)
	assert.False(t, ok)

	before, err := svc.LatestCommitBefore(ctx, c2, 1_000_000_000+5*day)
	require.NoError(t, err)
	assert.Equal(t, c1, before)

	// strictly before: a commit at exactly ts does not qualify
	before, err = svc.LatestCommitBefore(ctx, c2, 1_000_000_000)
	require.NoError(t, err)
	assert.Empty(t, before)

	n, err := svc.CountCommits(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	branch, err := svc.DefaultBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestLogStreamsParseableTranscript(t *testing.T) {
	repo := testutil.NewRepo(t)
	ctx := context.Background()

	repo.Write("a.go", "package a\n")
	c1 := repo.Commit(1_000_000_000, "first")
	repo.Write("pkg/b.go", "package pkg\n\nvar B = 1\n")
	c2 := repo.Commit(1_000_000_000+day, "second")

	rc, err := NewService(repo.Dir).Log(ctx, "")
	require.NoError(t, err)
	commits, warnings, err := gitlog.ParseAll(rc, nil)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Empty(t, warnings)
	require.Len(t, commits, 2)
	assert.Equal(t, c1, commits[0].Hash, "oldest first")
	assert.Equal(t, c2, commits[1].Hash)
	assert.Equal(t, int64(1_000_000_000+day), commits[1].Timestamp)
	assert.Equal(t, "Test Author", commits[1].AuthorName)
	require.Len(t, commits[1].Files, 1)
	assert.Equal(t, "pkg/b.go", commits[1].Files[0].Path)
	assert.Equal(t, 3, commits[1].Files[0].Added)
}

func TestLogCloseReportsFailure(t *testing.T) {
	repo := testutil.NewRepo(t)
	repo.Write("a.go", "package a\n")
	repo.Commit(0, "first")

	rc, err := NewService(repo.Dir).Log(context.Background(), "no-such-branch")
	require.NoError(t, err)
	io.Copy(io.Discard, rc)
	err = rc.Close()
	require.Error(t, err)
	var cmdErr *CommandError
	assert.True(t, errors.As(err, &cmdErr))
}

func TestDiffAndBlame(t *testing.T) {
	repo := testutil.NewRepo(t)
	ctx := context.Background()

	repo.Write("src/calc.py", "def add(a, b):\n    return a - b\n\ndef sub(a, b):\n    return a - b\n")
	c1 := repo.Commit(1_000_000_000, "add calculator")
	repo.Write("src/calc.py", "def add(a, b):\n    return a + b\n\ndef sub(a, b):\n    return a - b\n")
	repo.Write("README.md", "calc\n")
	c2 := repo.Commit(1_000_000_000+day, "fix add")

	svc := NewService(repo.Dir)
	deleted, err := svc.DeletedLines(ctx, c1, c2, NewSourceFilter([]string{".py"}))
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"src/calc.py": {2}}, deleted)

	hashes, err := svc.Blame(ctx, c1, "src/calc.py", []int{2})
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, hashes)

	_, err = svc.Blame(ctx, c1, "src/missing.py", []int{1})
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestCloneOrUpdate(t *testing.T) {
	origin := testutil.NewRepo(t)
	ctx := context.Background()

	origin.Write("a.go", "package a\n")
	first := origin.Commit(0, "first")

	dir := filepath.Join(t.TempDir(), "work", RepoDirName(origin.Dir))
	svc := NewService(dir)
	require.NoError(t, svc.CloneOrUpdate(ctx, origin.Dir))

	head, err := svc.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, first, head)

	// new upstream commit plus local garbage: update fetches and cleans
	origin.Write("b.go", "package a\n")
	second := origin.Commit(0, "second")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("dirty"), 0644))

	require.NoError(t, svc.CloneOrUpdate(ctx, origin.Dir))
	head, err = svc.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, second, head)
	_, err = os.Stat(filepath.Join(dir, "junk.txt"))
	assert.True(t, os.IsNotExist(err))

	// corrupted clone is replaced
	require.NoError(t, os.RemoveAll(filepath.Join(dir, ".git", "objects")))
	require.NoError(t, svc.CloneOrUpdate(ctx, origin.Dir))
	head, err = svc.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, second, head)

	url, err := svc.RemoteURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, origin.Dir, url)
}

func TestCheckoutRestoresPristineTree(t *testing.T) {
	repo := testutil.NewRepo(t)
	ctx := context.Background()
	repo.Write("a.go", "v1\n")
	c1 := repo.Commit(0, "v1")
	repo.Write("a.go", "v2\n")
	repo.Commit(0, "v2")

	svc := NewService(repo.Dir)
	repo.Write("a.go", "local edit\n")
	repo.Write("untracked.txt", "x")

	require.NoError(t, svc.Checkout(ctx, c1))
	data, err := os.ReadFile(filepath.Join(repo.Dir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data))
	_, err = os.Stat(filepath.Join(repo.Dir, "untracked.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultBranchFallsBackToFirstRemoteBranch(t *testing.T) {
	origin := testutil.NewRepo(t)
	ctx := context.Background()
	origin.Git(0, "symbolic-ref", "HEAD", "refs/heads/trunk")
	origin.Write("a.go", "x\n")
	origin.Commit(0, "x")
	origin.Git(0, "branch", "--quiet", "develop")

	clone := testutil.NewRepo(t)
	clone.Git(0, "remote", "add", "origin", origin.Dir)
	clone.Git(0, "fetch", "--quiet", "origin")

	branch, err := NewService(clone.Dir).DefaultBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "origin/develop", branch)
}

func TestDefaultBranchOnlyOnRemoteResolvesLocally(t *testing.T) {
	origin := testutil.NewRepo(t)
	ctx := context.Background()
	origin.Write("a.go", "x\n")
	first := origin.Commit(1_000_000_000, "x")
	origin.Git(0, "checkout", "--quiet", "-b", "develop")
	origin.Write("b.go", "y\n")
	origin.Commit(1_000_000_000+day, "y")

	svc := NewService(filepath.Join(t.TempDir(), "clone"))
	require.NoError(t, svc.CloneOrUpdate(ctx, origin.Dir))

	branch, err := svc.DefaultBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "origin/main", branch)

	head, err := svc.ResolveRef(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, first, head)

	n, err := svc.CountCommits(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rc, err := svc.Log(ctx, branch)
	require.NoError(t, err)
	commits, _, err := gitlog.ParseAll(rc, nil)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Len(t, commits, 1)
	assert.Equal(t, first, commits[0].Hash)

	// a second update must keep working with the remote-only branch
	require.NoError(t, svc.CloneOrUpdate(ctx, origin.Dir))
	head, err = svc.ResolveRef(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, first, head)
}

func TestDefaultBranchNone(t *testing.T) {
	repo := testutil.NewRepo(t)
	_, err := NewService(repo.Dir).DefaultBranch(context.Background())
	assert.ErrorIs(t, err, ErrNoBranch)
}
