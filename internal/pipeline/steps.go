package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/git"
	"github.com/rohankatakam/commitguru/internal/github"
	"github.com/rohankatakam/commitguru/internal/gitlog"
	"github.com/rohankatakam/commitguru/internal/linker"
	"github.com/rohankatakam/commitguru/internal/metrics"
	"github.com/rohankatakam/commitguru/internal/models"
	"github.com/rohankatakam/commitguru/internal/notify"
	"github.com/rohankatakam/commitguru/internal/observability"
	"github.com/rohankatakam/commitguru/internal/storage"
)

const defaultBatchSize = 500

// prepareRepository brings the working copy up to date and finds the
// default branch
type prepareRepository struct{}

func (prepareRepository) Name() string { return "prepare-repository" }

func (prepareRepository) Run(ctx context.Context, c *Context) error {
	if c.Job.RepoURL != "" {
		if err := c.Repo.CloneOrUpdate(ctx, c.Job.RepoURL); err != nil {
			return apperrors.VCSErrorf(err, "failed to clone or update %s", c.Job.RepoURL)
		}
	} else if _, err := c.Repo.ResolveRef(ctx, "HEAD"); err != nil {
		return apperrors.VCSErrorf(err, "no usable working copy at %s", c.Repo.Dir())
	}

	branch, err := c.Repo.DefaultBranch(ctx)
	if err != nil {
		return apperrors.VCSErrorf(err, "failed to determine default branch")
	}
	c.DefaultBranch = branch
	c.Logger().WithField("branch", branch).Debug("repository ready")
	return nil
}

// resolveCommits turns the requested revisions into full hashes
type resolveCommits struct{}

func (resolveCommits) Name() string { return "resolve-commits" }

func (resolveCommits) Run(ctx context.Context, c *Context) error {
	if c.Job.TargetHash == "" {
		return apperrors.ValidationErrorf("single-commit job without target commit")
	}
	target, err := c.Repo.ResolveRef(ctx, c.Job.TargetHash)
	if err != nil {
		return apperrors.VCSErrorf(err, "failed to resolve %s", c.Job.TargetHash)
	}
	c.TargetHash = target

	if c.Job.ParentHash != "" {
		parent, err := c.Repo.ResolveRef(ctx, c.Job.ParentHash)
		if err != nil {
			return apperrors.VCSErrorf(err, "failed to resolve %s", c.Job.ParentHash)
		}
		c.ParentHash = parent
		return nil
	}

	parent, err := c.Repo.FirstParent(ctx, target)
	switch {
	case errors.Is(err, git.ErrNoParent):
		c.Logger().WithField("commit", target).Info("root commit, no parent to compare")
	case err != nil:
		return apperrors.VCSErrorf(err, "failed to find parent of %s", target)
	default:
		c.ParentHash = parent
	}
	return nil
}

// verifyCommits fails the job when a resolved commit is not in the object store
type verifyCommits struct{}

func (verifyCommits) Name() string { return "verify-commits" }

func (verifyCommits) Run(ctx context.Context, c *Context) error {
	for _, hash := range []string{c.TargetHash, c.ParentHash} {
		if hash == "" {
			continue
		}
		ok, err := c.Repo.CommitExists(ctx, hash)
		if err != nil {
			return apperrors.VCSErrorf(err, "failed to verify %s", hash)
		}
		if !ok {
			return apperrors.VCSErrorf(git.ErrUnknownRevision, "commit %s not found", hash)
		}
	}
	return nil
}

// computeMetrics streams the log through the aggregator
type computeMetrics struct{}

func (computeMetrics) Name() string { return "compute-metrics" }

func (computeMetrics) Run(ctx context.Context, c *Context) error {
	rev := c.DefaultBranch
	if c.Job.Mode == ModeSingleCommit {
		rev = c.TargetHash
	}

	total, err := c.Repo.CountCommits(ctx, rev)
	if err != nil {
		c.Warn("failed to count commits of %s: %v", rev, err)
	}

	var keep map[string]bool
	if c.Job.Mode == ModeSingleCommit {
		keep = map[string]bool{c.TargetHash: true}
		if c.ParentHash != "" {
			keep[c.ParentHash] = true
		}
	}

	vectors, err := aggregateLog(ctx, c, rev, keep, total)
	if err != nil {
		return err
	}

	// an explicit parent outside the target's ancestry gets its own pass
	if c.ParentHash != "" && keep != nil && !containsVector(vectors, c.ParentHash) {
		parentVectors, err := aggregateLog(ctx, c, c.ParentHash, map[string]bool{c.ParentHash: true}, 0)
		if err != nil {
			return err
		}
		vectors = append(parentVectors, vectors...)
	}

	c.Vectors = vectors
	c.Logger().WithField("commits", len(vectors)).Info("metrics computed")
	return nil
}

func aggregateLog(ctx context.Context, c *Context, rev string, keep map[string]bool, total int) ([]*models.CommitMetricVector, error) {
	rc, err := c.Repo.Log(ctx, rev)
	if err != nil {
		return nil, apperrors.VCSErrorf(err, "failed to start git log")
	}

	agg := metrics.NewAggregator(metrics.Options{
		FixKeywords:  c.deps.FixKeywords,
		WeightedREXP: c.deps.WeightedREXP,
	})
	reader := gitlog.NewReader(rc, c.Logger())

	var vectors []*models.CommitMetricVector
	done := 0
	for reader.Next() {
		v := agg.Aggregate(reader.Commit())
		done++
		observability.CommitsProcessed.Inc()
		if keep == nil || keep[v.Hash] {
			vectors = append(vectors, v)
		}
		if total > 0 && done%100 == 0 {
			c.SubProgress(done, total)
		}
	}
	closeErr := rc.Close()

	for _, w := range reader.Warnings() {
		c.Warn("%s", w)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, apperrors.VCSErrorf(closeErr, "git log failed")
	}
	c.SubProgress(done, done)
	return vectors, nil
}

func containsVector(vectors []*models.CommitMetricVector, hash string) bool {
	for _, v := range vectors {
		if v.Hash == hash {
			return true
		}
	}
	return false
}

// persistMetricsAndLinkIssues upserts the vectors in batches and links each
// commit to the issues its message references
type persistMetricsAndLinkIssues struct{}

func (persistMetricsAndLinkIssues) Name() string { return "persist-metrics-and-link-issues" }

func (persistMetricsAndLinkIssues) Run(ctx context.Context, c *Context) error {
	store := c.deps.Store
	batchSize := c.deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	for start := 0; start < len(c.Vectors); start += batchSize {
		end := start + batchSize
		if end > len(c.Vectors) {
			end = len(c.Vectors)
		}
		ids, err := store.UpsertCommitMetrics(ctx, c.Job.RepoID, c.Vectors[start:end])
		if err != nil {
			return err
		}
		for hash, id := range ids {
			c.CommitIDs[hash] = id
		}
		c.SubProgress(end, len(c.Vectors))
	}

	for _, v := range c.Vectors {
		if v.Fix {
			c.FixCommits[v.Hash] = nil
		}
	}

	fetcher := issueFetcher(ctx, c)
	if fetcher == nil {
		return nil
	}
	for _, v := range c.Vectors {
		if len(v.IssueRefs) == 0 {
			continue
		}
		var issueIDs []int64
		for _, number := range v.IssueRefs {
			id, ok, err := resolveIssue(ctx, c, fetcher, number)
			if err != nil {
				return err
			}
			if ok {
				issueIDs = append(issueIDs, id)
			}
		}
		if len(issueIDs) == 0 {
			continue
		}
		if err := store.LinkIssuesToCommit(ctx, c.CommitIDs[v.Hash], issueIDs); err != nil {
			return err
		}
		c.IssuesLinked += len(issueIDs)
	}
	return nil
}

// issueFetcher returns nil when issue linking is off or the tracker
// repository cannot be determined
func issueFetcher(ctx context.Context, c *Context) IssueFetcher {
	if c.deps.Issues == nil {
		return nil
	}
	owner, repo := c.Job.IssueOwner, c.Job.IssueRepo
	if owner == "" || repo == "" {
		url := c.Job.RepoURL
		if url == "" {
			remote, err := c.Repo.RemoteURL(ctx)
			if err != nil {
				c.Warn("issue linking skipped: no remote URL: %v", err)
				return nil
			}
			url = remote
		}
		var err error
		owner, repo, err = git.ParseRemoteURL(url)
		if err != nil {
			c.Warn("issue linking skipped: %v", err)
			return nil
		}
	}

	fetcher, err := c.deps.Issues(owner, repo)
	if err != nil {
		c.Warn("issue linking skipped: %v", err)
		return nil
	}
	return fetcher
}

// resolveIssue returns the stored row id of issue number, fetching it at
// most once per job. Fetch failures fall back to the cached copy.
func resolveIssue(ctx context.Context, c *Context, fetcher IssueFetcher, number int) (int64, bool, error) {
	if id, ok := c.issues[number]; ok {
		return id, id != 0, nil
	}

	cached, err := c.deps.Store.GetIssue(ctx, c.Job.RepoID, number)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, false, err
	}

	issue, err := fetcher.Fetch(ctx, number, cached)
	if err != nil {
		var fetchErr *github.FetchError
		if !errors.As(err, &fetchErr) && ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if cached == nil {
			c.Warn("issue #%d unavailable: %v", number, err)
			c.issues[number] = 0
			return 0, false, nil
		}
		c.Warn("issue #%d fetch failed, using cached copy: %v", number, err)
		issue = cached
	}

	// cached rows are re-saved unchanged to learn their row id
	id, err := c.deps.Store.SaveIssue(ctx, c.Job.RepoID, issue)
	if err != nil {
		return 0, false, err
	}
	c.issues[number] = id
	return id, true, nil
}

// linkBugs runs the SZZ-style linker over every fix commit of the repository
type linkBugs struct{}

func (linkBugs) Name() string { return "link-bugs" }

func (linkBugs) Run(ctx context.Context, c *Context) error {
	store := c.deps.Store
	refs, err := store.ListFixCommits(ctx, c.Job.RepoID)
	if err != nil {
		return err
	}

	fixes := make(map[string]*time.Time, len(refs))
	for _, ref := range refs {
		ts, err := store.GetEarliestLinkedIssueTimestamp(ctx, ref.ID)
		if err != nil {
			return err
		}
		fixes[ref.Hash] = ts
	}
	c.FixCommits = fixes

	l := linker.New(c.Repo, c.deps.SourceExtensions,
		linker.WithLogger(c.Logger()),
		linker.WithWarnings(func(msg string) { c.Warn("%s", msg) }))
	links := l.Link(ctx, fixes)
	if ctx.Err() != nil {
		return apperrors.Cancelled(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
	}

	if err := store.UpdateBugFlags(ctx, c.Job.RepoID, links); err != nil {
		return err
	}
	c.BugLinks = links
	c.Logger().WithField("buggy_commits", len(links)).Info("bug-introducing commits linked")
	return nil
}

// runClassMetrics checks out each commit and runs the class-metric tool on it
type runClassMetrics struct{}

func (runClassMetrics) Name() string { return "run-class-metrics" }

func (runClassMetrics) Run(ctx context.Context, c *Context) error {
	if c.deps.ClassMetrics == nil {
		return nil
	}

	hashes := make([]string, 0, len(c.Vectors))
	for _, v := range c.Vectors {
		hashes = append(hashes, v.Hash)
	}

	for i, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled(fmt.Errorf("%w: %w", ErrCancelled, err))
		}
		c.checkedOut = true
		if err := c.Repo.Checkout(ctx, hash); err != nil {
			c.Warn("class metrics skipped for %s: checkout failed: %v", hash, err)
			continue
		}
		rows, err := c.deps.ClassMetrics.Run(ctx, c.Repo.Dir(), hash)
		if err != nil {
			c.Warn("class metrics failed for %s: %v", hash, err)
			continue
		}
		c.ClassMetrics[hash] = rows
		c.SubProgress(i+1, len(hashes))
	}
	return nil
}

// persistClassMetrics stores the rows produced by run-class-metrics
type persistClassMetrics struct{}

func (persistClassMetrics) Name() string { return "persist-class-metrics" }

func (persistClassMetrics) Run(ctx context.Context, c *Context) error {
	hashes := make([]string, 0, len(c.ClassMetrics))
	for hash := range c.ClassMetrics {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	for _, hash := range hashes {
		if err := c.deps.Store.UpsertClassMetrics(ctx, c.Job.RepoID, hash, c.ClassMetrics[hash]); err != nil {
			return err
		}
	}
	return nil
}

// notifyDownstream announces the target commit to consumers
type notifyDownstream struct{}

func (notifyDownstream) Name() string { return "notify-downstream" }

func (notifyDownstream) Run(ctx context.Context, c *Context) error {
	n := c.deps.Notifier
	if n == nil {
		n = notify.NewLogNotifier(c.Logger())
	}
	event := notify.CommitEvent{
		JobID:      c.Job.ID.String(),
		RepoID:     c.Job.RepoID,
		CommitHash: c.TargetHash,
		ParentHash: c.ParentHash,
		CommitID:   c.CommitIDs[c.TargetHash],
		Mode:       c.Job.Mode.String(),
		Warnings:   len(c.Warnings),
		At:         time.Now().UTC(),
	}
	if err := n.Notify(ctx, event); err != nil {
		c.Warn("downstream notification failed: %v", err)
	}
	return nil
}
