// Package linker traces defect-fixing commits back to the commits that
// introduced the lines they changed.
package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/git"
	"github.com/rohankatakam/commitguru/internal/logging"
	"github.com/rohankatakam/commitguru/internal/models"
	"github.com/rohankatakam/commitguru/internal/observability"
)

// GitOps is the subset of git.Service the linker needs
type GitOps interface {
	FirstParent(ctx context.Context, hash string) (string, error)
	LatestCommitBefore(ctx context.Context, rev string, ts int64) (string, error)
	DeletedLines(ctx context.Context, from, to string, filter git.SourceFilter) (map[string][]int, error)
	Blame(ctx context.Context, rev, path string, lines []int) ([]string, error)
}

// Linker runs the diff and blame heuristic over corrective commits
type Linker struct {
	git    GitOps
	filter git.SourceFilter
	logger logrus.FieldLogger
	warn   func(string)
}

// Option configures a Linker
type Option func(*Linker)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithWarnings receives a message for every recovered per-file or
// per-commit failure
func WithWarnings(warn func(string)) Option {
	return func(l *Linker) {
		if warn != nil {
			l.warn = warn
		}
	}
}

// New creates a Linker restricted to files with the given extensions
func New(ops GitOps, extensions []string, opts ...Option) *Linker {
	l := &Linker{
		git:    ops,
		filter: git.NewSourceFilter(extensions),
		logger: logging.Discard(),
		warn:   func(string) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithField("component", "linker")
	return l
}

// Link maps every introducing commit to the corrective commits that fixed
// it. fixes carries, per corrective commit, the earliest linked issue time
// or nil. Failures are recovered per commit; Link never aborts the batch.
func (l *Linker) Link(ctx context.Context, fixes map[string]*time.Time) models.BugLinks {
	links := make(models.BugLinks)

	hashes := make([]string, 0, len(fixes))
	for h := range fixes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	for _, fix := range hashes {
		if ctx.Err() != nil {
			l.warnf("bug linking interrupted before %s: %v", fix, ctx.Err())
			break
		}
		introducing, err := l.analyze(ctx, fix, fixes[fix])
		if err != nil {
			observability.LinkerFailures.Inc()
			l.warnf("bug linking skipped %s: %v", fix, err)
			continue
		}
		for _, h := range introducing {
			links.Add(h, fix)
		}
	}
	return links
}

// analyze returns the introducing commits of one corrective commit
func (l *Linker) analyze(ctx context.Context, fix string, issueTime *time.Time) (introducing []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("commit", fix).Errorf("panic in bug analysis: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	log := l.logger.WithField("commit", fix)

	parent, err := l.git.FirstParent(ctx, fix)
	if err != nil {
		return nil, fmt.Errorf("first parent: %w", err)
	}

	// The parent start is passed to blame as "<fix>^", so only a start found
	// by timestamp is ever excluded as a blamed hash.
	parentRev := fix + "^"
	start, source := parentRev, "parent"
	if issueTime != nil {
		before, err := l.git.LatestCommitBefore(ctx, fix, issueTime.Unix())
		switch {
		case err != nil:
			log.WithError(err).Debug("timestamp lookup failed, using first parent")
		case before == fix:
			// issue opened after the fix; blaming the fix's own tree would
			// misplace the parent-side line numbers
			log.Debug("issue newer than fix, using first parent")
		case before != "":
			start, source = before, "timestamp"
		}
	}

	deleted, err := l.git.DeletedLines(ctx, parent, fix, l.filter)
	if err != nil {
		return nil, fmt.Errorf("diff against first parent: %w", err)
	}

	paths := make([]string, 0, len(deleted))
	for p := range deleted {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seen := make(map[string]struct{})
	for _, path := range paths {
		lines := deleted[path]
		rev := start
		blamed, err := l.git.Blame(ctx, rev, path, lines)
		if err != nil && stderrors.Is(err, git.ErrPathNotFound) && source == "timestamp" {
			log.WithField("path", path).Debug("path missing at timestamp revision, retrying from first parent")
			rev = parentRev
			blamed, err = l.git.Blame(ctx, rev, path, lines)
		}
		if err != nil {
			l.warnf("blame %s at %s for fix %s: %v", path, rev, fix, err)
			continue
		}

		for _, h := range blamed {
			if h == fix || h == rev {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			introducing = append(introducing, h)
		}
	}

	if len(introducing) > 0 {
		observability.BugLinks.WithLabelValues(source).Add(float64(len(introducing)))
		log.WithFields(logrus.Fields{
			"introducing": len(introducing),
			"start":       source,
		}).Debug("linked corrective commit")
	}
	return introducing, nil
}

func (l *Linker) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Warn(msg)
	l.warn(msg)
}
