package git

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rohankatakam/commitguru/internal/gitlog"
)

// ResolveRef returns the full commit hash ref points to
func (s *Service) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := s.runString(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		if isExitError(err) {
			return "", fmt.Errorf("resolve %s: %w", ref, withKind(err, ErrUnknownRevision))
		}
		return "", err
	}
	return out, nil
}

// FirstParent returns the first parent of hash, or ErrNoParent for a root
// commit.
func (s *Service) FirstParent(ctx context.Context, hash string) (string, error) {
	out, err := s.runString(ctx, "rev-list", "--parents", "-n", "1", hash)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", ErrNoParent
	}
	return fields[1], nil
}

// CommitExists reports whether hash names a commit in the local object store
func (s *Service) CommitExists(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	_, err := s.run(ctx, "cat-file", "-e", hash+"^{commit}")
	if err == nil {
		return true, nil
	}
	if isExitError(err) {
		return false, nil
	}
	return false, err
}

// LatestCommitBefore returns the newest commit reachable from rev whose
// commit time is strictly before ts. It returns "" when there is none.
func (s *Service) LatestCommitBefore(ctx context.Context, rev string, ts int64) (string, error) {
	out, err := s.runString(ctx, "rev-list", "-n", "1", fmt.Sprintf("--before=@%d +0000", ts-1), rev)
	if err != nil {
		return "", err
	}
	return out, nil
}

// CountCommits returns the number of commits reachable from rev
func (s *Service) CountCommits(ctx context.Context, rev string) (int, error) {
	if rev == "" {
		rev = "HEAD"
	}
	out, err := s.runString(ctx, "rev-list", "--count", rev)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("rev-list --count: unexpected output %q", out)
	}
	return n, nil
}

// Log streams the parseable log transcript for revisionRange, oldest first
func (s *Service) Log(ctx context.Context, revisionRange string) (io.ReadCloser, error) {
	return s.stream(ctx, gitlog.LogArgs(revisionRange)...)
}

// withKind tags an unclassified command error with kind
func withKind(err error, kind error) error {
	if ce, ok := err.(*CommandError); ok && ce.kind == nil {
		ce.kind = kind
	}
	return err
}
