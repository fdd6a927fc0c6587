package git

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CloneOrUpdate makes the working copy a full, clean clone of url on its
// default branch. An existing clone is fetched and hard reset; a missing or
// broken one is removed and cloned again.
func (s *Service) CloneOrUpdate(ctx context.Context, url string) error {
	log := s.logger.WithField("url", url)

	if s.isValidRepo(ctx) {
		err := s.update(ctx)
		if err == nil {
			log.Debug("working copy updated")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("working copy unusable, re-cloning")
	}

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove working copy %s: %w", s.dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.dir), 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	if _, err := s.runIn(ctx, filepath.Dir(s.dir), "clone", "--no-single-branch", url, s.dir); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	log.Info("repository cloned")
	return nil
}

func (s *Service) update(ctx context.Context) error {
	if _, err := s.run(ctx, "fetch", "--prune", "--tags", "--force", "origin"); err != nil {
		return err
	}
	branch, err := s.DefaultBranch(ctx)
	if err != nil {
		return err
	}
	if err := s.Checkout(ctx, branch); err != nil {
		return err
	}
	if s.refExists(ctx, "refs/remotes/origin/"+branch) {
		if _, err := s.run(ctx, "reset", "--hard", "origin/"+branch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) isValidRepo(ctx context.Context) bool {
	if info, err := os.Stat(filepath.Join(s.dir, ".git")); err != nil || !info.IsDir() {
		return false
	}
	out, err := s.runString(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || out != "true" {
		return false
	}
	_, err = s.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	return err == nil
}

// Checkout discards local changes and untracked files, then checks out rev
func (s *Service) Checkout(ctx context.Context, rev string) error {
	if _, err := s.run(ctx, "reset", "--hard"); err != nil {
		return err
	}
	if _, err := s.run(ctx, "clean", "-fdx"); err != nil {
		return err
	}
	if _, err := s.run(ctx, "checkout", "--force", rev); err != nil {
		return err
	}
	return nil
}

// DefaultBranch picks main, master, the remote's HEAD, or else the
// lexicographically first remote branch. When nothing matches it fetches
// once and tries again before failing with ErrNoBranch. The result always
// resolves locally: a branch that only exists on the remote is returned as
// "origin/<name>".
func (s *Service) DefaultBranch(ctx context.Context) (string, error) {
	if branch := s.findDefaultBranch(ctx); branch != "" {
		return s.localRevision(ctx, branch), nil
	}
	if s.hasRemote(ctx) {
		if _, err := s.run(ctx, "fetch", "origin"); err != nil {
			return "", err
		}
		if branch := s.findDefaultBranch(ctx); branch != "" {
			return s.localRevision(ctx, branch), nil
		}
	}
	return "", ErrNoBranch
}

func (s *Service) localRevision(ctx context.Context, branch string) string {
	if s.refExists(ctx, "refs/heads/"+branch) {
		return branch
	}
	return "origin/" + branch
}

func (s *Service) findDefaultBranch(ctx context.Context) string {
	for _, name := range []string{"main", "master"} {
		if s.refExists(ctx, "refs/heads/"+name) || s.refExists(ctx, "refs/remotes/origin/"+name) {
			return name
		}
	}

	if ref, err := s.runString(ctx, "symbolic-ref", "--quiet", "refs/remotes/origin/HEAD"); err == nil && ref != "" {
		return strings.TrimPrefix(ref, "refs/remotes/origin/")
	}

	out, err := s.runString(ctx, "for-each-ref", "--format=%(refname)", "refs/remotes/origin")
	if err != nil || out == "" {
		return ""
	}
	var branches []string
	for _, ref := range strings.Split(out, "\n") {
		name := strings.TrimPrefix(strings.TrimSpace(ref), "refs/remotes/origin/")
		if name == "" || name == "HEAD" {
			continue
		}
		branches = append(branches, name)
	}
	if len(branches) == 0 {
		return ""
	}
	sort.Strings(branches)
	return branches[0]
}

func (s *Service) refExists(ctx context.Context, ref string) bool {
	_, err := s.run(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}

func (s *Service) hasRemote(ctx context.Context) bool {
	out, err := s.runString(ctx, "remote")
	if err != nil {
		return false
	}
	for _, r := range strings.Fields(out) {
		if r == "origin" {
			return true
		}
	}
	return false
}

// RemoteURL returns the origin URL
func (s *Service) RemoteURL(ctx context.Context) (string, error) {
	return s.runString(ctx, "config", "--get", "remote.origin.url")
}

// RepoDirName derives a stable directory name for a repository URL
func RepoDirName(url string) string {
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimSuffix(url, "/")

	h := sha256.New()
	h.Write([]byte(url))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
