package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/commitguru/internal/classmetrics"
	"github.com/rohankatakam/commitguru/internal/config"
	"github.com/rohankatakam/commitguru/internal/git"
	"github.com/rohankatakam/commitguru/internal/github"
	"github.com/rohankatakam/commitguru/internal/notify"
	"github.com/rohankatakam/commitguru/internal/observability"
	"github.com/rohankatakam/commitguru/internal/pipeline"
	"github.com/rohankatakam/commitguru/internal/storage"
)

type runOptions struct {
	repoURLs   []string
	repoID     string
	workDir    string
	mode       string
	target     string
	parent     string
	issueRepo  string
	workers    int
	reportPath string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mine one or more repositories",
	Long: `Run a mining job per repository.

Each --repo-url is cloned (or updated) into its own directory under the
configured workspace and mined independently; --workers jobs run at once.
Without --repo-url, --workdir names an existing working copy to mine.`,
	Example: `  commitguru run --repo-url https://github.com/acme/api.git
  commitguru run --repo-url https://github.com/acme/api.git --mode single-commit --target 3f2a9c1
  commitguru run --repo-url URL1 --repo-url URL2 --workers 2 --report report.yaml`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&runOpts.repoURLs, "repo-url", nil, "Repository to clone and mine (repeatable)")
	f.StringVar(&runOpts.repoID, "repo-id", "", "Repository identifier in storage (default: owner/name from the URL)")
	f.StringVar(&runOpts.workDir, "workdir", "", "Existing working copy to mine instead of cloning")
	f.StringVar(&runOpts.mode, "mode", pipeline.ModeFullHistory.String(), "full-history or single-commit")
	f.StringVar(&runOpts.target, "target", "", "Commit to analyze in single-commit mode")
	f.StringVar(&runOpts.parent, "parent", "", "Parent to compare against (default: first parent of --target)")
	f.StringVar(&runOpts.issueRepo, "issue-repo", "", "Issue tracker repository as owner/name (default: from the remote URL)")
	f.IntVar(&runOpts.workers, "workers", 0, "Concurrent jobs (default: pipeline.workers from config)")
	f.StringVar(&runOpts.reportPath, "report", "", "Write a YAML job summary to this file")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	startTime := time.Now()

	cfg, logger, err := loadConfig(config.ValidationContextRun)
	if err != nil {
		return err
	}
	defer logger.Close()

	jobs, err := buildJobs(runOpts, cfg.Git.WorkspaceDir)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage, logger.Component("storage"))
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	deps, closeDeps, err := buildDeps(ctx, cfg, store, logger.Logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go func() {
		if err := observability.Serve(metricsCtx, cfg.Observability.ListenAddr, logger.Component("observability")); err != nil {
			logger.WithError(err).Error("metrics endpoint failed")
		}
	}()

	workers := runOpts.workers
	if workers <= 0 {
		workers = cfg.Pipeline.Workers
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🚀 commitguru %s\n", Version)
	fmt.Fprintf(out, "   Jobs: %d | Workers: %d | Storage: %s\n\n", len(jobs), workers, cfg.Storage.Type)

	orch := pipeline.NewOrchestrator(deps, pipeline.NewLogReporter(logger.Component("progress")))
	results := make([]*pipeline.Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			result, err := orch.Run(ctx, job)
			if result == nil {
				// only an invalid mode gets here
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := printSummary(out, results)
	fmt.Fprintf(out, "\n   Total time: %v\n", time.Since(startTime).Round(time.Millisecond))

	if runOpts.reportPath != "" {
		if err := writeReport(runOpts.reportPath, results); err != nil {
			return err
		}
		fmt.Fprintf(out, "   Report: %s\n", runOpts.reportPath)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}

// buildJobs turns the command line into one job per repository
func buildJobs(opts runOptions, workspaceDir string) ([]pipeline.Job, error) {
	mode, err := pipeline.ParseMode(opts.mode)
	if err != nil {
		return nil, err
	}
	if mode == pipeline.ModeSingleCommit && opts.target == "" {
		return nil, fmt.Errorf("--target is required in %s mode", mode)
	}
	if mode == pipeline.ModeFullHistory && (opts.target != "" || opts.parent != "") {
		return nil, fmt.Errorf("--target and --parent only apply to %s mode", pipeline.ModeSingleCommit)
	}
	if len(opts.repoURLs) == 0 && opts.workDir == "" {
		return nil, fmt.Errorf("either --repo-url or --workdir is required")
	}
	if len(opts.repoURLs) > 0 && opts.workDir != "" {
		return nil, fmt.Errorf("--repo-url and --workdir are mutually exclusive")
	}
	if len(opts.repoURLs) > 1 && opts.repoID != "" {
		return nil, fmt.Errorf("--repo-id cannot be shared by several repositories")
	}

	var issueOwner, issueRepo string
	if opts.issueRepo != "" {
		parts := strings.Split(opts.issueRepo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("--issue-repo must be owner/name, got %q", opts.issueRepo)
		}
		issueOwner, issueRepo = parts[0], parts[1]
	}

	newJob := func(repoID, url, dir string) pipeline.Job {
		return pipeline.Job{
			RepoID:     repoID,
			RepoURL:    url,
			WorkDir:    dir,
			Mode:       mode,
			TargetHash: opts.target,
			ParentHash: opts.parent,
			IssueOwner: issueOwner,
			IssueRepo:  issueRepo,
		}
	}

	if opts.workDir != "" {
		dir, err := filepath.Abs(opts.workDir)
		if err != nil {
			return nil, err
		}
		repoID := opts.repoID
		if repoID == "" {
			repoID = filepath.Base(dir)
		}
		return []pipeline.Job{newJob(repoID, "", dir)}, nil
	}

	seen := make(map[string]bool)
	jobs := make([]pipeline.Job, 0, len(opts.repoURLs))
	for _, url := range opts.repoURLs {
		repoID := opts.repoID
		if repoID == "" {
			repoID = defaultRepoID(url)
		}
		if seen[repoID] {
			return nil, fmt.Errorf("repository %s given twice", repoID)
		}
		seen[repoID] = true
		jobs = append(jobs, newJob(repoID, url, filepath.Join(workspaceDir, git.RepoDirName(url))))
	}
	return jobs, nil
}

// defaultRepoID is owner/name for hosted remotes and the directory name otherwise
func defaultRepoID(url string) string {
	if owner, repo, err := git.ParseRemoteURL(url); err == nil {
		return owner + "/" + repo
	}
	return strings.TrimSuffix(filepath.Base(strings.TrimSuffix(url, "/")), ".git")
}

func buildDeps(ctx context.Context, cfg *config.Config, store storage.Store, logger *logrus.Logger) (*pipeline.Deps, func(), error) {
	notifier, err := notify.New(ctx, cfg.Notify.RedisAddr, cfg.Notify.Channel, logger)
	if err != nil {
		return nil, nil, err
	}

	deps := &pipeline.Deps{
		Store: store,
		OpenRepository: func(dir string) pipeline.Repository {
			return git.NewService(dir, git.WithBinary(cfg.Git.Binary), git.WithLogger(logger))
		},
		Issues: func(owner, repo string) (pipeline.IssueFetcher, error) {
			client, err := github.NewClient(owner, repo, github.Options{
				Token:       cfg.GitHub.Token,
				BaseURL:     cfg.GitHub.BaseURL,
				RateLimit:   cfg.GitHub.RateLimit,
				MaxRetries:  cfg.GitHub.MaxRetries,
				ResetBuffer: cfg.GitHub.ResetBuffer,
				Timeout:     cfg.GitHub.Timeout,
				Logger:      logger,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Notifier:         notifier,
		Logger:           logger,
		FixKeywords:      cfg.Metrics.FixKeywords,
		WeightedREXP:     cfg.Metrics.WeightedREXP,
		SourceExtensions: cfg.Git.SourceExtensions,
		BatchSize:        cfg.Pipeline.BatchSize,
	}
	if cfg.ClassMetrics.Enabled {
		deps.ClassMetrics = classmetrics.NewRunner(cfg.ClassMetrics, logger)
	}

	closeDeps := func() {
		if err := notifier.Close(); err != nil {
			logger.WithError(err).Warn("failed to close notifier")
		}
	}
	return deps, closeDeps, nil
}

// printSummary writes one line per job and returns the number of failures
func printSummary(out io.Writer, results []*pipeline.Result) int {
	failed := 0
	fmt.Fprintf(out, "📊 Summary:\n")
	for _, r := range results {
		if r == nil {
			continue
		}
		if !r.Succeeded {
			failed++
			fmt.Fprintf(out, "  ✗ %s failed at %s: %s\n", r.RepoID, r.FailedStep, r.Error)
			continue
		}
		fmt.Fprintf(out, "  ✓ %s: %s commits | %s fixes | %s buggy | %s issues | %s class rows (%v)\n",
			r.RepoID,
			humanize.Comma(int64(r.Commits)),
			humanize.Comma(int64(r.FixCommits)),
			humanize.Comma(int64(r.BuggyCommits)),
			humanize.Comma(int64(r.IssuesLinked)),
			humanize.Comma(int64(r.ClassRows)),
			r.Duration.Round(time.Millisecond))
		if n := len(r.Warnings); n > 0 {
			fmt.Fprintf(out, "    ⚠️  %s warnings\n", humanize.Comma(int64(n)))
		}
	}
	return failed
}

type report struct {
	GeneratedAt time.Time          `yaml:"generated_at"`
	Version     string             `yaml:"version"`
	Jobs        []*pipeline.Result `yaml:"jobs"`
}

func writeReport(path string, results []*pipeline.Result) error {
	data, err := yaml.Marshal(report{
		GeneratedAt: time.Now().UTC(),
		Version:     Version,
		Jobs:        results,
	})
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
