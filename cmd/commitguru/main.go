package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/commitguru/internal/config"
	"github.com/rohankatakam/commitguru/internal/logging"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "commitguru",
	Short: "Mine commit histories for defect-prediction metrics",
	Long: `commitguru - commit-mining engine

Walks the history of a git repository and computes, for every commit, the
size, diffusion, history and experience metrics used by just-in-time defect
prediction. Corrective commits are detected from their messages and traced
back to the commits that introduced the defect.

Modes:
  • full-history   every commit on the default branch, plus bug linking
  • single-commit  one commit and its parent, plus a downstream notification`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .commitguru/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.SetVersionTemplate(`commitguru {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(runCmd, schemaCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "commitguru %s\nBuild time: %s\nGit commit: %s\n", Version, BuildTime, GitCommit)
	},
}

// loadConfig loads and validates configuration for vctx and builds the logger
func loadConfig(vctx config.ValidationContext) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	result := cfg.Validate(vctx)
	if result.HasErrors() {
		return nil, nil, fmt.Errorf("%s", result.Error())
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}
