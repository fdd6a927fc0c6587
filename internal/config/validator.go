package config

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/rohankatakam/commitguru/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextRun - mining jobs need storage, git and optionally GitHub
	ValidationContextRun ValidationContext = "run"
	// ValidationContextSchema - schema management only needs storage
	ValidationContextSchema ValidationContext = "schema"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextSchema:
		c.validateStorage(result)
	case ValidationContextRun:
		c.validateStorage(result)
		c.validateGit(result)
		c.validateGitHub(result)
		c.validateMetrics(result)
		c.validateClassMetrics(result)
		c.validatePipeline(result)
	}

	return result
}

// Require validates and converts a failed result into a config error
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", result.Error())
	}
	return nil
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required but not set")
			return
		}
		if !strings.HasPrefix(c.Storage.PostgresDSN, "postgres://") && !strings.HasPrefix(c.Storage.PostgresDSN, "postgresql://") {
			result.AddError("POSTGRES_DSN must start with postgres:// or postgresql://")
		}
		if strings.Contains(c.Storage.PostgresDSN, "sslmode=disable") {
			result.AddWarning("PostgreSQL DSN has sslmode=disable")
		}
	default:
		result.AddError("storage.type must be \"sqlite\" or \"postgres\", got %q", c.Storage.Type)
	}
}

func (c *Config) validateGit(result *ValidationResult) {
	if c.Git.WorkspaceDir == "" {
		result.AddError("git.workspace_dir is required")
	}
	if c.Git.Binary == "" {
		result.AddError("git.binary is required")
	} else if _, err := exec.LookPath(c.Git.Binary); err != nil {
		result.AddError("git executable %q not found: %v", c.Git.Binary, err)
	}
	if len(c.Git.SourceExtensions) == 0 {
		result.AddWarning("git.source_extensions is empty, the bug linker will not blame any file")
	}
	for _, ext := range c.Git.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			result.AddError("source extension %q must start with a dot", ext)
		}
	}
}

func (c *Config) validateGitHub(result *ValidationResult) {
	if c.GitHub.Token == "" {
		result.AddWarning("GITHUB_TOKEN is not set. Unauthenticated requests are limited to 60 per hour.")
	}
	if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive, got %v", c.GitHub.RateLimit)
	}
	if c.GitHub.MaxRetries < 0 {
		result.AddError("github.max_retries must not be negative, got %d", c.GitHub.MaxRetries)
	}
	if c.GitHub.ResetBuffer < 0 {
		result.AddError("github.reset_buffer must not be negative")
	}
	if c.GitHub.BaseURL != "" {
		if u, err := url.Parse(c.GitHub.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			result.AddError("github.base_url %q is not an absolute URL", c.GitHub.BaseURL)
		}
	}
}

func (c *Config) validateMetrics(result *ValidationResult) {
	if len(c.Metrics.FixKeywords) == 0 {
		result.AddWarning("metrics.fix_keywords is empty, no commit will be classified as a fix")
	}
	if c.Metrics.WeightedREXP {
		result.AddWarning("metrics.weighted_rexp is enabled, rexp values differ from the classic Commit Guru output")
	}
}

func (c *Config) validateClassMetrics(result *ValidationResult) {
	if !c.ClassMetrics.Enabled {
		return
	}
	if c.ClassMetrics.Executable == "" {
		result.AddError("class_metrics.executable is required when class metrics are enabled")
	}
	if c.ClassMetrics.OutputDir == "" {
		result.AddError("class_metrics.output_dir is required when class metrics are enabled")
	}
}

func (c *Config) validatePipeline(result *ValidationResult) {
	if c.Pipeline.Workers < 1 {
		result.AddError("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.BatchSize < 1 {
		result.AddError("pipeline.batch_size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
}
