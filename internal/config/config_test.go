package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	keyring.MockInit()
	t.Setenv("GITHUB_TOKEN", "")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 3, cfg.GitHub.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.GitHub.ResetBuffer)
	assert.Equal(t, DefaultFixKeywords, cfg.Metrics.FixKeywords)
	assert.Contains(t, cfg.Git.SourceExtensions, ".go")
	assert.False(t, cfg.Metrics.WeightedREXP)
}

func TestLoadFromFile(t *testing.T) {
	keyring.MockInit()
	path := writeConfig(t, `
storage:
  type: postgres
  postgres_dsn: postgres://miner@db:5432/guru
github:
  max_retries: 5
  reset_buffer: 2s
git:
  source_extensions: [".py", ".java"]
metrics:
  weighted_rexp: true
pipeline:
  workers: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://miner@db:5432/guru", cfg.Storage.PostgresDSN)
	assert.Equal(t, 5, cfg.GitHub.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.GitHub.ResetBuffer)
	assert.Equal(t, []string{".py", ".java"}, cfg.Git.SourceExtensions)
	assert.True(t, cfg.Metrics.WeightedREXP)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	// untouched sections keep defaults
	assert.Equal(t, 500, cfg.Pipeline.BatchSize)
}

func TestEnvOverrides(t *testing.T) {
	keyring.MockInit()
	t.Setenv("GITHUB_TOKEN", "ghp_from_env")
	t.Setenv("POSTGRES_DSN", "postgres://env@db/guru")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("COMMITGURU_GITHUB_MAX_RETRIES", "7")

	cfg, err := Load(writeConfig(t, "storage:\n  type: postgres\n"))
	require.NoError(t, err)

	assert.Equal(t, "ghp_from_env", cfg.GitHub.Token)
	assert.Equal(t, "postgres://env@db/guru", cfg.Storage.PostgresDSN)
	assert.Equal(t, "localhost:6379", cfg.Notify.RedisAddr)
	assert.Equal(t, 7, cfg.GitHub.MaxRetries)
}

func TestTokenFallsBackToKeychain(t *testing.T) {
	keyring.MockInit()
	t.Setenv("GITHUB_TOKEN", "")
	require.NoError(t, NewKeyringManager().SetGitHubToken("ghp_from_keychain"))
	defer NewKeyringManager().DeleteGitHubToken()

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "ghp_from_keychain", cfg.GitHub.Token)
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "repos"), expandPath("~/repos"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.Equal(t, "", expandPath(""))
}
