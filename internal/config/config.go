package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/commitguru/internal/logging"
)

// Config holds all configuration settings
type Config struct {
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	GitHub        GitHubConfig        `yaml:"github" mapstructure:"github"`
	Git           GitConfig           `yaml:"git" mapstructure:"git"`
	Metrics       MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
	ClassMetrics  ClassMetricsConfig  `yaml:"class_metrics" mapstructure:"class_metrics"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Notify        NotifyConfig        `yaml:"notify" mapstructure:"notify"`
	Logging       logging.Config      `yaml:"logging" mapstructure:"logging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "postgres", "sqlite"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type GitHubConfig struct {
	Token       string        `yaml:"token" mapstructure:"token"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`     // empty = api.github.com
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`
	ResetBuffer time.Duration `yaml:"reset_buffer" mapstructure:"reset_buffer"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type GitConfig struct {
	Binary           string   `yaml:"binary" mapstructure:"binary"`
	WorkspaceDir     string   `yaml:"workspace_dir" mapstructure:"workspace_dir"`
	SourceExtensions []string `yaml:"source_extensions" mapstructure:"source_extensions"`
}

type MetricsConfig struct {
	FixKeywords  []string `yaml:"fix_keywords" mapstructure:"fix_keywords"`
	WeightedREXP bool     `yaml:"weighted_rexp" mapstructure:"weighted_rexp"`
}

type ClassMetricsConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Executable string        `yaml:"executable" mapstructure:"executable"`
	Args       []string      `yaml:"args" mapstructure:"args"`
	OutputDir  string        `yaml:"output_dir" mapstructure:"output_dir"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type PipelineConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

type NotifyConfig struct {
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"` // empty = log only
	Channel   string `yaml:"channel" mapstructure:"channel"`
}

type ObservabilityConfig struct {
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"` // empty = disabled
}

// DefaultSourceExtensions are the file extensions the bug linker considers source code
var DefaultSourceExtensions = []string{
	".c", ".cc", ".cpp", ".cs", ".go", ".h", ".hpp", ".java", ".js", ".jsx",
	".kt", ".php", ".py", ".rb", ".rs", ".scala", ".swift", ".ts", ".tsx",
}

// DefaultFixKeywords mark a commit message as corrective
var DefaultFixKeywords = []string{"fix", "bug", "defect", "wrong", "fail", "problem"}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".commitguru", "commitguru.db"),
		},
		GitHub: GitHubConfig{
			RateLimit:   1,
			MaxRetries:  3,
			ResetBuffer: 5 * time.Second,
			Timeout:     30 * time.Second,
		},
		Git: GitConfig{
			Binary:           "git",
			WorkspaceDir:     filepath.Join(homeDir, ".commitguru", "repos"),
			SourceExtensions: append([]string(nil), DefaultSourceExtensions...),
		},
		Metrics: MetricsConfig{
			FixKeywords: append([]string(nil), DefaultFixKeywords...),
		},
		ClassMetrics: ClassMetricsConfig{
			OutputDir: filepath.Join(homeDir, ".commitguru", "class-metrics"),
			Timeout:   30 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Workers:   1,
			BatchSize: 500,
		},
		Notify: NotifyConfig{
			Channel: "commitguru:commits",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("COMMITGURU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".commitguru")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".commitguru"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Git.WorkspaceDir = expandPath(cfg.Git.WorkspaceDir)
	cfg.ClassMetrics.OutputDir = expandPath(cfg.ClassMetrics.OutputDir)

	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can resolve
// COMMITGURU_<SECTION>_<KEY> variables.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)

	v.SetDefault("github.token", cfg.GitHub.Token)
	v.SetDefault("github.base_url", cfg.GitHub.BaseURL)
	v.SetDefault("github.rate_limit", cfg.GitHub.RateLimit)
	v.SetDefault("github.max_retries", cfg.GitHub.MaxRetries)
	v.SetDefault("github.reset_buffer", cfg.GitHub.ResetBuffer)
	v.SetDefault("github.timeout", cfg.GitHub.Timeout)

	v.SetDefault("git.binary", cfg.Git.Binary)
	v.SetDefault("git.workspace_dir", cfg.Git.WorkspaceDir)
	v.SetDefault("git.source_extensions", cfg.Git.SourceExtensions)

	v.SetDefault("metrics.fix_keywords", cfg.Metrics.FixKeywords)
	v.SetDefault("metrics.weighted_rexp", cfg.Metrics.WeightedREXP)

	v.SetDefault("class_metrics.enabled", cfg.ClassMetrics.Enabled)
	v.SetDefault("class_metrics.executable", cfg.ClassMetrics.Executable)
	v.SetDefault("class_metrics.args", cfg.ClassMetrics.Args)
	v.SetDefault("class_metrics.output_dir", cfg.ClassMetrics.OutputDir)
	v.SetDefault("class_metrics.timeout", cfg.ClassMetrics.Timeout)

	v.SetDefault("pipeline.workers", cfg.Pipeline.Workers)
	v.SetDefault("pipeline.batch_size", cfg.Pipeline.BatchSize)

	v.SetDefault("notify.redis_addr", cfg.Notify.RedisAddr)
	v.SetDefault("notify.channel", cfg.Notify.Channel)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.output_file", cfg.Logging.OutputFile)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.json_format", cfg.Logging.JSONFormat)
	v.SetDefault("logging.report_caller", cfg.Logging.ReportCaller)

	v.SetDefault("observability.listen_addr", cfg.Observability.ListenAddr)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".commitguru", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the conventional, unprefixed environment
// variables on top of file and COMMITGURU_* settings.
func applyEnvOverrides(cfg *Config) {
	// Precedence: 1. Env var 2. Config file 3. Keychain
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if cfg.GitHub.Token == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if token, err := km.GetGitHubToken(); err == nil && token != "" {
				cfg.GitHub.Token = token
			}
		}
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			cfg.GitHub.RateLimit = rate
		}
	}
	if base := os.Getenv("GITHUB_API_URL"); base != "" {
		cfg.GitHub.BaseURL = base
	}

	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = path
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Notify.RedisAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("storage", c.Storage)
	v.Set("github", c.GitHub)
	v.Set("git", c.Git)
	v.Set("metrics", c.Metrics)
	v.Set("class_metrics", c.ClassMetrics)
	v.Set("pipeline", c.Pipeline)
	v.Set("notify", c.Notify)
	v.Set("logging", c.Logging)
	v.Set("observability", c.Observability)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
