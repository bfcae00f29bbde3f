package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	CacheDir    string `toml:"cache_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
}

// AI contains routing policy and shared backend settings.
type AI struct {
	// Mode selects the routing policy: "cloud", "local", or "hybrid".
	Mode string `toml:"mode"`
	// PrivacyMode forbids any cloud backend selection regardless of mode.
	PrivacyMode bool `toml:"privacy_mode"`
	// MaxAttempts bounds transport-level retries inside a backend call.
	MaxAttempts int `toml:"max_attempts"`
	// UnhealthyAfter is the consecutive-failure count that opens the
	// circuit breaker for a cloud backend.
	UnhealthyAfter int `toml:"unhealthy_after"`
	// CooldownSeconds is how long an unhealthy backend is excluded from
	// selection before a trial request is allowed.
	CooldownSeconds int `toml:"cooldown_seconds"`
	// HealthThreshold is the minimum health score at which hybrid mode
	// still prefers cloud.
	HealthThreshold float64 `toml:"health_threshold"`

	OpenRouter OpenRouter `toml:"openrouter"`
	Gemini     Gemini     `toml:"gemini"`
}

// OpenRouter configures the OpenRouter chat-completions backend.
type OpenRouter struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Gemini configures the Google GenAI backend.
type Gemini struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache configures the content-addressed artifact cache.
type Cache struct {
	Enabled bool `toml:"enabled"`
	// MaxMiB is the strict size budget for cached artifacts.
	MaxMiB int `toml:"max_mib"`
}

// Pipeline configures orchestration timing and retry policy.
type Pipeline struct {
	// StageTimeoutSeconds bounds each stage's wall clock.
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	// StageRetries is the orchestrator-level retry count for retryable
	// stage failures, on top of backend transport retries.
	StageRetries      int    `toml:"stage_retries"`
	NarrationLanguage string `toml:"narration_language"`
}

// QA configures the question-answering layer.
type QA struct {
	Enabled bool `toml:"enabled"`
	// MaxHistory bounds how many prior exchanges are replayed as context.
	MaxHistory int `toml:"max_history"`
}

// Logging contains configuration for log output.
type Logging struct {
	// Format is "console", "json", or "auto" (console on a TTY, json otherwise).
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for codecast.
type Config struct {
	Paths    Paths    `toml:"paths"`
	AI       AI       `toml:"ai"`
	Cache    Cache    `toml:"cache"`
	Pipeline Pipeline `toml:"pipeline"`
	QA       QA       `toml:"qa"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/codecast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("codecast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir, c.Paths.LogDir, c.Paths.ArtifactDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CacheBudgetBytes returns the cache size budget in bytes.
func (c *Config) CacheBudgetBytes() int64 {
	return int64(c.Cache.MaxMiB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
