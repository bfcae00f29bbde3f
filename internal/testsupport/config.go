package testsupport

import (
	"path/filepath"
	"testing"

	"codecast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Cloud backends are disabled so tests never touch the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.AI.Mode = "local"
	cfg.AI.OpenRouter.Enabled = false
	cfg.AI.Gemini.Enabled = false
	cfg.Cache.MaxMiB = 8
	cfg.Pipeline.StageTimeoutSeconds = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test config directories: %v", err)
	}
	return &cfg
}

// WithMode overrides the routing mode on the test config.
func WithMode(mode string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.AI.Mode = mode
	}
}

// WithPrivacyMode turns the privacy invariant on.
func WithPrivacyMode() ConfigOption {
	return func(cfg *config.Config) {
		cfg.AI.PrivacyMode = true
	}
}

// WithCacheDisabled turns content caching off.
func WithCacheDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.Enabled = false
	}
}
