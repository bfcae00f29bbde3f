package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"codecast/internal/config"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".cache", "codecast")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.AI.Mode != "hybrid" {
		t.Fatalf("unexpected default mode: %q", cfg.AI.Mode)
	}
	if cfg.AI.PrivacyMode {
		t.Fatal("privacy mode should default off")
	}
	if !cfg.Cache.Enabled || cfg.Cache.MaxMiB != 512 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.CacheBudgetBytes() != 512*1024*1024 {
		t.Fatalf("unexpected cache budget: %d", cfg.CacheBudgetBytes())
	}
	if cfg.Pipeline.NarrationLanguage != "en" {
		t.Fatalf("unexpected narration language: %q", cfg.Pipeline.NarrationLanguage)
	}
	if !cfg.QA.Enabled || cfg.QA.MaxHistory != 20 {
		t.Fatalf("unexpected qa defaults: %+v", cfg.QA)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir, cfg.Paths.LogDir, cfg.Paths.ArtifactDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "codecast.toml")

	type payload struct {
		AI struct {
			Mode       string `toml:"mode"`
			OpenRouter struct {
				APIKey string `toml:"api_key"`
				Model  string `toml:"model"`
			} `toml:"openrouter"`
		} `toml:"ai"`
		Cache struct {
			MaxMiB int `toml:"max_mib"`
		} `toml:"cache"`
		Pipeline struct {
			StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.AI.Mode = "Cloud"
	custom.AI.OpenRouter.APIKey = "abc123"
	custom.AI.OpenRouter.Model = "openai/gpt-5-mini"
	custom.Cache.MaxMiB = 64
	custom.Pipeline.StageTimeoutSeconds = 45
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.AI.Mode != "cloud" {
		t.Fatalf("expected mode normalized to cloud, got %q", cfg.AI.Mode)
	}
	if cfg.AI.OpenRouter.APIKey != "abc123" {
		t.Fatalf("expected key from file, got %q", cfg.AI.OpenRouter.APIKey)
	}
	if cfg.AI.OpenRouter.Model != "openai/gpt-5-mini" {
		t.Fatalf("unexpected model: %q", cfg.AI.OpenRouter.Model)
	}
	if cfg.Cache.MaxMiB != 64 {
		t.Fatalf("expected cache override, got %d", cfg.Cache.MaxMiB)
	}
	if cfg.Pipeline.StageTimeoutSeconds != 45 {
		t.Fatalf("expected stage timeout override, got %d", cfg.Pipeline.StageTimeoutSeconds)
	}
}

func TestEnvKeysFillMissingSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "codecast.toml")
	if err := os.WriteFile(configPath, []byte("[ai]\nmode = \"hybrid\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-openrouter")
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AI.OpenRouter.APIKey != "env-openrouter" {
		t.Errorf("expected OpenRouter key from env, got %q", cfg.AI.OpenRouter.APIKey)
	}
	if cfg.AI.Gemini.APIKey != "env-gemini" {
		t.Errorf("expected Gemini key from env, got %q", cfg.AI.Gemini.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[ai]") {
		t.Fatalf("sample config missing ai section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Mode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}

	cfg = config.Default()
	cfg.AI.Mode = "cloud"
	cfg.AI.PrivacyMode = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for privacy mode with cloud-only routing")
	}

	cfg = config.Default()
	cfg.AI.Mode = "cloud"
	cfg.AI.OpenRouter.Enabled = false
	cfg.AI.Gemini.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cloud mode without cloud backends")
	}

	cfg = config.Default()
	cfg.AI.HealthThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range health threshold")
	}

	cfg = config.Default()
	cfg.Cache.MaxMiB = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive cache budget")
	}

	cfg = config.Default()
	cfg.Pipeline.StageTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive stage timeout")
	}

	cfg = config.Default()
	cfg.Logging.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
