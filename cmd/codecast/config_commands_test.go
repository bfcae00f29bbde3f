package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codecast/internal/config"
	"codecast/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	configPath := setupCLITestEnv(t)

	out, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init without --overwrite must refuse.
	if _, _, err := runCLI(t, configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when target already exists")
	}
	if _, _, err := runCLI(t, configPath, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithMode("hybrid"),
		func(cfg *config.Config) {
			cfg.AI.OpenRouter.Enabled = true
			cfg.AI.OpenRouter.APIKey = "secret-key-5678"
		},
	)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "ai.mode")
	requireContains(t, out, "****5678")
	if strings.Contains(out, "secret-key-5678") {
		t.Fatalf("output leaked the API key: %s", out)
	}
}
