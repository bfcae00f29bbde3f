package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"codecast/internal/config"
)

func newConfigCommand(cmdCtx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(cmdCtx))
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set an API key (or export OPENROUTER_API_KEY / GEMINI_API_KEY) for cloud generation; local mode works without one.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active configuration (API keys redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			if cmdCtx.jsonOutput() {
				return writeJSON(cmd, configView(cfg))
			}
			rows := [][]string{
				{"ai.mode", cfg.AI.Mode},
				{"ai.privacy_mode", strconv.FormatBool(cfg.AI.PrivacyMode)},
				{"ai.openrouter", backendSummary(cfg.AI.OpenRouter.Enabled, cfg.AI.OpenRouter.Model, cfg.AI.OpenRouter.APIKey)},
				{"ai.gemini", backendSummary(cfg.AI.Gemini.Enabled, cfg.AI.Gemini.Model, cfg.AI.Gemini.APIKey)},
				{"cache.enabled", strconv.FormatBool(cfg.Cache.Enabled)},
				{"cache.max_mib", strconv.Itoa(cfg.Cache.MaxMiB)},
				{"pipeline.stage_timeout_seconds", strconv.Itoa(cfg.Pipeline.StageTimeoutSeconds)},
				{"pipeline.narration_language", cfg.Pipeline.NarrationLanguage},
				{"qa.enabled", strconv.FormatBool(cfg.QA.Enabled)},
				{"paths.cache_dir", cfg.Paths.CacheDir},
				{"paths.artifact_dir", cfg.Paths.ArtifactDir},
				{"paths.data_dir", cfg.Paths.DataDir},
				{"logging", cfg.Logging.Level + " / " + cfg.Logging.Format},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows))
			return nil
		},
	}
}

// configView is the redacted JSON shape for `config show --json`.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"ai": map[string]any{
			"mode":         cfg.AI.Mode,
			"privacy_mode": cfg.AI.PrivacyMode,
			"openrouter": map[string]any{
				"enabled": cfg.AI.OpenRouter.Enabled,
				"model":   cfg.AI.OpenRouter.Model,
				"api_key": redactKey(cfg.AI.OpenRouter.APIKey),
			},
			"gemini": map[string]any{
				"enabled": cfg.AI.Gemini.Enabled,
				"model":   cfg.AI.Gemini.Model,
				"api_key": redactKey(cfg.AI.Gemini.APIKey),
			},
		},
		"cache": map[string]any{
			"enabled": cfg.Cache.Enabled,
			"max_mib": cfg.Cache.MaxMiB,
		},
		"pipeline": map[string]any{
			"stage_timeout_seconds": cfg.Pipeline.StageTimeoutSeconds,
			"stage_retries":         cfg.Pipeline.StageRetries,
			"narration_language":    cfg.Pipeline.NarrationLanguage,
		},
		"qa": map[string]any{
			"enabled":     cfg.QA.Enabled,
			"max_history": cfg.QA.MaxHistory,
		},
		"paths": map[string]any{
			"cache_dir":    cfg.Paths.CacheDir,
			"artifact_dir": cfg.Paths.ArtifactDir,
			"data_dir":     cfg.Paths.DataDir,
			"log_dir":      cfg.Paths.LogDir,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
	}
}

func backendSummary(enabled bool, model, apiKey string) string {
	if !enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (key %s)", model, redactKey(apiKey))
}

func redactKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unset"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
