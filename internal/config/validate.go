package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateQA(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAI() error {
	switch c.AI.Mode {
	case "cloud", "local", "hybrid":
	default:
		return fmt.Errorf("ai.mode must be one of cloud, local, hybrid (got %q)", c.AI.Mode)
	}
	if c.AI.MaxAttempts < 1 {
		return errors.New("ai.max_attempts must be at least 1")
	}
	if c.AI.UnhealthyAfter < 1 {
		return errors.New("ai.unhealthy_after must be at least 1")
	}
	if c.AI.CooldownSeconds < 0 {
		return errors.New("ai.cooldown_seconds must be >= 0")
	}
	if c.AI.HealthThreshold < 0 || c.AI.HealthThreshold > 1 {
		return errors.New("ai.health_threshold must be between 0 and 1")
	}

	cloudRequired := c.AI.Mode == "cloud" && !c.AI.PrivacyMode
	cloudConfigured := false
	if c.AI.OpenRouter.Enabled {
		if strings.TrimSpace(c.AI.OpenRouter.Model) == "" {
			return errors.New("ai.openrouter.model must be set when ai.openrouter.enabled is true")
		}
		if c.AI.OpenRouter.TimeoutSeconds <= 0 {
			return errors.New("ai.openrouter.timeout_seconds must be positive")
		}
		cloudConfigured = true
	}
	if c.AI.Gemini.Enabled {
		if strings.TrimSpace(c.AI.Gemini.Model) == "" {
			return errors.New("ai.gemini.model must be set when ai.gemini.enabled is true")
		}
		if c.AI.Gemini.TimeoutSeconds <= 0 {
			return errors.New("ai.gemini.timeout_seconds must be positive")
		}
		cloudConfigured = true
	}
	if cloudRequired && !cloudConfigured {
		return errors.New("ai.mode is \"cloud\" but no cloud backend is enabled; enable ai.openrouter or ai.gemini, or switch to local mode")
	}
	if c.AI.Mode == "cloud" && c.AI.PrivacyMode {
		return errors.New("ai.privacy_mode cannot be combined with ai.mode = \"cloud\"; use local or hybrid")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled {
		if strings.TrimSpace(c.Paths.CacheDir) == "" {
			return errors.New("paths.cache_dir must be set when cache.enabled is true")
		}
		if c.Cache.MaxMiB <= 0 {
			return errors.New("cache.max_mib must be positive when cache.enabled is true")
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	if c.Pipeline.StageRetries < 0 {
		return errors.New("pipeline.stage_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateQA() error {
	if c.QA.Enabled && c.QA.MaxHistory < 1 {
		return errors.New("qa.max_history must be at least 1 when qa.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be one of auto, console, json (got %q)", c.Logging.Format)
	}
}
