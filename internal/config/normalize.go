package config

import (
	"os"
	"strings"
)

// normalize expands paths, applies environment fallbacks for secrets, and
// canonicalizes enumerated values.
func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.CacheDir, &c.Paths.LogDir, &c.Paths.ArtifactDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.AI.Mode = strings.ToLower(strings.TrimSpace(c.AI.Mode))
	if c.AI.Mode == "" {
		c.AI.Mode = defaultAIMode
	}

	c.AI.OpenRouter.APIKey = strings.TrimSpace(c.AI.OpenRouter.APIKey)
	if c.AI.OpenRouter.APIKey == "" {
		c.AI.OpenRouter.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	}
	c.AI.OpenRouter.BaseURL = strings.TrimSpace(c.AI.OpenRouter.BaseURL)
	if c.AI.OpenRouter.BaseURL == "" {
		c.AI.OpenRouter.BaseURL = defaultOpenRouterBaseURL
	}
	c.AI.OpenRouter.Model = strings.TrimSpace(c.AI.OpenRouter.Model)

	c.AI.Gemini.APIKey = strings.TrimSpace(c.AI.Gemini.APIKey)
	if c.AI.Gemini.APIKey == "" {
		c.AI.Gemini.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	c.AI.Gemini.Model = strings.TrimSpace(c.AI.Gemini.Model)

	c.Pipeline.NarrationLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.NarrationLanguage))
	if c.Pipeline.NarrationLanguage == "" {
		c.Pipeline.NarrationLanguage = defaultNarrationLanguage
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
