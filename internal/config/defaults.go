package config

const (
	defaultDataDir     = "~/.local/share/codecast"
	defaultCacheDir    = "~/.cache/codecast"
	defaultLogDir      = "~/.local/share/codecast/logs"
	defaultArtifactDir = "~/.local/share/codecast/artifacts"

	defaultAIMode          = "hybrid"
	defaultMaxAttempts     = 3
	defaultUnhealthyAfter  = 3
	defaultCooldownSeconds = 60
	defaultHealthThreshold = 0.5

	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel   = "google/gemini-3-flash-preview"
	defaultOpenRouterReferer = "https://github.com/codecast-dev/codecast"
	defaultOpenRouterTitle   = "Codecast"
	defaultOpenRouterTimeout = 60

	defaultGeminiModel   = "gemini-3-flash-preview"
	defaultGeminiTimeout = 60

	defaultCacheMaxMiB = 512

	defaultStageTimeoutSeconds = 120
	defaultStageRetries        = 1
	defaultNarrationLanguage   = "en"

	defaultQAMaxHistory = 20

	defaultLogFormat = "auto"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			CacheDir:    defaultCacheDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
		},
		AI: AI{
			Mode:            defaultAIMode,
			MaxAttempts:     defaultMaxAttempts,
			UnhealthyAfter:  defaultUnhealthyAfter,
			CooldownSeconds: defaultCooldownSeconds,
			HealthThreshold: defaultHealthThreshold,
			OpenRouter: OpenRouter{
				Enabled:        true,
				BaseURL:        defaultOpenRouterBaseURL,
				Model:          defaultOpenRouterModel,
				Referer:        defaultOpenRouterReferer,
				Title:          defaultOpenRouterTitle,
				TimeoutSeconds: defaultOpenRouterTimeout,
			},
			Gemini: Gemini{
				Enabled:        false,
				Model:          defaultGeminiModel,
				TimeoutSeconds: defaultGeminiTimeout,
			},
		},
		Cache: Cache{
			Enabled: true,
			MaxMiB:  defaultCacheMaxMiB,
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			StageRetries:        defaultStageRetries,
			NarrationLanguage:   defaultNarrationLanguage,
		},
		QA: QA{
			Enabled:    true,
			MaxHistory: defaultQAMaxHistory,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
