package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"

	"codecast/internal/analysis"
	"codecast/internal/config"
	"codecast/internal/contentcache"
	"codecast/internal/logging"
	"codecast/internal/pipeline"
	"codecast/internal/qa"
	"codecast/internal/router"
	"codecast/internal/services/ai"
	"codecast/internal/services/gemini"
	"codecast/internal/services/localgen"
	"codecast/internal/services/openrouter"
	"codecast/internal/synthesis"
)

// commandContext lazily builds the application pieces shared by commands.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	appOnce sync.Once
	app     *application
	appErr  error
}

// application is the wired object graph behind every command.
type application struct {
	cfg          *config.Config
	logger       *slog.Logger
	router       *router.Router
	cache        *contentcache.Store
	orchestrator *pipeline.Orchestrator
	qaEngine     *qa.Engine
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureApp builds the full pipeline graph on first use.
func (c *commandContext) ensureApp(ctx context.Context) (*application, error) {
	c.appOnce.Do(func() {
		c.app, c.appErr = c.buildApp(ctx)
	})
	return c.app, c.appErr
}

func (c *commandContext) buildApp(ctx context.Context) (*application, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := c.buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	backends, err := buildBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r, err := router.New(router.Settings{
		Mode:            cfg.AI.Mode,
		PrivacyMode:     cfg.AI.PrivacyMode,
		UnhealthyAfter:  cfg.AI.UnhealthyAfter,
		Cooldown:        time.Duration(cfg.AI.CooldownSeconds) * time.Second,
		HealthThreshold: cfg.AI.HealthThreshold,
	}, logger, backends...)
	if err != nil {
		return nil, err
	}

	var cache *contentcache.Store
	if cfg.Cache.Enabled {
		cache, err = contentcache.Open(cfg.Paths.CacheDir, cfg.CacheBudgetBytes(), logger)
		if err != nil {
			// A broken cache must not block generation.
			logger.Warn("cache unavailable, running without it",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.cache_dir permissions"),
			)
			cache = nil
		}
	}

	renderer, err := synthesis.NewFileRenderer(cfg.Paths.ArtifactDir)
	if err != nil {
		return nil, err
	}

	orchestrator, err := pipeline.New(pipeline.Options{
		Analyzer:     analysis.NewHeuristic(logger),
		Router:       r,
		Cache:        cache,
		Synthesizer:  synthesis.New(renderer, logger),
		Logger:       logger,
		StageTimeout: time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second,
		StageRetries: cfg.Pipeline.StageRetries,
	})
	if err != nil {
		return nil, err
	}

	var qaEngine *qa.Engine
	if cfg.QA.Enabled {
		store, err := qa.Open(cfg.Paths.DataDir)
		if err != nil {
			return nil, err
		}
		qaEngine = qa.NewEngine(store, r, logger, cfg.QA.MaxHistory)
	}

	return &application{
		cfg:          cfg,
		logger:       logger,
		router:       r,
		cache:        cache,
		orchestrator: orchestrator,
		qaEngine:     qaEngine,
	}, nil
}

func (c *commandContext) buildLogger(cfg *config.Config) (*slog.Logger, error) {
	format := cfg.Logging.Format
	if format == "auto" {
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "console"
		} else {
			format = "json"
		}
	}
	// JSON command output must stay parseable, so logs move fully to a
	// file in that case.
	outputs := []string{"stderr"}
	if c.jsonOutput() {
		outputs = []string{filepath.Join(cfg.Paths.LogDir, "codecast.log")}
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      format,
		OutputPaths: outputs,
	})
}

// buildBackends assembles the configured generation backends. The local
// generator is always present so the pipeline keeps working offline.
func buildBackends(ctx context.Context, cfg *config.Config) ([]ai.Backend, error) {
	backends := []ai.Backend{}

	cloudAllowed := !cfg.AI.PrivacyMode && cfg.AI.Mode != "local"
	if cloudAllowed && cfg.AI.OpenRouter.Enabled && strings.TrimSpace(cfg.AI.OpenRouter.APIKey) != "" {
		backends = append(backends, openrouter.New(openrouter.Config{
			APIKey:         cfg.AI.OpenRouter.APIKey,
			BaseURL:        cfg.AI.OpenRouter.BaseURL,
			Model:          cfg.AI.OpenRouter.Model,
			Referer:        cfg.AI.OpenRouter.Referer,
			Title:          cfg.AI.OpenRouter.Title,
			TimeoutSeconds: cfg.AI.OpenRouter.TimeoutSeconds,
			MaxAttempts:    cfg.AI.MaxAttempts,
		}))
	}
	if cloudAllowed && cfg.AI.Gemini.Enabled && strings.TrimSpace(cfg.AI.Gemini.APIKey) != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:         cfg.AI.Gemini.APIKey,
			Model:          cfg.AI.Gemini.Model,
			TimeoutSeconds: cfg.AI.Gemini.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, client)
	}

	backends = append(backends, localgen.New())
	return backends, nil
}

// withInstanceLock serializes commands that mutate shared state across
// concurrent codecast processes.
func (c *commandContext) withInstanceLock(ctx context.Context, fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "codecast.lock"))

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 250*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another codecast instance holds the lock at %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}
