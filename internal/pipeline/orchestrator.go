// Package pipeline orchestrates explanation generation: analyze the code,
// generate the narration script, optionally generate a flowchart and
// cross-language examples, then synthesize the final artifact. The cache is
// consulted before any generation runs, and concurrent requests for the same
// fingerprint share a single generation.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"codecast/internal/analysis"
	"codecast/internal/content"
	"codecast/internal/contentcache"
	"codecast/internal/fingerprint"
	"codecast/internal/logging"
	"codecast/internal/router"
	"codecast/internal/services"
	"codecast/internal/services/ai"
	"codecast/internal/synthesis"
)

const (
	defaultStageTimeout = 2 * time.Minute
	defaultStageRetries = 1
)

// Options wires the orchestrator's collaborators. Cache may be nil; the
// pipeline then generates on every request.
type Options struct {
	Analyzer    analysis.Analyzer
	Router      *router.Router
	Cache       *contentcache.Store
	Synthesizer *synthesis.Synthesizer
	Logger      *slog.Logger
	// StageTimeout bounds each stage attempt.
	StageTimeout time.Duration
	// StageRetries is how many extra attempts a mandatory stage gets when
	// its failure is retryable. Backend-internal transport retries are
	// separate and already spent by the time the error reaches here.
	StageRetries int
}

// Result is the outcome of one Explain call.
type Result struct {
	Explanation *content.Explanation
	Fingerprint fingerprint.Fingerprint
	// FromCache is true when the explanation was served without any
	// generation.
	FromCache bool
	// Shared is true when another caller's in-flight generation produced
	// the explanation.
	Shared bool
	// Backends maps stage name to the backend that served it.
	Backends map[string]string
	Elapsed  time.Duration
}

// Orchestrator runs the generation pipeline.
type Orchestrator struct {
	analyzer     analysis.Analyzer
	router       *router.Router
	cache        *contentcache.Store
	synth        *synthesis.Synthesizer
	logger       *slog.Logger
	stageTimeout time.Duration
	stageRetries int
	flights      flightGroup
	now          func() time.Time
}

// New builds an orchestrator from options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Analyzer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "analyzer required", nil)
	}
	if opts.Router == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "router required", nil)
	}
	if opts.Synthesizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "synthesizer required", nil)
	}
	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	retries := opts.StageRetries
	if retries < 0 {
		retries = defaultStageRetries
	}
	return &Orchestrator{
		analyzer:     opts.Analyzer,
		router:       opts.Router,
		cache:        opts.Cache,
		synth:        opts.Synthesizer,
		logger:       logging.NewComponentLogger(opts.Logger, "pipeline"),
		stageTimeout: timeout,
		stageRetries: retries,
		now:          time.Now,
	}, nil
}

// Explain produces an explanation for the request, serving from cache when
// possible and deduplicating concurrent identical requests.
func (o *Orchestrator) Explain(ctx context.Context, req content.Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	started := o.now()
	fp := fingerprint.Compute(req)
	ctx = services.WithFingerprint(ctx, fp.String())
	ctx = services.WithRequestID(ctx, uuid.NewString())

	if o.cache != nil {
		cached, found, err := o.cache.Get(ctx, fp)
		if err != nil {
			// A broken cache degrades to always-miss; generation still
			// works.
			o.logger.WarnContext(ctx, "cache lookup failed, generating instead",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the cache directory and database"),
			)
		} else if found {
			o.logger.InfoContext(ctx, "cache hit",
				logging.String("content_id", cached.ID),
			)
			return &Result{
				Explanation: cached,
				Fingerprint: fp,
				FromCache:   true,
				Elapsed:     o.now().Sub(started),
			}, nil
		}
	}

	f, leader := o.flights.join(fp)
	if !leader {
		select {
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
			return &Result{
				Explanation: f.expl,
				Fingerprint: fp,
				Shared:      true,
				Elapsed:     o.now().Sub(started),
			}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	expl, backends, err := o.generate(ctx, req, fp)
	o.flights.complete(fp, f, expl, err)
	if err != nil {
		return nil, err
	}
	return &Result{
		Explanation: expl,
		Fingerprint: fp,
		Backends:    backends,
		Elapsed:     o.now().Sub(started),
	}, nil
}

// Invalidate drops any cached explanation for the request and returns the
// removed content ID, empty when nothing was cached.
func (o *Orchestrator) Invalidate(ctx context.Context, req content.Request) (string, error) {
	if o.cache == nil {
		return "", nil
	}
	return o.cache.Invalidate(ctx, fingerprint.Compute(req))
}

// generate runs the full stage sequence as the flight leader.
func (o *Orchestrator) generate(ctx context.Context, req content.Request, fp fingerprint.Fingerprint) (*content.Explanation, map[string]string, error) {
	state := NewState(fp, o.now())
	backends := make(map[string]string)

	fail := func(stage Stage, err error) (*content.Explanation, map[string]string, error) {
		state = state.Fail(err, o.now())
		o.logger.ErrorContext(ctx, "pipeline failed",
			logging.String(logging.FieldStage, string(stage)),
			logging.Error(err),
		)
		return nil, backends, err
	}

	// Analysis is cheap, local, and never retried.
	state, err := o.advance(ctx, state, StageAnalyzing)
	if err != nil {
		return fail(StageAnalyzing, err)
	}
	analysisCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	codeAnalysis, err := o.analyzer.Analyze(analysisCtx, req.Code, req.SourceLanguage)
	cancel()
	if err != nil {
		return fail(StageAnalyzing, err)
	}

	// Scripting is mandatory.
	state, err = o.advance(ctx, state, StageScripting)
	if err != nil {
		return fail(StageScripting, err)
	}
	var script ai.Script
	err = o.runStage(ctx, StageScripting, func(stageCtx context.Context) error {
		result, backend, stageErr := o.router.GenerateScript(stageCtx, ai.ScriptRequest{
			Code:              req.Code,
			SourceLanguage:    req.SourceLanguage,
			NarrationLanguage: req.NarrationLanguage,
			Analysis:          codeAnalysis,
			SummaryMode:       codeAnalysis.SummaryMode,
		})
		if stageErr != nil {
			return stageErr
		}
		script = result
		backends["script"] = backend
		return nil
	})
	if err != nil {
		return fail(StageScripting, err)
	}

	var (
		flowchart *content.Flowchart
		examples  *content.ExampleSet
		omitted   []string
	)

	// Flowchart and examples are optional: a failure omits the section
	// and marks the explanation partial instead of failing the request.
	if req.IncludeFlowchart {
		state, err = o.advance(ctx, state, StageFlowcharting)
		if err != nil {
			return fail(StageFlowcharting, err)
		}
		err = o.runStage(ctx, StageFlowcharting, func(stageCtx context.Context) error {
			result, backend, stageErr := o.router.GenerateFlowchart(stageCtx, ai.FlowchartRequest{
				Code:           req.Code,
				SourceLanguage: req.SourceLanguage,
				Analysis:       codeAnalysis,
			})
			if stageErr != nil {
				return stageErr
			}
			flowchart = &result
			backends["flowchart"] = backend
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return fail(StageFlowcharting, err)
			}
			omitted = append(omitted, "flowchart")
			o.logger.WarnContext(ctx, "flowchart omitted",
				logging.Error(err),
				logging.String(logging.FieldImpact, "explanation delivered without a flowchart"),
			)
		}
	}

	if req.IncludeExamples && strings.TrimSpace(req.TargetLanguage) != "" {
		state, err = o.advance(ctx, state, StageExemplifying)
		if err != nil {
			return fail(StageExemplifying, err)
		}
		err = o.runStage(ctx, StageExemplifying, func(stageCtx context.Context) error {
			result, backend, stageErr := o.router.GenerateExamples(stageCtx, ai.ExamplesRequest{
				Code:           req.Code,
				SourceLanguage: req.SourceLanguage,
				TargetLanguage: req.TargetLanguage,
				Analysis:       codeAnalysis,
			})
			if stageErr != nil {
				return stageErr
			}
			examples = &result
			backends["examples"] = backend
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return fail(StageExemplifying, err)
			}
			omitted = append(omitted, "examples")
			o.logger.WarnContext(ctx, "examples omitted",
				logging.Error(err),
				logging.String(logging.FieldImpact, "explanation delivered without cross-language examples"),
			)
		}
	}

	state, err = o.advance(ctx, state, StageSynthesizing)
	if err != nil {
		return fail(StageSynthesizing, err)
	}
	expl, err := o.synth.Synthesize(ctx, synthesis.Input{
		Request:         req,
		Analysis:        codeAnalysis,
		Script:          script,
		Flowchart:       flowchart,
		Examples:        examples,
		Partial:         len(omitted) > 0,
		OmittedSections: omitted,
	})
	if err != nil {
		return fail(StageSynthesizing, err)
	}

	if o.cache != nil {
		if err := o.cache.Put(ctx, fp, req, expl); err != nil {
			// Caching is best effort; the explanation is already built.
			o.logger.WarnContext(ctx, "cache store failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "identical requests will regenerate"),
			)
		}
	}

	state, err = o.advance(ctx, state, StageDone)
	if err != nil {
		return fail(StageDone, err)
	}
	o.logger.InfoContext(ctx, "pipeline complete",
		logging.String("content_id", expl.ID),
		logging.Bool("partial", expl.Partial),
		logging.Duration("elapsed", o.now().Sub(state.StartedAt)),
	)
	return expl, backends, nil
}

// runStage executes one stage with a per-attempt timeout, retrying a
// retryable failure up to the configured extra attempts.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	attempts := 1 + o.stageRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stageCtx, cancel := context.WithTimeout(services.WithStage(ctx, string(stage)), o.stageTimeout)
		err := fn(stageCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if !services.Retryable(err) || attempt == attempts {
			break
		}
		o.logger.WarnContext(ctx, "stage attempt failed, retrying",
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}
	return lastErr
}

func (o *Orchestrator) advance(ctx context.Context, state State, to Stage) (State, error) {
	next, err := state.Advance(to, o.now())
	if err != nil {
		return state, err
	}
	o.logger.DebugContext(ctx, "stage started",
		logging.String(logging.FieldStage, string(to)),
	)
	return next, nil
}

func validateRequest(req content.Request) error {
	if strings.TrimSpace(req.Code) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "code selection is empty", nil)
	}
	switch req.ContentType {
	case content.TypeVideo, content.TypeAudio, content.TypeSummary:
	default:
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "unknown content type", nil)
	}
	if req.IncludeExamples && strings.TrimSpace(req.TargetLanguage) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "examples require a target language", nil)
	}
	return nil
}
