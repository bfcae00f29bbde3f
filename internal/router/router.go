// Package router selects an AI backend for each generation call and tracks
// backend health. Routing policy comes from configuration: cloud mode never
// silently degrades, local mode never touches the network, hybrid prefers
// cloud and falls back on poor health. Privacy mode is a hard override that
// restricts every call to local backends.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codecast/internal/content"
	"codecast/internal/logging"
	"codecast/internal/services"
	"codecast/internal/services/ai"
)

// Mode values accepted by Settings.
const (
	ModeCloud  = "cloud"
	ModeLocal  = "local"
	ModeHybrid = "hybrid"
)

// Settings is the routing policy.
type Settings struct {
	Mode        string
	PrivacyMode bool
	// UnhealthyAfter is the consecutive-failure count that opens the
	// circuit for a backend.
	UnhealthyAfter int
	// Cooldown is how long an opened circuit stays open.
	Cooldown time.Duration
	// HealthThreshold is the minimum success ratio for hybrid mode to
	// keep preferring a cloud backend.
	HealthThreshold float64
}

// Router dispatches generation calls across the registered backends.
type Router struct {
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	cloud []*backendState
	local []*backendState
}

// New builds a router over the supplied backends. Backends are tried in
// registration order within their kind.
func New(settings Settings, logger *slog.Logger, backends ...ai.Backend) (*Router, error) {
	settings.Mode = strings.ToLower(strings.TrimSpace(settings.Mode))
	switch settings.Mode {
	case ModeCloud, ModeLocal, ModeHybrid:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "router", "init",
			fmt.Sprintf("unknown mode %q", settings.Mode), nil)
	}
	if settings.UnhealthyAfter < 1 {
		settings.UnhealthyAfter = 3
	}
	if settings.HealthThreshold <= 0 {
		settings.HealthThreshold = 0.5
	}

	r := &Router{
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "router"),
		now:      time.Now,
	}
	for _, backend := range backends {
		state := newBackendState(backend)
		switch backend.Kind() {
		case ai.KindLocal:
			r.local = append(r.local, state)
		default:
			r.cloud = append(r.cloud, state)
		}
	}

	if len(r.local) == 0 && (settings.Mode != ModeCloud || settings.PrivacyMode) {
		return nil, services.Wrap(services.ErrConfiguration, "router", "init",
			"local backend required for this mode", nil)
	}
	if settings.Mode == ModeCloud && settings.PrivacyMode {
		return nil, services.Wrap(services.ErrConfiguration, "router", "init",
			"privacy mode cannot be combined with cloud mode", nil)
	}
	if settings.Mode == ModeCloud && len(r.cloud) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "router", "init",
			"cloud mode requires a configured cloud backend", nil)
	}
	return r, nil
}

// localOnly reports whether the privacy invariant restricts this router to
// local backends.
func (r *Router) localOnly() bool {
	return r.settings.PrivacyMode || r.settings.Mode == ModeLocal
}

// candidates returns the backends to try, in order, for one call.
func (r *Router) candidates() []*backendState {
	if r.localOnly() {
		return r.local
	}
	switch r.settings.Mode {
	case ModeCloud:
		return r.cloud
	default: // hybrid
		ordered := make([]*backendState, 0, len(r.cloud)+len(r.local))
		ordered = append(ordered, r.cloud...)
		ordered = append(ordered, r.local...)
		return ordered
	}
}

// invoke runs fn against each candidate until one succeeds, recording
// outcomes as it goes. The cloud-mode contract is strict: when no cloud
// backend can serve the call the error says so instead of degrading.
func (r *Router) invoke(ctx context.Context, op string, fn func(ai.Backend) error) (string, error) {
	candidates := r.candidates()
	if len(candidates) == 0 {
		return "", services.Wrap(services.ErrUnavailable, "router", op, "no backend available", nil)
	}

	log := logging.WithContext(ctx, r.logger)
	now := r.now()
	var lastErr error
	attempted := 0
	for _, state := range candidates {
		if state.backend.Kind() == ai.KindCloud && !state.usable(now) {
			continue
		}
		// The privacy invariant: local-only routers must never reach a
		// cloud backend, whatever the candidate list says.
		if r.localOnly() && state.backend.Kind() != ai.KindLocal {
			continue
		}
		attempted++

		started := r.now()
		err := fn(state.backend)
		latency := r.now().Sub(started)
		state.record(err, latency, r.now(), r.settings.UnhealthyAfter, r.settings.Cooldown, r.settings.HealthThreshold)

		if err == nil {
			log.DebugContext(ctx, "backend call succeeded",
				logging.String(logging.FieldBackend, state.backend.Name()),
				logging.String("operation", op),
				logging.Duration("latency", latency),
			)
			return state.backend.Name(), nil
		}
		if errors.Is(err, context.Canceled) {
			return state.backend.Name(), err
		}
		lastErr = err
		log.WarnContext(ctx, "backend call failed",
			logging.String(logging.FieldBackend, state.backend.Name()),
			logging.String("operation", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "trying next backend if one is available"),
		)
	}

	if attempted == 0 {
		return "", services.Wrap(services.ErrUnavailable, "router", op,
			"all backends are cooling down", lastErr)
	}
	if r.settings.Mode == ModeCloud {
		return "", services.Wrap(services.ErrUnavailable, "router", op,
			"cloud backends exhausted and cloud mode does not fall back", lastErr)
	}
	return "", lastErr
}

// GenerateScript routes a narration request.
func (r *Router) GenerateScript(ctx context.Context, req ai.ScriptRequest) (ai.Script, string, error) {
	var result ai.Script
	name, err := r.invoke(ctx, "script", func(b ai.Backend) error {
		var callErr error
		result, callErr = b.GenerateScript(ctx, req)
		return callErr
	})
	return result, name, err
}

// GenerateFlowchart routes a flowchart request.
func (r *Router) GenerateFlowchart(ctx context.Context, req ai.FlowchartRequest) (content.Flowchart, string, error) {
	var result content.Flowchart
	name, err := r.invoke(ctx, "flowchart", func(b ai.Backend) error {
		var callErr error
		result, callErr = b.GenerateFlowchart(ctx, req)
		return callErr
	})
	return result, name, err
}

// GenerateExamples routes an examples request.
func (r *Router) GenerateExamples(ctx context.Context, req ai.ExamplesRequest) (content.ExampleSet, string, error) {
	var result content.ExampleSet
	name, err := r.invoke(ctx, "examples", func(b ai.Backend) error {
		var callErr error
		result, callErr = b.GenerateExamples(ctx, req)
		return callErr
	})
	return result, name, err
}

// Answer routes a follow-up question.
func (r *Router) Answer(ctx context.Context, req ai.AnswerRequest) (string, string, error) {
	var result string
	name, err := r.invoke(ctx, "answer", func(b ai.Backend) error {
		var callErr error
		result, callErr = b.Answer(ctx, req)
		return callErr
	})
	return result, name, err
}

// Health snapshots every registered backend, cloud first.
func (r *Router) Health() []Health {
	now := r.now()
	var out []Health
	for _, state := range r.cloud {
		out = append(out, state.snapshot(now))
	}
	for _, state := range r.local {
		out = append(out, state.snapshot(now))
	}
	return out
}

// CheckAll runs every backend's health probe and records the outcomes.
// Used by the doctor command; generation never calls this.
func (r *Router) CheckAll(ctx context.Context) []Health {
	states := append(append([]*backendState{}, r.cloud...), r.local...)
	for _, state := range states {
		if r.localOnly() && state.backend.Kind() != ai.KindLocal {
			continue
		}
		started := r.now()
		err := state.backend.HealthCheck(ctx)
		state.record(err, r.now().Sub(started), r.now(), r.settings.UnhealthyAfter, r.settings.Cooldown, r.settings.HealthThreshold)
	}
	return r.Health()
}
