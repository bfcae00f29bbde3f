package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"codecast/internal/logging"
	"codecast/internal/services"
	"codecast/internal/services/ai"
	"codecast/internal/testsupport"
)

func newTestRouter(t *testing.T, settings Settings, backends ...ai.Backend) *Router {
	t.Helper()
	r, err := New(settings, logging.NewNop(), backends...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func transientErr() error {
	return services.Wrap(services.ErrTransient, "test", "call", "boom", nil)
}

func TestHybridPrefersCloud(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeHybrid}, cloud, local)

	_, name, err := r.GenerateScript(context.Background(), ai.ScriptRequest{Code: "x"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if name != "cloud" {
		t.Errorf("expected cloud backend, got %q", name)
	}
	if local.TotalCalls() != 0 {
		t.Error("local backend should not be called when cloud is healthy")
	}
}

func TestHybridFallsBackToLocalOnCloudFailure(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	cloud.Err = transientErr()
	cloud.FailuresLeft = 1
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeHybrid}, cloud, local)

	_, name, err := r.GenerateScript(context.Background(), ai.ScriptRequest{Code: "x"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if name != "local" {
		t.Errorf("expected fallback to local, got %q", name)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	cloud.Err = transientErr()
	cloud.FailuresLeft = 100
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{
		Mode:           ModeHybrid,
		UnhealthyAfter: 3,
		Cooldown:       time.Minute,
	}, cloud, local)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := r.GenerateScript(ctx, ai.ScriptRequest{Code: "x"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	callsAtOpen := cloud.TotalCalls()
	if callsAtOpen != 3 {
		t.Fatalf("expected 3 cloud attempts before the circuit opens, got %d", callsAtOpen)
	}

	// Circuit is open; further calls go straight to local.
	if _, name, err := r.GenerateScript(ctx, ai.ScriptRequest{Code: "x"}); err != nil || name != "local" {
		t.Fatalf("expected local while cooling down, got %q, %v", name, err)
	}
	if cloud.TotalCalls() != callsAtOpen {
		t.Error("cloud should not be called while its circuit is open")
	}

	for _, h := range r.Health() {
		if h.Name == "cloud" {
			if !h.CoolingDown {
				t.Error("cloud backend should report cooling down")
			}
			if h.ConsecutiveFailures != 3 {
				t.Errorf("consecutive failures = %d", h.ConsecutiveFailures)
			}
		}
	}
}

func TestCircuitClosesAfterCooldown(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	cloud.Err = transientErr()
	cloud.FailuresLeft = 3
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{
		Mode:            ModeHybrid,
		UnhealthyAfter:  3,
		Cooldown:        time.Minute,
		HealthThreshold: 0.1,
	}, cloud, local)

	current := time.Now()
	r.now = func() time.Time { return current }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := r.GenerateScript(ctx, ai.ScriptRequest{Code: "x"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	current = current.Add(2 * time.Minute)
	_, name, err := r.GenerateScript(ctx, ai.ScriptRequest{Code: "x"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if name != "cloud" {
		t.Errorf("expected cloud after cooldown, got %q", name)
	}
}

func TestPrivacyModeNeverTouchesCloud(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeHybrid, PrivacyMode: true}, cloud, local)

	ctx := context.Background()
	ops := []func() error{
		func() error { _, _, err := r.GenerateScript(ctx, ai.ScriptRequest{Code: "x"}); return err },
		func() error { _, _, err := r.GenerateFlowchart(ctx, ai.FlowchartRequest{Code: "x"}); return err },
		func() error { _, _, err := r.GenerateExamples(ctx, ai.ExamplesRequest{Code: "x"}); return err },
		func() error { _, _, err := r.Answer(ctx, ai.AnswerRequest{Question: "q"}); return err },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	if cloud.TotalCalls() != 0 {
		t.Fatalf("privacy mode reached a cloud backend %d times", cloud.TotalCalls())
	}
	if local.TotalCalls() != len(ops) {
		t.Errorf("local calls = %d, want %d", local.TotalCalls(), len(ops))
	}
}

func TestLocalModeNeverTouchesCloud(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeLocal}, cloud, local)

	if _, name, err := r.GenerateScript(context.Background(), ai.ScriptRequest{Code: "x"}); err != nil || name != "local" {
		t.Fatalf("got %q, %v", name, err)
	}
	if cloud.TotalCalls() != 0 {
		t.Error("local mode must not reach cloud backends")
	}
}

func TestCloudModeDoesNotFallBack(t *testing.T) {
	cloud := testsupport.NewScriptedBackend("cloud", ai.KindCloud)
	cloud.Err = transientErr()
	cloud.FailuresLeft = 100
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeCloud}, cloud, local)

	_, _, err := r.GenerateScript(context.Background(), ai.ScriptRequest{Code: "x"})
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if local.TotalCalls() != 0 {
		t.Error("cloud mode must not silently fall back to local")
	}
}

func TestCloudModeRequiresCloudBackend(t *testing.T) {
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	if _, err := New(Settings{Mode: ModeCloud}, logging.NewNop(), local); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSecondCloudBackendTriedFirstOneFails(t *testing.T) {
	primary := testsupport.NewScriptedBackend("openrouter", ai.KindCloud)
	primary.Err = transientErr()
	primary.FailuresLeft = 1
	secondary := testsupport.NewScriptedBackend("gemini", ai.KindCloud)
	local := testsupport.NewScriptedBackend("local", ai.KindLocal)
	r := newTestRouter(t, Settings{Mode: ModeHybrid}, primary, secondary, local)

	_, name, err := r.GenerateScript(context.Background(), ai.ScriptRequest{Code: "x"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if name != "gemini" {
		t.Errorf("expected second cloud backend, got %q", name)
	}
	if local.TotalCalls() != 0 {
		t.Error("local should not be reached while a cloud backend works")
	}
}
