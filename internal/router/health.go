package router

import (
	"sync"
	"time"

	"codecast/internal/services/ai"
)

// outcomeWindow bounds the success-ratio sample.
const outcomeWindow = 20

// Health is a point-in-time snapshot of one backend.
type Health struct {
	Name                string
	Kind                ai.Kind
	Available           bool
	SuccessRatio        float64
	RecentLatency       time.Duration
	ConsecutiveFailures int
	CoolingDown         bool
	CooldownUntil       time.Time
	LastError           string
}

// backendState tracks rolling health for one backend. All mutation happens
// under mu; the router may be called from concurrent pipeline stages.
type backendState struct {
	backend ai.Backend

	mu                  sync.Mutex
	outcomes            []bool // ring of recent call results
	next                int
	filled              int
	consecutiveFailures int
	cooldownUntil       time.Time
	recentLatency       time.Duration
	lastErr             error
}

func newBackendState(backend ai.Backend) *backendState {
	return &backendState{
		backend:  backend,
		outcomes: make([]bool, outcomeWindow),
	}
}

// record folds one call outcome into the rolling state. The circuit opens
// either on a consecutive-failure streak or when the success ratio over the
// sample window drops below the health threshold.
func (s *backendState) record(err error, latency time.Duration, now time.Time, unhealthyAfter int, cooldown time.Duration, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := err == nil
	s.outcomes[s.next] = ok
	s.next = (s.next + 1) % len(s.outcomes)
	if s.filled < len(s.outcomes) {
		s.filled++
	}
	s.recentLatency = latency

	if ok {
		s.consecutiveFailures = 0
		s.cooldownUntil = time.Time{}
		s.lastErr = nil
		return
	}
	s.lastErr = err
	s.consecutiveFailures++
	if cooldown <= 0 {
		return
	}
	if s.consecutiveFailures >= unhealthyAfter {
		s.cooldownUntil = now.Add(cooldown)
		return
	}
	if s.filled >= len(s.outcomes)/2 && s.successRatioLocked() < threshold {
		s.cooldownUntil = now.Add(cooldown)
	}
}

// usable reports whether the backend should receive traffic right now.
// Local backends are always usable; they have no circuit. An expired
// cooldown half-opens the circuit: the stale outcome window is dropped so
// the next call acts as a fresh trial.
func (s *backendState) usable(now time.Time) bool {
	if s.backend.Kind() == ai.KindLocal {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cooldownUntil.IsZero() {
		return true
	}
	if now.Before(s.cooldownUntil) {
		return false
	}
	s.cooldownUntil = time.Time{}
	s.filled = 0
	s.next = 0
	s.consecutiveFailures = 0
	return true
}

func (s *backendState) successRatioLocked() float64 {
	if s.filled == 0 {
		return 1.0
	}
	successes := 0
	for i := 0; i < s.filled; i++ {
		if s.outcomes[i] {
			successes++
		}
	}
	return float64(successes) / float64(s.filled)
}

func (s *backendState) snapshot(now time.Time) Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	cooling := !s.cooldownUntil.IsZero() && now.Before(s.cooldownUntil)
	h := Health{
		Name:                s.backend.Name(),
		Kind:                s.backend.Kind(),
		SuccessRatio:        s.successRatioLocked(),
		RecentLatency:       s.recentLatency,
		ConsecutiveFailures: s.consecutiveFailures,
		CoolingDown:         cooling,
		CooldownUntil:       s.cooldownUntil,
	}
	h.Available = !cooling
	if s.lastErr != nil {
		h.LastError = s.lastErr.Error()
	}
	return h
}
