package pipeline

import (
	"fmt"
	"time"

	"codecast/internal/fingerprint"
)

// Stage identifies a step in the generation pipeline.
type Stage string

const (
	StagePending      Stage = "pending"
	StageAnalyzing    Stage = "analyzing"
	StageScripting    Stage = "scripting"
	StageFlowcharting Stage = "flowcharting"
	StageExemplifying Stage = "exemplifying"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// transitions is the legal stage graph. Optional stages may be skipped, so
// scripting can move straight to synthesizing, and any active stage can
// fail.
var transitions = map[Stage][]Stage{
	StagePending:      {StageAnalyzing},
	StageAnalyzing:    {StageScripting, StageFailed},
	StageScripting:    {StageFlowcharting, StageExemplifying, StageSynthesizing, StageFailed},
	StageFlowcharting: {StageExemplifying, StageSynthesizing, StageFailed},
	StageExemplifying: {StageSynthesizing, StageFailed},
	StageSynthesizing: {StageDone, StageFailed},
}

// CanTransition reports whether moving from one stage to another is legal.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// State is the progress record for one in-flight request.
type State struct {
	Fingerprint fingerprint.Fingerprint
	Stage       Stage
	StartedAt   time.Time
	UpdatedAt   time.Time
	Err         string
}

// NewState starts a request in the pending stage.
func NewState(fp fingerprint.Fingerprint, now time.Time) State {
	return State{Fingerprint: fp, Stage: StagePending, StartedAt: now, UpdatedAt: now}
}

// Advance moves the state to the next stage, enforcing the stage graph.
// An illegal transition is a pipeline bug, surfaced loudly rather than
// silently tolerated.
func (s State) Advance(to Stage, now time.Time) (State, error) {
	if !CanTransition(s.Stage, to) {
		return s, fmt.Errorf("illegal stage transition %s -> %s", s.Stage, to)
	}
	s.Stage = to
	s.UpdatedAt = now
	return s, nil
}

// Fail moves the state to failed from any non-terminal stage.
func (s State) Fail(err error, now time.Time) State {
	s.Stage = StageFailed
	s.UpdatedAt = now
	if err != nil {
		s.Err = err.Error()
	}
	return s
}
