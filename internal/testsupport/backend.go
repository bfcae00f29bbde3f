// Package testsupport holds shared fakes and builders for package tests.
package testsupport

import (
	"context"
	"sync"

	"codecast/internal/content"
	"codecast/internal/services/ai"
)

// ScriptedBackend is a programmable ai.Backend for tests. Set FailuresLeft
// to make the next N calls fail with Err; calls after that succeed with the
// canned payloads.
type ScriptedBackend struct {
	BackendName string
	BackendKind ai.Kind

	Err          error
	FailuresLeft int
	// FailOp limits failures to one operation; empty fails any operation.
	FailOp string

	Script    ai.Script
	Flowchart content.Flowchart
	Examples  content.ExampleSet
	Reply     string

	// Block, when non-nil, is closed by the test to release in-flight calls.
	Block chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

// NewScriptedBackend returns a backend that succeeds with minimal payloads.
func NewScriptedBackend(name string, kind ai.Kind) *ScriptedBackend {
	return &ScriptedBackend{
		BackendName: name,
		BackendKind: kind,
		Script:      ai.Script{Markdown: "## Walkthrough\n\nIt works.", Title: "Walkthrough"},
		Flowchart: content.Flowchart{
			Nodes: []content.FlowNode{
				{ID: "start", Label: "Start", Kind: "start"},
				{ID: "end", Label: "End", Kind: "end"},
			},
			Edges: []content.FlowEdge{{From: "start", To: "end"}},
		},
		Examples: content.ExampleSet{
			Examples: []content.Example{{Language: "go", Code: "package main"}},
		},
		Reply: "It sorts the slice in place.",
	}
}

func (s *ScriptedBackend) Name() string  { return s.BackendName }
func (s *ScriptedBackend) Kind() ai.Kind { return s.BackendKind }

// Calls reports how many times the named operation ran.
func (s *ScriptedBackend) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls reports the number of generation calls across all operations.
func (s *ScriptedBackend) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *ScriptedBackend) step(ctx context.Context, op string) error {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[op]++
	fail := s.FailuresLeft > 0 && (s.FailOp == "" || s.FailOp == op)
	if fail {
		s.FailuresLeft--
	}
	block := s.Block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fail {
		return s.Err
	}
	return nil
}

func (s *ScriptedBackend) GenerateScript(ctx context.Context, req ai.ScriptRequest) (ai.Script, error) {
	if err := s.step(ctx, "script"); err != nil {
		return ai.Script{}, err
	}
	return s.Script, nil
}

func (s *ScriptedBackend) GenerateFlowchart(ctx context.Context, req ai.FlowchartRequest) (content.Flowchart, error) {
	if err := s.step(ctx, "flowchart"); err != nil {
		return content.Flowchart{}, err
	}
	return s.Flowchart, nil
}

func (s *ScriptedBackend) GenerateExamples(ctx context.Context, req ai.ExamplesRequest) (content.ExampleSet, error) {
	if err := s.step(ctx, "examples"); err != nil {
		return content.ExampleSet{}, err
	}
	return s.Examples, nil
}

func (s *ScriptedBackend) Answer(ctx context.Context, req ai.AnswerRequest) (string, error) {
	if err := s.step(ctx, "answer"); err != nil {
		return "", err
	}
	return s.Reply, nil
}

func (s *ScriptedBackend) HealthCheck(ctx context.Context) error {
	return s.step(ctx, "health")
}
