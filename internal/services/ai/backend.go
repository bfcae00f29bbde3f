package ai

import (
	"context"

	"codecast/internal/analysis"
	"codecast/internal/content"
)

// Kind enumerates where a backend runs. The router's privacy invariant keys
// off this value.
type Kind string

const (
	KindCloud Kind = "cloud"
	KindLocal Kind = "local"
)

// ScriptRequest asks a backend for the narration script in markdown.
type ScriptRequest struct {
	Code              string
	SourceLanguage    string
	NarrationLanguage string
	Analysis          analysis.Analysis
	// SummaryMode requests file-level summarization instead of full
	// line-by-line narration; set for large inputs.
	SummaryMode bool
}

// Script is the generated narration.
type Script struct {
	Markdown string
	Title    string
}

// FlowchartRequest asks a backend for a control-flow diagram.
type FlowchartRequest struct {
	Code           string
	SourceLanguage string
	Analysis       analysis.Analysis
}

// ExamplesRequest asks a backend for cross-language renderings.
type ExamplesRequest struct {
	Code           string
	SourceLanguage string
	TargetLanguage string
	Analysis       analysis.Analysis
}

// Turn is a single prior exchange supplied as Q&A context.
type Turn struct {
	Question string
	Answer   string
}

// AnswerRequest asks a backend to answer a follow-up question about
// previously explained code. Transcript carries the cached narration as
// read-only context.
type AnswerRequest struct {
	Question   string
	Code       string
	Language   string
	Transcript string
	History    []Turn
}

// Backend is the IAIService-shaped contract the router selects between.
// Implementations classify their own failures with the services sentinels
// so the router and orchestrator can tell transient from terminal.
type Backend interface {
	Name() string
	Kind() Kind
	GenerateScript(ctx context.Context, req ScriptRequest) (Script, error)
	GenerateFlowchart(ctx context.Context, req FlowchartRequest) (content.Flowchart, error)
	GenerateExamples(ctx context.Context, req ExamplesRequest) (content.ExampleSet, error)
	Answer(ctx context.Context, req AnswerRequest) (string, error)
	HealthCheck(ctx context.Context) error
}
