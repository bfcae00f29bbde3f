package content

import (
	"strings"
	"time"
)

// Type selects the synthesized output format.
type Type string

const (
	TypeVideo   Type = "video"
	TypeAudio   Type = "audio"
	TypeSummary Type = "summary"
)

// ParseType converts a string into a known content type.
func ParseType(value string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case TypeVideo:
		return TypeVideo, true
	case TypeAudio:
		return TypeAudio, true
	case TypeSummary:
		return TypeSummary, true
	default:
		return "", false
	}
}

// Request is the canonical pipeline input. Fingerprint equality over its
// fields defines cache identity.
type Request struct {
	Code              string
	SourceLanguage    string
	TargetLanguage    string
	ContentType       Type
	IncludeFlowchart  bool
	IncludeExamples   bool
	NarrationLanguage string
}

// FlowNode is a single node in a generated flowchart.
type FlowNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"` // start, end, process, decision
}

// FlowEdge connects two flowchart nodes.
type FlowEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Flowchart is the generated control-flow diagram for an explanation.
type Flowchart struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// Example is a cross-language rendering of the explained code.
type Example struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Notes    string `json:"notes,omitempty"`
}

// ExampleSet groups the generated cross-language examples.
type ExampleSet struct {
	Examples []Example `json:"examples"`
}

// Explanation is the final artifact produced by the pipeline. It is never
// mutated after synthesis; regeneration produces a fresh instance with a new
// ID.
type Explanation struct {
	ID              string      `json:"id"`
	ContentURL      string      `json:"content_url"`
	ContentType     Type        `json:"content_type"`
	DurationSeconds int         `json:"duration_seconds"`
	Transcript      string      `json:"transcript"`
	ScriptMarkdown  string      `json:"script_markdown,omitempty"`
	Flowchart       *Flowchart  `json:"flowchart,omitempty"`
	Examples        *ExampleSet `json:"examples,omitempty"`
	Partial         bool        `json:"partial"`
	OmittedSections []string    `json:"omitted_sections,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// SnippetPreview returns a short single-line preview of the explained code,
// suitable for cache listings.
func SnippetPreview(code string, limit int) string {
	if limit <= 0 {
		limit = 80
	}
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > limit {
			return string(runes[:limit]) + "..."
		}
		return trimmed
	}
	return ""
}
