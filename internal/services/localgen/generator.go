// Package localgen is the bundled offline backend. It produces template
// driven narration, flowcharts, and examples from the structural analysis
// alone, so explanations keep working with no network and no API keys.
// Output quality is deliberately below the cloud backends; availability is
// the point.
package localgen

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"codecast/internal/content"
	"codecast/internal/services/ai"
)

// Generator implements the backend contract without any external calls.
// All methods are deterministic for a given input.
type Generator struct {
	titler cases.Caser
}

// New constructs the offline generator.
func New() *Generator {
	return &Generator{titler: cases.Title(language.English)}
}

// Name identifies this backend to the router.
func (g *Generator) Name() string { return "local" }

// Kind reports the backend placement for routing and privacy checks.
func (g *Generator) Kind() ai.Kind { return ai.KindLocal }

// HealthCheck always succeeds; the local backend has no dependencies.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// GenerateScript renders a structural narration from the analysis.
func (g *Generator) GenerateScript(ctx context.Context, req ai.ScriptRequest) (ai.Script, error) {
	if err := ctx.Err(); err != nil {
		return ai.Script{}, err
	}

	langName := g.displayLanguage(req.SourceLanguage)
	title := fmt.Sprintf("%s Code Walkthrough", langName)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "This is a %s selection of %d lines", strings.ToLower(langName), req.Analysis.LineCount)
	if req.Analysis.FunctionCount > 0 {
		fmt.Fprintf(&b, " defining %s", countNoun(req.Analysis.FunctionCount, "function", "functions"))
	}
	b.WriteString(".\n\n")

	if req.SummaryMode {
		b.WriteString("The selection is large, so this walkthrough stays at the file level rather than narrating every line.\n\n")
	}

	if len(req.Analysis.Functions) > 0 {
		b.WriteString("### Structure\n\n")
		for _, name := range req.Analysis.Functions {
			fmt.Fprintf(&b, "The code defines %s.\n", spokenIdentifier(name))
		}
		b.WriteString("\n")
	}

	b.WriteString("### Control Flow\n\n")
	switch {
	case !req.Analysis.HasControlFlow():
		b.WriteString("Execution runs straight through from top to bottom with no branching.\n")
	default:
		fmt.Fprintf(&b, "Execution takes %s", countNoun(req.Analysis.BranchCount, "conditional branch", "conditional branches"))
		if req.Analysis.LoopCount > 0 {
			fmt.Fprintf(&b, " and repeats work in %s", countNoun(req.Analysis.LoopCount, "loop", "loops"))
		}
		fmt.Fprintf(&b, ", giving an estimated cyclomatic complexity of %d.\n", req.Analysis.CyclomaticEstimate)
	}
	b.WriteString("\nFor a deeper line-by-line explanation, rerun with a cloud backend enabled.\n")

	return ai.Script{Markdown: b.String(), Title: title}, nil
}

// GenerateFlowchart derives a coarse diagram from the branch and loop
// counts. Without parsing, the chart shows shape, not exact conditions.
func (g *Generator) GenerateFlowchart(ctx context.Context, req ai.FlowchartRequest) (content.Flowchart, error) {
	if err := ctx.Err(); err != nil {
		return content.Flowchart{}, err
	}

	chart := content.Flowchart{
		Nodes: []content.FlowNode{{ID: "start", Label: "Start", Kind: "start"}},
	}
	previous := "start"

	addNode := func(id, label, kind string) {
		chart.Nodes = append(chart.Nodes, content.FlowNode{ID: id, Label: label, Kind: kind})
		chart.Edges = append(chart.Edges, content.FlowEdge{From: previous, To: id})
		previous = id
	}

	for i := 0; i < req.Analysis.BranchCount && i < 6; i++ {
		id := fmt.Sprintf("branch%d", i+1)
		addNode(id, fmt.Sprintf("Condition %d", i+1), "decision")
		altID := fmt.Sprintf("alt%d", i+1)
		chart.Nodes = append(chart.Nodes, content.FlowNode{ID: altID, Label: "Alternate path", Kind: "process"})
		chart.Edges = append(chart.Edges, content.FlowEdge{From: id, To: altID, Label: "no"})
	}
	for i := 0; i < req.Analysis.LoopCount && i < 6; i++ {
		id := fmt.Sprintf("loop%d", i+1)
		addNode(id, fmt.Sprintf("Loop %d body", i+1), "process")
		chart.Edges = append(chart.Edges, content.FlowEdge{From: id, To: id, Label: "repeat"})
	}

	// Straight-line code gets start and end only; the closing edge below
	// connects them directly.
	chart.Nodes = append(chart.Nodes, content.FlowNode{ID: "end", Label: "End", Kind: "end"})
	chart.Edges = append(chart.Edges, content.FlowEdge{From: previous, To: "end"})
	return chart, nil
}

// GenerateExamples returns a placeholder rendering. The local backend
// cannot translate code; it reports that honestly rather than inventing.
func (g *Generator) GenerateExamples(ctx context.Context, req ai.ExamplesRequest) (content.ExampleSet, error) {
	if err := ctx.Err(); err != nil {
		return content.ExampleSet{}, err
	}
	target := g.displayLanguage(req.TargetLanguage)
	return content.ExampleSet{
		Examples: []content.Example{{
			Language: strings.ToLower(strings.TrimSpace(req.TargetLanguage)),
			Code: fmt.Sprintf("// %s translation is not available offline.\n// Enable a cloud backend to generate idiomatic %s.",
				target, target),
			Notes: fmt.Sprintf("Offline mode cannot translate to %s; this is a placeholder.", target),
		}},
	}, nil
}

// Answer handles follow-up questions from the cached transcript only.
func (g *Generator) Answer(ctx context.Context, req ai.AnswerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return "Offline mode can only answer from a generated explanation, and none is available for this code yet.", nil
	}
	question := strings.ToLower(req.Question)
	for _, paragraph := range strings.Split(req.Transcript, "\n\n") {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if paragraphMatches(strings.ToLower(trimmed), question) {
			return fmt.Sprintf("From the explanation: %s", trimmed), nil
		}
	}
	return "The explanation does not cover that question. Rerun with a cloud backend for a fuller answer.", nil
}

// paragraphMatches does crude keyword overlap between question and
// transcript paragraph.
func paragraphMatches(paragraph, question string) bool {
	for _, word := range strings.Fields(question) {
		word = strings.Trim(word, "?.,!\"'")
		if len(word) < 4 {
			continue
		}
		if strings.Contains(paragraph, word) {
			return true
		}
	}
	return false
}

func (g *Generator) displayLanguage(lang string) string {
	trimmed := strings.TrimSpace(lang)
	if trimmed == "" {
		return "Source"
	}
	switch strings.ToLower(trimmed) {
	case "javascript":
		return "JavaScript"
	case "typescript":
		return "TypeScript"
	case "csharp", "c#":
		return "C#"
	case "cpp", "c++":
		return "C++"
	case "php":
		return "PHP"
	case "sql":
		return "SQL"
	default:
		return g.titler.String(trimmed)
	}
}

// spokenIdentifier expands an identifier for narration, splitting
// camelCase and snake_case into words.
func spokenIdentifier(name string) string {
	if name == "" {
		return "an unnamed function"
	}
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	if len(words) == 0 {
		return fmt.Sprintf("the function %q", name)
	}
	return fmt.Sprintf("the function %q, read as %s", name, strings.Join(words, " "))
}

func countNoun(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
