package analysis

import (
	"bufio"
	"context"
	"log/slog"
	"strings"

	"codecast/internal/logging"
	"codecast/internal/services"
)

// Complexity buckets drive the narration length policy.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"  // under 100 lines
	ComplexityMedium Complexity = "medium" // 100 to 500 lines
	ComplexityLarge  Complexity = "large"  // over 500 lines
)

const (
	smallLineLimit  = 100
	mediumLineLimit = 500

	minSmallSeconds  = 120
	maxSmallSeconds  = 300
	maxMediumSeconds = 600
	maxLargeSeconds  = 600
)

// Analysis is the structural summary handed to every generation stage.
type Analysis struct {
	Language            string     `json:"language"`
	LineCount           int        `json:"line_count"`
	FunctionCount       int        `json:"function_count"`
	BranchCount         int        `json:"branch_count"`
	LoopCount           int        `json:"loop_count"`
	CyclomaticEstimate  int        `json:"cyclomatic_estimate"`
	Complexity          Complexity `json:"complexity"`
	Functions           []string   `json:"functions,omitempty"`
	SummaryMode         bool       `json:"summary_mode"`
	DurationHintSeconds int        `json:"duration_hint_seconds"`
}

// HasControlFlow reports whether any branches or loops were detected.
func (a Analysis) HasControlFlow() bool {
	return a.BranchCount > 0 || a.LoopCount > 0
}

// Analyzer is the contract the orchestrator consumes. Failures are terminal
// for the request; the pipeline never retries analysis.
type Analyzer interface {
	Analyze(ctx context.Context, code, language string) (Analysis, error)
}

// Heuristic is the bundled lexical analyzer.
type Heuristic struct {
	logger *slog.Logger
}

// NewHeuristic constructs the bundled analyzer.
func NewHeuristic(logger *slog.Logger) *Heuristic {
	return &Heuristic{logger: logging.NewComponentLogger(logger, "analysis")}
}

var branchKeywords = []string{"if ", "if(", "else if", "elif ", "case ", "switch ", "switch(", "when ", "match ", "catch ", "except ", "? "}

var loopKeywords = []string{"for ", "for(", "while ", "while(", "loop ", "do ", "foreach", ".forEach", "range "}

var functionMarkers = []string{"func ", "def ", "fn ", "function ", "sub ", "proc ", "lambda "}

// Analyze scans the supplied code and derives the structural summary.
func (h *Heuristic) Analyze(ctx context.Context, code, language string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	if strings.TrimSpace(code) == "" {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analysis", "scan", "empty code selection", nil)
	}
	if strings.ContainsRune(code, '\x00') {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analysis", "scan", "binary input is not analyzable", nil)
	}

	result := Analysis{Language: strings.ToLower(strings.TrimSpace(language))}

	scanner := bufio.NewScanner(strings.NewReader(code))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result.LineCount++
		if isCommentLine(line) {
			continue
		}
		lowered := strings.ToLower(line)
		if name, ok := functionName(line, lowered); ok {
			result.FunctionCount++
			if name != "" && len(result.Functions) < 32 {
				result.Functions = append(result.Functions, name)
			}
		}
		result.BranchCount += countAny(lowered, branchKeywords)
		result.LoopCount += countAny(lowered, loopKeywords)
	}
	if err := scanner.Err(); err != nil {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analysis", "scan", "line too long for analysis", err)
	}
	if result.LineCount == 0 {
		return Analysis{}, services.Wrap(services.ErrAnalysis, "analysis", "scan", "no analyzable lines", nil)
	}

	result.CyclomaticEstimate = 1 + result.BranchCount + result.LoopCount
	result.Complexity = classify(result.LineCount)
	result.SummaryMode = result.Complexity == ComplexityLarge
	result.DurationHintSeconds = durationHint(result.LineCount)

	h.logger.DebugContext(ctx, "analyzed code selection",
		logging.String("language", result.Language),
		logging.Int("line_count", result.LineCount),
		logging.Int("function_count", result.FunctionCount),
		logging.Int("cyclomatic_estimate", result.CyclomaticEstimate),
		logging.String("complexity", string(result.Complexity)),
	)
	return result, nil
}

func classify(lines int) Complexity {
	switch {
	case lines < smallLineLimit:
		return ComplexitySmall
	case lines <= mediumLineLimit:
		return ComplexityMedium
	default:
		return ComplexityLarge
	}
}

// durationHint maps analyzed line count onto the narration length policy:
// under 100 lines targets 2-5 minutes, 100-500 targets 5-10, anything larger
// is capped at 10 with file-level summarization.
func durationHint(lines int) int {
	switch classify(lines) {
	case ComplexitySmall:
		return minSmallSeconds + lines*(maxSmallSeconds-minSmallSeconds)/smallLineLimit
	case ComplexityMedium:
		return maxSmallSeconds + (lines-smallLineLimit)*(maxMediumSeconds-maxSmallSeconds)/(mediumLineLimit-smallLineLimit)
	default:
		return maxLargeSeconds
	}
}

func isCommentLine(line string) bool {
	for _, prefix := range []string{"//", "#", "--", "/*", "*", "'''", `"""`} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func functionName(line, lowered string) (string, bool) {
	for _, marker := range functionMarkers {
		idx := strings.Index(lowered, marker)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(marker):]
		rest = strings.TrimSpace(rest)
		// Go methods: skip the receiver to reach the name.
		if strings.HasPrefix(rest, "(") {
			if closeIdx := strings.Index(rest, ")"); closeIdx >= 0 {
				rest = strings.TrimSpace(rest[closeIdx+1:])
			}
		}
		end := strings.IndexAny(rest, "( :=")
		if end < 0 {
			end = len(rest)
		}
		return strings.TrimSpace(rest[:end]), true
	}
	return "", false
}

func countAny(line string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		count += strings.Count(line, keyword)
	}
	return count
}
