package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"codecast/internal/logging"
	"codecast/internal/services"
)

func TestAnalyzeCountsStructure(t *testing.T) {
	code := `package main

// entry point
func main() {
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			process(i)
		}
	}
}

func process(n int) {
	switch n {
	case 0:
		return
	}
}
`
	analyzer := NewHeuristic(logging.NewNop())
	result, err := analyzer.Analyze(context.Background(), code, "Go")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.Language != "go" {
		t.Errorf("language = %q, want go", result.Language)
	}
	if result.FunctionCount != 2 {
		t.Errorf("function count = %d, want 2", result.FunctionCount)
	}
	if got := result.Functions; len(got) != 2 || got[0] != "main" || got[1] != "process" {
		t.Errorf("functions = %v", got)
	}
	if result.BranchCount == 0 {
		t.Error("expected branches to be counted")
	}
	if result.LoopCount == 0 {
		t.Error("expected the for loop to be counted")
	}
	if result.CyclomaticEstimate != 1+result.BranchCount+result.LoopCount {
		t.Errorf("cyclomatic estimate = %d", result.CyclomaticEstimate)
	}
	if !result.HasControlFlow() {
		t.Error("HasControlFlow should be true")
	}
}

func TestAnalyzeSkipsCommentsAndBlankLines(t *testing.T) {
	code := "// if this comment mentioned a loop for fun\n\nx = 1\n# while another comment\n"
	analyzer := NewHeuristic(logging.NewNop())
	result, err := analyzer.Analyze(context.Background(), code, "python")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.BranchCount != 0 || result.LoopCount != 0 {
		t.Errorf("comments were counted: branches=%d loops=%d", result.BranchCount, result.LoopCount)
	}
	if result.LineCount != 3 {
		t.Errorf("line count = %d, want 3 non-blank lines", result.LineCount)
	}
}

func TestAnalyzeRejectsUnusableInput(t *testing.T) {
	analyzer := NewHeuristic(logging.NewNop())
	for name, code := range map[string]string{
		"empty":      "   \n\t",
		"binary":     "func main\x00() {}",
		"only blank": "\n\n\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := analyzer.Analyze(context.Background(), code, "go"); !errors.Is(err, services.ErrAnalysis) {
				t.Fatalf("expected ErrAnalysis, got %v", err)
			}
		})
	}
}

func TestComplexityClassification(t *testing.T) {
	tests := []struct {
		lines       int
		complexity  Complexity
		summaryMode bool
	}{
		{10, ComplexitySmall, false},
		{99, ComplexitySmall, false},
		{100, ComplexityMedium, false},
		{500, ComplexityMedium, false},
		{501, ComplexityLarge, true},
	}
	analyzer := NewHeuristic(logging.NewNop())
	for _, tt := range tests {
		var sb strings.Builder
		for i := 0; i < tt.lines; i++ {
			fmt.Fprintf(&sb, "x%d = %d\n", i, i)
		}
		result, err := analyzer.Analyze(context.Background(), sb.String(), "python")
		if err != nil {
			t.Fatalf("Analyze(%d lines): %v", tt.lines, err)
		}
		if result.Complexity != tt.complexity {
			t.Errorf("%d lines: complexity = %s, want %s", tt.lines, result.Complexity, tt.complexity)
		}
		if result.SummaryMode != tt.summaryMode {
			t.Errorf("%d lines: summary mode = %v", tt.lines, result.SummaryMode)
		}
	}
}

func TestDurationHintFollowsLengthPolicy(t *testing.T) {
	tests := []struct {
		lines    int
		min, max int
	}{
		{1, 120, 300},
		{50, 120, 300},
		{99, 120, 300},
		{100, 300, 600},
		{500, 300, 600},
		{2000, 600, 600},
	}
	for _, tt := range tests {
		hint := durationHint(tt.lines)
		if hint < tt.min || hint > tt.max {
			t.Errorf("durationHint(%d) = %d, want within [%d, %d]", tt.lines, hint, tt.min, tt.max)
		}
	}
	if durationHint(30) >= durationHint(90) {
		t.Error("hint should grow with line count inside the small bucket")
	}
}

func TestFunctionNameExtraction(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"func main() {", "main"},
		{"func (s *Store) Get(ctx context.Context) error {", "Get"},
		{"def fetch_rows(conn):", "fetch_rows"},
		{"fn parse(input: &str) -> Result<()> {", "parse"},
		{"function handleClick(event) {", "handleClick"},
	}
	for _, tt := range tests {
		name, ok := functionName(tt.line, strings.ToLower(tt.line))
		if !ok || name != tt.want {
			t.Errorf("functionName(%q) = %q, %v; want %q", tt.line, name, ok, tt.want)
		}
	}
}
