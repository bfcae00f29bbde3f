package synthesis

import (
	"context"
	"strings"
	"testing"

	"codecast/internal/analysis"
	"codecast/internal/content"
	"codecast/internal/services/ai"
)

const sampleScript = "## Binary Search\n\nThis function searches a sorted slice.\n\nEach step halves the remaining range.\n\n```go\nnever spoken\n```\n\nIt returns the index when the value is found."

func TestTranscriptFlattensMarkdown(t *testing.T) {
	got := Transcript(sampleScript)

	if strings.Contains(got, "#") {
		t.Errorf("heading markers leaked into transcript: %q", got)
	}
	if strings.Contains(got, "never spoken") {
		t.Error("code block content must not appear in the transcript")
	}
	if !strings.Contains(got, "Binary Search") {
		t.Error("heading text should survive as spoken text")
	}
	if !strings.Contains(got, "halves the remaining range") {
		t.Error("paragraph text missing from transcript")
	}
}

func TestTranscriptJoinsSoftWrappedLines(t *testing.T) {
	got := Transcript("First half\nsecond half.")
	if !strings.Contains(got, "First half second half.") {
		t.Errorf("soft line break should become a space, got %q", got)
	}
}

func TestDurationBounds(t *testing.T) {
	cases := []struct {
		name     string
		analysis analysis.Analysis
		lo, hi   int
	}{
		{"small", analysis.Analysis{Complexity: analysis.ComplexitySmall, DurationHintSeconds: 200}, 120, 300},
		{"medium", analysis.Analysis{Complexity: analysis.ComplexityMedium, DurationHintSeconds: 450}, 300, 600},
		{"large", analysis.Analysis{Complexity: analysis.ComplexityLarge, DurationHintSeconds: 600}, 300, 600},
	}
	transcript := strings.Repeat("word ", 400)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Duration(tc.analysis, transcript)
			if got < tc.lo || got > tc.hi {
				t.Errorf("Duration = %d, want within [%d, %d]", got, tc.lo, tc.hi)
			}
		})
	}
}

func TestDurationLargeSummaryCanLandUnderCap(t *testing.T) {
	a := analysis.Analysis{
		Complexity:          analysis.ComplexityLarge,
		LineCount:           800,
		DurationHintSeconds: 600,
	}
	// A summary-mode transcript is short; roughly 2.5 minutes of speech.
	got := Duration(a, strings.Repeat("word ", 400))
	if got >= 600 {
		t.Errorf("short summary narration should come in under the cap, got %ds", got)
	}
	if got < 300 {
		t.Errorf("Duration = %ds, below the large lower bound", got)
	}

	if got := Duration(a, ""); got != 600 {
		t.Errorf("without a transcript the hint should cap at 600s, got %ds", got)
	}
}

func TestDurationFiftyLineFunction(t *testing.T) {
	a := analysis.Analysis{
		Complexity:          analysis.ComplexitySmall,
		LineCount:           50,
		DurationHintSeconds: 210,
	}
	got := Duration(a, strings.Repeat("word ", 300))
	if got < 120 || got > 300 {
		t.Errorf("a 50 line function should land in the 2-5 minute band, got %ds", got)
	}
}

type captureRenderer struct {
	rendered *content.Explanation
}

func (c *captureRenderer) Render(ctx context.Context, expl *content.Explanation) (string, error) {
	c.rendered = expl
	return "file:///artifacts/" + expl.ID + ".json", nil
}

func TestSynthesizeAssemblesExplanation(t *testing.T) {
	renderer := &captureRenderer{}
	synth := New(renderer, nil)

	flow := &content.Flowchart{Nodes: []content.FlowNode{{ID: "start", Kind: "start"}, {ID: "end", Kind: "end"}}}
	expl, err := synth.Synthesize(context.Background(), Input{
		Request:   content.Request{ContentType: content.TypeVideo},
		Analysis:  analysis.Analysis{Complexity: analysis.ComplexitySmall, DurationHintSeconds: 180},
		Script:    ai.Script{Markdown: sampleScript, Title: "Binary Search"},
		Flowchart: flow,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if expl.ID == "" {
		t.Error("expected a generated content id")
	}
	if expl.ContentURL == "" {
		t.Error("expected a content URL from the renderer")
	}
	if expl.Flowchart != flow {
		t.Error("flowchart should pass through")
	}
	if expl.Partial {
		t.Error("complete input should not mark the explanation partial")
	}
	if expl.DurationSeconds < 120 || expl.DurationSeconds > 300 {
		t.Errorf("duration %d outside small band", expl.DurationSeconds)
	}
	if renderer.rendered == nil {
		t.Fatal("renderer was not invoked")
	}
}

func TestSynthesizeRejectsEmptyScript(t *testing.T) {
	synth := New(&captureRenderer{}, nil)
	_, err := synth.Synthesize(context.Background(), Input{})
	if err == nil {
		t.Fatal("expected an error for an empty script")
	}
}

func TestSynthesizePropagatesPartial(t *testing.T) {
	synth := New(&captureRenderer{}, nil)
	expl, err := synth.Synthesize(context.Background(), Input{
		Request:         content.Request{ContentType: content.TypeAudio},
		Analysis:        analysis.Analysis{Complexity: analysis.ComplexitySmall, DurationHintSeconds: 150},
		Script:          ai.Script{Markdown: "## T\n\nBody."},
		Partial:         true,
		OmittedSections: []string{"flowchart"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !expl.Partial || len(expl.OmittedSections) != 1 {
		t.Errorf("partial metadata lost: %+v", expl)
	}
}

func TestFileRendererWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	renderer, err := NewFileRenderer(dir)
	if err != nil {
		t.Fatalf("NewFileRenderer: %v", err)
	}

	expl := &content.Explanation{ID: "abc", Transcript: "Spoken text."}
	url, err := renderer.Render(context.Background(), expl)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("expected file URL, got %q", url)
	}
	if !strings.HasSuffix(url, "abc.json") {
		t.Errorf("URL should point at the document, got %q", url)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(185); got != "3:05" {
		t.Errorf("FormatDuration = %q", got)
	}
}
