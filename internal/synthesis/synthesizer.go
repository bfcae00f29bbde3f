// Package synthesis assembles the final explanation artifact from the
// generated pieces and renders it to disk.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"codecast/internal/analysis"
	"codecast/internal/content"
	"codecast/internal/logging"
	"codecast/internal/services"
	"codecast/internal/services/ai"
)

// Input carries everything the generation stages produced.
type Input struct {
	Request         content.Request
	Analysis        analysis.Analysis
	Script          ai.Script
	Flowchart       *content.Flowchart
	Examples        *content.ExampleSet
	Partial         bool
	OmittedSections []string
}

// Renderer persists a finished explanation and returns its content URL.
type Renderer interface {
	Render(ctx context.Context, expl *content.Explanation) (string, error)
}

// Synthesizer builds explanations from stage output.
type Synthesizer struct {
	renderer Renderer
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// New constructs a synthesizer over the given renderer.
func New(renderer Renderer, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		renderer: renderer,
		logger:   logging.NewComponentLogger(logger, "synthesis"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Synthesize builds the immutable explanation and renders it. A failure
// here is terminal for the request; there is nothing to degrade to.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*content.Explanation, error) {
	if in.Script.Markdown == "" {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "assemble", "narration script is empty", nil)
	}
	transcript := Transcript(in.Script.Markdown)
	if transcript == "" {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "assemble", "script produced no spoken text", nil)
	}

	expl := &content.Explanation{
		ID:              s.newID(),
		ContentType:     in.Request.ContentType,
		DurationSeconds: Duration(in.Analysis, transcript),
		Transcript:      transcript,
		ScriptMarkdown:  in.Script.Markdown,
		Flowchart:       in.Flowchart,
		Examples:        in.Examples,
		Partial:         in.Partial,
		OmittedSections: in.OmittedSections,
		CreatedAt:       s.now().UTC(),
	}

	url, err := s.renderer.Render(ctx, expl)
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "render", "persist artifact", err)
	}
	expl.ContentURL = url

	s.logger.InfoContext(ctx, "synthesized explanation",
		logging.String("content_id", expl.ID),
		logging.String("content_type", string(expl.ContentType)),
		logging.Int("duration_seconds", expl.DurationSeconds),
		logging.Bool("partial", expl.Partial),
	)
	return expl, nil
}

// Spoken narration pacing in words per minute, used to refine the duration
// estimate from the actual transcript length.
const spokenWordsPerMinute = 150

// Duration derives the explanation length in seconds. The analysis hint
// sets the target band for the code size; the transcript's word count at
// normal speech pace moves the estimate within that band.
func Duration(a analysis.Analysis, transcript string) int {
	lo, hi := durationBounds(a.Complexity)

	seconds := a.DurationHintSeconds
	if transcript != "" {
		words := wordCount(transcript)
		spoken := words * 60 / spokenWordsPerMinute
		if spoken > 0 {
			seconds = (seconds + spoken) / 2
		}
	}
	if seconds < lo {
		return lo
	}
	if seconds > hi {
		return hi
	}
	return seconds
}

func durationBounds(c analysis.Complexity) (int, int) {
	switch c {
	case analysis.ComplexitySmall:
		return 120, 300
	case analysis.ComplexityMedium:
		return 300, 600
	default:
		// Large inputs cap at ten minutes but a terse summary-mode
		// transcript may come in under it.
		return 300, 600
	}
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

// FormatDuration renders seconds as m:ss for display.
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
