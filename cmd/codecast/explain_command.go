package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"codecast/internal/content"
	"codecast/internal/pipeline"
	"codecast/internal/services"
	"codecast/internal/synthesis"
)

// languageByExtension maps common file extensions to language names so
// `codecast explain file.py` needs no --language flag.
var languageByExtension = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".jsx":   "javascript",
	".tsx":   "typescript",
	".rs":    "rust",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".sh":    "bash",
	".sql":   "sql",
}

func newExplainCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		languageFlag  string
		typeFlag      string
		noFlowchart   bool
		examplesIn    string
		narrationLang string
		force         bool
	)

	cmd := &cobra.Command{
		Use:   "explain [file]",
		Short: "Generate a spoken explanation for a code file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, language, err := readCode(cmd, args, languageFlag)
			if err != nil {
				return err
			}

			contentType := content.TypeVideo
			if typeFlag != "" {
				parsed, ok := content.ParseType(typeFlag)
				if !ok {
					return fmt.Errorf("unknown content type %q (use video, audio, or summary)", typeFlag)
				}
				contentType = parsed
			}

			app, err := cmdCtx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			narration := strings.TrimSpace(narrationLang)
			if narration == "" {
				narration = app.cfg.Pipeline.NarrationLanguage
			}
			req := content.Request{
				Code:              code,
				SourceLanguage:    language,
				TargetLanguage:    strings.TrimSpace(examplesIn),
				ContentType:       contentType,
				IncludeFlowchart:  !noFlowchart,
				IncludeExamples:   strings.TrimSpace(examplesIn) != "",
				NarrationLanguage: narration,
			}

			return cmdCtx.withInstanceLock(cmd.Context(), func() error {
				ctx := cmd.Context()
				if force {
					removed, err := app.orchestrator.Invalidate(ctx, req)
					if err != nil {
						return err
					}
					if removed != "" && app.qaEngine != nil {
						if _, err := app.qaEngine.Store().CloseForContent(ctx, removed); err != nil {
							return err
						}
					}
				}

				result, err := app.orchestrator.Explain(ctx, req)
				if err != nil {
					return renderFailure(cmd, cmdCtx, err)
				}

				var sessionID string
				if app.qaEngine != nil {
					session, err := app.qaEngine.Store().Create(ctx,
						result.Explanation.ID, result.Fingerprint.String(),
						language, code, result.Explanation.Transcript)
					if err != nil {
						return err
					}
					sessionID = session.ID
				}
				return renderExplainResult(cmd, cmdCtx, result, sessionID)
			})
		},
	}

	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Source language (inferred from the file extension when omitted)")
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "video", "Content type: video, audio, or summary")
	cmd.Flags().BoolVar(&noFlowchart, "no-flowchart", false, "Skip flowchart generation")
	cmd.Flags().StringVar(&examplesIn, "examples-in", "", "Generate idiomatic examples in this language")
	cmd.Flags().StringVar(&narrationLang, "narration-language", "", "Narration language (defaults to pipeline.narration_language)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Invalidate any cached explanation and regenerate")
	return cmd
}

// readCode loads the selection from the file argument or stdin and
// resolves the source language.
func readCode(cmd *cobra.Command, args []string, languageFlag string) (string, string, error) {
	language := strings.ToLower(strings.TrimSpace(languageFlag))

	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", "", fmt.Errorf("no code provided; pass a file or pipe code on stdin")
		}
		if language == "" {
			return "", "", fmt.Errorf("--language is required when reading from stdin")
		}
		return string(data), language, nil
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	if language == "" {
		language = languageByExtension[strings.ToLower(filepath.Ext(path))]
	}
	if language == "" {
		return "", "", fmt.Errorf("cannot infer language for %s; pass --language", path)
	}
	return string(data), language, nil
}

type explainOutput struct {
	ContentID       string            `json:"content_id"`
	ContentURL      string            `json:"content_url"`
	ContentType     string            `json:"content_type"`
	DurationSeconds int               `json:"duration_seconds"`
	Partial         bool              `json:"partial"`
	OmittedSections []string          `json:"omitted_sections,omitempty"`
	FromCache       bool              `json:"from_cache"`
	Fingerprint     string            `json:"fingerprint"`
	SessionID       string            `json:"session_id,omitempty"`
	Backends        map[string]string `json:"backends,omitempty"`
	ElapsedMillis   int64             `json:"elapsed_ms"`
	Transcript      string            `json:"transcript"`
}

func renderExplainResult(cmd *cobra.Command, cmdCtx *commandContext, result *pipeline.Result, sessionID string) error {
	expl := result.Explanation
	if cmdCtx.jsonOutput() {
		return writeJSON(cmd, explainOutput{
			ContentID:       expl.ID,
			ContentURL:      expl.ContentURL,
			ContentType:     string(expl.ContentType),
			DurationSeconds: expl.DurationSeconds,
			Partial:         expl.Partial,
			OmittedSections: expl.OmittedSections,
			FromCache:       result.FromCache,
			Fingerprint:     result.Fingerprint.String(),
			SessionID:       sessionID,
			Backends:        result.Backends,
			ElapsedMillis:   result.Elapsed.Milliseconds(),
			Transcript:      expl.Transcript,
		})
	}

	out := cmd.OutOrStdout()
	source := "generated"
	if result.FromCache {
		source = "cache"
	} else if result.Shared {
		source = "shared generation"
	}
	fmt.Fprintf(out, "Explanation %s (%s, %s, %s)\n",
		expl.ID, expl.ContentType, synthesis.FormatDuration(expl.DurationSeconds), source)
	fmt.Fprintf(out, "Artifact: %s\n", expl.ContentURL)
	if expl.Partial {
		fmt.Fprintf(out, "Partial result; omitted: %s\n", strings.Join(expl.OmittedSections, ", "))
	}
	if sessionID != "" {
		fmt.Fprintf(out, "Ask follow-up questions with: codecast ask --session %s \"...\"\n", sessionID)
	}
	fmt.Fprintf(out, "\n%s\n", expl.Transcript)
	return nil
}

// renderFailure maps a pipeline error to the structured response shape.
func renderFailure(cmd *cobra.Command, cmdCtx *commandContext, err error) error {
	resp := services.Respond(err, true)
	if cmdCtx.jsonOutput() {
		if writeErr := writeJSON(cmd, resp); writeErr != nil {
			return writeErr
		}
		return err
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Error [%s]: %s\n", resp.Code, resp.Message)
	for _, suggestion := range resp.Suggestions {
		fmt.Fprintf(out, "  - %s\n", suggestion)
	}
	return err
}
