package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"codecast/internal/content"
	"codecast/internal/services"
	"codecast/internal/services/ai"
)

const defaultTimeout = 60 * time.Second

// Config captures the runtime settings for the Gemini backend.
type Config struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Client wraps the Gemini API as a cloud generation backend.
type Client struct {
	model   string
	timeout time.Duration
	genai   *genai.Client
}

// New constructs a Gemini client. It validates the API key eagerly so a
// misconfigured backend fails at startup rather than mid-pipeline.
func New(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "api key required", nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "model required", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "init", "create client", err)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{model: model, timeout: timeout, genai: client}, nil
}

// Name identifies this backend to the router.
func (c *Client) Name() string { return "gemini" }

// Kind reports the backend placement for routing and privacy checks.
func (c *Client) Kind() ai.Kind { return ai.KindCloud }

// GenerateScript produces the markdown narration script.
func (c *Client) GenerateScript(ctx context.Context, req ai.ScriptRequest) (ai.Script, error) {
	payload, err := c.generateJSON(ctx, "script", scriptInstruction, scriptPrompt(req))
	if err != nil {
		return ai.Script{}, err
	}
	var parsed struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	}
	if err := ai.DecodeJSON(payload, &parsed); err != nil {
		return ai.Script{}, services.Wrap(services.ErrTransient, "gemini", "script", "parse payload", err)
	}
	if strings.TrimSpace(parsed.Markdown) == "" {
		return ai.Script{}, services.Wrap(services.ErrTransient, "gemini", "script", "empty narration payload", nil)
	}
	return ai.Script{Markdown: parsed.Markdown, Title: strings.TrimSpace(parsed.Title)}, nil
}

// GenerateFlowchart produces the control-flow diagram.
func (c *Client) GenerateFlowchart(ctx context.Context, req ai.FlowchartRequest) (content.Flowchart, error) {
	payload, err := c.generateJSON(ctx, "flowchart", flowchartInstruction, flowchartPrompt(req))
	if err != nil {
		return content.Flowchart{}, err
	}
	var parsed content.Flowchart
	if err := ai.DecodeJSON(payload, &parsed); err != nil {
		return content.Flowchart{}, services.Wrap(services.ErrTransient, "gemini", "flowchart", "parse payload", err)
	}
	if len(parsed.Nodes) == 0 {
		return content.Flowchart{}, services.Wrap(services.ErrTransient, "gemini", "flowchart", "no nodes in payload", nil)
	}
	return parsed, nil
}

// GenerateExamples produces the cross-language renderings.
func (c *Client) GenerateExamples(ctx context.Context, req ai.ExamplesRequest) (content.ExampleSet, error) {
	payload, err := c.generateJSON(ctx, "examples", examplesInstruction, examplesPrompt(req))
	if err != nil {
		return content.ExampleSet{}, err
	}
	var parsed content.ExampleSet
	if err := ai.DecodeJSON(payload, &parsed); err != nil {
		return content.ExampleSet{}, services.Wrap(services.ErrTransient, "gemini", "examples", "parse payload", err)
	}
	if len(parsed.Examples) == 0 {
		return content.ExampleSet{}, services.Wrap(services.ErrTransient, "gemini", "examples", "no examples in payload", nil)
	}
	return parsed, nil
}

// Answer responds to a follow-up question about explained code.
func (c *Client) Answer(ctx context.Context, req ai.AnswerRequest) (string, error) {
	payload, err := c.generateJSON(ctx, "answer", answerInstruction, answerPrompt(req))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := ai.DecodeJSON(payload, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "gemini", "answer", "parse payload", err)
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return "", services.Wrap(services.ErrTransient, "gemini", "answer", "empty answer payload", nil)
	}
	return strings.TrimSpace(parsed.Answer), nil
}

// HealthCheck issues a minimal request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	payload, err := c.generateJSON(ctx, "health",
		"Respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := ai.DecodeJSON(payload, &parsed); err != nil {
		return services.Wrap(services.ErrTransient, "gemini", "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrTransient, "gemini", "health", "unexpected response", nil)
	}
	return nil
}

func (c *Client) generateJSON(ctx context.Context, op, instruction, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userContent := genai.NewContentFromText(prompt, genai.RoleUser)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.Role("system")),
		ResponseMIMEType:  "application/json",
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, []*genai.Content{userContent}, cfg)
	if err != nil {
		return "", classify(op, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", services.Wrap(services.ErrValidation, "gemini", op,
			fmt.Sprintf("blocked by safety filters (%s)", resp.PromptFeedback.BlockReason), nil)
	}
	text := responseText(resp)
	if text == "" {
		return "", services.Wrap(services.ErrTransient, "gemini", op, "empty response", nil)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// classify tags SDK failures with the matching sentinel. The genai SDK
// surfaces HTTP status in the error text, so matching stays string-based.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "gemini", op, "request timed out", err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(msg, "UNAUTHENTICATED"):
		return services.Wrap(services.ErrAuth, "gemini", op, "rejected credentials", err)
	case strings.Contains(msg, "INVALID_ARGUMENT") || strings.Contains(msg, "400"):
		return services.Wrap(services.ErrValidation, "gemini", op, "request rejected", err)
	default:
		return services.Wrap(services.ErrTransient, "gemini", op, "upstream failure", err)
	}
}
