package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codecast/internal/content"
	"codecast/internal/services"
	"codecast/internal/services/ai"
)

const (
	jsonResponseType      = "json_object"
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 3
)

// Config captures the runtime settings required to talk to OpenRouter.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	MaxAttempts    int
}

// Client wraps the OpenRouter chat completion API as a cloud generation
// backend.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// New constructs an OpenRouter client using the supplied configuration.
func New(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultRetryAttempts
	if cfg.MaxAttempts > 0 {
		attempts = cfg.MaxAttempts
	}
	client := &Client{
		cfg: Config{
			APIKey:      strings.TrimSpace(cfg.APIKey),
			BaseURL:     strings.TrimSpace(cfg.BaseURL),
			Model:       strings.TrimSpace(cfg.Model),
			Referer:     strings.TrimSpace(cfg.Referer),
			Title:       strings.TrimSpace(cfg.Title),
			MaxAttempts: attempts,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return client
}

// Name identifies this backend to the router.
func (c *Client) Name() string { return "openrouter" }

// Kind reports the backend placement for routing and privacy checks.
func (c *Client) Kind() ai.Kind { return ai.KindCloud }

// GenerateScript produces the markdown narration script.
func (c *Client) GenerateScript(ctx context.Context, req ai.ScriptRequest) (ai.Script, error) {
	payload, err := c.completeJSON(ctx, "script", scriptSystemPrompt, scriptUserPrompt(req))
	if err != nil {
		return ai.Script{}, err
	}
	var parsed struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	}
	if err := decodePayload(payload, &parsed); err != nil {
		return ai.Script{}, services.Wrap(services.ErrTransient, "openrouter", "script", "parse payload", err)
	}
	if strings.TrimSpace(parsed.Markdown) == "" {
		return ai.Script{}, services.Wrap(services.ErrTransient, "openrouter", "script", "empty narration payload", nil)
	}
	return ai.Script{Markdown: parsed.Markdown, Title: strings.TrimSpace(parsed.Title)}, nil
}

// GenerateFlowchart produces the control-flow diagram.
func (c *Client) GenerateFlowchart(ctx context.Context, req ai.FlowchartRequest) (content.Flowchart, error) {
	payload, err := c.completeJSON(ctx, "flowchart", flowchartSystemPrompt, flowchartUserPrompt(req))
	if err != nil {
		return content.Flowchart{}, err
	}
	var parsed content.Flowchart
	if err := decodePayload(payload, &parsed); err != nil {
		return content.Flowchart{}, services.Wrap(services.ErrTransient, "openrouter", "flowchart", "parse payload", err)
	}
	if len(parsed.Nodes) == 0 {
		return content.Flowchart{}, services.Wrap(services.ErrTransient, "openrouter", "flowchart", "no nodes in payload", nil)
	}
	return parsed, nil
}

// GenerateExamples produces the cross-language renderings.
func (c *Client) GenerateExamples(ctx context.Context, req ai.ExamplesRequest) (content.ExampleSet, error) {
	payload, err := c.completeJSON(ctx, "examples", examplesSystemPrompt, examplesUserPrompt(req))
	if err != nil {
		return content.ExampleSet{}, err
	}
	var parsed content.ExampleSet
	if err := decodePayload(payload, &parsed); err != nil {
		return content.ExampleSet{}, services.Wrap(services.ErrTransient, "openrouter", "examples", "parse payload", err)
	}
	if len(parsed.Examples) == 0 {
		return content.ExampleSet{}, services.Wrap(services.ErrTransient, "openrouter", "examples", "no examples in payload", nil)
	}
	return parsed, nil
}

// Answer responds to a follow-up question about explained code.
func (c *Client) Answer(ctx context.Context, req ai.AnswerRequest) (string, error) {
	payload, err := c.completeJSON(ctx, "answer", answerSystemPrompt, answerUserPrompt(req))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := decodePayload(payload, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "openrouter", "answer", "parse payload", err)
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return "", services.Wrap(services.ErrTransient, "openrouter", "answer", "empty answer payload", nil)
	}
	return strings.TrimSpace(parsed.Answer), nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	payload, err := c.completeJSON(ctx, "health",
		"You must respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodePayload(payload, &parsed); err != nil {
		return services.Wrap(services.ErrTransient, "openrouter", "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrTransient, "openrouter", "health", "unexpected response", nil)
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// completeJSON issues a JSON-only chat completion with transport-level
// retry, then classifies the terminal failure for the router.
func (c *Client) completeJSON(ctx context.Context, op, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrAuth, "openrouter", op, "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(systemPrompt)},
			{Role: "user", Content: strings.TrimSpace(userPrompt)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	attempts := c.retryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.sendOnce(ctx, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", classify(op, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrTransient, "openrouter", op,
		fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty choices")
	}
	result := strings.TrimSpace(completion.Choices[0].Message.Content)
	if result == "" {
		return "", fmt.Errorf("empty content (finish_reason=%q)", completion.Choices[0].FinishReason)
	}
	return result, nil
}

// classify tags a terminal transport error with the matching sentinel.
func classify(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrAuth, "openrouter", op, "rejected credentials", err)
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "openrouter", op, "upstream failure", err)
		default:
			return services.Wrap(services.ErrValidation, "openrouter", op, "request rejected", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrTransient, "openrouter", op, "transport failure", err)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(attempt), true
	}
	// Empty or malformed payloads are worth one more attempt.
	return c.backoffDelay(attempt), true
}

// backoffDelay doubles per attempt: base, base*2, base*4, capped at max.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func decodePayload(payload string, target any) error {
	return ai.DecodeJSON(payload, target)
}
