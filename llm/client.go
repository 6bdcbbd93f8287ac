// Package llm provides a provider-agnostic AI completion client with retry and
// endpoint fallback. It is the transport behind the cost-plausibility check.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultSystemPrompt frames every Ask call.
const DefaultSystemPrompt = "You are a construction cost estimator reviewing unit costs of building elements. Answer with a single JSON object and nothing else."

// Endpoint is one model endpoint in the fallback chain.
type Endpoint struct {
	// Name labels the endpoint in logs.
	Name string `yaml:"name" json:"name"`

	// Provider is the provider identifier (anthropic, ollama, openai).
	Provider string `yaml:"provider" json:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `yaml:"model" json:"model"`
}

func (e Endpoint) label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Model
}

// Client is a provider-agnostic completion client with retry and fallback support.
type Client struct {
	endpoints    []Endpoint
	httpClient   *http.Client
	retryConfig  RetryConfig
	logger       *slog.Logger
	systemPrompt string
	temperature  *float64
	maxTokens    int
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a completion request.
type Request struct {
	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int

	// JSONMode asks providers that support it to constrain output to a JSON object.
	JSONMode bool
}

// TokenUsage represents token consumption details for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID uniquely identifies this call for log correlation.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains detailed token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Attempts is the number of HTTP attempts made, across all endpoints.
	Attempts int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the per-call network timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.httpClient.Timeout = d
		}
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithSystemPrompt overrides DefaultSystemPrompt for Ask.
func WithSystemPrompt(prompt string) ClientOption {
	return func(client *Client) {
		client.systemPrompt = prompt
	}
}

// WithTemperature sets the temperature used by Ask.
func WithTemperature(t float64) ClientOption {
	return func(client *Client) {
		client.temperature = &t
	}
}

// WithMaxTokens sets the response length limit used by Ask.
func WithMaxTokens(n int) ClientOption {
	return func(client *Client) {
		client.maxTokens = n
	}
}

// NewClient creates a client over an ordered endpoint fallback chain.
func NewClient(endpoints []Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoints:    endpoints,
		retryConfig:  DefaultRetryConfig(),
		systemPrompt: DefaultSystemPrompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ask sends a single user prompt and returns the raw assistant text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, Request{
		Messages: []Message{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Complete sends a completion request, handling retry and fallback logic.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewFatalError(errors.New("at least one message is required"))
	}
	if len(c.endpoints) == 0 {
		return nil, NewFatalError(errors.New("no endpoints configured"))
	}

	requestID := uuid.New().String()
	startedAt := time.Now()

	var lastErr error
	var totalAttempts int

	for _, ep := range c.endpoints {
		var resp *Response
		attempts, err := Retry(ctx, c.retryConfig, ClassifyError, func(ctx context.Context) error {
			r, err := c.doRequest(ctx, ep, req)
			if err != nil {
				c.logger.Debug("Request failed",
					"request_id", requestID,
					"endpoint", ep.label(),
					"error", err)
				return err
			}
			resp = r
			return nil
		})
		totalAttempts += attempts

		if err == nil {
			resp.RequestID = requestID
			resp.Attempts = totalAttempts
			c.logger.Debug("Completion succeeded",
				"request_id", requestID,
				"endpoint", ep.label(),
				"attempts", totalAttempts,
				"duration_ms", time.Since(startedAt).Milliseconds())
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("completion cancelled: %w", ctx.Err())
		}

		if IsFatal(err) {
			c.logger.Warn("Fatal error, not trying fallbacks",
				"request_id", requestID,
				"endpoint", ep.label(),
				"error", err)
			return nil, err
		}

		c.logger.Warn("Endpoint failed, trying fallback",
			"request_id", requestID,
			"endpoint", ep.label(),
			"provider", ep.Provider,
			"attempts", attempts,
			"error", err)
	}

	return nil, fmt.Errorf("all endpoints failed: %w", lastErr)
}

// doRequest executes a single HTTP request to the endpoint.
func (c *Client) doRequest(ctx context.Context, ep Endpoint, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s (available: %s)", ep.Provider, strings.Join(ListProviders(), ", ")))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and client timeouts are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, ep.Model)
	if err != nil {
		return nil, NewFatalError(err)
	}
	return resp, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("AI API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(err)
	case statusCode == http.StatusRequestTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Auth, bad request and unknown 4xx errors are fatal
		return NewFatalError(err)
	}
}
