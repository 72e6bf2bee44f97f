package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
)

const (
	// DefaultOpenAIEndpoint is used when Config.Endpoint is empty.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxTokens caps the completion length.
	DefaultMaxTokens = 8192
)

// Client provides access to OpenAI-compatible LLM endpoints.
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
}

// Config holds configuration for creating an LLM client.
// The API key is held only for the lifetime of the client.
type Config struct {
	Provider  string        // "openai" or "anthropic"; empty infers from Model
	Endpoint  string        // Base URL, e.g., "https://api.openai.com/v1"
	Model     string        // Model name, e.g., "gpt-4o-mini"
	APIKey    string        // Optional for local endpoints
	Timeout   time.Duration // Per-call timeout; DefaultTimeout when zero
	MaxTokens int           // DefaultMaxTokens when zero
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// httpClient returns an HTTP client that tags requests with the run ID.
func httpClient() *http.Client {
	return &http.Client{Transport: &contextAwareTransport{base: http.DefaultTransport}}
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")
	clientConfig.HTTPClient = httpClient()

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  endpoint,
		model:     cfg.Model,
		timeout:   cfg.timeout(),
		maxTokens: cfg.maxTokens(),
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a chat completion response with usage stats.
// The call is bounded by the client timeout and is never retried here.
func (c *Client) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (*GenerateResponseResult, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		llmErr := c.parseError(ctx, err)
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error_type", string(llmErr.Type)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, llmErr
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &Error{
			Type:     ErrorTypeEmptyResponse,
			Message:  "model returned no content",
			Model:    c.model,
			Endpoint: c.endpoint,
		}
	}

	content := resp.Choices[0].Message.Content
	elapsed := time.Since(start)

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// parseError categorizes OpenAI API errors using the structured Error type.
func (c *Client) parseError(ctx context.Context, err error) *Error {
	return withContext(classifyCallError(ctx, err), c.model, c.endpoint)
}

// classifyCallError distinguishes caller cancellation from the client timeout
// before falling back to ClassifyError.
func classifyCallError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return NewError(ErrorTypeCanceled, "request canceled", false, err)
	}
	return ClassifyError(err)
}

func withContext(e *Error, model, endpoint string) *Error {
	out := *e
	out.Model = model
	out.Endpoint = endpoint
	return &out
}
