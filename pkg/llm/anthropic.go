package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
)

// DefaultAnthropicEndpoint is used when Config.Endpoint is empty.
const DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"

// AnthropicClient generates text through the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a client for Claude models.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "api key is required for anthropic", false, nil)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}

	client := anthropic.NewClient(cfg.APIKey,
		anthropic.WithBaseURL(strings.TrimSuffix(endpoint, "/")),
		anthropic.WithHTTPClient(httpClient()),
	)

	return &AnthropicClient{
		client:    client,
		endpoint:  endpoint,
		model:     cfg.Model,
		timeout:   cfg.timeout(),
		maxTokens: cfg.maxTokens(),
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse sends one user message with the given system prompt.
// The call is bounded by the client timeout and is never retried here.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (*GenerateResponseResult, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(callCtx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		llmErr := withContext(classifyCallError(ctx, err), c.model, c.endpoint)
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error_type", string(llmErr.Type)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, llmErr
	}

	content := extractText(resp)
	if strings.TrimSpace(content) == "" {
		return nil, &Error{
			Type:     ErrorTypeEmptyResponse,
			Message:  "model returned no content",
			Model:    c.model,
			Endpoint: c.endpoint,
		}
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

// extractText concatenates the text blocks of a response.
func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}
