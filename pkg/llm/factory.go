package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMClientFactory is the interface for creating LLM clients.
// Each run creates its own client so the credential never outlives the run.
type LLMClientFactory interface {
	CreateForRequest(model, apiKey string) (LLMClient, error)
}

// FactoryConfig holds the server-level settings shared by every client.
type FactoryConfig struct {
	Provider          string // forces a provider; empty infers from the model
	OpenAIEndpoint    string
	AnthropicEndpoint string
	Timeout           time.Duration
	MaxTokens         int
}

// ClientFactory creates LLM clients from server settings plus per-request
// model and credential.
type ClientFactory struct {
	cfg    FactoryConfig
	logger *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(cfg FactoryConfig, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateForRequest creates a client for one run.
func (f *ClientFactory) CreateForRequest(model, apiKey string) (LLMClient, error) {
	model = NormalizeModelName(model)
	provider := f.cfg.Provider
	if provider == "" {
		provider = ProviderForModel(model)
	}
	endpoint := f.cfg.OpenAIEndpoint
	if provider == ProviderAnthropic {
		endpoint = f.cfg.AnthropicEndpoint
	}

	client, err := NewClientForModel(&Config{
		Provider:  provider,
		Endpoint:  endpoint,
		Model:     model,
		APIKey:    apiKey,
		Timeout:   f.cfg.Timeout,
		MaxTokens: f.cfg.MaxTokens,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// NewClientForModel picks the Anthropic client when the provider is
// "anthropic" or the model name starts with "claude", and the
// OpenAI-compatible client otherwise.
func NewClientForModel(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderForModel(cfg.Model)
	}

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case ProviderOpenAI:
		return NewClient(cfg, logger)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// ProviderForModel infers the provider from a model name.
func ProviderForModel(model string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// NormalizeModelName trims the name and fixes the common "pgt-" typo for
// "gpt-" models.
func NormalizeModelName(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(strings.ToLower(model), "pgt-") {
		return "gpt-" + model[4:]
	}
	return model
}
