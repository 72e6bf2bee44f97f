package llm

import (
	"context"
)

// MockLLMClient is a configurable mock for testing LLM functionality.
// Set the function fields to control behavior in tests.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	GenerateResponseCalls int
	LastPrompt            string
	LastSystemMessage     string
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.GenerateResponseCalls++
	m.LastPrompt = prompt
	m.LastSystemMessage = systemMessage
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{}, nil
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking counters.
func (m *MockLLMClient) Reset() {
	m.GenerateResponseCalls = 0
	m.LastPrompt = ""
	m.LastSystemMessage = ""
}

// Ensure MockLLMClient implements LLMClient at compile time.
var _ LLMClient = (*MockLLMClient)(nil)

// MockClientFactory is a configurable mock for testing LLM client creation.
type MockClientFactory struct {
	// CreateForRequestFunc is called when CreateForRequest is invoked.
	// If nil, returns MockClient.
	CreateForRequestFunc func(model, apiKey string) (LLMClient, error)

	// MockClient is the default client returned if functions are not set.
	MockClient *MockLLMClient

	// Keys records the credential passed to each call.
	Keys []string
}

// NewMockClientFactory creates a new mock client factory.
func NewMockClientFactory() *MockClientFactory {
	return &MockClientFactory{
		MockClient: NewMockLLMClient(),
	}
}

// CreateForRequest implements LLMClientFactory.
func (f *MockClientFactory) CreateForRequest(model, apiKey string) (LLMClient, error) {
	f.Keys = append(f.Keys, apiKey)
	if f.CreateForRequestFunc != nil {
		return f.CreateForRequestFunc(model, apiKey)
	}
	if model != "" {
		f.MockClient.Model = model
	}
	return f.MockClient, nil
}

// Ensure MockClientFactory implements LLMClientFactory at compile time.
var _ LLMClientFactory = (*MockClientFactory)(nil)
