package llm

import (
	"context"
	"fmt"
	"time"
)

// CheckResult contains the outcome of a credential and model check.
type CheckResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	Model          string    `json:"model"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// ConnectionChecker verifies that a client can reach its model.
// This interface enables mocking in tests.
type ConnectionChecker interface {
	Check(ctx context.Context, client LLMClient) *CheckResult
}

type connectionChecker struct{}

// NewConnectionChecker creates a checker that sends a tiny prompt.
func NewConnectionChecker() ConnectionChecker {
	return &connectionChecker{}
}

// Check sends a one-word prompt and reports the classified outcome.
func (c *connectionChecker) Check(ctx context.Context, client LLMClient) *CheckResult {
	start := time.Now()
	_, err := client.GenerateResponse(ctx, "Say 'ok' and nothing else.", "You answer with one word.", 0)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &CheckResult{
			Model:          client.GetModel(),
			Message:        checkMessage(err),
			ErrorType:      GetErrorType(err),
			ResponseTimeMs: elapsed,
		}
	}

	return &CheckResult{
		Success:        true,
		Model:          client.GetModel(),
		Message:        fmt.Sprintf("connection successful (model: %s, %dms)", client.GetModel(), elapsed),
		ResponseTimeMs: elapsed,
	}
}

func checkMessage(err error) string {
	switch GetErrorType(err) {
	case ErrorTypeAuth:
		return "invalid API key"
	case ErrorTypeModel:
		return "model not found"
	case ErrorTypeEndpoint:
		return "endpoint not found - check base URL"
	case ErrorTypeRateLimited:
		return "rate limited - try again later"
	case ErrorTypeUnavailable:
		return "provider unavailable - check network and base URL"
	case ErrorTypeEmptyResponse:
		return "model returned an empty response"
	case ErrorTypeCanceled:
		return "check canceled"
	}
	return "unexpected error"
}

// Ensure connectionChecker implements ConnectionChecker at compile time.
var _ ConnectionChecker = (*connectionChecker)(nil)
