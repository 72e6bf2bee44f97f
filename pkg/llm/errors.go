package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies a generation failure.
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimited   ErrorType = "rate_limited"
	ErrorTypeUnavailable   ErrorType = "unavailable"
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	ErrorTypeModel         ErrorType = "model"
	ErrorTypeEndpoint      ErrorType = "endpoint"
	ErrorTypeBadRequest    ErrorType = "bad_request"
	ErrorTypeCanceled      ErrorType = "canceled"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the caller may retry the run
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ErrorTypeName lets the retry package group repeated failures by class.
func (e *Error) ErrorTypeName() string {
	return string(e.Type)
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// Provider error types and HTTP status codes are used when available; the
// message text is only inspected as a fallback.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeCanceled, "request canceled", false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeUnavailable, "request timeout", true, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, "", err)
	}

	var antErr *anthropic.APIError
	if errors.As(err, &antErr) {
		if classified := classifyAnthropicType(string(antErr.Type), err); classified != nil {
			return classified
		}
	}
	var antReqErr *anthropic.RequestError
	if errors.As(err, &antReqErr) {
		return classifyStatus(antReqErr.StatusCode, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(ErrorTypeUnavailable, "request timeout", true, err)
		}
		return NewError(ErrorTypeUnavailable, "connection failed", true, err)
	}

	return classifyMessage(err)
}

// classifyStatus maps an HTTP status from the provider to an error type.
func classifyStatus(status int, message string, err error) *Error {
	var e *Error
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case status == http.StatusTooManyRequests:
		e = NewError(ErrorTypeRateLimited, "rate limited", true, err)
	case status == http.StatusNotFound && strings.Contains(lower, "model"):
		e = NewError(ErrorTypeModel, "model not found", false, err)
	case status == http.StatusNotFound:
		e = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case status == http.StatusBadRequest && strings.Contains(lower, "model"):
		e = NewError(ErrorTypeModel, "model rejected the request", false, err)
	case status >= 400 && status < 500:
		e = NewError(ErrorTypeBadRequest, "request rejected", false, err)
	case status >= 500:
		e = NewError(ErrorTypeUnavailable, "server error", true, err)
	default:
		return classifyMessage(err)
	}
	e.StatusCode = status
	return e
}

func classifyAnthropicType(errType string, err error) *Error {
	switch errType {
	case "authentication_error", "permission_error":
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case "rate_limit_error":
		return NewError(ErrorTypeRateLimited, "rate limited", true, err)
	case "overloaded_error", "api_error":
		return NewError(ErrorTypeUnavailable, "server error", true, err)
	case "not_found_error":
		return NewError(ErrorTypeModel, "model not found", false, err)
	case "invalid_request_error":
		return NewError(ErrorTypeBadRequest, "request rejected", false, err)
	}
	return nil
}

// classifyMessage inspects the error text when no structured information is
// available.
func classifyMessage(err error) *Error {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("status code: %d", code)) ||
			strings.Contains(errStr, fmt.Sprintf("HTTP %d", code)) {
			statusCode = code
			break
		}
	}

	var e *Error
	switch {
	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		e = NewError(ErrorTypeRateLimited, "rate limited", true, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		e = NewError(ErrorTypeModel, "model not found", false, err)
	case statusCode == 404:
		e = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		e = NewError(ErrorTypeUnavailable, "connection failed", true, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		e = NewError(ErrorTypeUnavailable, "request timeout", true, err)
	case strings.Contains(lower, "context canceled"):
		e = NewError(ErrorTypeCanceled, "request canceled", false, err)
	case statusCode >= 500 || strings.Contains(lower, "overloaded"):
		e = NewError(ErrorTypeUnavailable, "server error", true, err)
	default:
		e = NewError(ErrorTypeUnknown, "llm error", false, err)
	}
	e.StatusCode = statusCode
	return e
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
