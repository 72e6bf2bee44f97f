package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxSnippetLogLength is the maximum length of model output to log
	MaxSnippetLogLength = 120
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Bearer credentials of any shape (JWTs, opaque provider keys)
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)

	// Provider secret keys: sk-..., sk-proj-..., sk-ant-...
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`)

	// key=value and key: value forms of API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|x-api-key|key)(\s*[=:]\s*)[A-Za-z0-9._-]{16,}`)

	// Connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeError sanitizes error messages that might contain credentials.
// Use this before logging any error returned by a model provider.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText removes credential-looking substrings from s.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}

	sanitized := bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}${2}"+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeSnippet truncates and sanitizes model output for logging.
func SanitizeSnippet(snippet string) string {
	if snippet == "" {
		return ""
	}
	return SanitizeText(TruncateString(snippet, MaxSnippetLogLength))
}

// TruncateString truncates a string to at most maxLen bytes and adds ellipsis
// if needed. The cut never splits a multi-byte rune.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
