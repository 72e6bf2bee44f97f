package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// thinkTagPattern matches <think>...</think> blocks emitted by reasoning models.
var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes <think>...</think> blocks from an LLM response.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code blocks, or other formatting.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if start, end, ok := balancedSpan(cleaned, '{', '}'); ok {
			if jsonStr := cleaned[start:end]; json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if start, end, ok := balancedSpan(cleaned, '[', ']'); ok {
			if jsonStr := cleaned[start:end]; json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// FindJSONObject returns the byte offsets of the first balanced JSON object in
// s, so callers can see what text surrounds it. ok is false when that object
// is unbalanced or not valid JSON.
func FindJSONObject(s string) (start, end int, ok bool) {
	start, end, ok = balancedSpan(s, '{', '}')
	if !ok || !json.Valid([]byte(s[start:end])) {
		return 0, 0, false
	}
	return start, end, true
}

// balancedSpan finds the first balanced JSON structure starting with openChar
// and returns its offsets.
func balancedSpan(s string, openChar, closeChar byte) (int, int, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return 0, 0, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}

	return 0, 0, false
}

// StringField returns the named top-level field of a JSON object as a string,
// tolerating non-string scalars. ok is false when the document is not an
// object or lacks the field.
func StringField(doc string, field string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		return "", false
	}
	raw, ok := obj[field]
	if !ok {
		return "", false
	}
	return scalarString(raw), true
}

// scalarString renders a JSON scalar as text. Models sometimes emit numbers or
// booleans where a string was asked for; null becomes "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num == float64(int64(num)) {
			return strconv.FormatInt(int64(num), 10)
		}
		return strconv.FormatFloat(num, 'g', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}
