package sql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-seed/pkg/jsonutil"
)

// envelopeField is the JSON field some models wrap the script in, e.g.
// {"dialect": "mysql", "notes": "...", "full_sql": "INSERT ..."}.
const envelopeField = "full_sql"

// extraction is a model response split into its SQL and whatever text sat
// outside a JSON envelope.
type extraction struct {
	sql     string
	outside []outsideText
}

// outsideText is non-blank text before or after the envelope. Line is the
// 1-based line of text in the cleaned response.
type outsideText struct {
	text string
	line int
}

// ExtractSQL returns the SQL part of a model response. Reasoning blocks are
// removed, and when the response holds a JSON object with a non-empty
// full_sql field, that field is returned instead of the raw text.
func ExtractSQL(response string) string {
	return extractResponse(response).sql
}

func extractResponse(response string) extraction {
	cleaned := jsonutil.StripThinking(response)
	if !strings.Contains(cleaned, envelopeField) {
		return extraction{sql: cleaned}
	}
	start, end, ok := jsonutil.FindJSONObject(cleaned)
	if !ok {
		return extraction{sql: cleaned}
	}
	sql, ok := jsonutil.StringField(cleaned[start:end], envelopeField)
	if !ok || strings.TrimSpace(sql) == "" {
		return extraction{sql: cleaned}
	}

	out := extraction{sql: sql}
	if before := cleaned[:start]; strings.TrimSpace(before) != "" {
		out.outside = append(out.outside, outsideText{text: before, line: 1})
	}
	if after := cleaned[end:]; strings.TrimSpace(after) != "" {
		out.outside = append(out.outside, outsideText{text: after, line: lineAt(cleaned, end)})
	}
	return out
}
