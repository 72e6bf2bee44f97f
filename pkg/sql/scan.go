package sql

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// insertStartPattern finds an INSERT that begins mid-line after prose,
// e.g. "Here you go: INSERT INTO options (...)".
var insertStartPattern = regexp.MustCompile(`(?i)\binsert\s+into\s+[^\s(]+\s*\(`)

// sessionControlPattern matches statements the normalizer emits itself or
// that carry no data: transactions, batch separators, SET, USE and setval.
var sessionControlPattern = regexp.MustCompile(`(?i)^(` +
	`go(\s+\d+)?|` +
	`begin(\s+(tran|transaction|work))?|start\s+transaction|` +
	`commit(\s+(tran|transaction|work))?|end(\s+transaction)?|` +
	`set\s+identity_insert\s+\S+\s+(on|off)|` +
	`set\s+(foreign_key_checks|unique_checks|names|nocount|xact_abort|ansi_\w+|quoted_identifier|sql_mode|autocommit|client_encoding|search_path|session_replication_role|statement_timeout|time_zone)\b.*|` +
	`use\s+\S+|` +
	`select\s+(pg_catalog\.)?setval\s*\(.*` +
	`)\s*;?\s*$`)

// statementEnd returns the offset just past the statement that starts at
// start, and whether it was closed by a semicolon. Quotes, bracketed
// identifiers and comments are skipped; a backslash escapes the next
// character inside a string only where dialect d reads it that way. An
// unterminated statement also ends at a line break followed by a fence,
// another INSERT, or a session-control line.
func statementEnd(text string, start int, d models.Dialect) (int, bool) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escapes := false
	for i := start; i < len(text); i++ {
		c := text[i]
		next := byte(0)
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				return i + 1, true
			case c == '\'':
				state = stateSingleQuote
				escapes = backslashEscapes(d) || hasEscapePrefix(text, i)
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			case c == '[':
				state = stateBracket
			case c == '-' && next == '-':
				state = stateLineComment
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			case c == '\n':
				if breaksStatement(nextLine(text, i+1)) {
					return i, false
				}
			}
		case stateSingleQuote:
			switch {
			case escapes && c == '\\':
				i++
			case c == '\'' && next == '\'':
				i++
			case c == '\'':
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				if next == '"' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateBacktick:
			if c == '`' {
				if next == '`' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateBracket:
			if c == ']' {
				if next == ']' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				i--
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return len(text), false
}

// hasEscapePrefix reports whether the quote at offset opens a PostgreSQL
// E'...' string.
func hasEscapePrefix(text string, offset int) bool {
	if offset == 0 || (text[offset-1] != 'E' && text[offset-1] != 'e') {
		return false
	}
	return offset == 1 || !(isIdentByte(text[offset-2]) || isDigit(text[offset-2]))
}

// nextLine returns the trimmed line starting at offset.
func nextLine(text string, offset int) string {
	if offset >= len(text) {
		return ""
	}
	rest := text[offset:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

func breaksStatement(line string) bool {
	return isFence(line) || hasInsertPrefix(line) || isSessionControl(line)
}

// isFence reports whether a trimmed line is a marker line: a run of three or
// more identical punctuation characters, optionally followed by a language
// tag, e.g. ```sql, ~~~, <<<SQL, >>>, ===, or triple quotes like """sql.
func isFence(line string) bool {
	if len(line) < 3 {
		return false
	}
	first := rune(line[0])
	if !unicode.IsPunct(first) && !unicode.IsSymbol(first) {
		return false
	}
	if first == '(' || first == '[' {
		return false
	}
	n := 0
	for n < len(line) && rune(line[n]) == first {
		n++
	}
	if n < 3 {
		return false
	}
	tag := strings.TrimSpace(strings.TrimRight(line[n:], string(first)))
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '+' && r != '.' {
			return false
		}
	}
	return true
}

// isComment reports whether a trimmed line is a whole-line SQL comment.
func isComment(line string) bool {
	return strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*")
}

func hasInsertPrefix(line string) bool {
	return hasPrefixFold(line, "INSERT ") || hasPrefixFold(line, "INSERT\t")
}

// isSessionControl reports whether a trimmed line is a transaction, batch
// separator, SET, USE or setval statement.
func isSessionControl(line string) bool {
	return sessionControlPattern.MatchString(line)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
