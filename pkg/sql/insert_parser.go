package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

type tokenKind int

const (
	tokIdent tokenKind = iota // bare word
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
	tokEOF
)

type token struct {
	kind   tokenKind
	text   string // unquoted identifier, unescaped string, or raw text
	offset int
}

// lexer tokenizes a single INSERT statement. When escapes is set, backslash
// escapes inside '...' literals are decoded; E'...' literals always decode them.
type lexer struct {
	src     string
	pos     int
	escapes bool
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, offset: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '\'':
		s, err := l.readString(l.escapes)
		return token{kind: tokString, text: s, offset: start}, err
	case (c == 'N' || c == 'n') && l.peek(1) == '\'':
		l.pos++
		s, err := l.readString(l.escapes)
		return token{kind: tokString, text: s, offset: start}, err
	case (c == 'E' || c == 'e') && l.peek(1) == '\'':
		l.pos++
		s, err := l.readString(true)
		return token{kind: tokString, text: s, offset: start}, err
	case c == '"':
		s, err := l.readDelimited('"', '"')
		return token{kind: tokQuotedIdent, text: s, offset: start}, err
	case c == '`':
		s, err := l.readDelimited('`', '`')
		return token{kind: tokQuotedIdent, text: s, offset: start}, err
	case c == '[':
		s, err := l.readDelimited('[', ']')
		return token{kind: tokQuotedIdent, text: s, offset: start}, err
	case isDigit(c) || ((c == '-' || c == '+') && isDigit(l.peek(1))):
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], offset: start}, nil
	case isIdentByte(c):
		for l.pos < len(l.src) && (isIdentByte(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], offset: start}, nil
	case c == ':' && l.peek(1) == ':':
		l.pos += 2
		return token{kind: tokPunct, text: "::", offset: start}, nil
	}
	l.pos++
	return token{kind: tokPunct, text: string(c), offset: start}, nil
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '-' && l.peek(1) == '-':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.peek(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 4
			}
		default:
			return
		}
	}
}

// readString reads a single-quoted literal starting at the opening quote.
// Doubled quotes are always unescaped. With escapes, a backslash introduces
// an escape sequence; without, it is an ordinary character.
func (l *lexer) readString(escapes bool) (string, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case escapes && c == '\\' && l.pos+1 < len(l.src):
			writeEscape(&sb, l.src[l.pos+1])
			l.pos += 2
		case c == '\'' && l.peek(1) == '\'':
			sb.WriteByte('\'')
			l.pos += 2
		case c == '\'':
			l.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return "", fmt.Errorf("unterminated string literal at offset %d", start)
}

// writeEscape decodes the character after a backslash. \% and \_ keep their
// backslash, as MySQL does outside LIKE patterns.
func writeEscape(sb *strings.Builder, n byte) {
	switch n {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case '0':
		sb.WriteByte(0)
	case 'Z':
		sb.WriteByte(0x1a)
	case '%', '_':
		sb.WriteByte('\\')
		sb.WriteByte(n)
	default:
		sb.WriteByte(n)
	}
}

// readDelimited reads a quoted identifier, unescaping doubled closing quotes.
func (l *lexer) readDelimited(open, close byte) (string, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == close {
			if l.peek(1) == close {
				sb.WriteByte(close)
				l.pos += 2
				continue
			}
			l.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return "", fmt.Errorf("unterminated %c identifier at offset %d", open, start)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '@' || c == '#' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

// literalKind is the syntactic class of a value in a VALUES row.
type literalKind int

const (
	litString literalKind = iota
	litNumber
	litBool
	litNull
	litExpr // DEFAULT, function calls and anything else that is not a constant
)

func (k literalKind) String() string {
	switch k {
	case litString:
		return "string"
	case litNumber:
		return "number"
	case litBool:
		return "boolean"
	case litNull:
		return "NULL"
	}
	return "expression"
}

type literal struct {
	kind  literalKind
	value string // unescaped string, number text, TRUE/FALSE, or raw expression
}

// insertRow is one parenthesized VALUES tuple. Offset is relative to the
// statement text.
type insertRow struct {
	values []literal
	offset int
}

// insertStatement is a parsed INSERT INTO ... VALUES ... statement.
type insertStatement struct {
	table   string   // last part of a possibly qualified name, unquoted
	columns []string // nil when the statement has no column list
	rows    []insertRow
}

// parser is a recursive-descent parser over lexer tokens.
type parser struct {
	lex *lexer
	tok token
}

// parseInsert parses a single INSERT statement written for dialect d. A
// trailing semicolon is optional; anything else after the last row is an error.
func parseInsert(stmt string, d models.Dialect) (*insertStatement, error) {
	p := &parser{lex: &lexer{src: stmt, escapes: backslashEscapes(d)}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if p.isKeyword("INTO") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	table, err := p.parseTableName()
	if err != nil {
		return nil, err
	}
	out := &insertStatement{table: table}

	if p.isPunct("(") {
		cols, err := p.parseColumnList()
		if err != nil {
			return nil, err
		}
		out.columns = cols
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		row, err := p.parseRow()
		if err != nil {
			return nil, err
		}
		out.rows = append(out.rows, row)
		if !p.isPunct(",") {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.isPunct(";") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q after VALUES list", p.tok.text)
	}
	return out, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) isPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return fmt.Errorf("expected %s, found %s", kw, p.describe())
	}
	return p.advance()
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return fmt.Errorf("expected %q, found %s", s, p.describe())
	}
	return p.advance()
}

func (p *parser) describe() string {
	if p.tok.kind == tokEOF {
		return "end of statement"
	}
	return fmt.Sprintf("%q", p.tok.text)
}

func (p *parser) isName() bool {
	return p.tok.kind == tokIdent || p.tok.kind == tokQuotedIdent
}

// parseTableName reads [db.][schema.]table and returns the last part.
func (p *parser) parseTableName() (string, error) {
	if !p.isName() {
		return "", fmt.Errorf("expected table name, found %s", p.describe())
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return "", err
	}
	for p.isPunct(".") {
		if err := p.advance(); err != nil {
			return "", err
		}
		if !p.isName() {
			return "", fmt.Errorf("expected name after '.', found %s", p.describe())
		}
		name = p.tok.text
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return name, nil
}

func (p *parser) parseColumnList() ([]string, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		if !p.isName() {
			return nil, fmt.Errorf("expected column name, found %s", p.describe())
		}
		cols = append(cols, p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct(")") {
			return cols, p.advance()
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseRow() (insertRow, error) {
	row := insertRow{offset: p.tok.offset}
	if err := p.expectPunct("("); err != nil {
		return row, err
	}
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return row, err
		}
		row.values = append(row.values, lit)
		if p.isPunct(")") {
			return row, p.advance()
		}
		if err := p.expectPunct(","); err != nil {
			return row, err
		}
	}
}

// parseLiteral reads one value. A PostgreSQL cast suffix (::type) is
// accepted and dropped.
func (p *parser) parseLiteral() (literal, error) {
	start := p.tok.offset
	var lit literal

	switch {
	case p.tok.kind == tokString:
		lit = literal{kind: litString, value: p.tok.text}
		if err := p.advance(); err != nil {
			return lit, err
		}
	case p.tok.kind == tokNumber:
		lit = literal{kind: litNumber, value: p.tok.text}
		if err := p.advance(); err != nil {
			return lit, err
		}
	case p.isKeyword("TRUE"), p.isKeyword("FALSE"):
		lit = literal{kind: litBool, value: strings.ToUpper(p.tok.text)}
		if err := p.advance(); err != nil {
			return lit, err
		}
	case p.isKeyword("NULL"):
		lit = literal{kind: litNull, value: "NULL"}
		if err := p.advance(); err != nil {
			return lit, err
		}
	case p.tok.kind == tokIdent:
		if err := p.skipExpression(); err != nil {
			return lit, err
		}
		lit = literal{kind: litExpr, value: strings.TrimSpace(p.lex.src[start:p.tok.offset])}
		return lit, nil
	case p.isPunct("("):
		if err := p.skipExpression(); err != nil {
			return lit, err
		}
		lit = literal{kind: litExpr, value: strings.TrimSpace(p.lex.src[start:p.tok.offset])}
		return lit, nil
	default:
		return lit, fmt.Errorf("expected value, found %s", p.describe())
	}

	if p.isPunct("::") {
		if err := p.advance(); err != nil {
			return lit, err
		}
		if !p.isName() {
			return lit, fmt.Errorf("expected type after '::', found %s", p.describe())
		}
		if err := p.advance(); err != nil {
			return lit, err
		}
	}
	return lit, nil
}

// skipExpression consumes tokens up to the next top-level ',' or ')'.
func (p *parser) skipExpression() error {
	depth := 0
	for {
		switch {
		case p.tok.kind == tokEOF:
			return fmt.Errorf("unterminated value expression")
		case p.isPunct("("):
			depth++
		case p.isPunct(")"):
			if depth == 0 {
				return nil
			}
			depth--
		case p.isPunct(",") && depth == 0:
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}
