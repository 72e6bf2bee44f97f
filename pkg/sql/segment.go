package sql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

type segmentKind int

const (
	segmentInsert segmentKind = iota
	segmentFragment
)

// segment is a slice of model output: either an INSERT candidate or a block
// of text that is not SQL. Line is 1-based.
type segment struct {
	kind       segmentKind
	text       string
	line       int
	terminated bool
}

// segmenter walks model output line by line, collecting INSERT candidates and
// contiguous blocks of prose. Blank lines, fences, whole-line comments and
// session-control statements separate blocks and are otherwise ignored.
type segmenter struct {
	text     string
	dialect  models.Dialect
	segments []segment

	fragStart int // offset of the pending prose block, -1 when none
	fragEnd   int
}

func segmentText(text string, d models.Dialect) []segment {
	s := &segmenter{text: text, dialect: d, fragStart: -1}
	s.run()
	return s.segments
}

func (s *segmenter) run() {
	text := s.text
	pos := 0
	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text)
		} else {
			lineEnd += pos
		}
		line := text[pos:lineEnd]
		trimmed := strings.TrimSpace(line)
		lead := pos + len(line) - len(strings.TrimLeft(line, " \t\r"))

		switch {
		case trimmed == "", isFence(trimmed):
			s.flush()
			pos = lineEnd + 1
		case strings.HasPrefix(trimmed, "/*"):
			s.flush()
			pos = skipBlockComment(text, lead)
		case isComment(trimmed):
			s.flush()
			pos = lineEnd + 1
		case hasInsertPrefix(trimmed):
			s.flush()
			end, terminated := statementEnd(text, lead, s.dialect)
			s.segments = append(s.segments, segment{
				kind:       segmentInsert,
				text:       strings.TrimSpace(text[lead:end]),
				line:       lineAt(text, lead),
				terminated: terminated,
			})
			pos = end
		case isSessionControl(trimmed):
			s.flush()
			end, _ := statementEnd(text, lead, s.dialect)
			pos = end
		default:
			if loc := insertStartPattern.FindStringIndex(line); loc != nil && loc[0] > 0 {
				s.extend(pos, pos+loc[0])
				s.flush()
				pos += loc[0]
				continue
			}
			s.extend(pos, lineEnd)
			pos = lineEnd + 1
		}
	}
	s.flush()
}

func (s *segmenter) extend(start, end int) {
	if s.fragStart < 0 {
		s.fragStart = start
	}
	s.fragEnd = end
}

func (s *segmenter) flush() {
	if s.fragStart < 0 {
		return
	}
	raw := s.text[s.fragStart:s.fragEnd]
	if body := strings.TrimSpace(raw); body != "" {
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		s.segments = append(s.segments, segment{
			kind: segmentFragment,
			text: body,
			line: lineAt(s.text, s.fragStart+lead),
		})
	}
	s.fragStart = -1
}

// skipBlockComment returns the offset just past the comment starting at
// start, or the end of text when it is never closed.
func skipBlockComment(text string, start int) int {
	end := strings.Index(text[start+2:], "*/")
	if end < 0 {
		return len(text)
	}
	return start + 2 + end + 2
}

// lineAt returns the 1-based line number of offset.
func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
