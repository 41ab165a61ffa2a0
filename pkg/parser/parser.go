// Package parser turns Egg source text into an ast.Expression.
//
// The grammar is small enough that scanning is folded into a recursive
// descent over byte offsets: each parse step receives the offset it starts at
// and returns the node together with the offset just past it.
package parser

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/langerr"
)

// ErrUnexpectedEOF is the cause of every syntax error raised because the
// input ended before an expression was complete.
var ErrUnexpectedEOF = errors.New("unexpected end of input")

// Parse parses a complete program. Anything but whitespace and comments
// after the first expression is a syntax error.
func Parse(source string) (ast.Expression, error) {
	p := newParser(source)
	expr, pos, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	pos = p.skipSpace(pos)
	if pos < len(p.src) {
		return nil, p.errorf(pos, "unexpected text after program: %s", p.excerpt(pos))
	}
	return expr, nil
}

// ParseFragments joins fragments with newlines and parses the result as a
// single program.
func ParseFragments(fragments ...string) (ast.Expression, error) {
	return Parse(strings.Join(fragments, "\n"))
}

// IsIncomplete reports whether err was caused by input ending too early,
// i.e. whether appending more text could make the program parse.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrUnexpectedEOF)
}

type parser struct {
	src   string
	lines *lineIndex
}

func newParser(source string) *parser {
	return &parser{src: source, lines: newLineIndex(source)}
}

// skipSpace advances past whitespace and any number of '#' comments.
func (p *parser) skipSpace(pos int) int {
	for pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[pos:])
		switch {
		case unicode.IsSpace(r):
			pos += size
		case r == '#':
			nl := strings.IndexByte(p.src[pos:], '\n')
			if nl < 0 {
				return len(p.src)
			}
			pos += nl + 1
		default:
			return pos
		}
	}
	return pos
}

// parseExpression reads a string, number or word, in that order of
// preference, then any application chain following it.
func (p *parser) parseExpression(pos int) (ast.Expression, int, error) {
	start := p.skipSpace(pos)
	if start >= len(p.src) {
		return nil, start, p.incomplete(start, "expected an expression")
	}

	if p.src[start] == '"' {
		closing := strings.IndexByte(p.src[start+1:], '"')
		if closing < 0 {
			return nil, start, p.incomplete(start, "unterminated string literal")
		}
		end := start + 1 + closing + 1
		lit := ast.NewLiteral(p.src[start+1:end-1], p.lines.span(start, end))
		return p.parseApply(lit, start, end)
	}

	if end, ok := p.scanNumber(start); ok {
		text := p.src[start:end]
		// Overlong digit runs saturate to +Inf instead of failing.
		value, err := strconv.ParseFloat(text, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, start, p.errorf(start, "invalid number %q", text)
		}
		lit := ast.NewLiteral(value, p.lines.span(start, end))
		return p.parseApply(lit, start, end)
	}

	if end := p.scanWord(start); end > start {
		word := ast.NewVariable(p.src[start:end], p.lines.span(start, end))
		return p.parseApply(word, start, end)
	}

	return nil, start, p.errorf(start, "unexpected syntax: %s", p.excerpt(start))
}

// scanNumber matches a run of ASCII digits followed by a word boundary.
// "12a" is not a number; it falls through to the word rule.
func (p *parser) scanNumber(pos int) (int, bool) {
	end := pos
	for end < len(p.src) && isDigit(p.src[end]) {
		end++
	}
	if end == pos {
		return pos, false
	}
	if end < len(p.src) && isWordByte(p.src[end]) {
		return pos, false
	}
	return end, true
}

// scanWord matches the longest run of characters that are neither
// whitespace nor one of ( ) , ".
func (p *parser) scanWord(pos int) int {
	end := pos
	for end < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[end:])
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == ',' || r == '"' {
			break
		}
		end += size
	}
	return end
}

// parseApply wraps expr in an application for every parenthesized argument
// list that follows it, so f(a)(b) applies the result of f(a) to b.
func (p *parser) parseApply(expr ast.Expression, start, pos int) (ast.Expression, int, error) {
	pos = p.skipSpace(pos)
	if pos >= len(p.src) || p.src[pos] != '(' {
		return expr, pos, nil
	}

	pos = p.skipSpace(pos + 1)
	args := make([]ast.Expression, 0, 2)
	if pos < len(p.src) && p.src[pos] == ')' {
		pos++
	} else {
	arguments:
		for {
			arg, next, err := p.parseExpression(pos)
			if err != nil {
				return nil, next, err
			}
			args = append(args, arg)

			pos = p.skipSpace(next)
			if pos >= len(p.src) {
				return nil, pos, p.incomplete(pos, "expected ',' or ')'")
			}
			switch p.src[pos] {
			case ',':
				pos = p.skipSpace(pos + 1)
				if pos < len(p.src) && p.src[pos] == ')' {
					return nil, pos, p.errorf(pos, "expected an argument after ','")
				}
			case ')':
				pos++
				break arguments
			default:
				return nil, pos, p.errorf(pos, "expected ',' or ')' but found %s", p.excerpt(pos))
			}
		}
	}

	apply := ast.NewApply(expr, args, p.lines.span(start, pos))
	return p.parseApply(apply, start, pos)
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return langerr.At(langerr.SyntaxError, p.lines.position(pos), format, args...)
}

func (p *parser) incomplete(pos int, message string) error {
	return langerr.WrapAt(langerr.SyntaxError, p.lines.position(pos), ErrUnexpectedEOF, "%s: %s", message, ErrUnexpectedEOF)
}

const excerptLimit = 32

// excerpt returns the first line of the unconsumed input, shortened.
func (p *parser) excerpt(pos int) string {
	rest := p.src[pos:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	if utf8.RuneCountInString(rest) > excerptLimit {
		runes := []rune(rest)
		rest = string(runes[:excerptLimit]) + "..."
	}
	return strconv.Quote(rest)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
