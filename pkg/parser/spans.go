package parser

import (
	"sort"
	"unicode/utf8"

	"egg/interpreter-go/pkg/ast"
)

// lineIndex maps byte offsets of a source text to 1-based line/column pairs.
type lineIndex struct {
	source string
	starts []int
}

func newLineIndex(source string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{source: source, starts: starts}
}

func (l *lineIndex) position(offset int) ast.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(l.source) {
		offset = len(l.source)
	}
	line := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
	column := utf8.RuneCountInString(l.source[l.starts[line]:offset]) + 1
	return ast.Position{Line: line + 1, Column: column}
}

func (l *lineIndex) span(start, end int) ast.Span {
	return ast.Span{Start: l.position(start), End: l.position(end)}
}
