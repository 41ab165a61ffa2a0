package ast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format renders expr back to Egg surface syntax. For any AST produced by
// the parser, parsing the result yields an Equal tree.
func Format(expr Expression) string {
	var b strings.Builder
	writeExpression(&b, expr)
	return b.String()
}

func writeExpression(b *strings.Builder, expr Expression) {
	switch n := expr.(type) {
	case *Literal:
		b.WriteString(FormatLiteral(n.Value))
	case *Variable:
		b.WriteString(n.Name)
	case *Apply:
		writeExpression(b, n.Operator)
		b.WriteByte('(')
		for idx, arg := range n.Arguments {
			if idx > 0 {
				b.WriteString(", ")
			}
			writeExpression(b, arg)
		}
		b.WriteByte(')')
	case nil:
		b.WriteString("<nil>")
	default:
		fmt.Fprintf(b, "<%T>", expr)
	}
}

var overflowDigits = "1" + strings.Repeat("0", 309)

// FormatLiteral renders a literal value the way the parser reads it.
func FormatLiteral(value any) string {
	switch v := value.(type) {
	case string:
		return `"` + v + `"`
	case float64:
		if math.IsInf(v, 1) {
			// Digit runs too long for float64 read back as +Inf.
			return overflowDigits
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal compares two trees structurally, ignoring source spans.
func Equal(a, b Expression) bool {
	switch x := a.(type) {
	case *Literal:
		y, ok := b.(*Literal)
		return ok && x.Value == y.Value
	case *Variable:
		y, ok := b.(*Variable)
		return ok && x.Name == y.Name
	case *Apply:
		y, ok := b.(*Apply)
		if !ok || len(x.Arguments) != len(y.Arguments) || !Equal(x.Operator, y.Operator) {
			return false
		}
		for idx := range x.Arguments {
			if !Equal(x.Arguments[idx], y.Arguments[idx]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		return false
	}
}
