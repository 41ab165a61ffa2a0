package runtime

import (
	"math"
	"strconv"
	"strings"
)

// FormatValue renders v the way `print` shows it. Strings appear without
// quotes at the top level and quoted inside arrays.
func FormatValue(v Value) string {
	var b strings.Builder
	writeValue(&b, v, false)
	return b.String()
}

// FormatNumber renders a number with the shortest exact representation.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func writeValue(b *strings.Builder, v Value, nested bool) {
	switch val := v.(type) {
	case StringValue:
		if nested {
			b.WriteString(strconv.Quote(val.Val))
		} else {
			b.WriteString(val.Val)
		}
	case NumberValue:
		b.WriteString(FormatNumber(val.Val))
	case BoolValue:
		b.WriteString(strconv.FormatBool(val.Val))
	case *ArrayValue:
		b.WriteByte('[')
		for idx, el := range val.Elements {
			if idx > 0 {
				b.WriteString(", ")
			}
			writeValue(b, el, true)
		}
		b.WriteByte(']')
	case *FunctionValue:
		b.WriteString("<function(")
		b.WriteString(strings.Join(val.Params, ", "))
		b.WriteString(")>")
	case *NativeFunctionValue:
		b.WriteString("<native ")
		b.WriteString(val.Name)
		b.WriteByte('>')
	case nil:
		b.WriteString("<nil>")
	default:
		b.WriteString("<" + v.Kind().String() + ">")
	}
}
