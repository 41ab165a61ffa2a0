package runtime

import (
	"fmt"

	"egg/interpreter-go/pkg/ast"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindArray
	KindFunction
	KindNativeFunction
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindNativeFunction:
		return "native_function"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// Value is the shared behaviour for all runtime values. Every
// implementation is comparable with ==: scalars by value, arrays and
// functions by identity.
type Value interface {
	Kind() Kind
}

//-----------------------------------------------------------------------------
// Scalars
//-----------------------------------------------------------------------------

type StringValue struct {
	Val string
}

func (v StringValue) Kind() Kind { return KindString }

type NumberValue struct {
	Val float64
}

func (v NumberValue) Kind() Kind { return KindNumber }

type BoolValue struct {
	Val bool
}

func (v BoolValue) Kind() Kind { return KindBool }

var (
	True  Value = BoolValue{Val: true}
	False Value = BoolValue{Val: false}
)

// IsFalse reports whether v is the boolean false. It is the only value
// that `if` and `while` treat as false.
func IsFalse(v Value) bool {
	b, ok := v.(BoolValue)
	return ok && !b.Val
}

// FromLiteral converts a parsed literal into its runtime value.
func FromLiteral(lit *ast.Literal) (Value, error) {
	switch v := lit.Value.(type) {
	case string:
		return StringValue{Val: v}, nil
	case float64:
		return NumberValue{Val: v}, nil
	case bool:
		return BoolValue{Val: v}, nil
	default:
		return nil, fmt.Errorf("unsupported literal %T", lit.Value)
	}
}

//-----------------------------------------------------------------------------
// Collections
//-----------------------------------------------------------------------------

type ArrayValue struct {
	Elements []Value
}

func (v *ArrayValue) Kind() Kind { return KindArray }

// NewArray copies elements into a fresh array.
func NewArray(elements []Value) *ArrayValue {
	out := make([]Value, len(elements))
	copy(out, elements)
	return &ArrayValue{Elements: out}
}

//-----------------------------------------------------------------------------
// Functions & closures
//-----------------------------------------------------------------------------

// FunctionValue is a closure built by `fun`. Closure is shared with every
// other closure defined in the same frame.
type FunctionValue struct {
	Params  []string
	Body    ast.Expression
	Closure *Environment
}

func (v *FunctionValue) Kind() Kind { return KindFunction }

// Printer receives the values handed to `print`.
type Printer interface {
	Print(Value) error
}

// NativeCallContext provides hooks for native functions.
type NativeCallContext struct {
	Env     *Environment
	Printer Printer
}

type NativeFunc func(*NativeCallContext, []Value) (Value, error)

// NativeFunctionValue is a host function. Arity -1 accepts any count.
type NativeFunctionValue struct {
	Name  string
	Arity int
	Impl  NativeFunc
}

func (v *NativeFunctionValue) Kind() Kind { return KindNativeFunction }

// IsCallable reports whether v may appear in operator position.
func IsCallable(v Value) bool {
	switch v.(type) {
	case *FunctionValue, *NativeFunctionValue:
		return true
	default:
		return false
	}
}
