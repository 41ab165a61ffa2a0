package interpreter

import (
	"fmt"
	"math"
	"unicode/utf8"

	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/runtime"
)

func buildTopEnvironment() *runtime.Environment {
	env := runtime.NewEnvironment(nil)
	mustDefine(env, "true", runtime.True)
	mustDefine(env, "false", runtime.False)
	for _, fn := range builtinFunctions() {
		mustDefine(env, fn.Name, fn)
	}
	env.Freeze()
	return env
}

func mustDefine(env *runtime.Environment, name string, value runtime.Value) {
	if err := env.Define(name, value); err != nil {
		panic(fmt.Sprintf("interpreter: define builtin %s: %v", name, err))
	}
}

func builtinFunctions() []*runtime.NativeFunctionValue {
	return []*runtime.NativeFunctionValue{
		{Name: "+", Arity: 2, Impl: builtinAdd},
		arithmetic("-", func(a, b float64) float64 { return a - b }),
		arithmetic("*", func(a, b float64) float64 { return a * b }),
		arithmetic("/", func(a, b float64) float64 { return a / b }),
		{Name: "==", Arity: 2, Impl: builtinEqual},
		comparison("<", func(c int) bool { return c < 0 }),
		comparison(">", func(c int) bool { return c > 0 }),
		{Name: "array", Arity: -1, Impl: builtinArray},
		{Name: "length", Arity: 1, Impl: builtinLength},
		{Name: "element", Arity: 2, Impl: builtinElement},
		{Name: "print", Arity: 1, Impl: builtinPrint},
	}
}

// Builtins lists the names bound in the top environment.
func Builtins() []string {
	return TopEnvironment().Keys()
}

func builtinAdd(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	left, right := args[0], args[1]
	if l, ok := left.(runtime.NumberValue); ok {
		if r, ok := right.(runtime.NumberValue); ok {
			return runtime.NumberValue{Val: l.Val + r.Val}, nil
		}
	}
	_, ls := left.(runtime.StringValue)
	_, rs := right.(runtime.StringValue)
	if ls || rs {
		return runtime.StringValue{Val: runtime.FormatValue(left) + runtime.FormatValue(right)}, nil
	}
	return nil, langerr.Type("+ expects numbers or strings, got %s and %s", left.Kind(), right.Kind())
}

func arithmetic(name string, op func(a, b float64) float64) *runtime.NativeFunctionValue {
	return &runtime.NativeFunctionValue{
		Name:  name,
		Arity: 2,
		Impl: func(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
			l, lok := args[0].(runtime.NumberValue)
			r, rok := args[1].(runtime.NumberValue)
			if !lok || !rok {
				return nil, langerr.Type("%s expects numbers, got %s and %s", name, args[0].Kind(), args[1].Kind())
			}
			return runtime.NumberValue{Val: op(l.Val, r.Val)}, nil
		},
	}
}

func builtinEqual(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	return runtime.BoolValue{Val: args[0] == args[1]}, nil
}

func comparison(name string, accept func(int) bool) *runtime.NativeFunctionValue {
	return &runtime.NativeFunctionValue{
		Name:  name,
		Arity: 2,
		Impl: func(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
			switch l := args[0].(type) {
			case runtime.NumberValue:
				if r, ok := args[1].(runtime.NumberValue); ok {
					return runtime.BoolValue{Val: accept(compareFloats(l.Val, r.Val))}, nil
				}
			case runtime.StringValue:
				if r, ok := args[1].(runtime.StringValue); ok {
					return runtime.BoolValue{Val: accept(compareStrings(l.Val, r.Val))}, nil
				}
			}
			return nil, langerr.Type("%s expects two numbers or two strings, got %s and %s", name, args[0].Kind(), args[1].Kind())
		},
	}
}

// compareFloats reports 0 when either side is NaN, so < and > are both false.
func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func builtinArray(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	return runtime.NewArray(args), nil
}

func builtinLength(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	switch v := args[0].(type) {
	case *runtime.ArrayValue:
		return runtime.NumberValue{Val: float64(len(v.Elements))}, nil
	case runtime.StringValue:
		return runtime.NumberValue{Val: float64(utf8.RuneCountInString(v.Val))}, nil
	default:
		return nil, langerr.Type("length expects an array or a string, got %s", args[0].Kind())
	}
}

func builtinElement(_ *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	switch seq := args[0].(type) {
	case *runtime.ArrayValue:
		idx, err := index(args[1], len(seq.Elements))
		if err != nil {
			return nil, err
		}
		return seq.Elements[idx], nil
	case runtime.StringValue:
		runes := []rune(seq.Val)
		idx, err := index(args[1], len(runes))
		if err != nil {
			return nil, err
		}
		return runtime.StringValue{Val: string(runes[idx])}, nil
	default:
		return nil, langerr.Type("element expects an array or a string, got %s", args[0].Kind())
	}
}

func index(v runtime.Value, length int) (int, error) {
	num, ok := v.(runtime.NumberValue)
	if !ok {
		return 0, langerr.Range("index must be a number, got %s", v.Kind())
	}
	if num.Val != math.Trunc(num.Val) || math.IsInf(num.Val, 0) {
		return 0, langerr.Range("index %s is not an integer", runtime.FormatNumber(num.Val))
	}
	if num.Val < 0 || num.Val >= float64(length) {
		return 0, langerr.Range("index %s out of range for length %d", runtime.FormatNumber(num.Val), length)
	}
	return int(num.Val), nil
}

func builtinPrint(ctx *runtime.NativeCallContext, args []runtime.Value) (runtime.Value, error) {
	if ctx != nil && ctx.Printer != nil {
		if err := ctx.Printer.Print(args[0]); err != nil {
			return nil, fmt.Errorf("print: %w", err)
		}
	}
	return args[0], nil
}
