package interpreter

import (
	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/runtime"
)

// specialForm receives its arguments unevaluated.
type specialForm func(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error)

var specialForms map[string]specialForm

func init() {
	specialForms = map[string]specialForm{
		"if":     evalIf,
		"while":  evalWhile,
		"do":     evalDo,
		"define": evalDefine,
		"fun":    evalFun,
	}
}

// IsSpecialForm reports whether name is handled before ordinary application.
func IsSpecialForm(name string) bool {
	_, ok := specialForms[name]
	return ok
}

func evalIf(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	if len(args) != 3 {
		return nil, langerr.Syntax("wrong number of arguments to if: expected 3, got %d", len(args))
	}
	cond, err := ev.eval(args[0], env)
	if err != nil {
		return nil, err
	}
	if runtime.IsFalse(cond) {
		return ev.eval(args[2], env)
	}
	return ev.eval(args[1], env)
}

func evalWhile(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	if len(args) != 2 {
		return nil, langerr.Syntax("wrong number of arguments to while: expected 2, got %d", len(args))
	}
	for {
		if err := ev.checkContext(); err != nil {
			return nil, err
		}
		cond, err := ev.eval(args[0], env)
		if err != nil {
			return nil, err
		}
		if runtime.IsFalse(cond) {
			break
		}
		if _, err := ev.eval(args[1], env); err != nil {
			return nil, err
		}
	}
	return runtime.False, nil
}

func evalDo(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	result := runtime.False
	for _, arg := range args {
		val, err := ev.eval(arg, env)
		if err != nil {
			return nil, err
		}
		result = val
	}
	return result, nil
}

func evalDefine(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	name, err := bindingTarget("define", args)
	if err != nil {
		return nil, err
	}
	value, err := ev.eval(args[1], env)
	if err != nil {
		return nil, err
	}
	if err := env.Define(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

func bindingTarget(form string, args []ast.Expression) (string, error) {
	if len(args) != 2 {
		return "", langerr.Syntax("incorrect use of %s: expected a name and a value, got %d argument(s)", form, len(args))
	}
	target, ok := args[0].(*ast.Variable)
	if !ok {
		return "", langerr.Syntax("incorrect use of %s: first argument must be a word", form)
	}
	return target.Name, nil
}

func evalFun(ev *evaluation, args []ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	if len(args) == 0 {
		return nil, langerr.Syntax("functions need a body")
	}
	params := make([]string, 0, len(args)-1)
	for _, arg := range args[:len(args)-1] {
		param, ok := arg.(*ast.Variable)
		if !ok {
			return nil, langerr.Syntax("parameter names must be words")
		}
		params = append(params, param.Name)
	}
	return &runtime.FunctionValue{
		Params:  params,
		Body:    args[len(args)-1],
		Closure: env,
	}, nil
}
