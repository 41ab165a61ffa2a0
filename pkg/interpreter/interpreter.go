package interpreter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/runtime"
)

// DefaultMaxDepth bounds evaluation nesting when Options.MaxDepth is zero.
const DefaultMaxDepth = 10000

// Options tune a single Interpreter.
type Options struct {
	// MaxDepth limits nested evaluation. Zero selects DefaultMaxDepth and a
	// negative value disables the limit.
	MaxDepth int
	// MaxSteps limits the number of nodes evaluated per run. Zero means
	// unlimited.
	MaxSteps int
	// Printer receives values passed to `print`. Defaults to stdout.
	Printer runtime.Printer
	// Cache, when set, memoizes parsing across runs.
	Cache *parser.Cache
}

// Interpreter evaluates Egg programs against the shared builtin environment.
type Interpreter struct {
	global   *runtime.Environment
	printer  runtime.Printer
	cache    *parser.Cache
	maxDepth int
	maxSteps int
}

var (
	topOnce sync.Once
	topEnv  *runtime.Environment
)

// TopEnvironment returns the frozen frame holding every builtin. It is built
// once per process and shared by all interpreters.
func TopEnvironment() *runtime.Environment {
	topOnce.Do(func() {
		topEnv = buildTopEnvironment()
	})
	return topEnv
}

// New returns an interpreter with default options.
func New() *Interpreter {
	return NewWithOptions(Options{})
}

// NewWithOptions returns an interpreter configured by opts.
func NewWithOptions(opts Options) *Interpreter {
	depth := opts.MaxDepth
	if depth == 0 {
		depth = DefaultMaxDepth
	}
	printer := opts.Printer
	if printer == nil {
		printer = runtime.WriterPrinter{W: os.Stdout}
	}
	return &Interpreter{
		global:   TopEnvironment(),
		printer:  printer,
		cache:    opts.Cache,
		maxDepth: depth,
		maxSteps: opts.MaxSteps,
	}
}

// GlobalEnvironment returns the interpreter’s global environment.
func (i *Interpreter) GlobalEnvironment() *runtime.Environment {
	return i.global
}

// Printer returns the collaborator that receives `print` output.
func (i *Interpreter) Printer() runtime.Printer {
	return i.printer
}

// NewSession returns a fresh, writable child of the global environment.
func (i *Interpreter) NewSession() *runtime.Environment {
	return i.global.Extend()
}

// Parse parses source, going through the cache when one is configured.
func (i *Interpreter) Parse(source string) (ast.Expression, error) {
	return i.cache.Parse(source)
}

// Run joins fragments with newlines, parses them as one program and
// evaluates it in a fresh scope.
func (i *Interpreter) Run(fragments ...string) (runtime.Value, error) {
	return i.RunContext(context.Background(), fragments...)
}

// RunContext is Run with cancellation.
func (i *Interpreter) RunContext(ctx context.Context, fragments ...string) (runtime.Value, error) {
	return i.RunIn(ctx, strings.Join(fragments, "\n"), i.NewSession())
}

// RunIn parses source and evaluates it in env. Bindings made by the program
// remain in env afterwards.
func (i *Interpreter) RunIn(ctx context.Context, source string, env *runtime.Environment) (runtime.Value, error) {
	program, err := i.Parse(source)
	if err != nil {
		return nil, err
	}
	return i.EvaluateContext(ctx, program, env)
}

// Evaluate evaluates a single expression in env.
func (i *Interpreter) Evaluate(expr ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	return i.EvaluateContext(context.Background(), expr, env)
}

// EvaluateContext is Evaluate with cancellation. Limits apply per call.
func (i *Interpreter) EvaluateContext(ctx context.Context, expr ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	if env == nil {
		env = i.NewSession()
	}
	ev := i.newEvaluation(ctx)
	return ev.eval(expr, env)
}

// CallFunction applies a function value to already evaluated arguments.
func (i *Interpreter) CallFunction(ctx context.Context, fn runtime.Value, args []runtime.Value) (runtime.Value, error) {
	ev := i.newEvaluation(ctx)
	return ev.call(fn, args, i.global)
}

// evaluation carries the per-run counters.
type evaluation struct {
	interp *Interpreter
	ctx    context.Context
	depth  int
	steps  int
}

func (i *Interpreter) newEvaluation(ctx context.Context) *evaluation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &evaluation{interp: i, ctx: ctx}
}

func (ev *evaluation) eval(expr ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	ev.depth++
	defer func() { ev.depth-- }()
	if limit := ev.interp.maxDepth; limit > 0 && ev.depth > limit {
		return nil, langerr.At(langerr.LimitError, expr.Span().Start, "maximum evaluation depth %d exceeded", limit)
	}
	ev.steps++
	if limit := ev.interp.maxSteps; limit > 0 && ev.steps > limit {
		return nil, langerr.At(langerr.LimitError, expr.Span().Start, "step limit %d exceeded", limit)
	}

	switch n := expr.(type) {
	case *ast.Literal:
		return runtime.FromLiteral(n)
	case *ast.Variable:
		val, err := env.Get(n.Name)
		if err != nil {
			return nil, locate(err, n)
		}
		return val, nil
	case *ast.Apply:
		return ev.evalApply(n, env)
	default:
		return nil, fmt.Errorf("interpreter: unsupported node %T", expr)
	}
}

func (ev *evaluation) evalApply(node *ast.Apply, env *runtime.Environment) (runtime.Value, error) {
	if name, ok := node.OperatorName(); ok {
		if form, ok := specialForms[name]; ok {
			val, err := form(ev, node.Arguments, env)
			if err != nil {
				return nil, locate(err, node)
			}
			return val, nil
		}
	}

	callee, err := ev.eval(node.Operator, env)
	if err != nil {
		return nil, err
	}
	args := make([]runtime.Value, 0, len(node.Arguments))
	for _, argExpr := range node.Arguments {
		val, err := ev.eval(argExpr, env)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	val, err := ev.call(callee, args, env)
	if err != nil {
		return nil, locate(err, node)
	}
	return val, nil
}

func (ev *evaluation) call(callee runtime.Value, args []runtime.Value, env *runtime.Environment) (runtime.Value, error) {
	if err := ev.checkContext(); err != nil {
		return nil, err
	}
	switch fn := callee.(type) {
	case *runtime.FunctionValue:
		if len(args) != len(fn.Params) {
			return nil, langerr.Type("wrong number of arguments: expected %d, got %d", len(fn.Params), len(args))
		}
		frame := fn.Closure.Extend()
		for idx, name := range fn.Params {
			if err := frame.Define(name, args[idx]); err != nil {
				return nil, err
			}
		}
		return ev.eval(fn.Body, frame)
	case *runtime.NativeFunctionValue:
		if fn.Arity >= 0 && len(args) != fn.Arity {
			return nil, langerr.Type("%s expects %d argument(s), got %d", fn.Name, fn.Arity, len(args))
		}
		callCtx := &runtime.NativeCallContext{Env: env, Printer: ev.interp.printer}
		return fn.Impl(callCtx, args)
	default:
		if callee == nil {
			return nil, langerr.Type("applying a non-function")
		}
		return nil, langerr.Type("applying a non-function: %s %s", callee.Kind(), runtime.FormatValue(callee))
	}
}

func (ev *evaluation) checkContext() error {
	if err := ev.ctx.Err(); err != nil {
		return langerr.Wrap(langerr.LimitError, err, "evaluation interrupted: %v", err)
	}
	return nil
}

// locate stamps node's position on a language error that has none yet.
func locate(err error, node ast.Node) error {
	le, ok := err.(*langerr.Error)
	if !ok || le.Pos.Line > 0 {
		return err
	}
	le.Pos = node.Span().Start
	return le
}
