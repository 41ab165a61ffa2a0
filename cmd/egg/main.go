package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oarkflow/json"
	"github.com/oarkflow/log"

	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/driver"
	"egg/interpreter-go/pkg/interpreter"
	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/runtime"
)

const cliToolVersion = "egg 0.1.0-dev"

var logger = newLogger(false)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	verbose := false
	for len(args) > 0 && (args[0] == "--verbose" || args[0] == "-v") {
		verbose = true
		args = args[1:]
	}
	logger = newLogger(verbose)

	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runEntry(args[1:])
	case "eval":
		return runEval(args[1:])
	case "parse":
		return runParse(args[1:])
	case "repl":
		return runRepl(args[1:])
	case "serve":
		return runServe(args[1:])
	case "deps":
		return runDeps(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  egg [--verbose] run [-max-depth N] [-max-steps N] [-timeout D] [file.egg ...]")
	fmt.Fprintln(os.Stderr, "  egg eval <source>")
	fmt.Fprintln(os.Stderr, "  egg parse [-json] <source>")
	fmt.Fprintln(os.Stderr, "  egg repl")
	fmt.Fprintln(os.Stderr, "  egg serve [-addr ADDR] [-db FILE] [-timeout D] [-max-steps N] [-max-depth N]")
	fmt.Fprintln(os.Stderr, "  egg deps install")
	fmt.Fprintln(os.Stderr, "  egg version")
}

func newLogger(verbose bool) *log.Logger {
	l := log.DefaultLogger
	l.Level = log.InfoLevel
	if verbose {
		l.Level = log.DebugLevel
	}
	return &l
}

func runEntry(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	maxDepth := fs.Int("max-depth", 0, "maximum call depth (0 uses the default, negative disables)")
	maxSteps := fs.Int("max-steps", 0, "maximum evaluation steps (0 is unlimited)")
	timeout := fs.Duration("timeout", 0, "abort the run after this long (0 is unlimited)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var program *driver.Program
	var err error
	if fs.NArg() > 0 {
		program, err = driver.LoadFiles(fs.Args()...)
	} else {
		program, err = loadManifestProgram()
	}
	if err != nil {
		if errors.Is(err, driver.ErrManifestNotFound) {
			fmt.Fprintf(os.Stderr, "egg run requires source files or an %s (%v)\n", driver.ManifestName, err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	limits := program.Limits
	if *maxDepth != 0 {
		limits.MaxDepth = *maxDepth
	}
	if *maxSteps != 0 {
		limits.MaxSteps = *maxSteps
	}
	if *timeout != 0 {
		limits.Timeout = *timeout
	}
	logger.Debug().Int("libraries", len(program.Libraries)).Int("main", len(program.Main)).Int("max_depth", limits.MaxDepth).Int("max_steps", limits.MaxSteps).Str("timeout", limits.Timeout.String()).Msg("running program")

	interp := interpreter.NewWithOptions(interpreter.Options{
		MaxDepth: limits.MaxDepth,
		MaxSteps: limits.MaxSteps,
		Printer:  runtime.WriterPrinter{W: os.Stdout},
	})
	ctx := context.Background()
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}
	start := time.Now()
	if _, err := interp.EvaluateContext(ctx, program.Expression(), interp.NewSession()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	logger.Debug().Str("elapsed", time.Since(start).String()).Msg("program finished")
	return 0
}

// loadManifestProgram assembles the program described by the nearest egg.yml.
func loadManifestProgram() (*driver.Program, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	manifestPath, err := driver.FindManifest(cwd)
	if err != nil {
		return nil, err
	}
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	lock, err := driver.LoadLockfile(driver.LockfilePath(manifest))
	switch {
	case err == nil:
		if lock.Root != manifest.Name {
			return nil, fmt.Errorf("lockfile root %q does not match manifest name %q", lock.Root, manifest.Name)
		}
	case errors.Is(err, os.ErrNotExist):
		lock = nil
	default:
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	cacheDir, err := driver.CacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve EGG_HOME: %w", err)
	}
	logger.Debug().Str("manifest", manifest.Path).Str("cache", cacheDir).Msg("loading project")
	return driver.NewLoader(manifest, lock, cacheDir, nil).Load()
}

func runEval(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "egg eval requires source text")
		return 1
	}
	interp := interpreter.NewWithOptions(interpreter.Options{Printer: runtime.WriterPrinter{W: os.Stdout}})
	val, err := interp.Run(args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, runtime.FormatValue(val))
	return 0
}

func runParse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "print the syntax tree as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "egg parse requires source text")
		return 1
	}
	expr, err := parser.ParseFragments(fs.Args()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if !*asJSON {
		fmt.Fprintln(os.Stdout, ast.Format(expr))
		return 0
	}
	data, err := json.Marshal(expr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode syntax tree: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, strings.TrimSpace(string(data)))
	return 0
}
