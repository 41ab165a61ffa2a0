package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"egg/interpreter-go/pkg/interpreter"
	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/runtime"
)

const (
	historyFile = ".egg_history"
	promptMain  = "egg> "
	promptCont  = "...  "
)

// replSession evaluates entries against one persistent environment, so
// definitions survive from one entry to the next.
type replSession struct {
	interp *interpreter.Interpreter
	env    *runtime.Environment
	out    io.Writer
	errOut io.Writer
}

func newReplSession(out, errOut io.Writer) *replSession {
	interp := interpreter.NewWithOptions(interpreter.Options{Printer: runtime.WriterPrinter{W: out}})
	return &replSession{
		interp: interp,
		env:    interp.NewSession(),
		out:    out,
		errOut: errOut,
	}
}

// handle evaluates one complete entry and reports whether the REPL should exit.
func (s *replSession) handle(code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, ":") {
		switch strings.ToLower(trimmed) {
		case ":quit", ":q":
			return true
		case ":reset":
			s.env = s.interp.NewSession()
			fmt.Fprintln(s.out, "session reset")
		case ":help":
			fmt.Fprintln(s.out, "Enter an Egg expression. Commands: :reset, :quit")
		default:
			fmt.Fprintln(s.out, "unknown command. Type :quit to exit.")
		}
		return false
	}
	val, err := s.interp.RunIn(context.Background(), code, s.env)
	if err != nil {
		fmt.Fprintln(s.errOut, err)
		return false
	}
	fmt.Fprintln(s.out, runtime.FormatValue(val))
	return false
}

// needsMore reports whether src is an unfinished expression that a further
// line could complete.
func needsMore(src string) bool {
	if strings.TrimSpace(src) == "" {
		return false
	}
	_, err := parser.Parse(src)
	return err != nil && parser.IsIncomplete(err)
}

func runRepl(args []string) int {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %s\n", strings.Join(args, " "))
		return 1
	}
	fmt.Fprintf(os.Stdout, "%s. Type :quit to exit.\n", cliToolVersion)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		} else {
			logger.Debug().Err(err).Str("path", histPath).Msg("history not saved")
		}
	}()

	session := newReplSession(os.Stdout, os.Stderr)
	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Fprintln(os.Stdout)
			return 0
		}
		if strings.TrimSpace(code) != "" {
			ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		}
		if session.handle(code) {
			return 0
		}
	}
}

// readByParseProbe keeps prompting until the accumulated lines parse or fail
// for a reason other than ending early.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") || !needsMore(src) {
			return src, true
		}
	}
}
