package interpreter

import (
	"testing"

	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/runtime"
)

// runProgram evaluates fragments with a buffered printer and returns the
// result, the printed lines and the error.
func runProgram(t *testing.T, opts Options, fragments ...string) (runtime.Value, []string, error) {
	t.Helper()
	printer := &runtime.BufferPrinter{}
	opts.Printer = printer
	interp := NewWithOptions(opts)
	val, err := interp.Run(fragments...)
	return val, printer.Lines(), err
}

func mustRun(t *testing.T, fragments ...string) (runtime.Value, []string) {
	t.Helper()
	val, lines, err := runProgram(t, Options{}, fragments...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val, lines
}

func expectErrorKind(t *testing.T, err error, kind langerr.Kind) *langerr.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	le, ok := langerr.As(err)
	if !ok {
		t.Fatalf("expected %s, got non-language error %v", kind, err)
	}
	if le.Kind != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
	return le
}

func expectNumber(t *testing.T, val runtime.Value, want float64) {
	t.Helper()
	num, ok := val.(runtime.NumberValue)
	if !ok || num.Val != want {
		t.Fatalf("expected number %v, got %#v", want, val)
	}
}

func expectString(t *testing.T, val runtime.Value, want string) {
	t.Helper()
	str, ok := val.(runtime.StringValue)
	if !ok || str.Val != want {
		t.Fatalf("expected string %q, got %#v", want, val)
	}
}

func expectLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected output %q, got %q", want, got)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Fatalf("expected output %q, got %q", want, got)
		}
	}
}
