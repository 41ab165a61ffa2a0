package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdir changes the working directory for the duration of the test,
// restoring the previous one on cleanup (like testing.T.Chdir in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory %s: %v", prev, err)
		}
	})
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func TestRunFilesConcatenatesFragments(t *testing.T) {
	root := t.TempDir()
	head := filepath.Join(root, "head.egg")
	tail := filepath.Join(root, "tail.egg")
	writeFile(t, head, `
do(define(total, 0),
   define(count, 1),
   while(<(count, 11),`)
	writeFile(t, tail, `
         do(define(total, +(total, count)),
            define(count, +(count, 1)))),
   print(total))`)

	code, stdout, stderr := captureCLI(t, []string{"run", head, tail})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "55\n" {
		t.Fatalf("stdout = %q, want %q", stdout, "55\n")
	}
}

func TestRunReportsErrorsWithKind(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.egg")
	writeFile(t, path, `do(print("before"), +(1, nope))`)

	code, stdout, stderr := captureCLI(t, []string{"run", path})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "before\n" {
		t.Fatalf("output before the error should be kept, got %q", stdout)
	}
	if !strings.HasPrefix(stderr, "ReferenceError: ") || !strings.Contains(stderr, "nope") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunHonoursStepLimitFlag(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "loop.egg")
	writeFile(t, path, `while(true, 1)`)

	code, _, stderr := captureCLI(t, []string{"run", "-max-steps", "500", path})
	if code != 1 || !strings.Contains(stderr, "LimitError") {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestRunUsesManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", "pow.egg"), `
define(pow, fun(base, exp,
  if(==(exp, 0),
     1,
     *(base, pow(base, -(exp, 1))))))`)
	writeFile(t, filepath.Join(root, "main.egg"), `print(pow(2, 10))`)
	writeFile(t, filepath.Join(root, "egg.yml"), `
name: powers
main: main.egg
prelude: lib/pow.egg
`)
	nested := filepath.Join(root, "lib")
	chdir(t, nested)
	t.Setenv("EGG_HOME", filepath.Join(root, "cache"))

	code, stdout, stderr := captureCLI(t, []string{"run"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "1024\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunWithoutManifestOrFiles(t *testing.T) {
	chdir(t, t.TempDir())
	code, _, stderr := captureCLI(t, []string{"run"})
	if code != 1 || !strings.Contains(stderr, "egg.yml") {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestEvalPrintsResult(t *testing.T) {
	code, stdout, stderr := captureCLI(t, []string{"eval", `do(define(plusOne, fun(a, +(a, 1))), plusOne(8))`})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "9\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestEvalIncludesPrintOutput(t *testing.T) {
	code, stdout, _ := captureCLI(t, []string{"eval", `print(element(array(1, 2, 3), 1))`})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if stdout != "2\n2\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestEvalSyntaxError(t *testing.T) {
	code, _, stderr := captureCLI(t, []string{"eval", `+(1, `})
	if code != 1 || !strings.HasPrefix(stderr, "SyntaxError") {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestParseCanonicalAndJSON(t *testing.T) {
	code, stdout, stderr := captureCLI(t, []string{"parse", `+( a ,  10 ) # sum`})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "+(a, 10)\n" {
		t.Fatalf("stdout = %q", stdout)
	}

	code, stdout, stderr = captureCLI(t, []string{"parse", "-json", `+(a, 10)`})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, fragment := range []string{`"type":"Apply"`, `"name":"+"`, `"value":10`} {
		if !strings.Contains(stdout, fragment) {
			t.Fatalf("json output missing %s: %s", fragment, stdout)
		}
	}
}

func TestVersionAndUnknownCommand(t *testing.T) {
	code, stdout, _ := captureCLI(t, []string{"version"})
	if code != 0 || strings.TrimSpace(stdout) != cliToolVersion {
		t.Fatalf("version = %d %q", code, stdout)
	}
	code, _, stderr := captureCLI(t, []string{"frobnicate"})
	if code != 1 || !strings.Contains(stderr, "unknown command") {
		t.Fatalf("unknown command = %d %q", code, stderr)
	}
	code, _, stderr = captureCLI(t, []string{"--verbose"})
	if code != 1 || !strings.Contains(stderr, "Usage:") {
		t.Fatalf("bare --verbose = %d %q", code, stderr)
	}
}

func captureCLI(t *testing.T, args []string) (int, string, string) {
	t.Helper()

	stdout := os.Stdout
	stderr := os.Stderr

	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	rErr, wErr, err := os.Pipe()
	if err != nil {
		t.Fatalf("stderr pipe: %v", err)
	}

	os.Stdout = wOut
	os.Stderr = wErr

	code := run(args)

	if err := wOut.Close(); err != nil {
		t.Fatalf("stdout close: %v", err)
	}
	if err := wErr.Close(); err != nil {
		t.Fatalf("stderr close: %v", err)
	}

	os.Stdout = stdout
	os.Stderr = stderr

	outBytes, err := io.ReadAll(rOut)
	if err != nil {
		t.Fatalf("stdout read: %v", err)
	}
	errBytes, err := io.ReadAll(rErr)
	if err != nil {
		t.Fatalf("stderr read: %v", err)
	}

	if err := rOut.Close(); err != nil {
		t.Fatalf("stdout pipe close: %v", err)
	}
	if err := rErr.Close(); err != nil {
		t.Fatalf("stderr pipe close: %v", err)
	}

	return code, string(outBytes), string(errBytes)
}
