package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/interpreter"
	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/runtime"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func runLoaded(t *testing.T, program *Program) (runtime.Value, []string) {
	t.Helper()
	printer := &runtime.BufferPrinter{}
	interp := interpreter.NewWithOptions(interpreter.Options{Printer: printer})
	val, err := interp.EvaluateContext(context.Background(), program.Expression(), interp.NewSession())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return val, printer.Lines()
}

func TestLoaderAssemblesLibrariesBeforeMain(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeFile(t, filepath.Join(root, "shared", "square.egg"), `define(square, fun(x, *(x, x)))`)
	writeFile(t, filepath.Join(app, "lib", "twice.egg"), `
# applies f two times
define(twice, fun(f, x, f(f(x))))`)
	writeFile(t, filepath.Join(app, "head.egg"), `do(print(twice(square, 3)),`)
	writeFile(t, filepath.Join(app, "tail.egg"), `   square(4))`)
	writeFile(t, filepath.Join(app, ManifestName), `
name: app
main: [head.egg, tail.egg]
prelude: lib/twice.egg
dependencies:
  shared:
    path: ../shared
    files: [square.egg]
`)

	manifest, err := LoadManifest(filepath.Join(app, ManifestName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	program, err := NewLoader(manifest, nil, "", nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(program.Libraries) != 2 || len(program.Main) != 2 {
		t.Fatalf("unexpected program shape: %d libraries, %d main", len(program.Libraries), len(program.Main))
	}
	if name, ok := program.Expression().(*ast.Apply).OperatorName(); !ok || name != "do" {
		t.Fatalf("expected do(...) wrapper, got %s", ast.Format(program.Expression()))
	}

	val, lines := runLoaded(t, program)
	if num, ok := val.(runtime.NumberValue); !ok || num.Val != 16 {
		t.Fatalf("expected 16, got %#v", val)
	}
	if len(lines) != 1 || lines[0] != "81" {
		t.Fatalf("unexpected output %q", lines)
	}
}

func TestLoaderUsesLockedGitCheckout(t *testing.T) {
	root := t.TempDir()
	cacheDir := filepath.Join(root, "cache")
	checkout := DependencyDir(cacheDir, "math", "v1.0.0@abc123")
	writeFile(t, filepath.Join(checkout, "math.egg"), `define(inc, fun(n, +(n, 1)))`)
	app := filepath.Join(root, "app")
	writeFile(t, filepath.Join(app, "main.egg"), `inc(41)`)
	writeFile(t, filepath.Join(app, ManifestName), `
name: app
main: main.egg
dependencies:
  math:
    git: https://example.com/math.git
    tag: v1.0.0
    files: [math.egg]
`)
	manifest, err := LoadManifest(filepath.Join(app, ManifestName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	if _, err := NewLoader(manifest, nil, cacheDir, nil).Load(); err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("expected not installed error, got %v", err)
	}

	lock := NewLockfile("app", "egg")
	lock.Upsert(&LockedPackage{Name: "math", Version: "v1.0.0@abc123", Source: "git+https://example.com/math.git@abc123"})
	cache, err := parser.NewCache(0)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer cache.Close()
	program, err := NewLoader(manifest, lock, cacheDir, cache).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	val, _ := runLoaded(t, program)
	if num, ok := val.(runtime.NumberValue); !ok || num.Val != 42 {
		t.Fatalf("expected 42, got %#v", val)
	}
}

func TestLoaderReportsSyntaxErrorsWithPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken.egg"), `define(x, `)
	writeFile(t, filepath.Join(root, "main.egg"), `x`)
	writeFile(t, filepath.Join(root, ManifestName), `
name: app
main: main.egg
prelude: broken.egg
`)
	manifest, err := LoadManifest(filepath.Join(root, ManifestName))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	_, err = NewLoader(manifest, nil, "", nil).Load()
	if !langerr.Is(err, langerr.SyntaxError) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken.egg") {
		t.Fatalf("error should name the file: %v", err)
	}
}

func TestLoadFilesJoinsFragments(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "a.egg")
	second := filepath.Join(root, "b.egg")
	writeFile(t, first, `do(define(x, 20), # trailing comment`)
	writeFile(t, second, `+(x, 22))`)

	program, err := LoadFiles(first, second)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if len(program.Libraries) != 0 {
		t.Fatalf("expected no libraries")
	}
	val, _ := runLoaded(t, program)
	if num, ok := val.(runtime.NumberValue); !ok || num.Val != 42 {
		t.Fatalf("expected 42, got %#v", val)
	}
}

func TestCacheDirHonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EGG_HOME", dir)
	got, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir: %v", err)
	}
	if got != dir {
		t.Fatalf("CacheDir = %s, want %s", got, dir)
	}
}

func TestSanitizePathSegment(t *testing.T) {
	cases := map[string]string{
		"":            "head",
		"v1.0.0@abc":  "v1.0.0_abc",
		"feature/x-y": "feature_x-y",
		"  main  ":    "main",
	}
	for in, want := range cases {
		if got := SanitizePathSegment(in); got != want {
			t.Fatalf("SanitizePathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
