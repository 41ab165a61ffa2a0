package driver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadManifestBasic(t *testing.T) {
	path := writeManifest(t, `
name: egg-demo
version: "0.1.0"
main:
  - src/head.egg
  - src/tail.egg
prelude: lib/util.egg
limits:
  max_depth: 500
  max_steps: 100000
  timeout: 2s
dependencies:
  math:
    git: https://github.com/example/egg-math.git
    tag: v1.0.0
    files: [math.egg]
  local-lib:
    path: ../local
    files:
      - a.egg
      - b.egg
`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}

	if got, want := manifest.Name, "egg_demo"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
	if got := manifest.Version; got != "0.1.0" {
		t.Fatalf("Version = %q, want 0.1.0", got)
	}
	if got := strings.Join(manifest.Main, ","); got != "src/head.egg,src/tail.egg" {
		t.Fatalf("Main unexpected: %s", got)
	}
	if len(manifest.Prelude) != 1 || manifest.Prelude[0] != "lib/util.egg" {
		t.Fatalf("Prelude unexpected: %#v", manifest.Prelude)
	}
	if manifest.Limits.MaxDepth != 500 || manifest.Limits.MaxSteps != 100000 || manifest.Limits.Timeout != 2*time.Second {
		t.Fatalf("Limits unexpected: %#v", manifest.Limits)
	}

	math := manifest.Dependencies["math"]
	if math == nil || !math.IsGit() || math.Tag != "v1.0.0" || len(math.Files) != 1 {
		t.Fatalf("git dependency not parsed: %#v", math)
	}
	local := manifest.Dependencies["local_lib"]
	if local == nil || local.Path != "../local" || strings.Join(local.Files, ",") != "a.egg,b.egg" {
		t.Fatalf("path dependency not parsed: %#v", local)
	}
	if got := strings.Join(manifest.DependencyOrder, ","); got != "math,local_lib" {
		t.Fatalf("DependencyOrder unexpected: %s", got)
	}
}

func TestLoadManifestMainShorthand(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
`)
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if len(manifest.Main) != 1 || manifest.Main[0] != "main.egg" {
		t.Fatalf("Main unexpected: %#v", manifest.Main)
	}
	if manifest.Limits != (Limits{}) {
		t.Fatalf("expected zero limits, got %#v", manifest.Limits)
	}
}

func TestLoadManifestValidation(t *testing.T) {
	path := writeManifest(t, `
name: ""
limits:
  max_steps: -1
dependencies:
  util: {}
  both:
    git: https://example.com/both.git
    path: ../both
    files: [x.egg]
  unpinned:
    git: https://example.com/unpinned.git
    files: [x.egg]
  twice:
    git: https://example.com/twice.git
    tag: v1
    branch: main
    files: [x.egg]
`)

	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	msg := err.Error()
	wantFragments := []string{
		"name must be provided",
		"main must list at least one source file",
		"limits.max_steps must not be negative",
		"dependencies.util: must specify git or path",
		"dependencies.util: files must list at least one source file",
		"dependencies.both: cannot specify both git and path",
		"dependencies.unpinned: git dependencies require rev, tag, or branch",
		"dependencies.twice: only one of rev, tag, or branch may be set",
	}
	for _, fragment := range wantFragments {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("validation error missing fragment %q: %s", fragment, msg)
		}
	}
}

func TestLoadManifestRejectsUnknownFields(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
targets:
  app: main.egg
`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadManifestBadTimeout(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
limits:
  timeout: soon
`)
	_, err := LoadManifest(path)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoadManifestEmpty(t *testing.T) {
	path := writeManifest(t, "")
	if _, err := LoadManifest(path); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty manifest error, got %v", err)
	}
}

func TestFindManifestWalksUp(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
`)
	nested := filepath.Join(filepath.Dir(path), "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	found, err := FindManifest(nested)
	if err != nil {
		t.Fatalf("FindManifest: %v", err)
	}
	if found != path {
		t.Fatalf("FindManifest = %s, want %s", found, path)
	}
}

func TestFindManifestMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindManifest(dir); !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifestRejectsUnknownDependencyFields(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
dependencies:
  math:
    git: https://example.com/math.git
    revision: abc123
    files: [math.egg]
`)
	_, err := LoadManifest(path)
	if err == nil || !strings.Contains(err.Error(), "revision") {
		t.Fatalf("expected unknown dependency field error, got %v", err)
	}
}

func TestLoadManifestRejectsEscapingDependencies(t *testing.T) {
	path := writeManifest(t, `
name: demo
main: main.egg
dependencies:
  ../../outside:
    path: ../lib
    files: [lib.egg]
  nested/name:
    path: ../lib
    files: [lib.egg]
  math:
    git: https://example.com/math.git
    tag: v1
    files: [../../../etc/passwd]
`)
	_, err := LoadManifest(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{
		"dependencies.../../outside: name must not contain path separators",
		"dependencies.nested/name: name must not contain path separators",
		`dependencies.math: file "../../../etc/passwd" must stay inside the dependency`,
	} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("validation error missing fragment %q: %s", fragment, msg)
		}
	}
}
