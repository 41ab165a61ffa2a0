package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockfileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockfileName)

	lock := NewLockfile("egg-demo", "egg 0.0.0-test")
	lock.Upsert(&LockedPackage{Name: "zeta", Version: "v2@abc", Source: "git+/tmp/zeta@abc", Checksum: "11"})
	lock.Upsert(&LockedPackage{Name: "alpha", Version: "def", Source: "git+/tmp/alpha@def", Checksum: "22"})

	if err := WriteLockfile(lock, path); err != nil {
		t.Fatalf("WriteLockfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lockfile: %v", err)
	}
	if !strings.Contains(string(data), "root: egg_demo") {
		t.Fatalf("lockfile missing root:\n%s", data)
	}

	loaded, err := LoadLockfile(path)
	if err != nil {
		t.Fatalf("LoadLockfile: %v", err)
	}
	if loaded.Tool != "egg 0.0.0-test" {
		t.Fatalf("Tool = %q", loaded.Tool)
	}
	if len(loaded.Packages) != 2 || loaded.Packages[0].Name != "alpha" || loaded.Packages[1].Name != "zeta" {
		t.Fatalf("packages not sorted: %#v", loaded.Packages)
	}
	zeta := loaded.Find("zeta")
	if zeta == nil || zeta.Version != "v2@abc" || zeta.Checksum != "11" {
		t.Fatalf("zeta entry unexpected: %#v", zeta)
	}
}

func TestLockfileUpsertReportsChanges(t *testing.T) {
	lock := NewLockfile("demo", "egg")
	pkg := &LockedPackage{Name: "math", Version: "abc", Source: "git+x@abc", Checksum: "1"}
	if !lock.Upsert(pkg) {
		t.Fatalf("first upsert should change the lockfile")
	}
	same := *pkg
	if lock.Upsert(&same) {
		t.Fatalf("identical upsert should not change the lockfile")
	}
	if !lock.Upsert(&LockedPackage{Name: "math", Version: "def", Source: "git+x@def", Checksum: "2"}) {
		t.Fatalf("new version should change the lockfile")
	}
	if got := lock.Find("math"); got == nil || got.Version != "def" {
		t.Fatalf("Find returned %#v", got)
	}
	if len(lock.Packages) != 1 {
		t.Fatalf("expected a single entry, got %#v", lock.Packages)
	}
}

func TestLockfilePrune(t *testing.T) {
	lock := NewLockfile("demo", "egg")
	lock.Upsert(&LockedPackage{Name: "keep"})
	lock.Upsert(&LockedPackage{Name: "drop"})
	if !lock.Prune([]string{"keep"}) {
		t.Fatalf("expected prune to report a change")
	}
	if lock.Find("drop") != nil || lock.Find("keep") == nil {
		t.Fatalf("unexpected packages after prune: %#v", lock.Packages)
	}
	if lock.Prune([]string{"keep"}) {
		t.Fatalf("second prune should be a no-op")
	}
}

func TestLoadLockfileRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockfileName)
	if err := os.WriteFile(path, []byte("root: demo\nextra: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadLockfile(path); err == nil {
		t.Fatal("expected parse error for unknown field")
	}
}
