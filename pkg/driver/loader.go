package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"egg/interpreter-go/pkg/ast"
	"egg/interpreter-go/pkg/parser"
)

// SourceFile is one file read from disk.
type SourceFile struct {
	Path   string
	Source string
}

// Program is a parsed program ready for evaluation. Libraries are complete
// expressions; Main holds the fragments joined into the entry expression.
type Program struct {
	Libraries []*SourceFile
	Main      []*SourceFile
	Limits    Limits

	libraryExprs []ast.Expression
	mainExpr     ast.Expression
}

// Expression returns the program as one tree. With libraries it is
// do(lib1, ..., libN, main) so that library definitions land in the run
// scope; otherwise it is the main expression itself.
func (p *Program) Expression() ast.Expression {
	if len(p.libraryExprs) == 0 {
		return p.mainExpr
	}
	args := make([]ast.Expression, 0, len(p.libraryExprs)+1)
	args = append(args, p.libraryExprs...)
	args = append(args, p.mainExpr)
	return ast.NewApply(ast.NewVariable("do", ast.Span{}), args, ast.Span{})
}

// Fragments returns the main fragments' text in order.
func (p *Program) Fragments() []string {
	out := make([]string, 0, len(p.Main))
	for _, file := range p.Main {
		out = append(out, file.Source)
	}
	return out
}

// Loader reads and parses the files a manifest names.
type Loader struct {
	manifest *Manifest
	lock     *Lockfile
	cacheDir string
	parse    func(string) (ast.Expression, error)
}

// NewLoader builds a loader for manifest. lock may be nil when the manifest
// has no git dependencies. cache may be nil.
func NewLoader(manifest *Manifest, lock *Lockfile, cacheDir string, cache *parser.Cache) *Loader {
	return &Loader{
		manifest: manifest,
		lock:     lock,
		cacheDir: cacheDir,
		parse:    cache.Parse,
	}
}

// Load reads dependency files in manifest order, then the prelude, then the
// main fragments.
func (l *Loader) Load() (*Program, error) {
	if l.manifest == nil {
		return nil, errors.New("loader: nil manifest")
	}
	var libraries []*SourceFile
	for _, name := range l.manifest.DependencyOrder {
		dep := l.manifest.Dependencies[name]
		root, err := l.dependencyRoot(name, dep)
		if err != nil {
			return nil, err
		}
		files, err := readFiles(root, dep.Files)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		libraries = append(libraries, files...)
	}
	prelude, err := readFiles(l.manifest.Dir(), l.manifest.Prelude)
	if err != nil {
		return nil, err
	}
	libraries = append(libraries, prelude...)

	main, err := readFiles(l.manifest.Dir(), l.manifest.Main)
	if err != nil {
		return nil, err
	}
	program, err := assemble(libraries, main, l.parse)
	if err != nil {
		return nil, err
	}
	program.Limits = l.manifest.Limits
	return program, nil
}

func (l *Loader) dependencyRoot(name string, dep *DependencySpec) (string, error) {
	if dep.Path != "" {
		if filepath.IsAbs(dep.Path) {
			return dep.Path, nil
		}
		return filepath.Join(l.manifest.Dir(), dep.Path), nil
	}
	locked := l.lock.Find(name)
	if locked == nil {
		return "", fmt.Errorf("dependency %q is not installed; run `egg deps install`", name)
	}
	if l.cacheDir == "" {
		return "", fmt.Errorf("dependency %q: no cache directory configured", name)
	}
	return DependencyDir(l.cacheDir, name, locked.Version), nil
}

// LoadFiles builds a program from main fragment files alone.
func LoadFiles(paths ...string) (*Program, error) {
	if len(paths) == 0 {
		return nil, errors.New("loader: no source files")
	}
	main, err := readFiles("", paths)
	if err != nil {
		return nil, err
	}
	return assemble(nil, main, parser.Parse)
}

func assemble(libraries, main []*SourceFile, parse func(string) (ast.Expression, error)) (*Program, error) {
	program := &Program{Libraries: libraries, Main: main}
	for _, lib := range libraries {
		expr, err := parse(lib.Source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", lib.Path, err)
		}
		program.libraryExprs = append(program.libraryExprs, expr)
	}
	mainExpr, err := parse(strings.Join(program.Fragments(), "\n"))
	if err != nil {
		if len(main) == 1 {
			return nil, fmt.Errorf("%s: %w", main[0].Path, err)
		}
		return nil, fmt.Errorf("main fragments: %w", err)
	}
	program.mainExpr = mainExpr
	return program, nil
}

func readFiles(base string, paths []string) ([]*SourceFile, error) {
	files := make([]*SourceFile, 0, len(paths))
	for _, path := range paths {
		if base != "" && !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, &SourceFile{Path: path, Source: string(data)})
	}
	return files, nil
}

// CacheDir returns the dependency cache root: $EGG_HOME, or ~/.egg.
func CacheDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv("EGG_HOME")); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".egg"), nil
}

// DependencyDir is where a fetched dependency version is checked out.
func DependencyDir(cacheDir, name, version string) string {
	return filepath.Join(cacheDir, "pkg", "src", sanitizeSegment(name), SanitizePathSegment(version))
}

// SanitizePathSegment maps a revision descriptor to a safe directory name.
func SanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
