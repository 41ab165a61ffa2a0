package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the project file looked up by FindManifest.
const ManifestName = "egg.yml"

// ErrManifestNotFound is returned when no egg.yml exists in a directory or
// any of its parents.
var ErrManifestNotFound = errors.New("egg.yml not found")

// Manifest represents the parsed contents of egg.yml.
type Manifest struct {
	Path    string
	Name    string
	Version string
	// Main lists the program fragments, joined in order.
	Main []string
	// Prelude lists library files evaluated before Main.
	Prelude      []string
	Limits       Limits
	Dependencies map[string]*DependencySpec
	// DependencyOrder preserves the order dependencies appear in the file.
	DependencyOrder []string
}

// Limits bounds a manifest program's evaluation.
type Limits struct {
	MaxDepth int
	MaxSteps int
	Timeout  time.Duration
}

// DependencySpec describes a library pulled from git or a local path.
type DependencySpec struct {
	Git    string
	Rev    string
	Tag    string
	Branch string
	Path   string
	// Files are evaluated in order, relative to the dependency root.
	Files []string
}

// IsGit reports whether the dependency is fetched from a git remote.
func (d *DependencySpec) IsGit() bool {
	return d != nil && d.Git != ""
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// FindManifest walks from start towards the filesystem root looking for
// egg.yml.
func FindManifest(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve %s: %w", start, err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrManifestNotFound
		}
		dir = parent
	}
}

// LoadManifest parses egg.yml from disk, returning a validated manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Dir returns the directory holding the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	if len(m.Main) == 0 {
		errs.Issues = append(errs.Issues, "main must list at least one source file")
	}
	if m.Limits.MaxSteps < 0 {
		errs.Issues = append(errs.Issues, "limits.max_steps must not be negative")
	}
	if m.Limits.Timeout < 0 {
		errs.Issues = append(errs.Issues, "limits.timeout must not be negative")
	}
	for _, name := range m.DependencyOrder {
		if !validDependencyName(name) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: name must not contain path separators or \"..\"", name))
		}
		for _, issue := range m.Dependencies[name].validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: %s", name, issue))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (d *DependencySpec) validate() []string {
	var errs []string
	if d == nil {
		return []string{"must be a mapping"}
	}
	switch {
	case d.Git != "" && d.Path != "":
		errs = append(errs, "cannot specify both git and path")
	case d.Git == "" && d.Path == "":
		errs = append(errs, "must specify git or path")
	}
	pins := 0
	for _, pin := range []string{d.Rev, d.Tag, d.Branch} {
		if pin != "" {
			pins++
		}
	}
	if d.Git != "" && pins == 0 {
		errs = append(errs, "git dependencies require rev, tag, or branch")
	}
	if pins > 1 {
		errs = append(errs, "only one of rev, tag, or branch may be set")
	}
	if d.Path != "" && pins > 0 {
		errs = append(errs, "path dependencies cannot pin a revision")
	}
	if len(d.Files) == 0 {
		errs = append(errs, "files must list at least one source file")
	}
	for _, file := range d.Files {
		if filepath.IsAbs(file) || escapesRoot(file) {
			errs = append(errs, fmt.Sprintf("file %q must stay inside the dependency", file))
		}
	}
	return errs
}

type manifestFile struct {
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	Main         stringList    `yaml:"main"`
	Prelude      stringList    `yaml:"prelude"`
	Limits       limitsYAML    `yaml:"limits"`
	Dependencies dependencyMap `yaml:"dependencies"`
}

type limitsYAML struct {
	MaxDepth int      `yaml:"max_depth"`
	MaxSteps int      `yaml:"max_steps"`
	Timeout  duration `yaml:"timeout"`
}

// duration accepts Go duration strings such as "250ms" or "5s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("manifest: expected duration string but found %s", value.ShortTag())
	}
	text := strings.TrimSpace(value.Value)
	if text == "" || value.Tag == "!!null" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("manifest: invalid duration %q: %w", text, err)
	}
	*d = duration(parsed)
	return nil
}

type dependencyMap struct {
	items []dependencyEntry
}

type dependencyEntry struct {
	name string
	spec *DependencySpec
}

type stringList []string

func (mf manifestFile) toManifest(path string) *Manifest {
	result := &Manifest{
		Path:    path,
		Name:    sanitizeSegment(mf.Name),
		Version: strings.TrimSpace(mf.Version),
		Main:    mf.Main.Clone(),
		Prelude: mf.Prelude.Clone(),
		Limits: Limits{
			MaxDepth: mf.Limits.MaxDepth,
			MaxSteps: mf.Limits.MaxSteps,
			Timeout:  time.Duration(mf.Limits.Timeout),
		},
		Dependencies:    make(map[string]*DependencySpec, len(mf.Dependencies.items)),
		DependencyOrder: make([]string, 0, len(mf.Dependencies.items)),
	}
	for _, item := range mf.Dependencies.items {
		name := sanitizeSegment(item.name)
		if _, exists := result.Dependencies[name]; !exists {
			result.DependencyOrder = append(result.DependencyOrder, name)
		}
		result.Dependencies[name] = item.spec.clone()
	}
	return result
}

func (d *DependencySpec) clone() *DependencySpec {
	if d == nil {
		return nil
	}
	copy := *d
	if len(d.Files) > 0 {
		copy.Files = append([]string{}, d.Files...)
	}
	return &copy
}

func (l stringList) Clone() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*l = nil
			return nil
		}
		*l = stringList{strings.TrimSpace(value.Value)}
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			items = append(items, str)
		}
		*l = stringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("manifest: expected string or sequence for list but found %s", value.ShortTag())
	}
}

func (dm *dependencyMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		dm.items = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("manifest: dependencies must be a mapping")
	}
	items := make([]dependencyEntry, 0, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("manifest: dependency names must be non-empty")
		}
		var dep DependencySpec
		if err := dep.unmarshalYAML(valNode); err != nil {
			return fmt.Errorf("manifest: dependency %q: %w", key, err)
		}
		items = append(items, dependencyEntry{name: key, spec: &dep})
	}
	dm.items = items
	return nil
}

// dependencyFields lists the keys a dependency mapping may use. Nested nodes
// are decoded without the top-level decoder's KnownFields check.
var dependencyFields = map[string]struct{}{
	"git": {}, "rev": {}, "tag": {}, "branch": {}, "path": {}, "files": {},
}

func (d *DependencySpec) unmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			if _, ok := dependencyFields[key]; !ok {
				return fmt.Errorf("line %d: field %s not found in dependency", value.Content[i].Line, key)
			}
		}
		var raw struct {
			Git    string     `yaml:"git"`
			Rev    string     `yaml:"rev"`
			Tag    string     `yaml:"tag"`
			Branch string     `yaml:"branch"`
			Path   string     `yaml:"path"`
			Files  stringList `yaml:"files"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*d = DependencySpec{
			Git:    strings.TrimSpace(raw.Git),
			Rev:    strings.TrimSpace(raw.Rev),
			Tag:    strings.TrimSpace(raw.Tag),
			Branch: strings.TrimSpace(raw.Branch),
			Path:   strings.TrimSpace(raw.Path),
			Files:  raw.Files.Clone(),
		}
		return nil
	case yaml.AliasNode:
		return d.unmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("expected mapping, found %s", value.ShortTag())
	}
}

// validDependencyName reports whether name is usable as a single directory
// under the dependency cache.
func validDependencyName(name string) bool {
	if name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func escapesRoot(rel string) bool {
	clean := filepath.ToSlash(filepath.Clean(rel))
	return clean == ".." || strings.HasPrefix(clean, "../")
}

func sanitizeSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	seg = strings.ReplaceAll(seg, "-", "_")
	return seg
}
