package manifest

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// pyDepRE splits a requirement line into name and trailing constraint,
// e.g. "Django>=3.2,<4.0" or "requests[security]==2.28.1".
var pyDepRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)(?:\[[^\]]*\])?\s*(.*)$`)

// normalizePyName lowercases and collapses separators per packaging rules,
// so "Django" and "django" merge and match advisory records.
func normalizePyName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// ============================================================================
// requirements.txt
// ============================================================================

// RequirementsParser parses pip requirements files.
type RequirementsParser struct{}

func (p *RequirementsParser) Ecosystem() Ecosystem { return EcosystemPyPI }

func (p *RequirementsParser) Supports(name string) bool {
	return name == "requirements.txt" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

func (p *RequirementsParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var deps []Dependency

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		// URL and VCS requirements carry no comparable version
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		// Strip environment markers and inline comments
		if i := strings.IndexAny(line, ";#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		m := pyDepRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		deps = append(deps, newDependency(EcosystemPyPI, normalizePyName(m[1]), strings.TrimSpace(m[2]), filename))
	}
	return deps, scanner.Err()
}

// ============================================================================
// pyproject.toml
// ============================================================================

// PyprojectParser parses pyproject.toml, covering both PEP 621 project
// tables and Poetry's tool table.
type PyprojectParser struct{}

func (p *PyprojectParser) Ecosystem() Ecosystem      { return EcosystemPyPI }
func (p *PyprojectParser) Supports(name string) bool { return name == "pyproject.toml" }

type pyprojectFile struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
			Group        map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *PyprojectParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var file pyprojectFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var deps []Dependency
	for _, spec := range file.Project.Dependencies {
		if d, ok := parsePythonSpec(spec, filename); ok {
			deps = append(deps, d)
		}
	}
	for _, group := range sortedKeys(file.Project.OptionalDependencies) {
		for _, spec := range file.Project.OptionalDependencies[group] {
			if d, ok := parsePythonSpec(spec, filename); ok {
				d.Dev = true
				deps = append(deps, d)
			}
		}
	}

	deps = append(deps, poetryDeps(file.Tool.Poetry.Dependencies, filename, false)...)
	for _, name := range sortedKeys(file.Tool.Poetry.Group) {
		dev := name == "dev" || name == "test"
		deps = append(deps, poetryDeps(file.Tool.Poetry.Group[name].Dependencies, filename, dev)...)
	}
	return deps, nil
}

// poetryDeps handles Poetry's dependency table, where a value is either a
// constraint string or an inline table with a "version" key.
func poetryDeps(table map[string]any, filename string, dev bool) []Dependency {
	var deps []Dependency
	for _, name := range sortedKeys(table) {
		if strings.EqualFold(name, "python") {
			continue
		}
		constraint := ""
		switch v := table[name].(type) {
		case string:
			constraint = v
		case map[string]any:
			if s, ok := v["version"].(string); ok {
				constraint = s
			}
		}
		d := newDependency(EcosystemPyPI, normalizePyName(name), constraint, filename)
		d.Dev = dev
		deps = append(deps, d)
	}
	return deps
}

// parsePythonSpec splits a PEP 508 requirement string.
func parsePythonSpec(spec, filename string) (Dependency, bool) {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, ";"); i >= 0 {
		spec = strings.TrimSpace(spec[:i])
	}
	m := pyDepRE.FindStringSubmatch(spec)
	if m == nil {
		return Dependency{}, false
	}
	return newDependency(EcosystemPyPI, normalizePyName(m[1]), strings.TrimSpace(m[2]), filename), true
}

// ============================================================================
// Pipfile
// ============================================================================

// PipfileParser parses Pipenv manifests.
type PipfileParser struct{}

func (p *PipfileParser) Ecosystem() Ecosystem      { return EcosystemPyPI }
func (p *PipfileParser) Supports(name string) bool { return name == "Pipfile" }

type pipfileFile struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

func (p *PipfileParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var file pipfileFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var deps []Dependency
	deps = append(deps, pipfileSection(file.Packages, filename, false)...)
	deps = append(deps, pipfileSection(file.DevPackages, filename, true)...)
	return deps, nil
}

func pipfileSection(section map[string]any, filename string, dev bool) []Dependency {
	var deps []Dependency
	for _, name := range sortedKeys(section) {
		constraint := ""
		switch v := section[name].(type) {
		case string:
			if v != "*" {
				constraint = v
			}
		case map[string]any:
			if s, ok := v["version"].(string); ok && s != "*" {
				constraint = s
			}
		}
		d := newDependency(EcosystemPyPI, normalizePyName(name), constraint, filename)
		d.Dev = dev
		deps = append(deps, d)
	}
	return deps
}
