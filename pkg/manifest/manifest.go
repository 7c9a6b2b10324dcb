// Package manifest extracts declared dependencies and the primary framework
// from repository manifest files. Each ecosystem has its own parser; a
// repository containing manifests from several ecosystems gets the union of
// all parse results. Parsers never see the network: they work on raw file
// contents handed in by the caller.
package manifest

import (
	"path/filepath"
	"sort"

	"github.com/parkerhq/fleetaudit/pkg/version"
)

// Ecosystem identifies a package-manager domain, using the advisory feed's
// ecosystem names so dependencies can be queried without translation.
type Ecosystem string

const (
	EcosystemPyPI      Ecosystem = "PyPI"
	EcosystemPackagist Ecosystem = "Packagist"
	EcosystemGo        Ecosystem = "Go"
	EcosystemNPM       Ecosystem = "npm"
)

// Dependency is one declared dependency from a manifest file.
// Within a repository, identity is (Ecosystem, Name); duplicates across
// manifest files are merged by mergeDependencies.
type Dependency struct {
	Ecosystem  Ecosystem          `json:"ecosystem"`
	Name       string             `json:"name"`
	Constraint version.Constraint `json:"-"`
	// ConstraintRaw mirrors Constraint.Raw for serialization.
	ConstraintRaw string `json:"constraint"`
	Source        string `json:"source"`
	Dev           bool   `json:"dev,omitempty"`
	Indirect      bool   `json:"indirect,omitempty"`
}

// Framework is the detected primary framework of a repository.
type Framework struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ParseFailure records a manifest file that could not be parsed.
// Failures never abort sibling manifests.
type ParseFailure struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// Result is the outcome of parsing all manifests of one repository.
type Result struct {
	Dependencies []Dependency   `json:"dependencies"`
	Framework    *Framework     `json:"framework,omitempty"`
	Failures     []ParseFailure `json:"parse_failures,omitempty"`
}

// Ecosystems returns the distinct ecosystems present in the result,
// in first-seen order.
func (r *Result) Ecosystems() []Ecosystem {
	seen := make(map[Ecosystem]bool)
	var out []Ecosystem
	for _, d := range r.Dependencies {
		if !seen[d.Ecosystem] {
			seen[d.Ecosystem] = true
			out = append(out, d.Ecosystem)
		}
	}
	return out
}

// Parser extracts dependencies from one manifest format.
type Parser interface {
	// Parse extracts dependencies from raw manifest contents.
	Parse(filename string, data []byte) ([]Dependency, error)
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Ecosystem returns the package domain this parser belongs to.
	Ecosystem() Ecosystem
}

// DefaultParsers returns the parsers for every supported ecosystem.
// Lock-file parsers are listed after their manifest counterparts so the
// merge step sees declared constraints before installed versions.
func DefaultParsers() []Parser {
	return []Parser{
		&RequirementsParser{},
		&PyprojectParser{},
		&PipfileParser{},
		&ComposerParser{},
		&ComposerLockParser{},
		&GoModParser{},
		&PackageJSONParser{},
	}
}

// Parse dispatches each file to its parser and unions the results.
// Files are processed in sorted filename order so output is deterministic.
// A file no parser supports is ignored; a file that fails to parse is
// recorded as a failure and contributes zero dependencies.
func Parse(files map[string][]byte, parsers ...Parser) *Result {
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{}
	var all []Dependency
	for _, name := range names {
		p := parserFor(name, parsers)
		if p == nil {
			continue
		}
		deps, err := p.Parse(name, files[name])
		if err != nil {
			res.Failures = append(res.Failures, ParseFailure{File: name, Err: err.Error()})
			continue
		}
		all = append(all, deps...)
	}

	res.Dependencies = mergeDependencies(all)
	res.Framework = detectFramework(res.Dependencies)
	return res
}

func parserFor(filename string, parsers []Parser) Parser {
	base := filepath.Base(filename)
	for _, p := range parsers {
		if p.Supports(base) {
			return p
		}
	}
	return nil
}

// newDependency builds a Dependency, parsing its constraint once.
func newDependency(eco Ecosystem, name, constraint, source string) Dependency {
	return Dependency{
		Ecosystem:     eco,
		Name:          name,
		Constraint:    version.ParseConstraint(constraint),
		ConstraintRaw: constraint,
		Source:        source,
	}
}
