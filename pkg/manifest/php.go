package manifest

import (
	"encoding/json"
	"strings"
)

// ============================================================================
// composer.json
// ============================================================================

// ComposerParser parses composer.json manifests. Platform requirements
// ("php" itself and "ext-*" extensions) are not packages and are skipped.
type ComposerParser struct{}

func (p *ComposerParser) Ecosystem() Ecosystem      { return EcosystemPackagist }
func (p *ComposerParser) Supports(name string) bool { return name == "composer.json" }

type composerFile struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

func (p *ComposerParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var file composerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var deps []Dependency
	deps = append(deps, composerSection(file.Require, filename, false)...)
	deps = append(deps, composerSection(file.RequireDev, filename, true)...)
	return deps, nil
}

func composerSection(section map[string]string, filename string, dev bool) []Dependency {
	var deps []Dependency
	for _, name := range sortedKeys(section) {
		if isPlatformPackage(name) {
			continue
		}
		d := newDependency(EcosystemPackagist, strings.ToLower(name), section[name], filename)
		d.Dev = dev
		deps = append(deps, d)
	}
	return deps
}

func isPlatformPackage(name string) bool {
	name = strings.ToLower(name)
	return name == "php" || strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-")
}

// ============================================================================
// composer.lock
// ============================================================================

// ComposerLockParser parses composer.lock files, which record the exact
// installed version of every package. These override the declared ranges
// from composer.json during merging.
type ComposerLockParser struct{}

func (p *ComposerLockParser) Ecosystem() Ecosystem      { return EcosystemPackagist }
func (p *ComposerLockParser) Supports(name string) bool { return name == "composer.lock" }

type composerLockFile struct {
	Packages    []composerLockPackage `json:"packages"`
	PackagesDev []composerLockPackage `json:"packages-dev"`
}

type composerLockPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (p *ComposerLockParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var file composerLockFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var deps []Dependency
	for _, pkg := range file.Packages {
		if isPlatformPackage(pkg.Name) {
			continue
		}
		deps = append(deps, newDependency(EcosystemPackagist, strings.ToLower(pkg.Name), pkg.Version, filename))
	}
	for _, pkg := range file.PackagesDev {
		if isPlatformPackage(pkg.Name) {
			continue
		}
		d := newDependency(EcosystemPackagist, strings.ToLower(pkg.Name), pkg.Version, filename)
		d.Dev = true
		deps = append(deps, d)
	}
	return deps, nil
}
