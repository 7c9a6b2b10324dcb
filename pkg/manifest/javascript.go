package manifest

import "encoding/json"

// PackageJSONParser parses npm package.json manifests.
type PackageJSONParser struct{}

func (p *PackageJSONParser) Ecosystem() Ecosystem      { return EcosystemNPM }
func (p *PackageJSONParser) Supports(name string) bool { return name == "package.json" }

type packageJSONFile struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *PackageJSONParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var file packageJSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	var deps []Dependency
	for _, name := range sortedKeys(file.Dependencies) {
		deps = append(deps, newDependency(EcosystemNPM, name, file.Dependencies[name], filename))
	}
	for _, name := range sortedKeys(file.DevDependencies) {
		d := newDependency(EcosystemNPM, name, file.DevDependencies[name], filename)
		d.Dev = true
		deps = append(deps, d)
	}
	return deps, nil
}
