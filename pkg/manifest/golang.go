package manifest

import (
	"bufio"
	"bytes"
	"strings"
)

// GoModParser parses go.mod files. Module versions are exact by
// construction; requirements marked "// indirect" are transitive.
type GoModParser struct{}

func (p *GoModParser) Ecosystem() Ecosystem      { return EcosystemGo }
func (p *GoModParser) Supports(name string) bool { return name == "go.mod" }

func (p *GoModParser) Parse(filename string, data []byte) ([]Dependency, error) {
	var deps []Dependency
	inRequire := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if strings.HasPrefix(line, "require (") || line == "require(" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}

		var spec string
		switch {
		case inRequire:
			spec = line
		case strings.HasPrefix(line, "require "):
			spec = strings.TrimPrefix(line, "require ")
		default:
			continue
		}

		indirect := false
		if i := strings.Index(spec, "//"); i >= 0 {
			indirect = strings.Contains(spec[i:], "indirect")
			spec = strings.TrimSpace(spec[:i])
		}

		fields := strings.Fields(spec)
		if len(fields) != 2 {
			continue
		}
		d := newDependency(EcosystemGo, fields[0], fields[1], filename)
		d.Indirect = indirect
		deps = append(deps, d)
	}
	return deps, scanner.Err()
}
