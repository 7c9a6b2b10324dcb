package manifest

import "github.com/parkerhq/fleetaudit/pkg/version"

// frameworkTable lists known framework packages per ecosystem in priority
// order. Detection takes the first table entry found among a repository's
// dependencies with a resolvable version.
var frameworkTable = map[Ecosystem][]struct {
	pkg     string
	display string
}{
	EcosystemPyPI: {
		{"django", "Django"},
		{"flask", "Flask"},
		{"fastapi", "FastAPI"},
		{"tornado", "Tornado"},
	},
	EcosystemPackagist: {
		{"laravel/framework", "Laravel"},
		{"symfony/framework-bundle", "Symfony"},
	},
	EcosystemGo: {
		{"github.com/gin-gonic/gin", "Gin"},
		{"github.com/labstack/echo/v4", "Echo"},
		{"github.com/gorilla/mux", "Gorilla"},
		{"github.com/gofiber/fiber/v2", "Fiber"},
		{"github.com/go-chi/chi/v5", "Chi"},
	},
	EcosystemNPM: {
		{"next", "Next.js"},
		{"react", "React"},
		{"vue", "Vue"},
		{"express", "Express"},
	},
}

// detectFramework returns the repository's primary framework, or nil.
// Entries with a resolvable version win over entries without one; ties are
// broken by table order, then by the ecosystem order of the dependency list.
func detectFramework(deps []Dependency) *Framework {
	byKey := make(map[string]Dependency, len(deps))
	for _, d := range deps {
		byKey[string(d.Ecosystem)+"/"+d.Name] = d
	}

	var fallback *Framework
	for _, eco := range ecosystemOrder(deps) {
		for _, entry := range frameworkTable[eco] {
			d, ok := byKey[string(eco)+"/"+entry.pkg]
			if !ok {
				continue
			}
			if v := resolvableVersion(d.Constraint); v != "" {
				return &Framework{Name: entry.display, Version: v}
			}
			if fallback == nil {
				fallback = &Framework{Name: entry.display}
			}
		}
	}
	return fallback
}

// resolvableVersion extracts a concrete version from a constraint: the
// pinned version for exact constraints, otherwise the numeric core of the
// declared range (">=3.2,<4.0" resolves to "3.2").
func resolvableVersion(c version.Constraint) string {
	if c.Exact {
		return c.Version.String()
	}
	if v, err := version.Parse(c.Raw); err == nil {
		return v.String()
	}
	return ""
}

func ecosystemOrder(deps []Dependency) []Ecosystem {
	seen := make(map[Ecosystem]bool)
	var out []Ecosystem
	for _, d := range deps {
		if !seen[d.Ecosystem] {
			seen[d.Ecosystem] = true
			out = append(out, d.Ecosystem)
		}
	}
	return out
}
