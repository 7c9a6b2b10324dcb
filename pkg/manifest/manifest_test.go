package manifest

import (
	"testing"
)

func depByName(t *testing.T, deps []Dependency, eco Ecosystem, name string) Dependency {
	t.Helper()
	for _, d := range deps {
		if d.Ecosystem == eco && d.Name == name {
			return d
		}
	}
	t.Fatalf("dependency %s/%s not found in %v", eco, name, deps)
	return Dependency{}
}

func TestRequirementsParser(t *testing.T) {
	data := []byte(`# production deps
Django==3.2.0
requests>=2.0,<3.0
flask  # inline comment
celery[redis]==5.2.7
-r other.txt
git+https://github.com/acme/private.git
pytest ; python_version >= "3.8"
`)
	deps, err := (&RequirementsParser{}).Parse("requirements.txt", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(deps) != 5 {
		t.Fatalf("expected 5 dependencies, got %d: %v", len(deps), deps)
	}

	django := depByName(t, deps, EcosystemPyPI, "django")
	if !django.Constraint.Exact || django.Constraint.Version.String() != "3.2.0" {
		t.Errorf("django constraint = %+v, want exact 3.2.0", django.Constraint)
	}

	requests := depByName(t, deps, EcosystemPyPI, "requests")
	if requests.Constraint.Exact {
		t.Error("range constraint should not be exact")
	}
	if requests.ConstraintRaw != ">=2.0,<3.0" {
		t.Errorf("requests raw = %q", requests.ConstraintRaw)
	}

	flask := depByName(t, deps, EcosystemPyPI, "flask")
	if flask.ConstraintRaw != "" {
		t.Errorf("bare requirement should have empty constraint, got %q", flask.ConstraintRaw)
	}

	depByName(t, deps, EcosystemPyPI, "celery")
	depByName(t, deps, EcosystemPyPI, "pytest")
}

func TestPyprojectParser(t *testing.T) {
	data := []byte(`
[project]
name = "svc"
dependencies = ["fastapi>=0.100", "uvicorn==0.23.1"]

[tool.poetry.dependencies]
python = "^3.11"
httpx = "^0.24"
pydantic = { version = "2.1.0", extras = ["email"] }

[tool.poetry.group.dev.dependencies]
pytest = "^7.0"
`)
	deps, err := (&PyprojectParser{}).Parse("pyproject.toml", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	depByName(t, deps, EcosystemPyPI, "fastapi")
	uvicorn := depByName(t, deps, EcosystemPyPI, "uvicorn")
	if !uvicorn.Constraint.Exact {
		t.Error("uvicorn should be exact")
	}
	pydantic := depByName(t, deps, EcosystemPyPI, "pydantic")
	if pydantic.ConstraintRaw != "2.1.0" {
		t.Errorf("pydantic constraint = %q, want 2.1.0", pydantic.ConstraintRaw)
	}
	py := depByName(t, deps, EcosystemPyPI, "pytest")
	if !py.Dev {
		t.Error("dev group dependency should be marked dev")
	}
	for _, d := range deps {
		if d.Name == "python" {
			t.Error("python itself should not be listed as a dependency")
		}
	}
}

func TestPipfileParser(t *testing.T) {
	data := []byte(`
[packages]
requests = "*"
django = "==4.2"

[dev-packages]
black = { version = "==23.1.0" }
`)
	deps, err := (&PipfileParser{}).Parse("Pipfile", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	requests := depByName(t, deps, EcosystemPyPI, "requests")
	if requests.ConstraintRaw != "" {
		t.Errorf("wildcard should normalize to unresolved, got %q", requests.ConstraintRaw)
	}
	black := depByName(t, deps, EcosystemPyPI, "black")
	if !black.Dev || !black.Constraint.Exact {
		t.Errorf("black = %+v, want dev exact", black)
	}
}

func TestComposerParser(t *testing.T) {
	data := []byte(`{
		"require": {
			"php": ">=8.1",
			"ext-json": "*",
			"laravel/framework": "^10.0",
			"guzzlehttp/guzzle": "^7.5"
		},
		"require-dev": {
			"phpunit/phpunit": "^10.0"
		}
	}`)
	deps, err := (&ComposerParser{}).Parse("composer.json", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies (php/ext-json skipped), got %d", len(deps))
	}
	phpunit := depByName(t, deps, EcosystemPackagist, "phpunit/phpunit")
	if !phpunit.Dev {
		t.Error("require-dev entry should be marked dev")
	}
}

func TestGoModParser(t *testing.T) {
	data := []byte(`module github.com/acme/svc

go 1.22

require (
	github.com/gin-gonic/gin v1.9.1
	golang.org/x/sync v0.5.0 // indirect
)

require github.com/google/uuid v1.6.0
`)
	deps, err := (&GoModParser{}).Parse("go.mod", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies, got %d: %v", len(deps), deps)
	}

	gin := depByName(t, deps, EcosystemGo, "github.com/gin-gonic/gin")
	if !gin.Constraint.Exact || gin.Constraint.Version.String() != "1.9.1" {
		t.Errorf("gin constraint = %+v, want exact 1.9.1", gin.Constraint)
	}
	sync := depByName(t, deps, EcosystemGo, "golang.org/x/sync")
	if !sync.Indirect {
		t.Error("indirect requirement should be flagged")
	}
	uuid := depByName(t, deps, EcosystemGo, "github.com/google/uuid")
	if uuid.Indirect {
		t.Error("single-line require should not be indirect")
	}
}

func TestPackageJSONParser(t *testing.T) {
	data := []byte(`{
		"dependencies": {"react": "^18.2.0", "express": "4.18.2"},
		"devDependencies": {"jest": "^29.0.0"}
	}`)
	deps, err := (&PackageJSONParser{}).Parse("package.json", data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	express := depByName(t, deps, EcosystemNPM, "express")
	if !express.Constraint.Exact {
		t.Error("pinned npm version should be exact")
	}
	jest := depByName(t, deps, EcosystemNPM, "jest")
	if !jest.Dev {
		t.Error("devDependency should be marked dev")
	}
}

func TestParseMergesAcrossManifests(t *testing.T) {
	files := map[string][]byte{
		"composer.json": []byte(`{"require": {"guzzlehttp/guzzle": "^7.5"}}`),
		"composer.lock": []byte(`{"packages": [{"name": "guzzlehttp/guzzle", "version": "7.5.3"}]}`),
	}
	res := Parse(files)
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}

	guzzle := depByName(t, res.Dependencies, EcosystemPackagist, "guzzlehttp/guzzle")
	if !guzzle.Constraint.Exact || guzzle.Constraint.Version.String() != "7.5.3" {
		t.Errorf("lock file version should override declared range, got %+v", guzzle.Constraint)
	}
	if guzzle.Source != "composer.lock" {
		t.Errorf("merged source = %q, want composer.lock", guzzle.Source)
	}
}

func TestMergeMostRestrictive(t *testing.T) {
	a := newDependency(EcosystemPyPI, "django", ">=3.0", "requirements.txt")
	b := newDependency(EcosystemPyPI, "django", "==3.2.0", "requirements-prod.txt")
	c := newDependency(EcosystemPyPI, "django", ">=3.1", "pyproject.toml")

	merged := mergeDependencies([]Dependency{a, b, c})
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged record, got %d", len(merged))
	}
	if !merged[0].Constraint.Exact || merged[0].Constraint.Version.String() != "3.2.0" {
		t.Errorf("exact constraint should win, got %+v", merged[0].Constraint)
	}

	// Between two ranges, the first-declared wins.
	merged = mergeDependencies([]Dependency{a, c})
	if merged[0].ConstraintRaw != ">=3.0" {
		t.Errorf("first-declared range should win, got %q", merged[0].ConstraintRaw)
	}
}

func TestParseFailureIsolation(t *testing.T) {
	files := map[string][]byte{
		"composer.json":    []byte(`{not valid json`),
		"requirements.txt": []byte("django==3.2.0\n"),
	}
	res := Parse(files)

	if len(res.Failures) != 1 || res.Failures[0].File != "composer.json" {
		t.Fatalf("expected one failure for composer.json, got %v", res.Failures)
	}
	if len(res.Dependencies) != 1 {
		t.Fatalf("sibling manifest should still parse, got %v", res.Dependencies)
	}
}

func TestDetectFramework(t *testing.T) {
	tests := []struct {
		name        string
		deps        []Dependency
		wantName    string
		wantVersion string
	}{
		{
			name: "exact framework version",
			deps: []Dependency{
				newDependency(EcosystemPyPI, "requests", "==2.28.0", "requirements.txt"),
				newDependency(EcosystemPyPI, "django", "==3.2.0", "requirements.txt"),
			},
			wantName:    "Django",
			wantVersion: "3.2.0",
		},
		{
			name: "priority order prefers django over flask",
			deps: []Dependency{
				newDependency(EcosystemPyPI, "flask", "==2.3.0", "requirements.txt"),
				newDependency(EcosystemPyPI, "django", "==4.2.0", "requirements.txt"),
			},
			wantName:    "Django",
			wantVersion: "4.2.0",
		},
		{
			name: "range version still resolves",
			deps: []Dependency{
				newDependency(EcosystemPyPI, "flask", ">=2.3", "requirements.txt"),
			},
			wantName:    "Flask",
			wantVersion: "2.3",
		},
		{
			name: "resolvable version beats earlier unversioned entry",
			deps: []Dependency{
				newDependency(EcosystemPyPI, "django", "", "requirements.txt"),
				newDependency(EcosystemPyPI, "flask", "==2.3.0", "requirements.txt"),
			},
			wantName:    "Flask",
			wantVersion: "2.3.0",
		},
		{
			name: "unversioned framework is a fallback",
			deps: []Dependency{
				newDependency(EcosystemPyPI, "django", "", "requirements.txt"),
			},
			wantName: "Django",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := detectFramework(tt.deps)
			if fw == nil {
				t.Fatal("expected a framework")
			}
			if fw.Name != tt.wantName || fw.Version != tt.wantVersion {
				t.Errorf("got %+v, want %s %s", fw, tt.wantName, tt.wantVersion)
			}
		})
	}

	if fw := detectFramework([]Dependency{
		newDependency(EcosystemPyPI, "requests", "==2.28.0", "requirements.txt"),
	}); fw != nil {
		t.Errorf("expected no framework, got %+v", fw)
	}
}
