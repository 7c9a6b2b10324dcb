package advisory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/parkerhq/fleetaudit/pkg/manifest"
	"github.com/parkerhq/fleetaudit/pkg/version"
)

// fakeSource records how often each query key is looked up.
type fakeSource struct {
	mu        sync.Mutex
	calls     map[string]int
	responses map[string][]Advisory
	failKeys  map[string]bool
	err       error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:     make(map[string]int),
		responses: make(map[string][]Advisory),
		failKeys:  make(map[string]bool),
	}
}

func (f *fakeSource) QueryBatch(ctx context.Context, queries []Query) (map[string][]Advisory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]Advisory)
	for _, q := range queries {
		key := q.Key()
		f.calls[key]++
		if f.failKeys[key] {
			continue
		}
		out[key] = f.responses[key]
	}
	return out, nil
}

func dep(eco manifest.Ecosystem, name, constraint string) manifest.Dependency {
	return manifest.Dependency{
		Ecosystem:     eco,
		Name:          name,
		Constraint:    version.ParseConstraint(constraint),
		ConstraintRaw: constraint,
	}
}

func TestBuildSnapshotDeduplicatesAcrossRun(t *testing.T) {
	source := newFakeSource()
	c := NewCorrelator(source, CorrelatorOptions{Workers: 2, BatchSize: 2})

	// The same dependency declared by three repositories.
	deps := []manifest.Dependency{
		dep(manifest.EcosystemPyPI, "django", "==3.2.0"),
		dep(manifest.EcosystemPyPI, "django", "==3.2.0"),
		dep(manifest.EcosystemPyPI, "django", "==3.2.0"),
		dep(manifest.EcosystemPyPI, "requests", ">=2.0,<3.0"),
	}
	snap := c.BuildSnapshot(context.Background(), deps)

	if snap.QueryCount() != 2 {
		t.Errorf("expected 2 distinct queries, got %d", snap.QueryCount())
	}
	for key, n := range source.calls {
		if n != 1 {
			t.Errorf("query %s looked up %d times, want exactly once", key, n)
		}
	}

	// Same name with a different constraint is a distinct lookup.
	deps = append(deps, dep(manifest.EcosystemPyPI, "django", ">=4.0"))
	source2 := newFakeSource()
	snap = NewCorrelator(source2, CorrelatorOptions{}).BuildSnapshot(context.Background(), deps)
	if snap.QueryCount() != 3 {
		t.Errorf("expected 3 distinct queries, got %d", snap.QueryCount())
	}
}

func TestCorrelateResolution(t *testing.T) {
	django := dep(manifest.EcosystemPyPI, "django", "==3.2.0")
	requests := dep(manifest.EcosystemPyPI, "requests", ">=2.0,<3.0")
	safe := dep(manifest.EcosystemPyPI, "click", "==8.1.0")

	source := newFakeSource()
	source.responses[queryFor(django).Key()] = []Advisory{{
		ID:        "PYSEC-2021-1",
		Ecosystem: manifest.EcosystemPyPI,
		Package:   "django",
		Severity:  SeverityHigh,
		Ranges:    []version.Range{{Fixed: version.MustParse("3.2.5")}},
	}}
	source.responses[queryFor(requests).Key()] = []Advisory{{
		ID:        "PYSEC-2022-9",
		Ecosystem: manifest.EcosystemPyPI,
		Package:   "requests",
		Severity:  SeverityMedium,
		Ranges:    []version.Range{version.PointRange(version.MustParse("2.5.1"))},
	}}
	source.responses[queryFor(safe).Key()] = nil

	c := NewCorrelator(source, CorrelatorOptions{})
	snap := c.BuildSnapshot(context.Background(), []manifest.Dependency{django, requests, safe})
	matches := Correlate(snap, []manifest.Dependency{django, requests, safe})

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	var djangoMatch, requestsMatch *Match
	for i := range matches {
		switch matches[i].Dependency.Name {
		case "django":
			djangoMatch = &matches[i]
		case "requests":
			requestsMatch = &matches[i]
		}
	}

	if djangoMatch == nil || len(djangoMatch.Definite) != 1 || len(djangoMatch.Potential) != 0 {
		t.Errorf("exact version inside range should be definite: %+v", djangoMatch)
	}
	if djangoMatch != nil && djangoMatch.Definite[0].Severity != SeverityHigh {
		t.Errorf("severity should be recorded as-is, got %s", djangoMatch.Definite[0].Severity)
	}
	if requestsMatch == nil || len(requestsMatch.Potential) != 1 || len(requestsMatch.Definite) != 0 {
		t.Errorf("range overlapping a point release should be potential: %+v", requestsMatch)
	}
}

func TestCorrelateNoOverlapNoMatch(t *testing.T) {
	pinned := dep(manifest.EcosystemPyPI, "django", "==4.2.0")

	source := newFakeSource()
	source.responses[queryFor(pinned).Key()] = []Advisory{{
		ID:       "PYSEC-2021-1",
		Severity: SeverityHigh,
		Ranges:   []version.Range{{Fixed: version.MustParse("3.2.5")}},
	}}

	snap := NewCorrelator(source, CorrelatorOptions{}).BuildSnapshot(context.Background(), []manifest.Dependency{pinned})
	matches := Correlate(snap, []manifest.Dependency{pinned})
	if len(matches) != 0 {
		t.Errorf("version outside affected range should not match: %+v", matches)
	}
}

func TestFailedLookupIsUnknownNotClean(t *testing.T) {
	good := dep(manifest.EcosystemPyPI, "flask", "==2.3.0")
	bad := dep(manifest.EcosystemPyPI, "django", "==3.2.0")

	source := newFakeSource()
	source.responses[queryFor(good).Key()] = nil
	source.failKeys[queryFor(bad).Key()] = true

	snap := NewCorrelator(source, CorrelatorOptions{}).BuildSnapshot(context.Background(), []manifest.Dependency{good, bad})

	if _, ok := snap.Lookup(good); !ok {
		t.Error("sibling query in the same batch should still resolve")
	}
	if _, ok := snap.Lookup(bad); ok {
		t.Error("failed lookup should not appear resolved")
	}

	matches := Correlate(snap, []manifest.Dependency{good, bad})
	if len(matches) != 1 || matches[0].Status != StatusUnknown {
		t.Errorf("failed lookup should yield an unknown-status match: %+v", matches)
	}
}

func TestBuildSnapshotTotalFailure(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("service down")

	deps := []manifest.Dependency{dep(manifest.EcosystemPyPI, "django", "==3.2.0")}
	snap := NewCorrelator(source, CorrelatorOptions{}).BuildSnapshot(context.Background(), deps)

	if _, ok := snap.Lookup(deps[0]); ok {
		t.Error("lookup should fail when the service is down")
	}
	matches := Correlate(snap, deps)
	if len(matches) != 1 || matches[0].Status != StatusUnknown {
		t.Errorf("expected unknown status, got %+v", matches)
	}
}

func TestSummarize(t *testing.T) {
	matches := []Match{
		{
			Definite: []Advisory{
				{Severity: SeverityHigh},
				{Severity: SeverityMedium},
			},
		},
		{
			Potential: []Advisory{{Severity: SeverityCritical}},
		},
		{Status: StatusUnknown},
	}
	s := Summarize(matches)

	if s.TotalDefinite != 2 || s.TotalPotential != 1 {
		t.Errorf("totals = %d/%d, want 2/1", s.TotalDefinite, s.TotalPotential)
	}
	if s.HighestSeverity != SeverityCritical {
		t.Errorf("highest severity = %s, want critical", s.HighestSeverity)
	}
	if s.DefiniteBySeverity[SeverityHigh] != 1 || s.DefiniteBySeverity[SeverityMedium] != 1 {
		t.Errorf("definite by severity = %v", s.DefiniteBySeverity)
	}
	if s.UnknownDeps != 1 {
		t.Errorf("unknown deps = %d, want 1", s.UnknownDeps)
	}

	empty := Summarize(nil)
	if empty.HighestSeverity != SeverityUnknown {
		t.Errorf("empty summary severity = %s", empty.HighestSeverity)
	}
}
