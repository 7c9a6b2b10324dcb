package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/metrics"
	"github.com/parkerhq/fleetaudit/pkg/report"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeGateway struct {
	metadataErr map[string]error // keyed by owner/name
}

func (g *fakeGateway) FetchMetadata(_ context.Context, repo hosting.Repository) (*hosting.Metadata, error) {
	if err := g.metadataErr[repo.FullName()]; err != nil {
		return nil, err
	}
	return &hosting.Metadata{Stars: 5, Language: "Python", DefaultBranch: "main"}, nil
}

func (g *fakeGateway) FetchActivity(_ context.Context, _ hosting.Repository, _ time.Duration) (*hosting.Activity, error) {
	return &hosting.Activity{WindowDays: 30, CommitCount: 12}, nil
}

type fakeTracker struct {
	projects []tracker.Project
	listErr  error
}

func (t *fakeTracker) ListProjects(_ context.Context, _ string) ([]tracker.Project, error) {
	return t.projects, t.listErr
}

func (t *fakeTracker) ProjectSummary(_ context.Context, _, slug string, _ time.Duration) (*tracker.IssueSummary, error) {
	return &tracker.IssueSummary{Total: 7, Resolved: 3, Unresolved: 4, AvgResolutionDays: 1.5}, nil
}

type fakeSource struct {
	mu         sync.Mutex
	calls      map[string]int
	advisories map[string][]advisory.Advisory
}

func newFakeSource(advisories map[string][]advisory.Advisory) *fakeSource {
	return &fakeSource{calls: make(map[string]int), advisories: advisories}
}

func (s *fakeSource) QueryBatch(_ context.Context, queries []advisory.Query) (map[string][]advisory.Advisory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]advisory.Advisory, len(queries))
	for _, q := range queries {
		key := q.Key()
		s.calls[key]++
		out[key] = s.advisories[key]
	}
	return out, nil
}

type fakeMetrics struct{ err error }

func (m *fakeMetrics) Analyze(_ context.Context, _ string) (*metrics.Report, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &metrics.Report{TotalLines: 100, EstimatedCost: 42.0}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func quietLogger() *log.Logger {
	l := log.New(os.Stderr)
	l.SetLevel(log.FatalLevel)
	return l
}

func writeCheckout(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func testRunner(source advisory.Source, tc tracker.Client) *Runner {
	var corr *advisory.Correlator
	if source != nil {
		corr = advisory.NewCorrelator(source, advisory.CorrelatorOptions{Logger: quietLogger()})
	}
	return NewRunner(&fakeGateway{}, tc, corr, &fakeMetrics{}, quietLogger())
}

// =============================================================================
// Tests
// =============================================================================

func TestRunHappyPath(t *testing.T) {
	dir := writeCheckout(t, map[string]string{"requirements.txt": "django==3.2.0\n"})

	source := newFakeSource(map[string][]advisory.Advisory{
		"PyPI:django:==3.2.0": {{
			ID:        "GHSA-aaaa",
			Ecosystem: "PyPI",
			Package:   "django",
			Severity:  advisory.SeverityHigh,
		}},
	})
	tc := &fakeTracker{projects: []tracker.Project{{ID: "1", Name: "shop", Slug: "shop"}}}

	runner := testRunner(source, tc)
	repos := []hosting.Repository{{Owner: "acme", Name: "shop", LocalPath: dir}}

	result, err := runner.Run(context.Background(), repos, Options{TrackerOrg: "acme"})
	require.NoError(t, err)
	require.Len(t, result.Repositories, 1)
	assert.NotEmpty(t, result.RunID)

	res := result.Repositories[0]
	assert.False(t, res.Failed)
	assert.Equal(t, result.RunID, res.RunID)
	assert.True(t, res.Metadata.OK())
	assert.True(t, res.Activity.OK())
	require.True(t, res.Manifest.OK())
	assert.Len(t, res.Manifest.Value.Dependencies, 1)

	require.True(t, res.Advisories.OK())
	assert.Equal(t, 1, res.Advisories.Value.TotalDefinite)
	assert.Equal(t, advisory.SeverityHigh, res.Advisories.Value.HighestSeverity)

	assert.Equal(t, tracker.StrategyExact, res.Identity.Strategy)
	require.True(t, res.ErrorTracking.OK())
	assert.Equal(t, 7, res.ErrorTracking.Value.Total)

	require.True(t, res.CodeMetrics.OK())
	assert.Equal(t, int64(100), res.CodeMetrics.Value.TotalLines)

	require.NotNil(t, result.Portfolio)
	assert.Equal(t, 1, result.Portfolio.Repositories)
	assert.Equal(t, 1, result.Portfolio.VulnerableRepos)
}

func TestRunDedupesAdvisoryLookupsAcrossRepos(t *testing.T) {
	// Two repositories declaring the identical dependency: one lookup.
	dirA := writeCheckout(t, map[string]string{"requirements.txt": "requests>=2.0\n"})
	dirB := writeCheckout(t, map[string]string{"requirements.txt": "requests>=2.0\n"})

	source := newFakeSource(nil)
	runner := testRunner(source, nil)
	repos := []hosting.Repository{
		{Owner: "acme", Name: "a", LocalPath: dirA},
		{Owner: "acme", Name: "b", LocalPath: dirB},
	}

	_, err := runner.Run(context.Background(), repos, Options{})
	require.NoError(t, err)

	require.Len(t, source.calls, 1)
	for key, n := range source.calls {
		assert.Equal(t, 1, n, "key %s looked up more than once", key)
	}
}

func TestRunRepoFailureIsolated(t *testing.T) {
	dir := writeCheckout(t, map[string]string{"go.mod": "module example.com/b\n\ngo 1.22\n"})

	gw := &fakeGateway{metadataErr: map[string]error{
		"acme/gone": errors.New(errors.ErrCodeRepoNotFound, "repository acme/gone not found"),
	}}
	runner := NewRunner(gw, nil, nil, &fakeMetrics{}, quietLogger())
	repos := []hosting.Repository{
		{Owner: "acme", Name: "gone"},
		{Owner: "acme", Name: "b", LocalPath: dir},
	}

	result, err := runner.Run(context.Background(), repos, Options{})
	require.NoError(t, err)
	require.Len(t, result.Repositories, 2)

	failed, healthy := result.Repositories[0], result.Repositories[1]
	assert.True(t, failed.Failed)
	assert.Equal(t, report.SectionUnavailable, failed.Manifest.State)
	assert.Equal(t, report.SectionUnavailable, failed.CodeMetrics.State)

	assert.False(t, healthy.Failed)
	assert.True(t, healthy.Metadata.OK())
	assert.True(t, healthy.Manifest.OK())
	assert.Equal(t, 1, result.Portfolio.FailedRepositories)
}

func TestRunMetadataErrorDegradesSectionOnly(t *testing.T) {
	dir := writeCheckout(t, map[string]string{"package.json": `{"dependencies":{"react":"^18.0.0"}}`})

	gw := &fakeGateway{metadataErr: map[string]error{
		"acme/flaky": errors.New(errors.ErrCodeRateLimited, "rate limited"),
	}}
	runner := NewRunner(gw, nil, nil, &fakeMetrics{}, quietLogger())
	repos := []hosting.Repository{{Owner: "acme", Name: "flaky", LocalPath: dir}}

	result, err := runner.Run(context.Background(), repos, Options{})
	require.NoError(t, err)

	res := result.Repositories[0]
	assert.False(t, res.Failed, "a rate-limited metadata fetch must not fail the repository")
	assert.Equal(t, report.SectionDegraded, res.Metadata.State)
	assert.True(t, res.Manifest.OK())
}

func TestRunProjectListFailureIsFatal(t *testing.T) {
	tc := &fakeTracker{listErr: errors.New(errors.ErrCodeUnauthorized, "bad token")}
	runner := testRunner(nil, tc)

	_, err := runner.Run(context.Background(), []hosting.Repository{{Owner: "acme", Name: "a"}}, Options{TrackerOrg: "acme"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestRunEmptyRepoListIsFatal(t *testing.T) {
	runner := testRunner(nil, nil)
	_, err := runner.Run(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestRunTrackerDisabledMarksSectionsUnavailable(t *testing.T) {
	dir := writeCheckout(t, map[string]string{"requirements.txt": "flask\n"})
	runner := testRunner(newFakeSource(nil), nil)

	result, err := runner.Run(context.Background(), []hosting.Repository{{Owner: "acme", Name: "a", LocalPath: dir}}, Options{})
	require.NoError(t, err)

	res := result.Repositories[0]
	assert.Equal(t, report.SectionUnavailable, res.ErrorTracking.State)
	assert.False(t, res.Identity.Matched())
}

func TestRunMetricsToolUnavailable(t *testing.T) {
	dir := writeCheckout(t, map[string]string{"go.mod": "module example.com/a\n\ngo 1.22\n"})
	mr := &fakeMetrics{err: errors.New(errors.ErrCodeToolUnavailable, "scc not installed")}
	runner := NewRunner(&fakeGateway{}, nil, nil, mr, quietLogger())

	result, err := runner.Run(context.Background(), []hosting.Repository{{Owner: "acme", Name: "a", LocalPath: dir}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, report.SectionUnavailable, result.Repositories[0].CodeMetrics.State)
}

// =============================================================================
// File helpers
// =============================================================================

func TestReadManifestFilesSkipsVendoredTrees(t *testing.T) {
	dir := writeCheckout(t, map[string]string{
		"requirements.txt":                   "django\n",
		"svc/go.mod":                         "module example.com/svc\n",
		"node_modules/left-pad/package.json": "{}",
		"vendor/dep/composer.json":           "{}",
		".git/config":                        "",
		"README.md":                          "docs",
	})

	files, err := ReadManifestFiles(dir, nil)
	require.NoError(t, err)

	assert.Len(t, files, 2)
	assert.Contains(t, files, "requirements.txt")
	assert.Contains(t, files, filepath.Join("svc", "go.mod"))
}

func TestLoadRepoList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repos.txt")
	content := "# portfolio\n\nhttps://github.com/acme/shop /srv/checkouts/shop\nacme/billing\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	repos, err := LoadRepoList(path)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "acme/shop", repos[0].FullName())
	assert.Equal(t, "/srv/checkouts/shop", repos[0].LocalPath)
	assert.Equal(t, "acme/billing", repos[1].FullName())
	assert.Empty(t, repos[1].LocalPath)
}

func TestLoadRepoListEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repos.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing here\n"), 0o644))

	_, err := LoadRepoList(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = LoadRepoList(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}
