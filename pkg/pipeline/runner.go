package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/manifest"
	"github.com/parkerhq/fleetaudit/pkg/metrics"
	"github.com/parkerhq/fleetaudit/pkg/observability"
	"github.com/parkerhq/fleetaudit/pkg/report"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

// Runner executes analysis runs against a fixed set of collaborators.
//
// The Runner is stateless between runs; multiple goroutines can safely use
// the same Runner with different options. Tracker and Metrics may be nil,
// in which case their sections are marked unavailable rather than degraded.
type Runner struct {
	Hosting    hosting.Gateway
	Tracker    tracker.Client
	Correlator *advisory.Correlator
	Metrics    metrics.Runner
	Parsers    []manifest.Parser
	Logger     *log.Logger
}

// NewRunner wires a runner. Nil logger falls back to the default logger;
// nil parsers fall back to the full parser set.
func NewRunner(gw hosting.Gateway, tc tracker.Client, corr *advisory.Correlator, mr metrics.Runner, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Hosting:    gw,
		Tracker:    tc,
		Correlator: corr,
		Metrics:    mr,
		Parsers:    manifest.DefaultParsers(),
		Logger:     logger,
	}
}

// Run analyzes every repository and builds the portfolio rollup.
//
// The only fatal conditions are an empty repository list and a configured
// tracker whose project list cannot be fetched. Everything else degrades
// the affected section or repository and the run continues.
func (r *Runner) Run(ctx context.Context, repos []hosting.Repository, opts Options) (*Result, error) {
	opts.setDefaults()
	if len(repos) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no repositories to analyze")
	}

	logger := opts.Logger
	if logger == nil {
		logger = r.Logger
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	started := time.Now()

	result := &Result{RunID: runID, StartedAt: started.UTC()}

	// Phase 1: project list, fetched once. Fatal on failure; a run with
	// stale identity data is worse than no run.
	projects, err := r.listProjects(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(projects) > 0 {
		logger.Info("fetched error-tracking projects", "org", opts.TrackerOrg, "projects", len(projects))
	}

	// Phase 2: hosting metadata + manifest parse, bounded fan-out.
	parseStart := time.Now()
	results := make([]*report.AnalysisResult, len(repos))
	p := pool.New().WithMaxGoroutines(opts.Concurrency)
	for i := range repos {
		p.Go(func() {
			results[i] = r.parseRepo(ctx, repos[i], runID, opts, logger)
			observability.Run().OnRepoAnalyzed(ctx, repos[i].FullName(), results[i].Failed)
		})
	}
	p.Wait()
	result.Stats.ParseTime = time.Since(parseStart)

	// Phase 3: one advisory snapshot over the union of all dependencies.
	// The snapshot is immutable once built; aggregation only reads it.
	advisoryStart := time.Now()
	var allDeps []manifest.Dependency
	for _, res := range results {
		if res.Manifest.OK() && res.Manifest.Value != nil {
			allDeps = append(allDeps, res.Manifest.Value.Dependencies...)
		}
	}
	var snap *advisory.Snapshot
	if r.Correlator != nil && len(allDeps) > 0 {
		snap = r.Correlator.BuildSnapshot(ctx, allDeps)
		result.Stats.AdvisoryQueries = snap.QueryCount()
	}
	result.Stats.AdvisoryTime = time.Since(advisoryStart)
	observability.Run().OnSnapshotBuilt(ctx, result.Stats.AdvisoryQueries, result.Stats.AdvisoryTime)

	logger.Info("built advisory snapshot",
		"dependencies", len(allDeps),
		"queries", result.Stats.AdvisoryQueries,
		"duration", result.Stats.AdvisoryTime)

	// Phase 4: per-repository aggregation, bounded fan-out.
	aggStart := time.Now()
	agg := pool.New().WithMaxGoroutines(opts.Concurrency)
	for i := range results {
		agg.Go(func() {
			r.aggregateRepo(ctx, results[i], snap, projects, opts)
		})
	}
	agg.Wait()
	result.Stats.AggregateTime = time.Since(aggStart)

	// Phase 5: rollup over the complete result set.
	result.Repositories = results
	result.Portfolio = report.BuildPortfolio(results)
	result.Duration = time.Since(started)
	observability.Run().OnRunComplete(ctx, runID, len(results), result.Portfolio.FailedRepositories, result.Duration)

	logger.Info("analysis complete",
		"repos", len(results),
		"failed", result.Portfolio.FailedRepositories,
		"duration", result.Duration)

	return result, nil
}

// listProjects fetches the error-tracking project list, or nil when the
// integration is disabled (no client or no organization configured).
func (r *Runner) listProjects(ctx context.Context, opts Options) ([]tracker.Project, error) {
	if r.Tracker == nil || opts.TrackerOrg == "" {
		return nil, nil
	}
	cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	projects, err := r.Tracker.ListProjects(cctx, opts.TrackerOrg)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "list error-tracking projects for %s", opts.TrackerOrg)
	}
	return projects, nil
}

// parseRepo fetches hosting data and parses manifests for one repository.
func (r *Runner) parseRepo(ctx context.Context, repo hosting.Repository, runID string, opts Options, logger *log.Logger) *report.AnalysisResult {
	res := &report.AnalysisResult{
		Repository: repo,
		RunID:      runID,
		AnalyzedAt: time.Now().UTC(),
	}

	meta, err := r.fetchMetadata(ctx, repo, opts)
	switch {
	case err == nil:
		res.Metadata = report.Available(meta)
	case errors.Is(err, errors.ErrCodeRepoNotFound) || errors.Is(err, errors.ErrCodeNotFound):
		// A repository the host does not know is not analyzable at all.
		res.Failed = true
		res.FailReason = errors.UserMessage(err)
		res.Metadata = report.Unavailable[*hosting.Metadata](res.FailReason)
		res.Activity = report.Unavailable[*hosting.Activity](res.FailReason)
		res.Manifest = report.Unavailable[*manifest.Result](res.FailReason)
		logger.Warn("repository unavailable", "repo", repo.FullName(), "reason", res.FailReason)
		return res
	default:
		res.Metadata = report.Degraded[*hosting.Metadata](errors.UserMessage(err))
		logger.Warn("metadata fetch failed", "repo", repo.FullName(), "err", err)
	}

	activity, err := r.fetchActivity(ctx, repo, opts)
	if err != nil {
		res.Activity = report.Degraded[*hosting.Activity](errors.UserMessage(err))
		logger.Warn("activity fetch failed", "repo", repo.FullName(), "err", err)
	} else {
		res.Activity = report.Available(activity)
	}

	res.Manifest = r.parseManifests(repo, logger)
	return res
}

func (r *Runner) fetchMetadata(ctx context.Context, repo hosting.Repository, opts Options) (*hosting.Metadata, error) {
	if r.Hosting == nil {
		return nil, errors.New(errors.ErrCodeToolUnavailable, "no hosting gateway configured")
	}
	cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	return r.Hosting.FetchMetadata(cctx, repo)
}

func (r *Runner) fetchActivity(ctx context.Context, repo hosting.Repository, opts Options) (*hosting.Activity, error) {
	if r.Hosting == nil {
		return nil, errors.New(errors.ErrCodeToolUnavailable, "no hosting gateway configured")
	}
	cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	return r.Hosting.FetchActivity(cctx, repo, opts.Window())
}

func (r *Runner) parseManifests(repo hosting.Repository, logger *log.Logger) report.Section[*manifest.Result] {
	if repo.LocalPath == "" {
		return report.Unavailable[*manifest.Result]("no local checkout")
	}
	files, err := ReadManifestFiles(repo.LocalPath, r.Parsers)
	if err != nil {
		logger.Warn("manifest scan failed", "repo", repo.FullName(), "err", err)
		return report.Degraded[*manifest.Result](errors.UserMessage(err))
	}
	if len(files) == 0 {
		return report.Unavailable[*manifest.Result]("no manifest files found")
	}
	parsed := manifest.Parse(files, r.Parsers...)
	logger.Debug("parsed manifests",
		"repo", repo.FullName(),
		"files", len(files),
		"dependencies", len(parsed.Dependencies),
		"failures", len(parsed.Failures))
	return report.Available(parsed)
}

// aggregateRepo fills the correlation, identity, issue-statistics, and
// code-metrics sections of one result. Never fails the run: every error
// lands in a section state.
func (r *Runner) aggregateRepo(ctx context.Context, res *report.AnalysisResult, snap *advisory.Snapshot, projects []tracker.Project, opts Options) {
	if res.Failed {
		reason := "repository analysis failed"
		res.Advisories = report.Unavailable[advisory.Summary](reason)
		res.ErrorTracking = report.Unavailable[*tracker.IssueSummary](reason)
		res.CodeMetrics = report.Unavailable[*metrics.Report](reason)
		return
	}

	if snap != nil && res.Manifest.OK() && res.Manifest.Value != nil {
		res.Matches = advisory.Correlate(snap, res.Manifest.Value.Dependencies)
		res.Advisories = report.Available(advisory.Summarize(res.Matches))
	} else {
		res.Advisories = report.Unavailable[advisory.Summary]("no dependencies to correlate")
	}

	// Issue statistics and the metrics tool are independent; run them
	// concurrently. Both report through section states, so the group
	// never carries an error.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.trackIssues(gctx, res, projects, opts)
		return nil
	})
	g.Go(func() error {
		r.runMetrics(gctx, res)
		return nil
	})
	_ = g.Wait()
}

func (r *Runner) trackIssues(ctx context.Context, res *report.AnalysisResult, projects []tracker.Project, opts Options) {
	if r.Tracker == nil || opts.TrackerOrg == "" {
		res.ErrorTracking = report.Unavailable[*tracker.IssueSummary]("error tracking disabled")
		return
	}
	res.Identity = tracker.Match(res.Repository.Owner, res.Repository.Name, projects)
	if !res.Identity.Matched() {
		res.ErrorTracking = report.Unavailable[*tracker.IssueSummary]("no matching error-tracking project")
		return
	}

	cctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	sum, err := r.Tracker.ProjectSummary(cctx, opts.TrackerOrg, res.Identity.Project.Slug, opts.Window())
	if err != nil {
		res.ErrorTracking = report.Degraded[*tracker.IssueSummary](errors.UserMessage(err))
		return
	}
	res.ErrorTracking = report.Available(sum)
}

func (r *Runner) runMetrics(ctx context.Context, res *report.AnalysisResult) {
	if r.Metrics == nil {
		res.CodeMetrics = report.Unavailable[*metrics.Report]("code metrics tool not configured")
		return
	}
	if res.Repository.LocalPath == "" {
		res.CodeMetrics = report.Unavailable[*metrics.Report]("no local checkout")
		return
	}
	rep, err := r.Metrics.Analyze(ctx, res.Repository.LocalPath)
	if err != nil {
		if errors.Is(err, errors.ErrCodeToolUnavailable) {
			res.CodeMetrics = report.Unavailable[*metrics.Report](errors.UserMessage(err))
		} else {
			res.CodeMetrics = report.Degraded[*metrics.Report](errors.UserMessage(err))
		}
		return
	}
	res.CodeMetrics = report.Available(rep)
}
