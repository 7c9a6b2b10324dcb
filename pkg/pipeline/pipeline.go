// Package pipeline orchestrates a full portfolio analysis run.
//
// # Architecture
//
// A run moves through five phases:
//
//  1. Upfront: the error-tracking project list is fetched once. This and
//     the repository list are the only fatal failure points.
//  2. Parse: a bounded worker pool fans out over repositories, fetching
//     hosting metadata and reading + parsing manifest files.
//  3. Advisory snapshot: the union of all parsed dependencies is deduped
//     and looked up in batches, producing an immutable snapshot.
//  4. Aggregate: a second bounded pool correlates each repository against
//     the snapshot, matches its error-tracking identity, fetches issue
//     statistics, and runs the code-metrics tool.
//  5. Rollup: the portfolio summary is recomputed from the full result set.
//
// Everything shared across a fan-out boundary is immutable before the
// fan-out starts. Failures inside a repository degrade sections of that
// repository's result; they never cancel sibling repositories.
//
// # Usage
//
//	runner := pipeline.NewRunner(gateway, trackerClient, correlator, metricsRunner, logger)
//	repos, err := pipeline.LoadRepoList("repos.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := runner.Run(ctx, repos, pipeline.Options{TrackerOrg: "acme"})
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/parkerhq/fleetaudit/pkg/report"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultConcurrency bounds each fan-out pool.
	DefaultConcurrency = 4

	// DefaultWindowDays is the trailing activity window for commit and
	// issue statistics.
	DefaultWindowDays = 30

	// DefaultCallTimeout bounds each external API call.
	DefaultCallTimeout = 30 * time.Second
)

// =============================================================================
// Options
// =============================================================================

// Options configures one analysis run. The zero value is usable; the
// error-tracking phases are skipped when TrackerOrg is empty.
type Options struct {
	// TrackerOrg is the error-tracking organization slug. Empty disables
	// identity matching and issue statistics for the run.
	TrackerOrg string `json:"tracker_org,omitempty"`

	// WindowDays is the trailing window for activity and issue queries.
	WindowDays int `json:"window_days,omitempty"`

	// Concurrency bounds the per-phase worker pools.
	Concurrency int `json:"concurrency,omitempty"`

	// CallTimeout bounds each external API call.
	CallTimeout time.Duration `json:"call_timeout,omitempty"`

	// Logger overrides the runner's logger for this run.
	Logger *log.Logger `json:"-"`
}

func (o *Options) setDefaults() {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
}

// Window returns the trailing window as a duration.
func (o *Options) Window() time.Duration {
	days := o.WindowDays
	if days <= 0 {
		days = DefaultWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one analysis run.
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Repositories holds one result per input repository, in input order.
	Repositories []*report.AnalysisResult `json:"repositories"`

	// Portfolio is the rollup over all repository results.
	Portfolio *report.PortfolioSummary `json:"portfolio"`

	Stats Stats `json:"stats"`
}

// Stats carries per-phase timing and lookup counts.
type Stats struct {
	ParseTime       time.Duration `json:"parse_time"`
	AdvisoryTime    time.Duration `json:"advisory_time"`
	AggregateTime   time.Duration `json:"aggregate_time"`
	AdvisoryQueries int           `json:"advisory_queries"`
}
