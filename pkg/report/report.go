// Package report assembles per-repository analysis results and the
// portfolio rollup. Optional data sections are tri-state: available with a
// value, unavailable (degraded or never attempted), or failed with an
// error. A measured zero is never conflated with "not measured".
package report

import (
	"time"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/manifest"
	"github.com/parkerhq/fleetaudit/pkg/metrics"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

// SectionState marks whether an optional section carries data.
type SectionState string

const (
	// SectionAvailable means Value holds measured data.
	SectionAvailable SectionState = "available"
	// SectionUnavailable means the section was not produced, e.g. the
	// tool is not installed or no identity match was found.
	SectionUnavailable SectionState = "unavailable"
	// SectionDegraded means the section was attempted but failed after
	// retries; Reason says why.
	SectionDegraded SectionState = "degraded"
)

// Section wraps an optional data payload with its availability state.
type Section[T any] struct {
	State  SectionState `json:"state"`
	Value  T            `json:"value,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Available builds a populated section.
func Available[T any](v T) Section[T] {
	return Section[T]{State: SectionAvailable, Value: v}
}

// Unavailable builds an empty section with an explanation.
func Unavailable[T any](reason string) Section[T] {
	return Section[T]{State: SectionUnavailable, Reason: reason}
}

// Degraded builds a failed section carrying the failure reason.
func Degraded[T any](reason string) Section[T] {
	return Section[T]{State: SectionDegraded, Reason: reason}
}

// OK reports whether the section carries data.
func (s Section[T]) OK() bool { return s.State == SectionAvailable }

// AnalysisResult is the complete per-repository outcome.
// It is built once at the end of the repository's pipeline and never
// mutated afterwards.
type AnalysisResult struct {
	Repository hosting.Repository `json:"repository"`
	RunID      string             `json:"run_id"`
	AnalyzedAt time.Time          `json:"analyzed_at"`

	// Failed marks a repository whose pipeline could not start at all
	// (e.g. checkout failure). Sections carry their own states.
	Failed     bool   `json:"failed,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`

	Metadata      Section[*hosting.Metadata]     `json:"metadata"`
	Activity      Section[*hosting.Activity]     `json:"activity"`
	Manifest      Section[*manifest.Result]      `json:"manifest"`
	Advisories    Section[advisory.Summary]      `json:"advisories"`
	Matches       []advisory.Match               `json:"vulnerability_matches,omitempty"`
	Identity      tracker.MatchResult            `json:"identity_match"`
	ErrorTracking Section[*tracker.IssueSummary] `json:"error_tracking"`
	CodeMetrics   Section[*metrics.Report]       `json:"code_metrics"`
}

// Framework returns the detected framework, if the manifest section is
// available and one was found.
func (r *AnalysisResult) Framework() *manifest.Framework {
	if !r.Manifest.OK() || r.Manifest.Value == nil {
		return nil
	}
	return r.Manifest.Value.Framework
}
