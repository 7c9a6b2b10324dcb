// Package metrics runs the external scc tool against a checked-out working
// tree and parses its structured output. The tool is optional: when it is
// not installed, callers receive an ErrCodeToolUnavailable error and degrade
// the code-metrics section instead of failing the run.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/parkerhq/fleetaudit/pkg/errors"
)

// runTimeout caps one scc invocation.
const runTimeout = 2 * time.Minute

// LanguageSummary is scc's per-language breakdown.
type LanguageSummary struct {
	Name       string `json:"Name"`
	Lines      int64  `json:"Lines"`
	Code       int64  `json:"Code"`
	Comment    int64  `json:"Comment"`
	Blank      int64  `json:"Blank"`
	Complexity int64  `json:"Complexity"`
	Count      int64  `json:"Count"`
}

// Report is the parsed output of one scc run, with whole-tree totals
// computed from the language summary.
type Report struct {
	Languages               []LanguageSummary `json:"language_summary"`
	EstimatedCost           float64           `json:"estimated_cost"`
	EstimatedScheduleMonths float64           `json:"estimated_schedule_months"`
	EstimatedPeople         float64           `json:"estimated_people"`

	TotalLines      int64 `json:"total_lines"`
	TotalCode       int64 `json:"total_code"`
	TotalComments   int64 `json:"total_comments"`
	TotalBlanks     int64 `json:"total_blanks"`
	TotalComplexity int64 `json:"total_complexity"`
	TotalFiles      int64 `json:"total_files"`
}

// sccOutput is the json2 wire shape.
type sccOutput struct {
	LanguageSummary         []LanguageSummary `json:"languageSummary"`
	EstimatedCost           float64           `json:"estimatedCost"`
	EstimatedScheduleMonths float64           `json:"estimatedScheduleMonths"`
	EstimatedPeople         float64           `json:"estimatedPeople"`
}

// Runner executes the code-metrics tool.
type Runner interface {
	// Analyze scans the working tree at path.
	Analyze(ctx context.Context, path string) (*Report, error)
}

// SCCRunner shells out to scc.
type SCCRunner struct {
	// Binary overrides the executable name, used by tests.
	Binary string
}

// NewSCCRunner creates a runner for the scc binary on PATH.
func NewSCCRunner() *SCCRunner { return &SCCRunner{Binary: "scc"} }

// Available reports whether the tool can be found.
func (r *SCCRunner) Available() bool {
	_, err := exec.LookPath(r.Binary)
	return err == nil
}

// Analyze runs `scc --format json2` against the working tree.
func (r *SCCRunner) Analyze(ctx context.Context, path string) (*Report, error) {
	if !r.Available() {
		return nil, errors.New(errors.ErrCodeToolUnavailable, "scc not installed")
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, "--format", "json2", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "scc timed out")
		}
		return nil, errors.Wrap(errors.ErrCodeToolUnavailable, err, "scc failed: %s", stderr.String())
	}

	return ParseReport(stdout.Bytes())
}

// ParseReport decodes json2 output and computes totals.
func ParseReport(data []byte) (*Report, error) {
	var out sccOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid scc output")
	}

	report := &Report{
		Languages:               out.LanguageSummary,
		EstimatedCost:           out.EstimatedCost,
		EstimatedScheduleMonths: out.EstimatedScheduleMonths,
		EstimatedPeople:         out.EstimatedPeople,
	}
	for _, lang := range out.LanguageSummary {
		report.TotalLines += lang.Lines
		report.TotalCode += lang.Code
		report.TotalComments += lang.Comment
		report.TotalBlanks += lang.Blank
		report.TotalComplexity += lang.Complexity
		report.TotalFiles += lang.Count
	}
	return report, nil
}

var _ Runner = (*SCCRunner)(nil)
