package metrics

import (
	"context"
	"testing"

	"github.com/parkerhq/fleetaudit/pkg/errors"
)

func TestParseReport(t *testing.T) {
	data := []byte(`{
		"languageSummary": [
			{"Name": "Go", "Lines": 1000, "Code": 700, "Comment": 200, "Blank": 100, "Complexity": 85, "Count": 12},
			{"Name": "Python", "Lines": 500, "Code": 400, "Comment": 50, "Blank": 50, "Complexity": 40, "Count": 8}
		],
		"estimatedCost": 45000.5,
		"estimatedScheduleMonths": 4.2,
		"estimatedPeople": 1.3
	}`)

	report, err := ParseReport(data)
	if err != nil {
		t.Fatalf("ParseReport error: %v", err)
	}

	if report.TotalLines != 1500 || report.TotalCode != 1100 {
		t.Errorf("totals = %d lines / %d code, want 1500/1100", report.TotalLines, report.TotalCode)
	}
	if report.TotalComplexity != 125 || report.TotalFiles != 20 {
		t.Errorf("complexity/files = %d/%d, want 125/20", report.TotalComplexity, report.TotalFiles)
	}
	if report.EstimatedCost != 45000.5 {
		t.Errorf("estimated cost = %v", report.EstimatedCost)
	}
	if len(report.Languages) != 2 || report.Languages[0].Name != "Go" {
		t.Errorf("languages = %+v", report.Languages)
	}
}

func TestParseReportMalformed(t *testing.T) {
	_, err := ParseReport([]byte("{not json"))
	if !errors.Is(err, errors.ErrCodeParse) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestAnalyzeToolUnavailable(t *testing.T) {
	r := &SCCRunner{Binary: "definitely-not-installed-tool"}
	_, err := r.Analyze(context.Background(), t.TempDir())
	if !errors.Is(err, errors.ErrCodeToolUnavailable) {
		t.Errorf("expected tool-unavailable error, got %v", err)
	}
}
