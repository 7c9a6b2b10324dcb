package report

import (
	"github.com/montanaflynn/stats"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
)

// PortfolioSummary is the cross-repository rollup. Numeric totals sum only
// over repositories where the field is available; averages divide by the
// count of repositories carrying that field, never the total repository
// count. It is always recomputed in full from the result set.
type PortfolioSummary struct {
	Repositories       int `json:"repositories"`
	FailedRepositories int `json:"failed_repositories"`

	// Code metrics (over repositories with an available metrics section).
	ReposWithMetrics        int     `json:"repos_with_metrics"`
	TotalLines              int64   `json:"total_lines"`
	TotalCode               int64   `json:"total_code"`
	TotalComplexity         int64   `json:"total_complexity"`
	EstimatedCost           float64 `json:"estimated_cost"`
	EstimatedScheduleMonths float64 `json:"estimated_schedule_months"`
	EstimatedPeople         float64 `json:"estimated_people"`

	// Histograms accumulate across all available data.
	Languages  map[string]int `json:"languages,omitempty"`
	Frameworks map[string]int `json:"frameworks,omitempty"`

	// Vulnerabilities (over repositories with an available advisory
	// section).
	ReposWithAdvisories int                       `json:"repos_with_advisories"`
	DefiniteBySeverity  map[advisory.Severity]int `json:"definite_by_severity,omitempty"`
	PotentialBySeverity map[advisory.Severity]int `json:"potential_by_severity,omitempty"`
	TotalDefinite       int                       `json:"total_definite"`
	TotalPotential      int                       `json:"total_potential"`
	VulnerableRepos     int                       `json:"vulnerable_repos"`

	// Dependencies (over repositories with an available manifest section).
	TotalDependencies int `json:"total_dependencies"`

	// Error tracking (over repositories with an available tracking
	// section). The average is the mean of per-repository averages.
	ReposWithTracking      int     `json:"repos_with_tracking"`
	TotalIssues            int     `json:"total_issues"`
	TotalResolvedIssues    int     `json:"total_resolved_issues"`
	AvgIssueResolutionDays float64 `json:"avg_issue_resolution_days"`

	// Hosting activity (over repositories with an available activity
	// section).
	TotalCommits int     `json:"total_commits"`
	AvgCommits   float64 `json:"avg_commits"`
}

// BuildPortfolio computes the rollup from the full result set.
func BuildPortfolio(results []*AnalysisResult) *PortfolioSummary {
	p := &PortfolioSummary{
		Repositories:        len(results),
		Languages:           make(map[string]int),
		Frameworks:          make(map[string]int),
		DefiniteBySeverity:  make(map[advisory.Severity]int),
		PotentialBySeverity: make(map[advisory.Severity]int),
	}

	var resolutionAverages []float64
	var commitCounts []float64

	for _, r := range results {
		if r.Failed {
			p.FailedRepositories++
		}

		if r.CodeMetrics.OK() && r.CodeMetrics.Value != nil {
			m := r.CodeMetrics.Value
			p.ReposWithMetrics++
			p.TotalLines += m.TotalLines
			p.TotalCode += m.TotalCode
			p.TotalComplexity += m.TotalComplexity
			p.EstimatedCost += m.EstimatedCost
			p.EstimatedScheduleMonths += m.EstimatedScheduleMonths
			p.EstimatedPeople += m.EstimatedPeople
			for _, lang := range m.Languages {
				p.Languages[lang.Name] += int(lang.Count)
			}
		}

		if fw := r.Framework(); fw != nil {
			p.Frameworks[fw.Name]++
		}

		if r.Manifest.OK() && r.Manifest.Value != nil {
			p.TotalDependencies += len(r.Manifest.Value.Dependencies)
		}

		if r.Advisories.OK() {
			s := r.Advisories.Value
			p.ReposWithAdvisories++
			p.TotalDefinite += s.TotalDefinite
			p.TotalPotential += s.TotalPotential
			if s.TotalDefinite+s.TotalPotential > 0 {
				p.VulnerableRepos++
			}
			for sev, n := range s.DefiniteBySeverity {
				p.DefiniteBySeverity[sev] += n
			}
			for sev, n := range s.PotentialBySeverity {
				p.PotentialBySeverity[sev] += n
			}
		}

		if r.ErrorTracking.OK() && r.ErrorTracking.Value != nil {
			t := r.ErrorTracking.Value
			p.ReposWithTracking++
			p.TotalIssues += t.Total
			p.TotalResolvedIssues += t.Resolved
			if t.AvgResolutionDays > 0 {
				resolutionAverages = append(resolutionAverages, t.AvgResolutionDays)
			}
		}

		if r.Activity.OK() && r.Activity.Value != nil {
			p.TotalCommits += r.Activity.Value.CommitCount
			commitCounts = append(commitCounts, float64(r.Activity.Value.CommitCount))
		}
	}

	if len(resolutionAverages) > 0 {
		if mean, err := stats.Mean(resolutionAverages); err == nil {
			p.AvgIssueResolutionDays = mean
		}
	}
	if len(commitCounts) > 0 {
		if mean, err := stats.Mean(commitCounts); err == nil {
			p.AvgCommits = mean
		}
	}

	if len(p.Languages) == 0 {
		p.Languages = nil
	}
	if len(p.Frameworks) == 0 {
		p.Frameworks = nil
	}
	if p.TotalDefinite == 0 {
		p.DefiniteBySeverity = nil
	}
	if p.TotalPotential == 0 {
		p.PotentialBySeverity = nil
	}
	return p
}
