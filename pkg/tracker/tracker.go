// Package tracker models error-tracking projects and matches them to
// repositories. There is no canonical join key between a code-hosting
// repository and an error-tracking project, so matching is fuzzy: three
// ordered strategies with decreasing confidence, fully deterministic for
// identical inputs.
package tracker

import (
	"context"
	"time"
)

// Project is one error-tracking project in the configured organization.
type Project struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Slug  string   `json:"slug"`
	Teams []string `json:"teams,omitempty"`
}

// MatchResult links a repository to its matched project, if any.
// A nil Project is a normal terminal outcome, not an error.
type MatchResult struct {
	Project    *Project `json:"project,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
}

// Matched reports whether a project was found.
func (m MatchResult) Matched() bool { return m.Project != nil }

// IssueSummary aggregates a project's issues over the query window.
type IssueSummary struct {
	Total             int     `json:"total"`
	Resolved          int     `json:"resolved"`
	Unresolved        int     `json:"unresolved"`
	EventCount        int     `json:"event_count"`
	AvgResolutionDays float64 `json:"avg_resolution_days"`
}

// Client is an error-tracking platform API.
type Client interface {
	// ListProjects returns every project in the organization.
	ListProjects(ctx context.Context, org string) ([]Project, error)

	// ProjectSummary aggregates issue statistics for one project over the
	// trailing window.
	ProjectSummary(ctx context.Context, org, slug string, window time.Duration) (*IssueSummary, error)
}
