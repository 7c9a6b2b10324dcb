// Package advisory defines vulnerability advisories and correlates them
// against declared dependencies. Lookups are deduplicated by
// (ecosystem, name, constraint) across an entire analysis run so each
// distinct dependency hits the advisory service at most once.
package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/parkerhq/fleetaudit/pkg/manifest"
	"github.com/parkerhq/fleetaudit/pkg/version"
)

// Severity is a normalized advisory severity level.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityUnknown:  0,
}

// Rank returns the ordering weight of the severity, highest first.
func (s Severity) Rank() int { return severityRank[s] }

// Max returns the more severe of two levels.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SeverityFromScore buckets a CVSS base score into a severity level.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// ParseSeverity normalizes a textual severity label.
// "MODERATE" is the GHSA name for medium.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// Advisory is one published vulnerability record affecting a package.
type Advisory struct {
	ID        string             `json:"id"`
	Ecosystem manifest.Ecosystem `json:"ecosystem"`
	Package   string             `json:"package"`
	Summary   string             `json:"summary,omitempty"`
	Severity  Severity           `json:"severity"`
	CVSSScore float64            `json:"cvss_score,omitempty"`
	// Ranges are the affected version intervals; an advisory with no
	// usable ranges is treated as affecting all versions.
	Ranges []version.Range `json:"-"`
}

// AffectsConstraint reports whether any affected range could include a
// version allowed by the constraint.
func (a *Advisory) AffectsConstraint(c version.Constraint) bool {
	if len(a.Ranges) == 0 {
		return true
	}
	for _, r := range a.Ranges {
		if r.Overlaps(c) {
			return true
		}
	}
	return false
}

// Query identifies one advisory lookup.
type Query struct {
	Ecosystem  manifest.Ecosystem
	Name       string
	Constraint version.Constraint
}

// Key is the dedupe identity of a query: two dependencies with the same
// ecosystem, name, and raw constraint share one lookup.
func (q Query) Key() string {
	return fmt.Sprintf("%s:%s:%s", q.Ecosystem, q.Name, q.Constraint.Raw)
}

// Source is a vulnerability advisory service.
type Source interface {
	// QueryBatch resolves advisories for each query, keyed by Query.Key().
	// A query with no known advisories maps to an empty slice; a missing
	// key means the lookup itself failed.
	QueryBatch(ctx context.Context, queries []Query) (map[string][]Advisory, error)
}
