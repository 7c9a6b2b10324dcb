// Package hosting reads repository metadata and activity from the
// code-hosting platform. The GitHub implementation wraps the REST API with
// a rate-limit-aware transport so secondary limits pause requests instead
// of failing them.
package hosting

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/parkerhq/fleetaudit/pkg/errors"
)

// Repository identifies one repository under analysis.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	// LocalPath is where the working tree is checked out for manifest
	// and code-metrics scanning.
	LocalPath string `json:"local_path,omitempty"`
}

// FullName returns "owner/name".
func (r Repository) FullName() string { return r.Owner + "/" + r.Name }

// Metadata is the repository's hosting-platform profile.
type Metadata struct {
	Description   string     `json:"description,omitempty"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Language      string     `json:"language,omitempty"`
	License       string     `json:"license,omitempty"`
	DefaultBranch string     `json:"default_branch,omitempty"`
	Archived      bool       `json:"archived"`
	Private       bool       `json:"private"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
}

// Activity summarizes recent development over a trailing window.
type Activity struct {
	WindowDays             int           `json:"window_days"`
	CommitCount            int           `json:"commit_count"`
	IssuesOpened           int           `json:"issues_opened"`
	IssuesClosed           int           `json:"issues_closed"`
	AvgIssueResolutionDays float64       `json:"avg_issue_resolution_days,omitempty"`
	Contributors           []Contributor `json:"contributors,omitempty"`
}

// Contributor is one committer with their contribution count.
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

// Gateway is the code-hosting metadata API.
type Gateway interface {
	// FetchMetadata returns the repository's profile.
	FetchMetadata(ctx context.Context, repo Repository) (*Metadata, error)

	// FetchActivity summarizes commits, issues, and contributors over the
	// trailing window.
	FetchActivity(ctx context.Context, repo Repository, window time.Duration) (*Activity, error)
}

var repoURLRe = regexp.MustCompile(`[:/]([^/:]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and name from a repository URL.
// HTTPS, git@, and bare "owner/name" forms are accepted.
func ParseRepoURL(raw string) (Repository, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Repository{}, errors.New(errors.ErrCodeInvalidRepoURL, "empty repository URL")
	}

	if !strings.ContainsAny(s, ":") && strings.Count(s, "/") == 1 {
		parts := strings.SplitN(s, "/", 2)
		if parts[0] != "" && parts[1] != "" {
			return Repository{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git"), URL: raw}, nil
		}
	}

	m := repoURLRe.FindStringSubmatch(s)
	if m == nil {
		return Repository{}, errors.New(errors.ErrCodeInvalidRepoURL, "unrecognized repository URL: %s", raw)
	}
	return Repository{Owner: m[1], Name: m[2], URL: raw}, nil
}
