// Package sentry implements the tracker.Client interface against the
// Sentry web API.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/integrations"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

const (
	defaultBaseURL = "https://sentry.io/api/0"

	// issuePageLimit is the maximum issues fetched per project; matches
	// the API's page-size ceiling.
	issuePageLimit = 100
)

// Client queries the Sentry API for projects and issue statistics.
type Client struct {
	api     *integrations.Client
	baseURL string
}

// NewClient creates a Sentry client authenticated with the given token.
func NewClient(c cache.Cache, authToken string) *Client {
	return &Client{
		api: integrations.NewClient(c, map[string]string{
			"Authorization": "Bearer " + authToken,
			"Content-Type":  "application/json",
		}),
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint,
// used by tests and self-hosted installations.
func NewClientWithBaseURL(c cache.Cache, authToken, baseURL string) *Client {
	cl := NewClient(c, authToken)
	cl.baseURL = baseURL
	return cl
}

// WithCacheTTL overrides how long tracker responses stay cached.
func (c *Client) WithCacheTTL(ttl time.Duration) *Client {
	c.api.SetCacheTTL(ttl)
	return c
}

type projectRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Teams []struct {
		Slug string `json:"slug"`
	} `json:"teams"`
}

type issueRecord struct {
	Status    string    `json:"status"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Count     string    `json:"count"`
}

// ListProjects returns every project in the organization.
func (c *Client) ListProjects(ctx context.Context, org string) ([]tracker.Project, error) {
	var records []projectRecord
	key := cache.TrackerKey(org, "projects")
	err := c.api.Cached(ctx, key, &records, func() error {
		return c.api.Get(ctx, fmt.Sprintf("%s/organizations/%s/projects/", c.baseURL, org), &records)
	})
	if err != nil {
		return nil, err
	}

	projects := make([]tracker.Project, len(records))
	for i, r := range records {
		p := tracker.Project{ID: r.ID, Name: r.Name, Slug: r.Slug}
		for _, team := range r.Teams {
			p.Teams = append(p.Teams, team.Slug)
		}
		projects[i] = p
	}
	return projects, nil
}

// ProjectSummary aggregates issue statistics for one project over the
// trailing window.
func (c *Client) ProjectSummary(ctx context.Context, org, slug string, window time.Duration) (*tracker.IssueSummary, error) {
	period := statsPeriod(window)
	since := time.Now().Add(-window).UTC().Format(time.RFC3339)

	var issues []issueRecord
	key := cache.TrackerKey(org, "issues:"+slug+":"+period)
	err := c.api.Cached(ctx, key, &issues, func() error {
		url := fmt.Sprintf("%s/projects/%s/%s/issues/?query=firstSeen:>=%s&statsPeriod=%s&limit=%d",
			c.baseURL, org, slug, since, period, issuePageLimit)
		return c.api.Get(ctx, url, &issues)
	})
	if err != nil {
		return nil, err
	}

	summary := &tracker.IssueSummary{Total: len(issues)}

	var resolutionDays []float64
	for _, issue := range issues {
		if issue.Status != "resolved" {
			summary.Unresolved++
			continue
		}
		summary.Resolved++
		if !issue.FirstSeen.IsZero() && issue.LastSeen.After(issue.FirstSeen) {
			resolutionDays = append(resolutionDays, issue.LastSeen.Sub(issue.FirstSeen).Hours()/24)
		}
	}
	if len(resolutionDays) > 0 {
		if mean, err := stats.Mean(resolutionDays); err == nil {
			summary.AvgResolutionDays = mean
		}
	}
	summary.EventCount = eventCount(issues)
	return summary, nil
}

// eventCount sums the per-issue event counters. The API reports them as
// strings.
func eventCount(issues []issueRecord) int {
	total := 0
	for _, issue := range issues {
		n := 0
		if _, err := fmt.Sscanf(issue.Count, "%d", &n); err == nil {
			total += n
		}
	}
	return total
}

// statsPeriod renders a window as the API's period syntax ("30d").
func statsPeriod(window time.Duration) string {
	days := int(window.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("%dd", days)
}

var _ tracker.Client = (*Client)(nil)
