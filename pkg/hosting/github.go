package hosting

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/montanaflynn/stats"
	"golang.org/x/oauth2"

	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/httputil"
)

// errEmptyRepo marks the status codes GitHub uses for repositories with no
// commit or contributor data; callers translate it to an empty result.
var errEmptyRepo = stderrors.New("empty repository")

// maxActivityPages bounds pagination when counting commits and issues, so
// a very busy repository cannot stall the run.
const maxActivityPages = 10

// topContributorCount limits how many contributors are reported.
const topContributorCount = 10

// GitHubGateway implements Gateway against the GitHub REST API.
type GitHubGateway struct {
	client *github.Client
	cache  cache.Cache
	ttl    time.Duration
}

// NewGitHubGateway creates a gateway. An empty token means unauthenticated
// access, which works for public repositories at a reduced rate limit.
func NewGitHubGateway(token string, c cache.Cache) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil,
		github_ratelimit.WithSingleSleepLimit(time.Hour, nil))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create rate limit waiter")
	}

	httpClient := &http.Client{Transport: rateLimitWaiter}
	if token != "" {
		httpClient.Transport = &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}

	if c == nil {
		c = cache.NewNullCache()
	}
	return &GitHubGateway{
		client: github.NewClient(httpClient),
		cache:  c,
		ttl:    time.Hour,
	}, nil
}

// WithCacheTTL overrides how long hosting responses stay cached.
func (g *GitHubGateway) WithCacheTTL(ttl time.Duration) *GitHubGateway {
	if ttl > 0 {
		g.ttl = ttl
	}
	return g
}

// FetchMetadata returns the repository's profile.
func (g *GitHubGateway) FetchMetadata(ctx context.Context, repo Repository) (*Metadata, error) {
	var meta Metadata
	key := cache.HostingKey(repo.Owner, repo.Name, "metadata")
	if hit, _ := cache.GetJSON(ctx, g.cache, key, &meta); hit {
		return &meta, nil
	}

	var r *github.Repository
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		r, _, err = g.client.Repositories.Get(ctx, repo.Owner, repo.Name)
		if err != nil {
			return mapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta = Metadata{
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Language:      r.GetLanguage(),
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
		Private:       r.GetPrivate(),
	}
	if lic := r.GetLicense(); lic != nil {
		meta.License = lic.GetSPDXID()
	}
	if ts := r.GetCreatedAt(); !ts.IsZero() {
		t := ts.Time
		meta.CreatedAt = &t
	}
	if ts := r.GetPushedAt(); !ts.IsZero() {
		t := ts.Time
		meta.PushedAt = &t
	}

	_ = cache.SetJSON(ctx, g.cache, key, &meta, g.ttl)
	return &meta, nil
}

// FetchActivity summarizes commits, issues, and contributors over the
// trailing window.
func (g *GitHubGateway) FetchActivity(ctx context.Context, repo Repository, window time.Duration) (*Activity, error) {
	days := int(window.Hours() / 24)
	var activity Activity
	key := cache.HostingKey(repo.Owner, repo.Name, "activity:"+strconv.Itoa(days))
	if hit, _ := cache.GetJSON(ctx, g.cache, key, &activity); hit {
		return &activity, nil
	}

	since := time.Now().Add(-window)
	activity = Activity{WindowDays: days}

	commits, err := g.countCommits(ctx, repo, since)
	if err != nil {
		return nil, err
	}
	activity.CommitCount = commits

	if err := g.issueStats(ctx, repo, since, &activity); err != nil {
		return nil, err
	}

	contributors, err := g.topContributors(ctx, repo)
	if err != nil {
		return nil, err
	}
	activity.Contributors = contributors

	_ = cache.SetJSON(ctx, g.cache, key, &activity, g.ttl)
	return &activity, nil
}

func (g *GitHubGateway) countCommits(ctx context.Context, repo Repository, since time.Time) (int, error) {
	opts := &github.CommitsListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	count := 0
	for page := 0; page < maxActivityPages; page++ {
		var commits []*github.RepositoryCommit
		var resp *github.Response
		err := httputil.RetryWithBackoff(ctx, func() error {
			var err error
			commits, resp, err = g.client.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
			if err != nil {
				// An empty repository reports 409; treat as zero commits.
				if resp != nil && resp.StatusCode == http.StatusConflict {
					return errEmptyRepo
				}
				return mapError(err)
			}
			return nil
		})
		if stderrors.Is(err, errEmptyRepo) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		count += len(commits)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return count, nil
}

func (g *GitHubGateway) issueStats(ctx context.Context, repo Repository, since time.Time, activity *Activity) error {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var resolutionDays []float64
	for page := 0; page < maxActivityPages; page++ {
		var issues []*github.Issue
		var resp *github.Response
		err := httputil.RetryWithBackoff(ctx, func() error {
			var err error
			issues, resp, err = g.client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
			if err != nil {
				return mapError(err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, issue := range issues {
			// Pull requests come back through the issues API too.
			if issue.IsPullRequest() {
				continue
			}
			if issue.GetCreatedAt().After(since) {
				activity.IssuesOpened++
			}
			if issue.GetState() == "closed" && issue.ClosedAt != nil {
				activity.IssuesClosed++
				d := issue.GetClosedAt().Sub(issue.GetCreatedAt().Time).Hours() / 24
				if d > 0 {
					resolutionDays = append(resolutionDays, d)
				}
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(resolutionDays) > 0 {
		if mean, err := stats.Mean(resolutionDays); err == nil {
			activity.AvgIssueResolutionDays = mean
		}
	}
	return nil
}

func (g *GitHubGateway) topContributors(ctx context.Context, repo Repository) ([]Contributor, error) {
	opts := &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: topContributorCount},
	}
	var records []*github.Contributor
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		var resp *github.Response
		records, resp, err = g.client.Repositories.ListContributors(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			// A repository with no contributor data reports 204.
			if resp != nil && resp.StatusCode == http.StatusNoContent {
				return errEmptyRepo
			}
			return mapError(err)
		}
		return nil
	})
	if stderrors.Is(err, errEmptyRepo) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	contributors := make([]Contributor, 0, len(records))
	for _, r := range records {
		contributors = append(contributors, Contributor{
			Login:         r.GetLogin(),
			Contributions: r.GetContributions(),
		})
	}
	return contributors, nil
}

// mapError translates go-github errors into the error taxonomy. Server
// errors, rate limits, and network failures are marked retryable so the
// per-call backoff loop picks them up; auth and not-found failures return
// immediately.
func mapError(err error) error {
	var errResp *github.ErrorResponse
	if stderrors.As(err, &errResp) {
		switch errResp.Response.StatusCode {
		case http.StatusNotFound:
			return errors.Wrap(errors.ErrCodeRepoNotFound, err, "repository not found")
		case http.StatusUnauthorized:
			return errors.Wrap(errors.ErrCodeUnauthorized, err, "authentication failed")
		case http.StatusForbidden:
			return errors.Wrap(errors.ErrCodeForbidden, err, "access denied")
		}
		if errResp.Response.StatusCode >= 500 {
			return httputil.Retryable(errors.Wrap(errors.ErrCodeTransient, err, "hosting service error"))
		}
	}
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return httputil.Retryable(errors.Wrap(errors.ErrCodeRateLimited, err, "rate limited"))
	}
	return httputil.Retryable(errors.Wrap(errors.ErrCodeTransient, err, "hosting request failed"))
}
