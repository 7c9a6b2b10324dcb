// Package osv implements the advisory.Source interface against the OSV
// vulnerability database.
package osv

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/httputil"
	"github.com/parkerhq/fleetaudit/pkg/integrations"
	"github.com/parkerhq/fleetaudit/pkg/manifest"
	"github.com/parkerhq/fleetaudit/pkg/version"
)

const (
	defaultBaseURL = "https://api.osv.dev/v1"

	// batchChunkSize is the maximum queries per querybatch call.
	batchChunkSize = 100
)

// Client queries the OSV API. Full advisory records are cached by ID since
// querybatch only returns vulnerability identifiers.
type Client struct {
	api     *integrations.Client
	baseURL string
}

// NewClient creates an OSV client backed by the given cache.
func NewClient(c cache.Cache) *Client {
	return &Client{
		api:     integrations.NewClient(c, nil),
		baseURL: defaultBaseURL,
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint,
// used by tests and mirror deployments.
func NewClientWithBaseURL(c cache.Cache, baseURL string) *Client {
	cl := NewClient(c)
	cl.baseURL = baseURL
	return cl
}

// WithCacheTTL overrides how long advisory responses stay cached.
func (c *Client) WithCacheTTL(ttl time.Duration) *Client {
	c.api.SetCacheTTL(ttl)
	return c
}

// QueryBatch resolves advisories for each query, keyed by Query.Key().
// Queries are chunked to the API's batch limit. Exact constraints are sent
// with their version so the service narrows the result; range constraints
// are queried by package and intersected locally by the correlator. A query
// whose records cannot be fetched is omitted from the result map so only it
// resolves as unknown.
func (c *Client) QueryBatch(ctx context.Context, queries []advisory.Query) (map[string][]advisory.Advisory, error) {
	results := make(map[string][]advisory.Advisory, len(queries))

	for start := 0; start < len(queries); start += batchChunkSize {
		chunk := queries[start:min(start+batchChunkSize, len(queries))]

		req := batchRequest{Queries: make([]batchQuery, len(chunk))}
		for i, q := range chunk {
			bq := batchQuery{Package: packageRef{Name: q.Name, Ecosystem: string(q.Ecosystem)}}
			if q.Constraint.Exact {
				bq.Version = q.Constraint.Version.String()
			}
			req.Queries[i] = bq
		}

		var resp batchResponse
		err := httputil.RetryWithBackoff(ctx, func() error {
			resp = batchResponse{}
			return c.api.PostJSON(ctx, c.baseURL+"/querybatch", req, &resp)
		})
		if err != nil {
			return nil, err
		}

		for i, res := range resp.Results {
			if i >= len(chunk) {
				break
			}
			q := chunk[i]
			advisories := make([]advisory.Advisory, 0, len(res.Vulns))
			enriched := true
			for _, ref := range res.Vulns {
				record, err := c.fetchVuln(ctx, ref.ID)
				if err != nil {
					// Leaving the key out makes only this query
					// resolve as unknown; siblings still settle.
					enriched = false
					break
				}
				advisories = append(advisories, convert(record, q.Ecosystem, q.Name))
			}
			if enriched {
				results[q.Key()] = advisories
			}
		}
	}
	return results, nil
}

// fetchVuln retrieves a full advisory record by ID, served from cache when
// possible since many packages share the same advisories.
func (c *Client) fetchVuln(ctx context.Context, id string) (*vulnRecord, error) {
	var record vulnRecord
	key := cache.AdvisoryKey("osv-vuln", id, "")
	err := c.api.Cached(ctx, key, &record, func() error {
		return c.api.Get(ctx, c.baseURL+"/vulns/"+id, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// convert maps an OSV record to the domain advisory for one package.
// Severity is derived in order: database_specific label, then the affected
// entries' ecosystem_specific labels, then CVSS score buckets.
func convert(record *vulnRecord, eco manifest.Ecosystem, pkg string) advisory.Advisory {
	adv := advisory.Advisory{
		ID:        record.ID,
		Ecosystem: eco,
		Package:   pkg,
		Summary:   record.Summary,
	}

	for _, aff := range record.Affected {
		if aff.Package.Name != "" && aff.Package.Name != pkg {
			continue
		}
		adv.Ranges = append(adv.Ranges, convertRanges(aff)...)
	}

	score := cvssScore(record.Severity)
	adv.CVSSScore = score

	sev := labelSeverity(record.DatabaseSpecific)
	if sev == advisory.SeverityUnknown {
		sev = ecosystemSeverity(record.Affected)
	}
	if sev == advisory.SeverityUnknown && score > 0 {
		sev = advisory.SeverityFromScore(score)
	}
	adv.Severity = sev
	return adv
}

func convertRanges(aff affected) []version.Range {
	var ranges []version.Range
	for _, r := range aff.Ranges {
		var current version.Range
		open := false
		for _, ev := range r.Events {
			switch {
			case ev.Introduced != "":
				if open {
					ranges = append(ranges, current)
				}
				current = version.Range{}
				open = true
				// "0" means affected from the first release
				if ev.Introduced != "0" {
					if v, err := version.Parse(ev.Introduced); err == nil {
						current.Introduced = v
					}
				}
			case ev.Fixed != "":
				if v, err := version.Parse(ev.Fixed); err == nil {
					current.Fixed = v
				}
				if open {
					ranges = append(ranges, current)
					open = false
				}
			case ev.LastAffected != "":
				if v, err := version.Parse(ev.LastAffected); err == nil {
					current.LastAffected = v
				}
				if open {
					ranges = append(ranges, current)
					open = false
				}
			}
		}
		if open {
			ranges = append(ranges, current)
		}
	}
	for _, v := range aff.Versions {
		if parsed, err := version.Parse(v); err == nil {
			ranges = append(ranges, version.PointRange(parsed))
		}
	}
	return ranges
}

// cvssScore extracts a numeric CVSS base score, preferring v3 over v2.
// Vector strings without a numeric score are ignored.
func cvssScore(entries []severityEntry) float64 {
	for _, preferred := range []string{"CVSS_V3", "CVSS_V2"} {
		for _, e := range entries {
			if e.Type != preferred {
				continue
			}
			if score, err := strconv.ParseFloat(e.Score, 64); err == nil {
				return score
			}
		}
	}
	return 0
}

func labelSeverity(raw json.RawMessage) advisory.Severity {
	if len(raw) == 0 {
		return advisory.SeverityUnknown
	}
	var label severityLabel
	if err := json.Unmarshal(raw, &label); err != nil {
		return advisory.SeverityUnknown
	}
	return advisory.ParseSeverity(label.Severity)
}

// ecosystemSeverity returns the highest severity declared across the
// affected entries' ecosystem_specific fragments.
func ecosystemSeverity(affs []affected) advisory.Severity {
	best := advisory.SeverityUnknown
	for _, aff := range affs {
		if len(aff.EcosystemSpecific) == 0 {
			continue
		}
		var label severityLabel
		if err := json.Unmarshal(aff.EcosystemSpecific, &label); err != nil {
			continue
		}
		best = advisory.Max(best, advisory.ParseSeverity(label.Severity))
	}
	return best
}

var _ advisory.Source = (*Client)(nil)
