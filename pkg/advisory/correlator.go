package advisory

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"github.com/parkerhq/fleetaudit/pkg/manifest"
)

// ResolutionStatus distinguishes a clean lookup from a failed one.
// StatusUnknown means the advisory service could not be consulted for the
// dependency, which is not the same as StatusResolved with zero matches.
type ResolutionStatus string

const (
	StatusResolved ResolutionStatus = "resolved"
	StatusUnknown  ResolutionStatus = "unknown"
)

// Match links one dependency to its advisories.
// Definite matches have an exact declared version inside an affected range;
// potential matches have a range or unresolved constraint that overlaps one.
type Match struct {
	Dependency manifest.Dependency `json:"dependency"`
	Definite   []Advisory          `json:"definite,omitempty"`
	Potential  []Advisory          `json:"potential,omitempty"`
	Status     ResolutionStatus    `json:"status"`
}

// Summary aggregates matches for one repository.
type Summary struct {
	DefiniteBySeverity  map[Severity]int `json:"definite_by_severity,omitempty"`
	PotentialBySeverity map[Severity]int `json:"potential_by_severity,omitempty"`
	HighestSeverity     Severity         `json:"highest_severity"`
	TotalDefinite       int              `json:"total_definite"`
	TotalPotential      int              `json:"total_potential"`
	UnknownDeps         int              `json:"unknown_dependencies"`
}

// Snapshot holds the resolved advisories for every distinct query of a run.
// It is built once before repository workers fan out and is read-only
// afterwards, so workers share it without locking.
type Snapshot struct {
	advisories map[string][]Advisory
	failed     map[string]bool
}

// Lookup returns the advisories for a dependency and whether the lookup
// succeeded.
func (s *Snapshot) Lookup(dep manifest.Dependency) ([]Advisory, bool) {
	key := queryFor(dep).Key()
	if s.failed[key] {
		return nil, false
	}
	advisories, ok := s.advisories[key]
	return advisories, ok
}

// QueryCount reports how many distinct lookups the snapshot holds,
// including failed ones.
func (s *Snapshot) QueryCount() int { return len(s.advisories) + len(s.failed) }

func queryFor(dep manifest.Dependency) Query {
	return Query{Ecosystem: dep.Ecosystem, Name: dep.Name, Constraint: dep.Constraint}
}

// Correlator resolves dependencies against an advisory source.
type Correlator struct {
	source Source
	// limiter caps in-flight advisory-service calls process-wide. It is
	// shared with whatever else talks to the same service.
	limiter *semaphore.Weighted
	// batchSize is the number of queries handed to the source per call.
	batchSize int
	// workers bounds the sub-pool that issues batches concurrently.
	workers int
	logger  *log.Logger
}

// CorrelatorOptions configures batch sizing and concurrency.
type CorrelatorOptions struct {
	// Limiter caps concurrent advisory-service calls. Required.
	Limiter *semaphore.Weighted
	// BatchSize defaults to 100.
	BatchSize int
	// Workers defaults to 4.
	Workers int
	Logger  *log.Logger
}

// NewCorrelator creates a correlator over the given advisory source.
func NewCorrelator(source Source, opts CorrelatorOptions) *Correlator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Limiter == nil {
		opts.Limiter = semaphore.NewWeighted(int64(opts.Workers))
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Correlator{
		source:    source,
		limiter:   opts.Limiter,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		logger:    opts.Logger,
	}
}

// BuildSnapshot deduplicates the run's dependencies by (ecosystem, name,
// constraint) and resolves each distinct query exactly once. Queries are
// batched and issued from a bounded worker pool; a failed batch marks only
// its own queries as unresolved and never aborts sibling batches.
func (c *Correlator) BuildSnapshot(ctx context.Context, deps []manifest.Dependency) *Snapshot {
	queries := dedupeQueries(deps)

	snap := &Snapshot{
		advisories: make(map[string][]Advisory, len(queries)),
		failed:     make(map[string]bool),
	}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(c.workers)
	for start := 0; start < len(queries); start += c.batchSize {
		batch := queries[start:min(start+c.batchSize, len(queries))]
		p.Go(func() {
			if err := c.limiter.Acquire(ctx, 1); err != nil {
				c.markFailed(snap, &mu, batch, err)
				return
			}
			results, err := c.source.QueryBatch(ctx, batch)
			c.limiter.Release(1)
			if err != nil {
				c.markFailed(snap, &mu, batch, err)
				return
			}

			mu.Lock()
			for _, q := range batch {
				key := q.Key()
				if advisories, ok := results[key]; ok {
					snap.advisories[key] = advisories
				} else {
					snap.failed[key] = true
				}
			}
			mu.Unlock()
		})
	}
	p.Wait()

	c.logger.Debug("advisory snapshot built",
		"queries", len(queries), "failed", len(snap.failed))
	return snap
}

func (c *Correlator) markFailed(snap *Snapshot, mu *sync.Mutex, batch []Query, err error) {
	c.logger.Warn("advisory batch failed", "queries", len(batch), "err", err)
	mu.Lock()
	for _, q := range batch {
		snap.failed[q.Key()] = true
	}
	mu.Unlock()
}

// dedupeQueries collapses dependencies into distinct queries, sorted by key
// so batch composition is deterministic.
func dedupeQueries(deps []manifest.Dependency) []Query {
	seen := make(map[string]bool)
	var queries []Query
	for _, dep := range deps {
		q := queryFor(dep)
		if key := q.Key(); !seen[key] {
			seen[key] = true
			queries = append(queries, q)
		}
	}
	sort.Slice(queries, func(i, j int) bool { return queries[i].Key() < queries[j].Key() })
	return queries
}

// Correlate matches one repository's dependencies against the snapshot.
// Only dependencies with at least one advisory match or a failed lookup
// appear in the result.
func Correlate(snap *Snapshot, deps []manifest.Dependency) []Match {
	var matches []Match
	for _, dep := range deps {
		advisories, ok := snap.Lookup(dep)
		if !ok {
			matches = append(matches, Match{Dependency: dep, Status: StatusUnknown})
			continue
		}

		m := Match{Dependency: dep, Status: StatusResolved}
		for _, adv := range advisories {
			if !adv.AffectsConstraint(dep.Constraint) {
				continue
			}
			if dep.Constraint.Exact {
				m.Definite = append(m.Definite, adv)
			} else {
				m.Potential = append(m.Potential, adv)
			}
		}
		if len(m.Definite) > 0 || len(m.Potential) > 0 {
			matches = append(matches, m)
		}
	}
	return matches
}

// Summarize counts matches by severity and records the highest observed.
func Summarize(matches []Match) Summary {
	s := Summary{
		DefiniteBySeverity:  make(map[Severity]int),
		PotentialBySeverity: make(map[Severity]int),
		HighestSeverity:     SeverityUnknown,
	}
	for _, m := range matches {
		if m.Status == StatusUnknown {
			s.UnknownDeps++
			continue
		}
		for _, adv := range m.Definite {
			s.DefiniteBySeverity[adv.Severity]++
			s.TotalDefinite++
			s.HighestSeverity = Max(s.HighestSeverity, adv.Severity)
		}
		for _, adv := range m.Potential {
			s.PotentialBySeverity[adv.Severity]++
			s.TotalPotential++
			s.HighestSeverity = Max(s.HighestSeverity, adv.Severity)
		}
	}
	if s.TotalDefinite == 0 && s.TotalPotential == 0 {
		s.DefiniteBySeverity = nil
		s.PotentialBySeverity = nil
	}
	return s
}
