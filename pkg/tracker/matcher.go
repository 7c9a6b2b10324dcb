package tracker

import (
	"regexp"
	"sort"
	"strings"
)

// Strategy names recorded in match results.
const (
	StrategyExact     = "exact"
	StrategySubstring = "substring"
	StrategyToken     = "token"
)

// Confidence levels per strategy. Strategies never combine scores; the
// first that succeeds wins outright.
const (
	ConfidenceExact     = 1.0
	ConfidenceSubstring = 0.7
	ConfidenceToken     = 0.4
)

// stopWords are tokens too generic to establish identity on their own.
var stopWords = map[string]bool{
	"app":      true,
	"service":  true,
	"api":      true,
	"web":      true,
	"www":      true,
	"server":   true,
	"backend":  true,
	"frontend": true,
	"client":   true,
	"lib":      true,
	"core":     true,
	"test":     true,
	"demo":     true,
}

var punctRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalize lowercases and unifies punctuation: any run of non-alphanumeric
// characters (hyphens, underscores, dots) collapses to a single hyphen, so
// "My_App" and "my-app" compare equal.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = punctRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// tokenize splits a normalized string into its hyphen-separated segments.
func tokenize(s string) []string {
	norm := normalize(s)
	if norm == "" {
		return nil
	}
	return strings.Split(norm, "-")
}

// Match finds the error-tracking project for a repository, trying exact
// name equality, then substring containment, then shared non-generic
// tokens. Projects are evaluated in slug order, so identical inputs always
// produce the identical result.
func Match(repoOwner, repoName string, projects []Project) MatchResult {
	if len(projects) == 0 {
		return MatchResult{}
	}

	ordered := make([]Project, len(projects))
	copy(ordered, projects)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slug < ordered[j].Slug })

	repo := normalize(repoName)
	if repo == "" {
		return MatchResult{}
	}

	if p := matchExact(repo, ordered); p != nil {
		return MatchResult{Project: p, Confidence: ConfidenceExact, Strategy: StrategyExact}
	}
	if p := matchSubstring(repo, ordered); p != nil {
		return MatchResult{Project: p, Confidence: ConfidenceSubstring, Strategy: StrategySubstring}
	}
	if p := matchTokens(repoOwner, repoName, ordered); p != nil {
		return MatchResult{Project: p, Confidence: ConfidenceToken, Strategy: StrategyToken}
	}
	return MatchResult{}
}

func matchExact(repo string, projects []Project) *Project {
	for i, p := range projects {
		if normalize(p.Name) == repo || normalize(p.Slug) == repo {
			return &projects[i]
		}
	}
	return nil
}

// matchSubstring finds projects whose normalized name contains the
// repository name or vice versa. Containment is checked on token
// boundaries: the shorter name must appear as a whole run of the longer
// one's tokens, so a one-letter project name cannot swallow every
// repository. Among candidates, the smallest absolute length difference
// wins; remaining ties go to the lexicographically smallest slug (already
// guaranteed by the evaluation order).
func matchSubstring(repo string, projects []Project) *Project {
	repoToks := strings.Split(repo, "-")

	var best *Project
	bestDiff := -1
	for i, p := range projects {
		name := normalize(p.Name)
		if name == "" {
			continue
		}
		nameToks := strings.Split(name, "-")
		if !containsTokenRun(nameToks, repoToks) && !containsTokenRun(repoToks, nameToks) {
			continue
		}
		diff := len(name) - len(repo)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = &projects[i]
			bestDiff = diff
		}
	}
	return best
}

// containsTokenRun reports whether needle appears as a contiguous run of
// haystack's tokens.
func containsTokenRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for start := 0; start+len(needle) <= len(haystack); start++ {
		match := true
		for j, tok := range needle {
			if haystack[start+j] != tok {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// matchTokens requires at least one shared token between the repository's
// owner/name and the project's slug/teams, excluding generic stop-words.
// Among candidates, the most shared tokens wins; remaining ties go to the
// smallest slug via the evaluation order.
func matchTokens(repoOwner, repoName string, projects []Project) *Project {
	repoTokens := make(map[string]bool)
	for _, tok := range append(tokenize(repoOwner), tokenize(repoName)...) {
		if !stopWords[tok] {
			repoTokens[tok] = true
		}
	}
	if len(repoTokens) == 0 {
		return nil
	}

	var best *Project
	bestShared := 0
	for i, p := range projects {
		candidates := tokenize(p.Slug)
		for _, team := range p.Teams {
			candidates = append(candidates, tokenize(team)...)
		}
		seen := make(map[string]bool)
		shared := 0
		for _, tok := range candidates {
			if repoTokens[tok] && !seen[tok] {
				seen[tok] = true
				shared++
			}
		}
		if shared > bestShared {
			best = &projects[i]
			bestShared = shared
		}
	}
	return best
}
