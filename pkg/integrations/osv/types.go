package osv

import "encoding/json"

// Wire shapes for the OSV API (https://google.github.io/osv.dev).
// Only the fields the correlator consumes are declared.

type batchRequest struct {
	Queries []batchQuery `json:"queries"`
}

type batchQuery struct {
	Package packageRef `json:"package"`
	Version string     `json:"version,omitempty"`
}

type packageRef struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	Vulns []vulnRef `json:"vulns"`
}

// vulnRef is the minimal record querybatch returns; the full advisory is
// fetched separately by ID.
type vulnRef struct {
	ID string `json:"id"`
}

// vulnRecord is a full OSV advisory.
type vulnRecord struct {
	ID               string          `json:"id"`
	Summary          string          `json:"summary"`
	Severity         []severityEntry `json:"severity"`
	Affected         []affected      `json:"affected"`
	DatabaseSpecific json.RawMessage `json:"database_specific"`
}

type severityEntry struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type affected struct {
	Package           packageRef      `json:"package"`
	Ranges            []affectedRange `json:"ranges"`
	Versions          []string        `json:"versions"`
	EcosystemSpecific json.RawMessage `json:"ecosystem_specific"`
}

type affectedRange struct {
	Type   string       `json:"type"`
	Events []rangeEvent `json:"events"`
}

type rangeEvent struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

// severityLabel is the database_specific / ecosystem_specific fragment
// carrying a textual severity.
type severityLabel struct {
	Severity string `json:"severity"`
}
