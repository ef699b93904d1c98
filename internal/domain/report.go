package domain

import "time"

// CommunityResult holds everything one pipeline run produced for a community.
// Raw is empty, not nil-vs-absent, when the community was unavailable.
type CommunityResult struct {
	Community string       `json:"community"`
	Raw       []Post       `json:"raw"`
	Ranked    []ScoredPost `json:"ranked"`
	Recent    []ScoredPost `json:"recent"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	Err       error        `json:"-"`
}

// Report is the materialized output of one pipeline run, in configured
// community order.
type Report struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	WindowDays int               `json:"window_days"`
	TopN       int               `json:"top_n"`
	Weights    Weights           `json:"weights"`
	Results    []CommunityResult `json:"results"`
}

// Totals returns the number of raw, windowed and ranked posts across communities.
func (r Report) Totals() (raw, windowed, ranked int) {
	for _, res := range r.Results {
		raw += len(res.Raw)
		windowed += len(res.Recent)
		ranked += len(res.Ranked)
	}
	return raw, windowed, ranked
}
