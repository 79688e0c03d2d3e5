package model

import "time"

// FailureCategory explains why a source produced no leads.
type FailureCategory string

const (
	FailureNone         FailureCategory = ""
	FailureBlocked      FailureCategory = "fetch_blocked"
	FailureTimeout      FailureCategory = "fetch_timeout"
	FailureHTTPError    FailureCategory = "fetch_http_error"
	FailureEmpty        FailureCategory = "fetch_empty"
	FailureNoCandidates FailureCategory = "no_candidates"
	FailureNoValidLeads FailureCategory = "no_valid_leads"
	FailureCancelled    FailureCategory = "cancelled"
	FailurePanic        FailureCategory = "panic"
)

// FailureForStatus maps a non-OK fetch status to its failure category.
func FailureForStatus(s FetchStatus) FailureCategory {
	switch s {
	case StatusBlocked:
		return FailureBlocked
	case StatusTimeout:
		return FailureTimeout
	case StatusHTTPError:
		return FailureHTTPError
	case StatusEmpty:
		return FailureEmpty
	default:
		return FailureNone
	}
}

// SourceStats holds per-source counters for one run.
type SourceStats struct {
	Source               string          `json:"source"`
	Status               FetchStatus     `json:"status"`
	Failure              FailureCategory `json:"failure,omitempty"`
	Strategy             string          `json:"strategy,omitempty"`
	Attempts             int             `json:"attempts"`
	Successes            int             `json:"successes"`
	CandidatesFound      int             `json:"candidates_found"`
	CandidatesNormalized int             `json:"candidates_normalized"`
	Leads                int             `json:"leads"`
	ElapsedMS            int64           `json:"elapsed_ms"`
}

// Failed reports whether the source ended in a failure category.
func (s SourceStats) Failed() bool {
	return s.Failure != FailureNone
}

// RunTotals sums SourceStats counters across sources.
type RunTotals struct {
	Sources              int `json:"sources"`
	SourcesFailed        int `json:"sources_failed"`
	Attempts             int `json:"attempts"`
	Successes            int `json:"successes"`
	CandidatesFound      int `json:"candidates_found"`
	CandidatesNormalized int `json:"candidates_normalized"`
	Leads                int `json:"leads"`
}

// Add merges one source's counters into the totals.
func (t *RunTotals) Add(s SourceStats) {
	t.Sources++
	if s.Failed() {
		t.SourcesFailed++
	}
	t.Attempts += s.Attempts
	t.Successes += s.Successes
	t.CandidatesFound += s.CandidatesFound
	t.CandidatesNormalized += s.CandidatesNormalized
	t.Leads += s.Leads
}

// RunSummary is the stats block of a run document.
type RunSummary struct {
	Sources []SourceStats `json:"sources"`
	Totals  RunTotals     `json:"totals"`
}

// RunResult is the single output of a coordinated run.
type RunResult struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Leads      []StockLead `json:"leads"`
	Summary    RunSummary  `json:"summary"`

	// ScoreConfigHash identifies the weights that produced Confidence.
	ScoreConfigHash string `json:"score_config_hash,omitempty"`
}
