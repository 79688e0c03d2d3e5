package model

import "time"

// RenderMode selects how a source's pages are fetched.
type RenderMode string

const (
	ModeStatic   RenderMode = "STATIC"
	ModeRendered RenderMode = "RENDERED"
)

// WaitStrategy is the "content ready" condition for rendered pages. A
// selector wins over a fixed settle time.
type WaitStrategy struct {
	Selector    string `yaml:"selector" json:"selector,omitempty"`
	SettleMS    int    `yaml:"settle_ms" json:"settle_ms,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs" json:"timeout_secs,omitempty"`
}

// Settle returns the settle duration, or def when unset.
func (w WaitStrategy) Settle(def time.Duration) time.Duration {
	if w.SettleMS > 0 {
		return time.Duration(w.SettleMS) * time.Millisecond
	}
	return def
}

// Timeout returns the render timeout, or def when unset.
func (w WaitStrategy) Timeout(def time.Duration) time.Duration {
	if w.TimeoutSecs > 0 {
		return time.Duration(w.TimeoutSecs) * time.Second
	}
	return def
}

// SourceProfile identifies one site. Loaded once at startup and treated as
// immutable.
type SourceProfile struct {
	Name           string            `yaml:"name" json:"name"`
	DisplayName    string            `yaml:"display_name" json:"display_name,omitempty"`
	URLs           []string          `yaml:"urls" json:"urls"`
	WarmupURL      string            `yaml:"warmup_url" json:"warmup_url,omitempty"`
	Mode           RenderMode        `yaml:"mode" json:"mode"`
	Wait           WaitStrategy      `yaml:"wait" json:"wait"`
	MinDelayMS     int               `yaml:"min_delay_ms" json:"min_delay_ms,omitempty"`
	MaxDelayMS     int               `yaml:"max_delay_ms" json:"max_delay_ms,omitempty"`
	MaxRetries     *int              `yaml:"max_retries" json:"max_retries,omitempty"`
	Headers        map[string]string `yaml:"headers" json:"headers,omitempty"`
	Chain          []string          `yaml:"chain" json:"chain"`
	AlwaysFallback bool              `yaml:"always_fallback" json:"always_fallback"`
	CacheBust      bool              `yaml:"cache_bust" json:"cache_bust"`
}

// FetchStatus is the outcome of one fetch.
type FetchStatus string

const (
	StatusOK        FetchStatus = "OK"
	StatusBlocked   FetchStatus = "BLOCKED"
	StatusTimeout   FetchStatus = "TIMEOUT"
	StatusHTTPError FetchStatus = "HTTP_ERROR"
	StatusEmpty     FetchStatus = "EMPTY"
)

// FetchResult is produced per fetch and consumed immediately by extraction.
type FetchResult struct {
	URL         string        `json:"url"`
	Status      FetchStatus   `json:"status"`
	Content     string        `json:"-"`
	StatusCode  int           `json:"status_code,omitempty"`
	Attempts    int           `json:"attempts"`
	Rotations   int           `json:"rotations"`
	Elapsed     time.Duration `json:"elapsed"`
	BlockReason string        `json:"block_reason,omitempty"`
	FromCache   bool          `json:"from_cache,omitempty"`
	Err         string        `json:"error,omitempty"`
}

// OK reports whether the fetch produced usable content.
func (r *FetchResult) OK() bool {
	return r.Status == StatusOK
}
