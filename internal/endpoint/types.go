package endpoint

import "time"

// Origin records where a candidate URL came from.
type Origin string

const (
	OriginPreset    Origin = "preset"
	OriginPersisted Origin = "persisted"
	OriginSelected  Origin = "selected"
	OriginUser      Origin = "user"
)

// IsCustom reports whether candidates of this origin belong to the
// user-managed custom endpoint set that is persisted on commit.
func (o Origin) IsCustom() bool {
	return o == OriginPersisted || o == OriginUser
}

// ProbeResult is the outcome of probing one URL. A nil LatencyMs with an
// empty Error means the URL has not been tested yet (or is pending); a nil
// LatencyMs with a non-empty Error means the probe failed.
type ProbeResult struct {
	URL        string `json:"url"`
	LatencyMs  *int64 `json:"latency_ms"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether the probe produced a latency.
func (r ProbeResult) OK() bool {
	return r.LatencyMs != nil
}

// Failed reports whether the probe ran and failed.
func (r ProbeResult) Failed() bool {
	return r.LatencyMs == nil && r.Error != ""
}

// Candidate is a URL eligible for speed testing and selection.
type Candidate struct {
	ID     string       `json:"id"`
	URL    string       `json:"url"`
	Origin Origin       `json:"origin"`
	Result *ProbeResult `json:"result,omitempty"`
}

// CustomEndpoint is a user-managed endpoint persisted per provider.
// Records are replaced, never mutated in place.
type CustomEndpoint struct {
	URL      string     `json:"url"`
	AddedAt  time.Time  `json:"added_at"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}
