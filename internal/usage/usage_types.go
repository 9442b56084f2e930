package usage

import "time"

// UsageData is the persisted document.
type UsageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds request counters overall and per endpoint.
type AggregatedStats struct {
	Total      RequestCounts            `json:"total"`
	ByEndpoint map[string]RequestCounts `json:"by_endpoint"`
	ByOutcome  map[string]int64         `json:"by_outcome"` // structured, binary, failure, transport
	LastUsed   time.Time                `json:"last_used,omitempty"`
}

// RequestCounts sums one dimension.
type RequestCounts struct {
	Requests      int64   `json:"requests"`
	Failures      int64   `json:"failures"`
	ServerSeconds float64 `json:"server_seconds"` // durations the backend reported
	WallSeconds   float64 `json:"wall_seconds"`   // measured on the client
}

// Add counts one request.
func (rc *RequestCounts) Add(failed bool, server, wall float64) {
	rc.Requests++
	if failed {
		rc.Failures++
	}
	rc.ServerSeconds += server
	rc.WallSeconds += wall
}
