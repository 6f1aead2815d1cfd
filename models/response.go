package models

import "time"

// Run statuses reported by GET /api/v1/sync/:id.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// SyncResponse is the immediate acknowledgment for POST /api/v1/sync.
type SyncResponse struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// Run is the side-channel record of one sync run.
type Run struct {
	ID string `json:"id"`

	// Identity is the roll number the run logged in as.
	Identity string `json:"identity"`

	// Status is one of "running", "succeeded", "failed".
	Status string `json:"status"`

	// Step names the stage that failed (config, watermark, init, login,
	// scrape, deliver). Empty unless Status is "failed".
	Step string `json:"step,omitempty"`

	Watermark string `json:"watermark,omitempty"`

	// Delivered is the number of notices posted downstream.
	Delivered int `json:"delivered"`

	Error *ErrorDetail `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status != RunStatusRunning
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
	MaxRuns    int    `json:"max_runs"`
	Version    string `json:"version"`
}
