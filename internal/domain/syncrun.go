package domain

import "time"

// RunStatus represents the status of a sync run.
// Values include RunStatusRunning, RunStatusCompleted, and RunStatusFailed.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StatusIdle is the sentinel reported for a source that has never synced.
// It is never persisted.
const StatusIdle = "idle"

// SyncRun is one record in the run ledger. A run is created in state running
// and moved exactly once to a terminal state; it is immutable afterwards.
// For a given source at most one run may be running at any instant.
type SyncRun struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	Source        string     `gorm:"type:text;not null;index:idx_sync_runs_source" json:"source"`
	StartedAt     time.Time  `gorm:"not null;index:idx_sync_runs_started" json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Status        RunStatus  `gorm:"type:text;not null;index:idx_sync_runs_status" json:"status"`
	ItemsIngested int        `gorm:"default:0" json:"items_ingested"`
	Errors        string     `gorm:"type:text" json:"errors,omitempty"`
}

// TableName returns the database table name for SyncRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Terminal reports whether the run has reached a terminal state.
func (r *SyncRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
