package models

import "time"

// RunStatus is the lifecycle state of a monitoring run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// RunRecord is the append-only history of orchestrated runs
type RunRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunUUID         string    `gorm:"type:varchar(36);not null;index" json:"run_uuid"`
	StartedAt       time.Time `gorm:"type:datetime;not null;index:idx_started_at,sort:desc" json:"started_at"`
	Status          RunStatus `gorm:"type:varchar(10);not null;default:'RUNNING'" json:"status"`
	CollectedCount  int       `gorm:"not null;default:0" json:"collected_count"`
	NewCount        int       `gorm:"not null;default:0" json:"new_count"`
	DurationSeconds float64   `gorm:"not null;default:0" json:"duration_seconds"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name
func (RunRecord) TableName() string {
	return "run_records"
}

// RunUpdate holds the fields written when a run is finalized
type RunUpdate struct {
	Status          RunStatus
	CollectedCount  int
	NewCount        int
	DurationSeconds float64
	ErrorMessage    string
}

// Apply copies the update onto the record
func (u RunUpdate) Apply(r *RunRecord) {
	r.Status = u.Status
	r.CollectedCount = u.CollectedCount
	r.NewCount = u.NewCount
	r.DurationSeconds = u.DurationSeconds
	if u.Status == RunStatusFailed {
		r.ErrorMessage = u.ErrorMessage
	} else {
		r.ErrorMessage = ""
	}
}
