package model

import "time"

// DispatchStatus is the outcome of one completed integration-dispatch
// attempt (spec.md §3).
type DispatchStatus string

const (
	DispatchSuccess DispatchStatus = "success"
	DispatchError   DispatchStatus = "error"
)

// DispatchLogEntry records one completed attempt to deliver an event
// to an integration hook's downstream service. Never surfaced to the
// caller of the triggering verb (spec.md §7 propagation rule).
type DispatchLogEntry struct {
	ID         string         `gorm:"column:id;primaryKey"`
	EventID    string         `gorm:"column:event_id;index:idx_dispatch_log_event"`
	HookID     string         `gorm:"column:hook_id"`
	Service    ServiceName    `gorm:"column:service"`
	Method     string         `gorm:"column:method"`
	Status     DispatchStatus `gorm:"column:status"`
	StatusCode *int           `gorm:"column:status_code"`
	Error      *string        `gorm:"column:error"`
	DurationMs int64          `gorm:"column:duration_ms"`
	Timestamp  time.Time      `gorm:"column:timestamp;index:idx_dispatch_log_timestamp"`
}

func (DispatchLogEntry) TableName() string { return "dispatch_log" }
