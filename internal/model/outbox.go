package model

import "time"

// OutboxKind names which dispatcher a claimed outbox entry is for.
type OutboxKind string

const (
	OutboxKindSubscription OutboxKind = "subscription"
	OutboxKindIntegration  OutboxKind = "integration"
)

// OutboxStatus is the lifecycle state of one durable dispatch attempt
// (SPEC_FULL.md's "claim-based background drain" supplemented
// feature, spec.md §9's stricter-delivery-semantics design note).
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxRunning OutboxStatus = "running"
	OutboxDone    OutboxStatus = "done"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is one durable delivery obligation produced alongside an
// event commit, drained by a claim-based worker instead of the
// in-process fire-and-forget goroutine path.
type OutboxEntry struct {
	ID          string       `gorm:"column:id;primaryKey"`
	EventID     string       `gorm:"column:event_id;index:idx_outbox_event"`
	Kind        OutboxKind   `gorm:"column:kind"`
	Status      OutboxStatus `gorm:"column:status;index:idx_outbox_status"`
	Attempts    int          `gorm:"column:attempts"`
	LastErrorAt *time.Time   `gorm:"column:last_error_at"`
	LastError   *string      `gorm:"column:last_error"`
	LockedAt    *time.Time   `gorm:"column:locked_at"`
	HeartbeatAt *time.Time   `gorm:"column:heartbeat_at"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at"`
}

func (OutboxEntry) TableName() string { return "outbox" }
