// Package outbox implements the claim-based background drain that
// backs the optional durable dispatch path (SPEC_FULL.md's
// "claim-based background drain" supplemented feature; spec.md §9's
// "implementers targeting stricter delivery semantics" design note).
// It is adapted from the teacher's internal/jobs.Worker +
// internal/repos's ClaimNextRunnable SKIP LOCKED claim query: the
// default dispatch path remains the in-process fire-and-forget
// goroutines in dispatch/subscriptions and dispatch/integrations, and
// this package is an alternative a kernel can opt into for
// at-least-once delivery instead.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/nounforge/entitykernel/internal/ids"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store owns the outbox table for one tenant.
type Store struct {
	db     *gorm.DB
	driver storage.Driver
}

func New(db *gorm.DB, driver storage.Driver) *Store {
	return &Store{db: db, driver: driver}
}

// EnqueueInTx inserts one durable delivery obligation for eventID
// inside the caller's transaction. Its one caller, Kernel.Dispatch,
// runs that transaction after the entity mutation and its event have
// committed, so the entry is not written atomically with them.
func (s *Store) EnqueueInTx(dbc dbctx.Context, eventID string, kind model.OutboxKind) error {
	if dbc.Tx == nil {
		return errors.New("outbox.EnqueueInTx requires an active transaction")
	}
	now := time.Now().UTC()
	entry := &model.OutboxEntry{
		ID:        ids.New("obx", 12),
		EventID:   eventID,
		Kind:      kind,
		Status:    model.OutboxQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return dbc.Tx.Create(entry).Error
}

// ClaimNext atomically claims the oldest runnable entry: queued, or
// failed with attempts below maxAttempts whose last error is older
// than retryDelay, or running but stuck past staleRunning (worker
// died mid-delivery). Grounded directly on
// internal/repos.courseGenerationRunRepo.ClaimNextRunnable's
// three-way OR and its mark-running update in the same transaction.
// The SKIP LOCKED row lock only applies under Postgres, where multiple
// worker processes can race on the same row; SQLite's single-writer
// transaction serialization makes the clause both unsupported and
// unnecessary there.
func (s *Store) ClaimNext(ctx context.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*model.OutboxEntry, error) {
	now := time.Now().UTC()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)

	var claimed *model.OutboxEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.OutboxEntry
		q := tx
		if s.driver == storage.DriverPostgres {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		err := q.Where(`
			(
				status = ?
				OR (status = ? AND attempts < ? AND (last_error_at IS NULL OR last_error_at < ?))
				OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)
			)
		`, model.OutboxQueued, model.OutboxFailed, maxAttempts, retryCutoff, model.OutboxRunning, staleCutoff).
			Order("created_at ASC").
			First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":       model.OutboxRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}
		if err := tx.Model(&model.OutboxEntry{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
			return err
		}
		entry.Status = model.OutboxRunning
		entry.Attempts++
		entry.LockedAt = &now
		entry.HeartbeatAt = &now
		entry.UpdatedAt = now
		claimed = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkDone records successful delivery.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).Updates(map[string]any{
		"status":     model.OutboxDone,
		"updated_at": time.Now().UTC(),
	}).Error
}

// MarkFailed records a failed attempt; ClaimNext will retry it after
// retryDelay, up to maxAttempts.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	now := time.Now().UTC()
	msg := cause.Error()
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).Updates(map[string]any{
		"status":        model.OutboxFailed,
		"last_error":    msg,
		"last_error_at": now,
		"updated_at":    now,
	}).Error
}
