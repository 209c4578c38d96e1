// Package eventlog implements the append-only event log (spec.md C5):
// sequence assignment, query/history/getById reads, and the in-
// transaction append primitive C4/C6 call from inside their own
// mutation transaction so the entity write and its event share one
// commit boundary (spec.md §4.6).
package eventlog

import (
	"context"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/aggregates"
	"github.com/nounforge/entitykernel/internal/ids"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"gorm.io/gorm"
)

// Store is the per-tenant event log over one storage engine.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// AppendInTx computes the next per-entity sequence number and inserts
// the event row, all inside the caller's transaction. The caller
// (entitystore/verbexec) is responsible for committing the entity
// mutation in the same transaction so E3/E4 hold.
func (s *Store) AppendInTx(dbc dbctx.Context, ev *model.Event) (*model.Event, error) {
	if dbc.Tx == nil {
		return nil, aggregates.ValidationError("AppendInTx requires an active transaction")
	}
	if ev.EntityType == "" || ev.EntityID == "" || ev.Verb == "" {
		return nil, aggregates.ValidationError("event requires entityType, entityId, and verb")
	}

	var maxSeq int
	row := dbc.Tx.Model(&model.EventRow{}).
		Where("entity_type = ? AND entity_id = ?", ev.EntityType, ev.EntityID).
		Select("COALESCE(MAX(sequence), 0)").Row()
	if err := row.Scan(&maxSeq); err != nil {
		return nil, err
	}

	ev.ID = ids.Event()
	ev.Type = ev.EntityType + "." + ev.Verb
	ev.Sequence = maxSeq + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	dbRow, err := ev.ToRow()
	if err != nil {
		return nil, err
	}
	if err := dbc.Tx.Create(dbRow).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// Query returns events ordered by timestamp DESC (spec.md §4.6),
// optionally filtered by since/type/entityId/verb, capped at 1000.
type QueryParams struct {
	Since    *time.Time
	Type     string
	EntityID string
	Verb     string
	Limit    int
}

func (s *Store) Query(ctx context.Context, p QueryParams) ([]*model.Event, error) {
	q := s.db.WithContext(ctx).Model(&model.EventRow{})
	if p.Since != nil {
		q = q.Where("timestamp >= ?", *p.Since)
	}
	if t := strings.TrimSpace(p.Type); t != "" {
		q = q.Where("entity_type = ?", t)
	}
	if id := strings.TrimSpace(p.EntityID); id != "" {
		q = q.Where("entity_id = ?", id)
	}
	if v := strings.TrimSpace(p.Verb); v != "" {
		q = q.Where("verb = ?", v)
	}
	limit := p.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var rows []model.EventRow
	if err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "eventlog.query", err)
	}
	return fromRows(rows)
}

// History returns every event for one entity, ordered by sequence ASC
// with no limit, for full replay (spec.md §4.6).
func (s *Store) History(ctx context.Context, entityType, entityID string) ([]*model.Event, error) {
	var rows []model.EventRow
	err := s.db.WithContext(ctx).Model(&model.EventRow{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "eventlog.history", err)
	}
	return fromRows(rows)
}

// GetByID returns a single event, or NotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var row model.EventRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, kernelerr.New(kernelerr.CodeNotFound, "eventlog.getById", "event not found: "+id, nil)
		}
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "eventlog.getById", err)
	}
	ev, err := model.EventFromRow(&row)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "eventlog.getById", err)
	}
	return ev, nil
}

func fromRows(rows []model.EventRow) ([]*model.Event, error) {
	out := make([]*model.Event, 0, len(rows))
	for i := range rows {
		ev, err := model.EventFromRow(&rows[i])
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.CodeInternal, "eventlog.fromRows", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
