// Package entitystore implements the entity store (spec.md C4):
// create/get/list/update/delete over per-tenant entities, each
// mutation appending exactly one event in the same transaction
// (spec.md §4.6, invariants E3/E4).
package entitystore

import (
	"context"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/aggregates"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/ids"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"gorm.io/gorm"
)

// Store is the per-tenant entity store.
type Store struct {
	deps   aggregates.BaseDeps
	schema *schema.Registry
	events *eventlog.Store
	log    *logger.Logger
	driver storage.Driver
}

func New(db *gorm.DB, log *logger.Logger, hooks aggregates.Hooks, reg *schema.Registry, events *eventlog.Store, driver storage.Driver) *Store {
	return &Store{
		deps: aggregates.BaseDeps{
			DB:     db,
			Log:    log,
			Runner: aggregates.NewGormTxRunner(db),
			Hooks:  hooks,
		},
		schema: reg,
		events: events,
		log:    log,
		driver: driver,
	}
}

// reservedFields can never be set from a caller-supplied patch or
// create payload (spec.md §4.4's "strips reserved meta-fields").
var reservedFields = map[string]bool{
	"id": true, "type": true, "context": true, "createdAt": true, "version": true,
}

func stripReserved(doc model.Document) model.Document {
	out := model.Document{}
	for k, v := range doc {
		if reservedFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func mergeDocument(base, patch model.Document) model.Document {
	out := base.Clone()
	if out == nil {
		out = model.Document{}
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Create inserts a new entity and appends its `create` event
// atomically (spec.md §4.4).
func (s *Store) Create(ctx context.Context, entityType string, payload model.Document, explicitID, contextURL string) (*model.Entity, *model.Event, error) {
	noun, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, kernelerr.New(kernelerr.CodeSchemaMissing, "entitystore.create", "noun not registered: "+entityType, err)
	}
	if noun.IsVerbDisabled("create") {
		return nil, nil, kernelerr.New(kernelerr.CodeVerbDisabled, "entitystore.create", "create is disabled for "+entityType, nil)
	}

	id := strings.TrimSpace(explicitID)
	if id == "" {
		id = ids.Entity(entityType)
	}
	now := time.Now().UTC()
	entity := &model.Entity{
		ID:        id,
		Type:      entityType,
		Data:      stripReserved(payload),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Context:   contextURL,
	}
	row, err := entity.ToRow()
	if err != nil {
		return nil, nil, kernelerr.Wrap(kernelerr.CodeInternal, "entitystore.create", err)
	}

	var savedEvent *model.Event
	err = aggregates.ExecuteWrite(ctx, s.deps, "entitystore.create", func(dbc dbctx.Context) error {
		if err := dbc.Tx.Create(row).Error; err != nil {
			return err
		}
		ev := &model.Event{
			EntityType:  entityType,
			EntityID:    id,
			Verb:        "create",
			Conjugation: noun.Verbs["create"],
			After:       entity.Document(),
		}
		saved, err := s.events.AppendInTx(dbc, ev)
		if err != nil {
			return err
		}
		savedEvent = saved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entity, savedEvent, nil
}

// Get returns a live (non-deleted) entity by type and id.
func (s *Store) Get(ctx context.Context, entityType, id string) (*model.Entity, error) {
	var row model.EntityRow
	err := s.deps.DB.WithContext(ctx).
		Where("type = ? AND id = ? AND deleted_at IS NULL", entityType, id).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, kernelerr.New(kernelerr.CodeNotFound, "entitystore.get", "entity not found: "+id, nil)
		}
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "entitystore.get", err)
	}
	return model.EntityFromRow(&row)
}

// Update merges patch into the current entity, bumping its version and
// appending an `update` event with before/after snapshots. If
// expectedVersion is non-nil, the update fails with VersionConflict
// unless it matches the current version.
func (s *Store) Update(ctx context.Context, entityType, id string, patch model.Document, expectedVersion *int) (*model.Entity, *model.Event, error) {
	noun, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, kernelerr.New(kernelerr.CodeSchemaMissing, "entitystore.update", "noun not registered: "+entityType, err)
	}
	if noun.IsVerbDisabled("update") {
		return nil, nil, kernelerr.New(kernelerr.CodeVerbDisabled, "entitystore.update", "update is disabled for "+entityType, nil)
	}

	current, err := s.Get(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return nil, nil, kernelerr.VersionConflict("entitystore.update", current.Version, *expectedVersion)
	}

	before := current.Document()
	now := time.Now().UTC()
	updated := &model.Entity{
		ID:        current.ID,
		Type:      current.Type,
		Data:      mergeDocument(current.Data, stripReserved(patch)),
		Version:   current.Version + 1,
		CreatedAt: current.CreatedAt,
		UpdatedAt: now,
		Context:   current.Context,
	}

	var savedEvent *model.Event
	err = aggregates.ExecuteWrite(ctx, s.deps, "entitystore.update", func(dbc dbctx.Context) error {
		dataJSON, err := model.MarshalDocument(updated.Data)
		if err != nil {
			return err
		}
		ok, err := s.deps.CASGuard.UpdateByVersion(dbc, "entities", id, current.Version, map[string]any{
			"data":       dataJSON,
			"version":    updated.Version,
			"updated_at": updated.UpdatedAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			var latest model.EntityRow
			if err := dbc.Tx.Select("version").Where("id = ?", id).First(&latest).Error; err != nil {
				return err
			}
			expected := current.Version
			if expectedVersion != nil {
				expected = *expectedVersion
			}
			return aggregates.RequireCASSuccess(false, "entitystore.update", latest.Version, expected)
		}
		ev := &model.Event{
			EntityType:  entityType,
			EntityID:    id,
			Verb:        "update",
			Conjugation: noun.Verbs["update"],
			Before:      before,
			After:       updated.Document(),
		}
		saved, err := s.events.AppendInTx(dbc, ev)
		if err != nil {
			return err
		}
		savedEvent = saved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, savedEvent, nil
}

// Delete soft-deletes an entity, appending a `delete` event whose
// after-snapshot is null. A second delete returns NotFound and emits
// no further event (spec.md's "idempotent only at the API level").
func (s *Store) Delete(ctx context.Context, entityType, id string) (*model.Entity, *model.Event, error) {
	noun, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, kernelerr.New(kernelerr.CodeSchemaMissing, "entitystore.delete", "noun not registered: "+entityType, err)
	}
	if noun.IsVerbDisabled("delete") {
		return nil, nil, kernelerr.New(kernelerr.CodeVerbDisabled, "entitystore.delete", "delete is disabled for "+entityType, nil)
	}

	current, err := s.Get(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}

	before := current.Document()
	now := time.Now().UTC()
	deleted := *current
	deleted.Version = current.Version + 1
	deleted.DeletedAt = &now
	deleted.UpdatedAt = now

	var savedEvent *model.Event
	err = aggregates.ExecuteWrite(ctx, s.deps, "entitystore.delete", func(dbc dbctx.Context) error {
		ok, err := s.deps.CASGuard.UpdateByVersion(dbc, "entities", id, current.Version, map[string]any{
			"version":    deleted.Version,
			"deleted_at": now,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			var latest model.EntityRow
			if err := dbc.Tx.Select("version").Where("id = ?", id).First(&latest).Error; err != nil {
				return err
			}
			return aggregates.RequireCASSuccess(false, "entitystore.delete", latest.Version, current.Version)
		}
		ev := &model.Event{
			EntityType:  entityType,
			EntityID:    id,
			Verb:        "delete",
			Conjugation: noun.Verbs["delete"],
			Before:      before,
			After:       nil,
		}
		saved, err := s.events.AppendInTx(dbc, ev)
		if err != nil {
			return err
		}
		savedEvent = saved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &deleted, savedEvent, nil
}
