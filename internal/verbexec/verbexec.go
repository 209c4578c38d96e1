// Package verbexec implements the verb executor (spec.md C6): custom
// verbs beyond the default create/update/delete trio, which always go
// straight to entitystore (spec.md §4.5) and never reach this package.
package verbexec

import (
	"context"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/aggregates"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/schema"
	"gorm.io/gorm"
)

// defaultVerbs bypass the executor and are handled by entitystore
// directly; spec.md §4.5 keeps their semantics fixed.
var defaultVerbs = map[string]bool{"create": true, "update": true, "delete": true}

// reservedFields mirrors entitystore's reserved-field stripping so a
// verb payload can never clobber entity metadata.
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

// Executor is the per-tenant custom-verb executor.
type Executor struct {
	deps   aggregates.BaseDeps
	schema *schema.Registry
	events *eventlog.Store
	log    *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger, hooks aggregates.Hooks, reg *schema.Registry, events *eventlog.Store) *Executor {
	return &Executor{
		deps: aggregates.BaseDeps{
			DB:     db,
			Log:    log,
			Runner: aggregates.NewGormTxRunner(db),
			Hooks:  hooks,
		},
		schema: reg,
		events: events,
		log:    log,
	}
}

// Execute resolves verb on entityType, merges payload into the
// current entity, bumps its version, and appends
// `{EntityType}.{verb}` with before/after snapshots (spec.md §4.5).
func (x *Executor) Execute(ctx context.Context, entityType, id, verb string, payload model.Document) (*model.Entity, *model.Event, error) {
	verb = strings.ToLower(strings.TrimSpace(verb))
	if defaultVerbs[verb] {
		return nil, nil, kernelerr.New(kernelerr.CodeBadInput, "verbexec.execute",
			"default verb "+verb+" must go through the entity store, not the verb executor", nil)
	}

	noun, err := x.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, kernelerr.New(kernelerr.CodeSchemaMissing, "verbexec.execute", "noun not registered: "+entityType, err)
	}

	if noun.IsVerbDisabled(verb) {
		return nil, nil, kernelerr.New(kernelerr.CodeVerbDisabled, "verbexec.execute", verb+" is disabled for "+entityType, nil)
	}
	conj, directive := resolveVerb(noun, verb)
	if directive != "" {
		return nil, nil, kernelerr.New(kernelerr.CodeUseActionForm, "verbexec.execute", directive, nil)
	}
	if conj == nil {
		return nil, nil, kernelerr.New(kernelerr.CodeVerbUnknown, "verbexec.execute", "unknown verb "+verb+" for "+entityType, nil)
	}

	current, err := x.fetchLive(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}

	// Stored `before` hooks are looked up but never executed — logged
	// only, per spec.md §4.5's intentional security posture.
	x.logDisabledHooks(ctx, entityType, verb)

	before := current.Document()
	now := time.Now().UTC()
	updated := &model.Entity{
		ID:        current.ID,
		Type:      current.Type,
		Data:      mergeDocument(current.Data, stripReserved(payload)),
		Version:   current.Version + 1,
		CreatedAt: current.CreatedAt,
		UpdatedAt: now,
		Context:   current.Context,
	}

	var savedEvent *model.Event
	err = aggregates.ExecuteWrite(ctx, x.deps, "verbexec.execute."+verb, func(dbc dbctx.Context) error {
		dataJSON, err := model.MarshalDocument(updated.Data)
		if err != nil {
			return err
		}
		ok, err := x.deps.CASGuard.UpdateByVersion(dbc, "entities", id, current.Version, map[string]any{
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
			return aggregates.RequireCASSuccess(false, "verbexec.execute."+verb, latest.Version, current.Version)
		}
		ev := &model.Event{
			EntityType:  entityType,
			EntityID:    id,
			Verb:        verb,
			Conjugation: *conj,
			Data:        payload,
			Before:      before,
			After:       updated.Document(),
		}
		saved, err := x.events.AppendInTx(dbc, ev)
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

func (x *Executor) fetchLive(ctx context.Context, entityType, id string) (*model.Entity, error) {
	var row model.EntityRow
	err := x.deps.DB.WithContext(ctx).
		Where("type = ? AND id = ? AND deleted_at IS NULL", entityType, id).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, kernelerr.New(kernelerr.CodeNotFound, "verbexec.execute", "entity not found: "+id, nil)
		}
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "verbexec.execute", err)
	}
	return model.EntityFromRow(&row)
}

// resolveVerb returns the matched conjugation for the action form, or
// a UseActionForm directive if the caller named an activity/event form
// instead, or (nil, "") when the verb is wholly unknown.
func resolveVerb(noun *model.NounSchema, verb string) (*model.Conjugation, string) {
	if conj, ok := noun.Verbs[verb]; ok {
		c := conj
		return &c, ""
	}
	for base, conj := range noun.Verbs {
		if verb == conj.Activity || verb == conj.Event {
			return nil, "use the action form \"" + base + "\" instead of \"" + verb + "\""
		}
	}
	return nil, ""
}

func (x *Executor) logDisabledHooks(ctx context.Context, entityType, verb string) {
	var hooks []model.HookRegistration
	if err := x.deps.DB.WithContext(ctx).
		Where("noun = ? AND verb = ? AND phase = ?", entityType, verb, model.HookPhaseBefore).
		Find(&hooks).Error; err != nil {
		return
	}
	for _, h := range hooks {
		x.log.With("noun", entityType, "verb", verb, "hookId", h.ID).
			Warn("before hook registered but not executed (stored-code execution is disabled)")
	}
}
