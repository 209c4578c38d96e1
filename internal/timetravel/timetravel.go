// Package timetravel implements the time-travel engine (spec.md C7):
// folding an entity's event history into a point-in-time state, and
// diffing two such states field by field.
package timetravel

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
)

// Engine folds event history into entity states for one tenant.
type Engine struct {
	events *eventlog.Store
}

func New(events *eventlog.Store) *Engine {
	return &Engine{events: events}
}

// ReconstructParams constrains which prefix of an entity's history to
// fold. Both are optional; when both are set they combine with AND.
type ReconstructParams struct {
	AsOf      *time.Time
	AtVersion *int
}

// Reconstruct folds the constrained event history for one entity into
// a state (spec.md §4.7). Returns NotFound when no events match.
func (e *Engine) Reconstruct(ctx context.Context, entityType, id string, p ReconstructParams) (*model.Entity, error) {
	history, err := e.events.History(ctx, entityType, id)
	if err != nil {
		return nil, err
	}

	var filtered []*model.Event
	for _, ev := range history {
		if p.AtVersion != nil && ev.Sequence > *p.AtVersion {
			continue
		}
		if p.AsOf != nil && ev.Timestamp.After(*p.AsOf) {
			continue
		}
		filtered = append(filtered, ev)
	}
	if len(filtered) == 0 {
		return nil, kernelerr.New(kernelerr.CodeNotFound, "timetravel.reconstruct", "no events for "+entityType+" "+id, nil)
	}

	return fold(entityType, id, filtered), nil
}

// fold implements spec.md §4.7's state-folding rule: start from null
// state, and for each event either mark the running state deleted (on
// a delete-form event) or merge the event's after-snapshot in,
// advancing version to the event's sequence.
func fold(entityType, id string, events []*model.Event) *model.Entity {
	var state *model.Entity
	for _, ev := range events {
		if state == nil {
			state = &model.Entity{ID: id, Type: entityType, Data: model.Document{}}
		}
		if strings.EqualFold(ev.Conjugation.Event, "deleted") {
			now := ev.Timestamp
			state.DeletedAt = &now
			state.Version = ev.Sequence
			state.UpdatedAt = ev.Timestamp
			continue
		}
		state.Data = mergeDocument(state.Data, ev.After)
		state.Version = ev.Sequence
		state.UpdatedAt = ev.Timestamp
		if state.CreatedAt.IsZero() {
			state.CreatedAt = ev.Timestamp
		}
	}
	return state
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

// FieldChange is one differing non-meta key between two reconstructed
// states (spec.md §4.7).
type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// Diff compares the states at sequence <= from and sequence <= to
// (from < to required) and returns the field-level changes plus the
// events with from < sequence <= to.
func (e *Engine) Diff(ctx context.Context, entityType, id string, from, to int) ([]FieldChange, []*model.Event, error) {
	if from >= to {
		return nil, nil, kernelerr.New(kernelerr.CodeBadInput, "timetravel.diff", "from must be less than to", nil)
	}

	beforeState, err := e.Reconstruct(ctx, entityType, id, ReconstructParams{AtVersion: &from})
	if err != nil && !kernelerr.Is(err, kernelerr.CodeNotFound) {
		return nil, nil, err
	}
	afterState, err := e.Reconstruct(ctx, entityType, id, ReconstructParams{AtVersion: &to})
	if err != nil {
		return nil, nil, err
	}

	history, err := e.events.History(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}
	var between []*model.Event
	for _, ev := range history {
		if ev.Sequence > from && ev.Sequence <= to {
			between = append(between, ev)
		}
	}

	return diffDocuments(docOf(beforeState), docOf(afterState)), between, nil
}

func docOf(e *model.Entity) model.Document {
	if e == nil {
		return model.Document{}
	}
	return e.Document()
}

// diffDocuments compares non-meta keys (not prefixed with "$") of two
// documents by stable-serialized structural equality.
func diffDocuments(before, after model.Document) []FieldChange {
	var changes []FieldChange
	seen := map[string]bool{}
	for k := range before {
		seen[k] = true
	}
	for k := range after {
		seen[k] = true
	}
	for k := range seen {
		if strings.HasPrefix(k, "$") || k == "id" || k == "type" {
			continue
		}
		if !structurallyEqual(before[k], after[k]) {
			changes = append(changes, FieldChange{Field: k, From: before[k], To: after[k]})
		}
	}
	return changes
}

func structurallyEqual(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}
