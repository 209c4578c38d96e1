// Package schema implements the schema registry (spec.md C3): it
// stores noun schemas per tenant, caches parsed schemas in memory, and
// is the single place that knows whether a verb is disabled on a noun.
package schema

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nounforge/entitykernel/internal/aggregates"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/verbs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry is the per-tenant schema store. A tenant kernel owns
// exactly one Registry over its own storage engine (spec.md §4.11).
type Registry struct {
	deps     aggregates.BaseDeps
	log      *logger.Logger
	validate *validator.Validate

	mu       sync.RWMutex
	hydrated bool
	cache    map[string]*model.NounSchema
}

// New builds a schema registry over the given storage engine.
func New(db *gorm.DB, log *logger.Logger, hooks aggregates.Hooks) *Registry {
	return &Registry{
		deps: aggregates.BaseDeps{
			DB:     db,
			Log:    log,
			Runner: aggregates.NewGormTxRunner(db),
			Hooks:  hooks,
		},
		log:      log,
		validate: validator.New(),
		cache:    map[string]*model.NounSchema{},
	}
}

// DefineNoun registers (or replaces) a noun schema. Re-registration
// always replaces the prior schema in full; there is no partial
// update of a noun's field map.
func (r *Registry) DefineNoun(ctx context.Context, name string, def Definition) (*model.NounSchema, error) {
	name = strings.TrimSpace(name)
	if !IsPascalCase(name) {
		return nil, kernelerr.New(kernelerr.CodeBadInput, "schema.defineNoun", "noun name must be PascalCase", nil)
	}
	if err := r.validateFields(def.Fields); err != nil {
		return nil, err
	}

	disabled := map[string]bool{}
	for _, v := range def.DisabledVerbs {
		disabled[strings.ToLower(strings.TrimSpace(v))] = true
	}

	verbTable := map[string]model.Conjugation{}
	addVerb := func(base string) {
		base = strings.ToLower(strings.TrimSpace(base))
		if base == "" || disabled[base] {
			return
		}
		verbTable[base] = toModelConjugation(verbs.Conjugate(base))
	}
	for _, v := range defaultVerbs {
		addVerb(v)
	}
	for _, v := range def.CustomVerbs {
		addVerb(v)
	}

	schemaObj := &model.NounSchema{
		Name:      name,
		Singular:  firstNonEmpty(def.Singular, strings.ToLower(name)),
		Plural:    firstNonEmpty(def.Plural, strings.ToLower(name)+"s"),
		Slug:      firstNonEmpty(def.Slug, strings.ToLower(name)+"s"),
		Fields:    def.Fields,
		Verbs:     verbTable,
		Disabled:  disabled,
		CreatedAt: time.Now().UTC(),
	}

	row, err := schemaObj.ToRow()
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "schema.defineNoun", err)
	}

	err = aggregates.ExecuteWrite(ctx, r.deps, "schema.defineNoun", func(dbc dbctx.Context) error {
		tx := dbc.Tx
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).Create(row).Error
	})
	if err != nil {
		return nil, err
	}

	r.Invalidate()
	return schemaObj, nil
}

// ListNouns returns every registered noun, sorted by name.
func (r *Registry) ListNouns(ctx context.Context) ([]*model.NounSchema, error) {
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.NounSchema, 0, len(r.cache))
	for _, n := range r.cache {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetNoun returns a single noun schema, or NotFound.
func (r *Registry) GetNoun(ctx context.Context, name string) (*model.NounSchema, error) {
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.cache[name]
	if !ok {
		return nil, kernelerr.New(kernelerr.CodeNotFound, "schema.getNoun", "noun not registered: "+name, nil)
	}
	return n, nil
}

// Invalidate drops the entire in-memory cache; the next read
// rehydrates from storage. Called after every successful write
// (spec.md §4.3).
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.hydrated = false
	r.cache = map[string]*model.NounSchema{}
	r.mu.Unlock()
}

func (r *Registry) hydrate(ctx context.Context) error {
	r.mu.RLock()
	if r.hydrated {
		r.mu.RUnlock()
		return nil
	}
	r.mu.RUnlock()

	var rows []model.NounRow
	if err := r.deps.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return kernelerr.Wrap(kernelerr.CodeInternal, "schema.hydrate", err)
	}

	cache := make(map[string]*model.NounSchema, len(rows))
	for i := range rows {
		n, err := model.NounFromRow(&rows[i])
		if err != nil {
			return kernelerr.Wrap(kernelerr.CodeInternal, "schema.hydrate", err)
		}
		cache[n.Name] = n
	}

	r.mu.Lock()
	r.cache = cache
	r.hydrated = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) validateFields(fields map[string]model.FieldDescriptor) error {
	for name, fd := range fields {
		if err := r.validate.Struct(fd); err != nil {
			return kernelerr.New(kernelerr.CodeBadInput, "schema.defineNoun", "invalid field descriptor for "+name+": "+err.Error(), err)
		}
	}
	return nil
}

func toModelConjugation(c verbs.Conjugation) model.Conjugation {
	return model.Conjugation{
		Action:      c.Action,
		Activity:    c.Activity,
		Event:       c.Event,
		ReverseBy:   c.ReverseBy,
		ReverseAt:   c.ReverseAt,
		ThirdPerson: c.ThirdPerson,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
