package integrations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/ids"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/concurrency"
	"github.com/nounforge/entitykernel/internal/platform/envutil"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"gorm.io/gorm"
)

const (
	headerEvent    = "X-Entitykernel-Event"
	headerEntityID = "X-Entitykernel-Entity-Id"
	headerVerb     = "X-Entitykernel-Verb"
	headerHookID   = "X-Entitykernel-Hook-Id"
)

// builtinHooks is the fixed, non-tenant-editable hook table (spec.md
// §4.9). It is never persisted and always merged in at match time.
var builtinHooks = []model.IntegrationHook{
	builtin("Contact", "qualify", model.ServicePayments, "POST /customers/sync"),
	builtin("Contact", "create", model.ServicePayments, "POST /customers/sync"),
	builtin("Deal", "close", model.ServicePayments, "POST /subscriptions/create"),
	builtin("Issue", "create", model.ServiceRepo, "POST /issues/create"),
	builtin("Issue", "update", model.ServiceRepo, "POST /issues/update"),
	builtin("Issue", "close", model.ServiceRepo, "POST /issues/close"),
}

func builtin(entityType, verb string, service model.ServiceName, method string) model.IntegrationHook {
	return model.IntegrationHook{
		ID:         ids.BuiltinHook(string(service), method),
		EntityType: entityType,
		Verb:       verb,
		Service:    service,
		Method:     method,
		Active:     true,
		Builtin:    true,
	}
}

// Dispatcher fans a newly appended event out to every matching
// built-in or tenant-configured integration hook, concurrently and
// without waiting (spec.md §4.9).
type Dispatcher struct {
	db       *gorm.DB
	log      *logger.Logger
	bindings Registry
	limiter  *concurrency.Limiter
}

func New(db *gorm.DB, log *logger.Logger, bindings Registry) *Dispatcher {
	if bindings == nil {
		bindings = Registry{}
	}
	return &Dispatcher{
		db:       db,
		log:      log,
		bindings: bindings,
		limiter:  concurrency.NewLimiter(envutil.Int("DISPATCH_MAX_CONCURRENCY", 16)),
	}
}

// Dispatch matches ev against the built-in table and every active
// tenant hook, and fires each match on its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event, tenantContext map[string]any) {
	var tenantHooks []model.IntegrationHook
	if err := d.db.WithContext(ctx).Where("active = ?", true).Find(&tenantHooks).Error; err != nil {
		d.log.With("entityId", ev.EntityID).Warn("integration hook lookup failed", "error", err)
		tenantHooks = nil
	}

	hooks := make([]model.IntegrationHook, 0, len(builtinHooks)+len(tenantHooks))
	hooks = append(hooks, builtinHooks...)
	hooks = append(hooks, tenantHooks...)

	for _, hook := range hooks {
		if !hook.Matches(ev.EntityType, ev.Verb) {
			continue
		}
		hook := hook
		d.limiter.Go(ctx, func() { d.deliver(ctx, hook, ev, tenantContext) })
	}
}

// DispatchSync delivers ev to every matching hook and waits for every
// delivery, returning the first error encountered. Used by the
// durable outbox drain path, which needs a pass/fail result to decide
// whether to retry; the default Dispatch path above never needs this.
func (d *Dispatcher) DispatchSync(ctx context.Context, ev *model.Event, tenantContext map[string]any) error {
	var tenantHooks []model.IntegrationHook
	if err := d.db.WithContext(ctx).Where("active = ?", true).Find(&tenantHooks).Error; err != nil {
		return err
	}
	hooks := make([]model.IntegrationHook, 0, len(builtinHooks)+len(tenantHooks))
	hooks = append(hooks, builtinHooks...)
	hooks = append(hooks, tenantHooks...)

	var firstErr error
	for _, hook := range hooks {
		if !hook.Matches(ev.EntityType, ev.Verb) {
			continue
		}
		if err := d.deliverSync(ctx, hook, ev, tenantContext); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type outboundPayload struct {
	Event       string            `json:"event"`
	EntityType  string            `json:"entityType"`
	EntityID    string            `json:"entityId"`
	Verb        string            `json:"verb"`
	Conjugation model.Conjugation `json:"conjugation"`
	Before      model.Document    `json:"before,omitempty"`
	After       model.Document    `json:"after,omitempty"`
	Data        model.Document    `json:"data,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func (d *Dispatcher) deliver(ctx context.Context, hook model.IntegrationHook, ev *model.Event, tenantContext map[string]any) {
	_ = d.deliverSync(ctx, hook, ev, tenantContext)
}

// deliverSync performs one hook delivery, always recording a
// dispatch-log entry (success, error, or "not available"), and
// returns the same outcome as an error so DispatchSync can decide
// whether to retry.
func (d *Dispatcher) deliverSync(ctx context.Context, hook model.IntegrationHook, ev *model.Event, tenantContext map[string]any) error {
	start := time.Now()
	method, path := parseMethod(hook.Method)

	entry := model.DispatchLogEntry{
		ID:        ids.Dispatch(),
		EventID:   ev.ID,
		HookID:    hook.ID,
		Service:   hook.Service,
		Method:    hook.Method,
		Timestamp: start.UTC(),
	}

	binding, ok := d.bindings[strings.ToUpper(string(hook.Service))]
	if !ok {
		errMsg := "Service binding '" + string(hook.Service) + "' not available"
		entry.Status = model.DispatchError
		entry.Error = &errMsg
		entry.DurationMs = time.Since(start).Milliseconds()
		d.record(ctx, entry)
		return errors.New(errMsg)
	}

	payload := outboundPayload{
		Event:       ev.Type,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Verb:        ev.Verb,
		Conjugation: ev.Conjugation,
		Before:      ev.Before,
		After:       ev.After,
		Data:        ev.Data,
		Context:     tenantContext,
		Timestamp:   ev.Timestamp,
	}

	headers := map[string]string{
		headerEvent:    ev.Type,
		headerEntityID: ev.EntityID,
		headerVerb:     ev.Verb,
		headerHookID:   hook.ID,
	}
	status, sendErr := binding.Send(ctx, method, path, payload, headers)
	entry.DurationMs = time.Since(start).Milliseconds()
	if status != 0 {
		entry.StatusCode = &status
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = model.DispatchError
		entry.Error = &msg
	} else {
		entry.Status = model.DispatchSuccess
	}
	d.record(ctx, entry)
	return sendErr
}

func (d *Dispatcher) record(ctx context.Context, entry model.DispatchLogEntry) {
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		d.log.With("hookId", entry.HookID, "eventId", entry.EventID).Warn("dispatch log write failed", "error", err)
	}
}

// parseMethod splits a hook's "{HTTP-verb} {path}" method string,
// defaulting to POST when no verb is given (spec.md §4.9).
func parseMethod(raw string) (method, path string) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) == 2 {
		return strings.ToUpper(strings.TrimSpace(parts[0])), strings.TrimSpace(parts[1])
	}
	return "POST", raw
}

// Register validates and persists a tenant-configured integration
// hook alongside the fixed built-in table.
func Register(ctx context.Context, db *gorm.DB, entityType, verb string, service model.ServiceName, method string) (*model.IntegrationHook, error) {
	hook := &model.IntegrationHook{
		ID:         ids.IntegrationHook(),
		EntityType: strings.TrimSpace(entityType),
		Verb:       strings.TrimSpace(verb),
		Service:    service,
		Method:     strings.TrimSpace(method),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(hook).Error; err != nil {
		return nil, err
	}
	return hook, nil
}

// ListHooks returns the built-in table plus every persisted
// tenant hook, matching spec.md §4.9's "exposed read-only" built-ins.
func ListHooks(ctx context.Context, db *gorm.DB) ([]model.IntegrationHook, error) {
	var tenantHooks []model.IntegrationHook
	if err := db.WithContext(ctx).Find(&tenantHooks).Error; err != nil {
		return nil, err
	}
	out := make([]model.IntegrationHook, 0, len(builtinHooks)+len(tenantHooks))
	out = append(out, builtinHooks...)
	out = append(out, tenantHooks...)
	return out, nil
}
