// Package kernel implements the tenant kernel (spec.md C11): a
// per-tenant instance bundling the schema registry (C3), entity store
// (C4), event log (C5), verb executor (C6), time-travel engine (C7),
// and both dispatchers (C8/C9) behind one exclusive storage engine.
// Lifecycle mirrors the teacher's lazy-construct, persist-across-
// requests service pattern (e.g. services.AvatarService,
// services.CourseGenerationService): a kernel is built on first access
// to a tenant id and kept alive in the Manager for the process
// lifetime.
package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/nounforge/entitykernel/internal/aggregates"
	"github.com/nounforge/entitykernel/internal/cdc"
	"github.com/nounforge/entitykernel/internal/dispatch/durable"
	"github.com/nounforge/entitykernel/internal/dispatch/integrations"
	"github.com/nounforge/entitykernel/internal/dispatch/subscriptions"
	"github.com/nounforge/entitykernel/internal/entitystore"
	"github.com/nounforge/entitykernel/internal/eventlog"
	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/observability"
	"github.com/nounforge/entitykernel/internal/outbox"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/platform/pointers"
	"github.com/nounforge/entitykernel/internal/schema"
	"github.com/nounforge/entitykernel/internal/storage"
	"github.com/nounforge/entitykernel/internal/timetravel"
	"github.com/nounforge/entitykernel/internal/verbexec"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"
)

// Kernel is the per-tenant unit of spec.md §5: exactly one storage
// engine, one schema cache, one event emitter, and the public
// operations of §4.3-§4.10. It does not serialize mutations: concurrent
// writes to the same entity are settled by the version compare-and-set
// in entitystore and verbexec, and the losing write gets
// VersionConflict.
type Kernel struct {
	TenantID string

	Engine        *storage.Engine
	Schema        *schema.Registry
	Entities      *entitystore.Store
	Events        *eventlog.Store
	Verbs         *verbexec.Executor
	TimeTravel    *timetravel.Engine
	Subscriptions *subscriptions.Dispatcher
	Integrations  *integrations.Dispatcher
	Outbox        *outbox.Store
	CDC           *cdc.Streamer

	log    *logger.Logger
	cancel context.CancelFunc
}

// Poll returns the next CDC batch for this tenant (spec.md §4.10), a
// thin passthrough to cdc.Poll bound to this kernel's storage engine.
func (k *Kernel) Poll(ctx context.Context, p cdc.Params) (cdc.Batch, error) {
	return cdc.Poll(ctx, k.Engine.DB, p)
}

// Dispatch fans a newly committed event out to both dispatchers
// without waiting (spec.md §4.6/§4.9's "does not wait for them before
// returning"). If a durable outbox is configured for this kernel, it
// also enqueues the same delivery obligations for the claim-based
// drain path, so a dispatch failure (endpoint down, process killed
// mid-delivery) still gets retried later — the two mechanisms are not
// mutually exclusive; a kernel opting into durability keeps the
// fire-and-forget attempt as its fast path and the outbox as the
// backstop.
func (k *Kernel) Dispatch(ctx context.Context, ev *model.Event) {
	k.Subscriptions.Dispatch(ctx, ev)
	k.Integrations.Dispatch(ctx, ev, nil)

	if k.Outbox == nil {
		return
	}
	if err := k.Engine.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := k.Outbox.EnqueueInTx(dbc, ev.ID, model.OutboxKindSubscription); err != nil {
			return err
		}
		return k.Outbox.EnqueueInTx(dbc, ev.ID, model.OutboxKindIntegration)
	}); err != nil {
		k.log.With("eventId", ev.ID).Warn("outbox enqueue failed", "error", err)
	}
}

// Describe reports this kernel's tenant metadata (spec.md §4.11).
func (k *Kernel) Describe(ctx context.Context) (model.TenantMetadata, error) {
	return loadTenantMeta(ctx, k.Engine, k.TenantID)
}

// Deactivate writes status=deactivated into tenant_meta without
// touching any other table: all data is retained and the kernel
// remains constructible (spec.md §4.11).
func (k *Kernel) Deactivate(ctx context.Context) error {
	meta, err := loadTenantMeta(ctx, k.Engine, k.TenantID)
	if err != nil {
		return err
	}
	meta.Status = model.TenantStatusDeactivated
	meta.DeactivatedAt = pointers.Ptr(time.Now().UTC())
	return saveTenantMeta(ctx, k.Engine, meta)
}

// Reactivate clears the deactivated status, leaving data untouched.
func (k *Kernel) Reactivate(ctx context.Context) error {
	meta, err := loadTenantMeta(ctx, k.Engine, k.TenantID)
	if err != nil {
		return err
	}
	meta.Status = model.TenantStatusActive
	meta.DeactivatedAt = nil
	return saveTenantMeta(ctx, k.Engine, meta)
}

func loadTenantMeta(ctx context.Context, eng *storage.Engine, tenantID string) (model.TenantMetadata, error) {
	var rows []model.TenantMetaRow
	if err := eng.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return model.TenantMetadata{}, kernelerr.Wrap(kernelerr.CodeInternal, "kernel.describe", err)
	}
	meta := model.TenantMetadataFromRows(rows)
	if meta.TenantID == "" {
		meta = model.TenantMetadata{TenantID: tenantID, Status: model.TenantStatusActive, CreatedAt: time.Now().UTC()}
		if err := saveTenantMeta(ctx, eng, meta); err != nil {
			return model.TenantMetadata{}, err
		}
	}
	return meta, nil
}

func saveTenantMeta(ctx context.Context, eng *storage.Engine, meta model.TenantMetadata) error {
	for _, row := range meta.ToRows() {
		if err := eng.DB.WithContext(ctx).Save(&row).Error; err != nil {
			return kernelerr.Wrap(kernelerr.CodeInternal, "kernel.save_meta", err)
		}
	}
	if meta.DeactivatedAt == nil {
		if err := eng.DB.WithContext(ctx).Delete(&model.TenantMetaRow{Key: "deactivatedAt"}).Error; err != nil {
			return kernelerr.Wrap(kernelerr.CodeInternal, "kernel.save_meta", err)
		}
	}
	return nil
}

// Manager lazily constructs and caches one Kernel per tenant id,
// matching the teacher's service-registry pattern of building a
// per-resource service on first access and reusing it across requests.
const cdcPollInterval = 2 * time.Second

type Manager struct {
	cfg      storage.Config
	log      *logger.Logger
	metrics  *observability.Metrics
	bindings integrations.Registry
	bus      cdc.Bus
	outboxOn bool
	temporal temporalsdkclient.Client

	mu      sync.Mutex
	kernels map[string]*Kernel
}

type Option func(*Manager)

// WithIntegrationBindings overrides the default environment-derived
// outbound service registry (mainly for tests).
func WithIntegrationBindings(reg integrations.Registry) Option {
	return func(m *Manager) { m.bindings = reg }
}

// WithBus attaches a cross-instance CDC bus (spec.md §4.10's optional
// long-lived push).
func WithBus(bus cdc.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithOutbox enables the claim-based durable outbox alongside the
// default fire-and-forget dispatch path for every kernel this Manager
// constructs (SPEC_FULL.md's supplemented "claim-based background
// drain" feature).
func WithOutbox() Option {
	return func(m *Manager) { m.outboxOn = true }
}

// WithTemporal additionally drains each tenant's outbox through a
// Temporal workflow on a tenant-scoped task queue, alongside (not
// instead of) the in-process ticker worker WithOutbox starts. Has no
// effect unless WithOutbox is also set, since there is nothing to
// drain without a store.
func WithTemporal(tc temporalsdkclient.Client) Option {
	return func(m *Manager) { m.temporal = tc }
}

func NewManager(cfg storage.Config, log *logger.Logger, metrics *observability.Metrics, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		kernels: make(map[string]*Kernel),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bindings == nil {
		m.bindings = integrations.RegistryFromEnv(log, []string{
			string(model.ServicePayments), string(model.ServiceRepo),
			string(model.ServiceIntegrations), string(model.ServiceOAuth), string(model.ServiceEvents),
		})
	}
	return m
}

// Get returns the tenant's kernel, constructing it on first access
// and reusing it on every subsequent call (spec.md §4.11).
func (m *Manager) Get(tenantID string) (*Kernel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k, ok := m.kernels[tenantID]; ok {
		return k, nil
	}

	k, err := m.build(tenantID)
	if err != nil {
		return nil, err
	}
	m.kernels[tenantID] = k
	return k, nil
}

func (m *Manager) build(tenantID string) (*Kernel, error) {
	log := m.log.With("component", "Kernel", "tenantId", tenantID)

	eng, err := storage.Open(m.cfg, tenantID, log)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CodeInternal, "kernel.open_storage", err)
	}

	var hooks aggregates.Hooks
	if m.metrics != nil {
		hooks = aggregates.NewObservabilityHooks(m.metrics)
	}

	reg := schema.New(eng.DB, log, hooks)
	events := eventlog.New(eng.DB, log)
	entities := entitystore.New(eng.DB, log, hooks, reg, events, eng.Driver)
	verbs := verbexec.New(eng.DB, log, hooks, reg, events)
	travel := timetravel.New(events)
	subs := subscriptions.New(eng.DB, log)
	integs := integrations.New(eng.DB, log, m.bindings)

	var obx *outbox.Store
	ctx, cancel := context.WithCancel(context.Background())
	if m.outboxOn {
		obx = outbox.New(eng.DB, eng.Driver)
		handlers := map[model.OutboxKind]outbox.Handler{
			model.OutboxKindSubscription: outbox.NewSubscriptionHandler(events, subs),
			model.OutboxKindIntegration:  outbox.NewIntegrationHandler(events, integs),
		}
		outbox.NewWorker(obx, log, handlers).Start(ctx)

		if m.temporal != nil {
			if err := durable.StartWorkflow(ctx, m.temporal, tenantID); err != nil {
				log.Warn("durable outbox workflow start failed", "error", err)
			}
			if runner, err := durable.NewRunner(log, m.temporal, tenantID, obx, handlers); err != nil {
				log.Warn("durable outbox runner init failed", "error", err)
			} else if err := runner.Start(ctx); err != nil {
				log.Warn("durable outbox runner start failed", "error", err)
			}
		}
	}

	streamer := cdc.NewStreamer(eng.DB, cdcPollInterval, m.bus)

	k := &Kernel{
		TenantID:      tenantID,
		Engine:        eng,
		Schema:        reg,
		Entities:      entities,
		Events:        events,
		Verbs:         verbs,
		TimeTravel:    travel,
		Subscriptions: subs,
		Integrations:  integs,
		Outbox:        obx,
		CDC:           streamer,
		log:           log,
		cancel:        cancel,
	}

	if _, err := k.Describe(context.Background()); err != nil {
		cancel()
		eng.Close()
		return nil, err
	}
	return k, nil
}

// Close releases every cached kernel's storage engine. Intended for
// process shutdown, not per-request use.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, k := range m.kernels {
		k.cancel()
		if err := k.Engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
