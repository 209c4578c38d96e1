package aggregates

import (
	"context"
	"strings"
	"time"

	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"gorm.io/gorm"
)

// BaseDeps bundles the infrastructure every storage-backed package
// (entitystore, eventlog, schema) needs to perform a guarded write.
type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	return d
}

// ExecuteWrite runs fn inside a transaction, maps any failure into the
// kernel's typed error vocabulary, and records aggregate-level
// observability (duration, conflict/retry counters) regardless of
// outcome. Every entity mutation and event append goes through this so
// the commit boundary and the error model are uniform across packages.
func ExecuteWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}
	err := deps.Runner.InTx(ctx, fn)
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = aggregateErrorStatus(mapped)
		if kernelerr.Is(mapped, kernelerr.CodeVersionConflict) {
			deps.Hooks.IncConflict(op)
		}
		if kernelerr.Is(mapped, kernelerr.CodeInternal) {
			deps.Hooks.IncRetry(op)
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := string(kernelerr.CodeOf(err))
	if code == "" {
		return "failure"
	}
	return code
}
