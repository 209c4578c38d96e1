package aggregates

import (
	"context"

	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner is the transaction boundary every entity/event mutation runs
// inside. A tenant kernel owns exactly one of these over its own storage
// engine; every write that touches both an entity row and its event row
// goes through InTx so the two commit atomically (spec.md invariant E4).
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a TxRunner backed by a GORM transaction.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return kernelerr.New(kernelerr.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
