package aggregates

import (
	"strings"

	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/platform/dbctx"
	"gorm.io/gorm"
)

// CASGuard implements the compare-and-set primitives entity mutation
// builds on: spec.md's optimistic concurrency precondition (§4.4) is a
// single UPDATE ... WHERE id = ? AND version = ? whose RowsAffected
// tells the caller whether the precondition held.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// UpdateByVersion updates a row identified by id only when its current
// version matches expectedVersion. Returns false (no error) when the
// precondition failed, so the caller can surface VersionConflict with
// the up-to-date current version.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table, id string, expectedVersion int, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	id = strings.TrimSpace(id)
	if table == "" || id == "" {
		return false, ValidationError("table and id are required for UpdateByVersion")
	}
	if expectedVersion < 0 {
		return false, ValidationError("expectedVersion must be >= 0")
	}
	res := db.Table(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed
// VersionConflict error carrying the current/expected versions.
func RequireCASSuccess(ok bool, op string, current, expected int) error {
	if ok {
		return nil
	}
	return kernelerr.VersionConflict(op, current, expected)
}
