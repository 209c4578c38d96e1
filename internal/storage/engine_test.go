package storage

import (
	"testing"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Driver: DriverSQLite, SQLiteDir: dir}

	eng, err := Open(cfg, "Acme Inc", logger.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	require.True(t, eng.DB.Migrator().HasTable(&model.EntityRow{}))
	require.True(t, eng.DB.Migrator().HasTable(&model.EventRow{}))
	require.True(t, eng.DB.Migrator().HasTable(&model.NounRow{}))
	require.True(t, eng.DB.Migrator().HasTable(&model.TenantMetaRow{}))
}

func TestSanitizeTenantID(t *testing.T) {
	require.Equal(t, "acme_inc", sanitizeTenantID("Acme Inc"))
	require.Equal(t, "default", sanitizeTenantID(""))
}
