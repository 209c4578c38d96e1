// Package storage owns the one storage engine a tenant kernel opens
// exclusively for itself (spec.md §4.11/§5 "Storage engine: exclusive
// to one kernel"). Two drivers are supported: an embedded SQLite file
// per tenant (default, zero external dependency to run the demo) and
// a shared Postgres cluster with one schema per tenant, selected by
// KERNEL_STORAGE_DRIVER.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nounforge/entitykernel/internal/platform/envutil"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config configures how a tenant's storage engine is opened.
type Config struct {
	Driver Driver

	// SQLite
	SQLiteDir string

	// Postgres
	PostgresDSN string
}

// ConfigFromEnv reads KERNEL_STORAGE_DRIVER, KERNEL_SQLITE_DIR, and
// KERNEL_POSTGRES_DSN, matching the teacher's envutil-backed
// ConfigFromEnv constructors (twilio.ConfigFromEnv,
// sendgrid.ConfigFromEnv) rather than a bespoke flag parser.
func ConfigFromEnv() Config {
	driver := Driver(strings.ToLower(envutil.Str("KERNEL_STORAGE_DRIVER", string(DriverSQLite))))
	if driver != DriverPostgres {
		driver = DriverSQLite
	}
	return Config{
		Driver:      driver,
		SQLiteDir:   envutil.Str("KERNEL_SQLITE_DIR", "./data/tenants"),
		PostgresDSN: envutil.Str("KERNEL_POSTGRES_DSN", ""),
	}
}

func (c Config) sqlitePath(tenantID string) string {
	return filepath.Join(c.SQLiteDir, fmt.Sprintf("%s.db", sanitizeTenantID(tenantID)))
}

func (c Config) postgresSchema(tenantID string) string {
	return "tenant_" + sanitizeTenantID(tenantID)
}

func sanitizeTenantID(tenantID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(tenantID)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
