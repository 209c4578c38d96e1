package storage

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Engine is the single GORM connection a tenant kernel owns exclusively.
type Engine struct {
	DB     *gorm.DB
	Driver Driver
}

// Close releases the underlying connection pool.
func (e *Engine) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	sqlDB, err := e.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open opens (creating if necessary) the storage engine for one
// tenant and runs schema migration. Never call Open for the same
// tenant from two kernels at once: the engine is exclusive, per
// spec.md §5.
func Open(cfg Config, tenantID string, log *logger.Logger) (*Engine, error) {
	gormLog := gormlogger.New(
		stdlog(),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case DriverPostgres:
		db, err = openPostgres(cfg, tenantID, gormLog)
	default:
		db, err = openSQLite(cfg, tenantID, gormLog)
	}
	if err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("storage: migrate tenant %q: %w", tenantID, err)
	}

	return &Engine{DB: db, Driver: cfg.Driver}, nil
}

func openSQLite(cfg Config, tenantID string, gormLog gormlogger.Interface) (*gorm.DB, error) {
	if err := os.MkdirAll(cfg.SQLiteDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create sqlite dir: %w", err)
	}
	path := cfg.sqlitePath(tenantID)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %q: %w", path, err)
	}
	return db, nil
}

func openPostgres(cfg Config, tenantID string, gormLog gormlogger.Interface) (*gorm.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("storage: KERNEL_POSTGRES_DSN is required for the postgres driver")
	}
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	schema := cfg.postgresSchema(tenantID)
	if err := db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)).Error; err != nil {
		return nil, fmt.Errorf("storage: create schema %q: %w", schema, err)
	}
	if err := db.Exec(fmt.Sprintf(`SET search_path TO %q`, schema)).Error; err != nil {
		return nil, fmt.Errorf("storage: set search_path %q: %w", schema, err)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.NounRow{},
		&model.EntityRow{},
		&model.EventRow{},
		&model.RelationshipEdge{},
		&model.HookRegistration{},
		&model.Subscription{},
		&model.IntegrationHook{},
		&model.DispatchLogEntry{},
		&model.OutboxEntry{},
		&model.TenantMetaRow{},
	)
}

func stdlog() *log.Logger {
	return log.New(os.Stdout, "\r\n", log.LstdFlags)
}
