// Package repo implements persistence for meetings, users and idempotency
// records on GORM over SQLite (pure Go driver, no cgo).
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// pragma is a connection setting and the value PRAGMA reports once it holds.
type pragma struct {
	name, set string
	want      any
}

// pragmas are set on every pooled connection through the DSN.
var pragmas = []pragma{
	{"journal_mode", "WAL", "wal"},
	{"synchronous", "NORMAL", int64(1)},
	{"foreign_keys", "ON", int64(1)},
	{"busy_timeout", "5000", int64(5000)},
}

const (
	maxOpenConns    = 10
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Option customizes OpenSQLite.
type Option func(*gorm.Config, *[]gorm.Plugin)

// WithTracing installs the GORM OpenTelemetry plugin so every query becomes
// a child span of the request span carried in the context.
func WithTracing() Option {
	return func(_ *gorm.Config, plugins *[]gorm.Plugin) {
		*plugins = append(*plugins, tracing.NewPlugin())
	}
}

// WithSilentLogger disables GORM's own query logger.
func WithSilentLogger() Option {
	return func(c *gorm.Config, _ *[]gorm.Plugin) { c.Logger = logger.Default.LogMode(logger.Silent) }
}

// OpenSQLite opens (or creates) the database at path, applies the
// connection pragmas and sizes the pool. The parent directory must exist.
func OpenSQLite(path string, opts ...Option) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	cfg := &gorm.Config{}
	var plugins []gorm.Plugin
	for _, opt := range opts {
		opt(cfg, &plugins)
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

func dsn(path string) string {
	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = fmt.Sprintf("_pragma=%s(%s)", p.name, p.set)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(q, "&")
}

// AutoMigrate creates or updates the meetings, users and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Meeting{},
		&domain.User{},
		&domain.Idempotency{},
	)
}
