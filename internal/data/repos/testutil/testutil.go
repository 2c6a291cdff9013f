// Package testutil opens throwaway databases for repository and service
// tests. Set TEST_POSTGRES_DSN to run against a real Postgres instance;
// without it tests fall back to an in-memory SQLite database.
package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sciflow/sciflow-db/internal/db"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// Logger builds a development logger for tests.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("development")
	if err != nil {
		tb.Fatalf("logger: %v", err)
	}
	tb.Cleanup(log.Sync)
	return log
}

// DB opens a migrated test database. Each call gets a fresh schema:
// SQLite databases are private to the connection, and Postgres runs
// migrations idempotently.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	var dialector gorm.Dialector
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open("file::memory:?cache=private")
	}

	handle, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrateAll(handle); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := handle.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return handle
}

// Tx starts a transaction that rolls back when the test finishes, so
// Postgres-backed tests leave no rows behind.
func Tx(tb testing.TB, handle *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := handle.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin test transaction: %v", tx.Error)
	}
	tb.Cleanup(func() { tx.Rollback() })
	return tx
}
