// Package testutil builds SQLite-backed databases and fixtures for package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"event-ticketing/internal/database"
)

// NewDB returns an in-memory SQLite database with the full schema and foreign keys enforced.
// A single connection keeps every query on the same in-memory database; transactions from concurrent
// goroutines therefore queue on the pool.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	if _, err := bunDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := database.CreateSchema(ctx, bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return bunDB
}
