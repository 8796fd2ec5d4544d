// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

// Epoch is the start time of the fake clock returned by NewStore.
var Epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Open returns a migrated SQLite database in a temp dir, closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	cfg := database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, database.Migrate(ctx, db, cfg.Driver))
	return db
}

// NewStore returns a store over a fresh database and the fake clock it uses.
func NewStore(t testing.TB) (*database.Store, *clockwork.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(Epoch)
	return database.NewStore(Open(t), clock, node), clock
}

// Count returns the number of rows in table matching where.
func Count(t testing.TB, db *sqlx.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(q), args...))
	return n
}
