// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/store"
)

var seq atomic.Int64

// Open returns a migrated in-memory SQLite database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	uri := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := config.Open(config.DatabaseSection{Driver: "sqlite", URI: uri}, "silent")
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Environment read by OpenServer.
const (
	EnvDriver = "DAILYINK_TEST_DB_DRIVER"
	EnvURI    = "DAILYINK_TEST_DATABASE_URI"
)

// OpenServer returns a migrated MySQL or Postgres database with the production connection pool,
// so concurrent tests really contend on row locks. It skips t unless EnvDriver and EnvURI are set.
// Tables are shared between runs; callers should use fresh ids.
func OpenServer(t testing.TB) *gorm.DB {
	t.Helper()
	driver, uri := os.Getenv(EnvDriver), os.Getenv(EnvURI)
	if driver == "" || uri == "" {
		t.Skipf("%s and %s are not set", EnvDriver, EnvURI)
	}
	require.NotEqual(t, "sqlite", driver, "use Open for sqlite")

	db, err := config.Open(config.DatabaseSection{Driver: driver, URI: uri}, "silent")
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Transactor wraps Open in a store.Transactor with the default retry budget.
func Transactor(t testing.TB) *store.Transactor {
	t.Helper()
	return store.NewTransactor(Open(t), 3, zap.NewNop())
}
