package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	_, err = db.MigrateUp(context.Background())
	require.NoError(t, err)
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	applied, err := db.MigrateUp(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	applied, err = db.MigrateUp(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "spark.db")
	db, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, path, db.Path())
	_, err = db.MigrateUp(context.Background())
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestLoadMigrationsOrdered(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].version, migrations[i].version)
	}
}
