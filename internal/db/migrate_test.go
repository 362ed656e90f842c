package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// migrationsDir points at the shipped migration pairs so the tests
// exercise the real files, not fixtures.
func migrationsDir() string {
	return filepath.Join("..", "..", "migrations")
}

func newFileDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "observations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateVersionFresh(t *testing.T) {
	db := newFileDB(t)

	version, dirty, err := db.MigrateVersion(migrationsDir())
	require.NoError(t, err)
	assert.Equal(t, uint(0), version, "unmigrated database reports version 0")
	assert.False(t, dirty)
}

func TestMigrateUpDown(t *testing.T) {
	db := newFileDB(t)
	dir := migrationsDir()

	require.NoError(t, db.MigrateUp(dir))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// The store works on the migrated schema.
	session, err := db.BeginSession()
	require.NoError(t, err)
	require.NoError(t, db.RecordSighting(session, "AA:BB:CC:DD:EE:FF", -60, 1.25))

	var indexed int
	err = db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_ble_sightings_session'",
	).Scan(&indexed)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed, "second migration creates the session index")

	require.NoError(t, db.MigrateDown(dir))
	version, dirty, err = db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version, "down steps back exactly one version")
	assert.False(t, dirty)
}

func TestMigrateUpIdempotent(t *testing.T) {
	db := newFileDB(t)
	dir := migrationsDir()

	require.NoError(t, db.MigrateUp(dir))
	require.NoError(t, db.MigrateUp(dir), "re-running on a current schema is a no-op")
}

func TestMigrateMissingDir(t *testing.T) {
	db := newFileDB(t)
	err := db.MigrateUp(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
