package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMigrate(t *testing.T) {
	t.Run("creates bookkeeping schema", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "bk.db"), zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{
			"schema_migrations", "file_types", "event_types", "jobs", "files", "input_files",
			"run_status", "steps", "productions", "production_steps", "production_output_types",
			"processing_passes", "run_quality", "data_taking_conditions", "replicas",
		} {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "table %s should exist", table)
		}

		versions, err := AppliedVersions(db)
		require.NoError(t, err)
		assert.Equal(t, []string{"000", "001"}, versions)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "bk.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		versions, err := AppliedVersions(db)
		require.NoError(t, err)
		assert.Len(t, versions, 2)
	})

	t.Run("closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "bk.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})
}

func TestConstraintHelpers(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "bk.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO file_types (name, version) VALUES ('DST', '1')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO file_types (name, version) VALUES ('DST', '1')")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))

	_, err = db.Exec("INSERT INTO input_files (job_id, file_id) VALUES (999, 999)")
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsDatabaseClosed(nil))
}
