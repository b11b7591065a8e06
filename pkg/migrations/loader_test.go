package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
}

func migrationDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeMigration(t, dir, "000002_scan_job_runs.up.sql")
	writeMigration(t, dir, "000002_scan_job_runs.down.sql")
	writeMigration(t, dir, "000001_scan_jobs.up.sql")
	writeMigration(t, dir, "000001_scan_jobs.down.sql")
	writeMigration(t, dir, "000010_catalog.up.sql")
	writeMigration(t, dir, "000010_catalog.down.sql")
	writeMigration(t, dir, "README.md")
	writeMigration(t, dir, "notes.sql")
	return dir
}

func TestLoad_SortsByVersion(t *testing.T) {
	dir := migrationDir(t)

	got, err := Load(dir, TargetStandalone, "up")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "000001", got[0].Version)
	assert.Equal(t, "scan_jobs", got[0].Name)
	assert.Equal(t, ScopeCore, got[0].Scope)
	assert.Equal(t, "000002", got[1].Version)
	assert.Equal(t, "000010", got[2].Version)
	assert.Equal(t, ScopeManagement, got[2].Scope)
}

// The core target skips catalog migrations: those tables are owned by
// the management console in production.
func TestLoad_CoreTargetSkipsCatalog(t *testing.T) {
	dir := migrationDir(t)

	got, err := Load(dir, TargetCore, "up")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, ScopeCore, m.Scope)
	}
}

func TestLoad_FiltersByDirection(t *testing.T) {
	dir := migrationDir(t)

	downs, err := Load(dir, TargetStandalone, "down")
	require.NoError(t, err)
	require.Len(t, downs, 3)
	for _, m := range downs {
		assert.Equal(t, "down", m.Direction)
	}
}

func TestMigrationString(t *testing.T) {
	m := Migration{Version: "000005", Name: "flags", Direction: "up"}
	assert.Equal(t, "000005_flags.up.sql", m.String())
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("Standalone")
	require.NoError(t, err)
	assert.Equal(t, TargetStandalone, target)

	_, err = ParseTarget("enterprise")
	require.Error(t, err)
}

// Unclassified versions default to core so they run everywhere.
func TestScopeOf_DefaultsToCore(t *testing.T) {
	assert.Equal(t, ScopeCore, ScopeOf("000099"))
	assert.Equal(t, ScopeManagement, ScopeOf("000010"))
}
