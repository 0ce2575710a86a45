package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Functional Validation Tests - Config

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	assert.Equal(t, "./data/sharestore.db", config.DatabasePath)
	assert.Equal(t, 10, config.MaxConnections)
	assert.Equal(t, time.Hour, config.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, config.ConnMaxIdleTime)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

// Functional Validation Tests - migrations

func TestMigrationManager_LoadEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)

	migrations, err := NewMigrationManager(db).LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, "001", migrations[0].Version)
	assert.Equal(t, "documents", migrations[0].Description)
	assert.Equal(t, "002", migrations[1].Version)
	assert.Equal(t, "sign_ins", migrations[1].Description)
}

func TestMigrationManager_ApplyMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	require.NoError(t, manager.ApplyMigrations())
	require.NoError(t, manager.ApplyMigrations())

	applied, err := manager.AppliedMigrations()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"001": true, "002": true}, applied)

	var seq int64
	require.NoError(t, db.QueryRow("SELECT value FROM store_meta WHERE key = 'commit_seq'").Scan(&seq))
	assert.Equal(t, int64(0), seq)
}

func TestMigrationManager_CustomSourceOrdering(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("INSERT INTO ordering (step) VALUES ('second');")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE ordering (step TEXT); INSERT INTO ordering (step) VALUES ('first');")},
		"m/README.md":      {Data: []byte("ignored")},
	}

	require.NoError(t, NewMigrationManagerFS(db, source, "m").ApplyMigrations())

	rows, err := db.Query("SELECT step FROM ordering ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()

	var steps []string
	for rows.Next() {
		var step string
		require.NoError(t, rows.Scan(&step))
		steps = append(steps, step)
	}
	assert.Equal(t, []string{"first", "second"}, steps)
}

func TestMigrationManager_FailedMigrationNotRecorded(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE oops (")},
	}
	manager := NewMigrationManagerFS(db, source, "m")

	assert.Error(t, manager.ApplyMigrations())

	applied, err := manager.AppliedMigrations()
	require.NoError(t, err)
	assert.Empty(t, applied)
}

// Functional Validation Tests - schema validator

func TestSchemaValidator_EmptyDatabaseFails(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	assert.Error(t, validator.ValidateTablesExist())
	assert.Error(t, validator.Validate())
}

func TestSchemaValidator_MigratedDatabasePasses(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())

	validator := NewSchemaValidator(db)
	assert.NoError(t, validator.ValidateTablesExist())
	assert.NoError(t, validator.ValidateTableStructure())
	assert.NoError(t, validator.ValidateIndexes())
	assert.NoError(t, validator.Validate())
}

func TestSchemaValidator_SignInMethodConstraint(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())

	_, err := db.Exec("INSERT INTO sign_ins (uid, method, created_at) VALUES ('u', 'anonymous', ?)", time.Now())
	assert.NoError(t, err)

	_, err = db.Exec("INSERT INTO sign_ins (uid, method, created_at) VALUES ('u', 'password', ?)", time.Now())
	assert.Error(t, err, "unknown sign-in methods are rejected by the CHECK constraint")
}
