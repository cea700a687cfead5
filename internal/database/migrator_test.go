package database

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()
	dir := t.TempDir()

	tests := []struct {
		name    string
		db      *DB
		dir     string
		wantErr string
	}{
		{"nil database", nil, dir, "database is required"},
		{"nil pool", &DB{}, dir, "database pool not initialized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mg, err := NewMigrator(tt.db, tt.dir, logger)
			require.Error(t, err)
			assert.Nil(t, mg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("MigrateUp surfaces constructor errors", func(t *testing.T) {
		err := MigrateUp(&DB{}, "migrations", logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrator:")
	})
}

func TestMigrationsTable(t *testing.T) {
	assert.Equal(t, "schema_migrations", MigrationsTable)
}

func TestMigrateLogger(t *testing.T) {
	t.Run("debug level is verbose and trims newlines", func(t *testing.T) {
		var buf bytes.Buffer
		l := migrateLogger{logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}

		assert.True(t, l.Verbose())
		l.Printf("Read and execute %d/u %s\n", 1, "init")

		entry := decodeLogLine(t, buf.Bytes())
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "Read and execute 1/u init", entry["message"])
	})

	t.Run("info level is quiet", func(t *testing.T) {
		var buf bytes.Buffer
		l := migrateLogger{logger: zerolog.New(&buf).Level(zerolog.InfoLevel)}

		assert.False(t, l.Verbose())
		l.Printf("Start buffering %d/u %s\n", 1, "init")
		assert.Zero(t, buf.Len())
	})
}

func TestMigrationsDirectory(t *testing.T) {
	// Every up migration in the repository has a matching down file.
	dir := filepath.Join("..", "..", "migrations")
	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing %s", filepath.Base(down))
	}
}

func decodeLogLine(t *testing.T, line []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &entry))
	return entry
}
