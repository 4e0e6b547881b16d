package database

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrateAndReady(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Migrate(url, logger))
	// Second run is a no-op.
	require.NoError(t, Migrate(url, logger))

	db, err := Open(context.Background(), url, logger)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, NewReadinessChecker(db).CheckReady(context.Background()))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('books','reviews','members','member_credentials','events')`))
	assert.Equal(t, 5, n)
}
