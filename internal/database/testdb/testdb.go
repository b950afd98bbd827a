package testdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jdillenkofer/fixity/internal/database"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Open returns a freshly migrated database of the type selected by the -db test flag.
// Everything it creates is removed when the test finishes.
func Open(t *testing.T) database.Database {
	t.Helper()
	switch database.DatabaseType(*testutils.DBType) {
	case database.DB_TYPE_POSTGRES:
		return openPostgres(t)
	default:
		return openSqlite(t)
	}
}

func openSqlite(t *testing.T) database.Database {
	storagePath, err := os.MkdirTemp("", "fixity-test-data-")
	if err != nil {
		t.Fatalf("Could not create temp directory: %s", err)
	}
	db, err := database.OpenDatabase(database.DB_TYPE_SQLITE, filepath.Join(storagePath, "fixity.db"))
	if err != nil {
		os.RemoveAll(storagePath)
		t.Fatalf("Couldn't open database: %s", err)
	}
	t.Cleanup(func() {
		err := db.Close()
		if err != nil {
			t.Errorf("Could not close database %s", err)
		}
		err = os.RemoveAll(storagePath)
		if err != nil {
			t.Errorf("Could not remove storagePath %s: %s", storagePath, err)
		}
	})
	return db
}

func openPostgres(t *testing.T) database.Database {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx, "postgres:17.5-alpine3.22",
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithDatabase("postgres"),
		postgres.BasicWaitStrategies())
	if err != nil {
		t.Fatalf("Could not start postgres container: %s", err)
	}
	dbUrl, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		t.Fatalf("Could not get connection string: %s", err)
	}
	db, err := database.OpenDatabase(database.DB_TYPE_POSTGRES, dbUrl)
	if err != nil {
		pgContainer.Terminate(ctx)
		t.Fatalf("Couldn't open database: %s", err)
	}
	t.Cleanup(func() {
		db.Close()
		pgContainer.Terminate(context.Background())
	})
	return db
}
