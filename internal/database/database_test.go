package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func openInMemorySqlite(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	assert.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSqliteMigrateUpAndDownAndUp(t *testing.T) {
	testutils.SkipIfIntegration(t)
	db := openInMemorySqlite(t)

	m, err := createMigrateInstance(SQLITE_MIGRATION_PATH, "sqlite3", func() (migrateDriver, error) {
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	})
	assert.Nil(t, err)

	err = m.Up()
	if err != nil {
		assert.Fail(t, err.Error())
	}

	err = m.Down()
	if err != nil {
		assert.Fail(t, err.Error())
	}

	err = m.Up()
	if err != nil {
		assert.Fail(t, err.Error())
	}
}

func TestOpenSqliteDatabaseIsIdempotent(t *testing.T) {
	testutils.SkipIfIntegration(t)
	storagePath, err := os.MkdirTemp("", "fixity-test-data-")
	assert.Nil(t, err)
	t.Cleanup(func() { os.RemoveAll(storagePath) })
	dbPath := filepath.Join(storagePath, "nested", "fixity.db")

	db, err := OpenDatabase(DB_TYPE_SQLITE, dbPath)
	assert.Nil(t, err)
	assert.Equal(t, DB_TYPE_SQLITE, db.GetDatabaseType())
	assert.Nil(t, db.PingContext(t.Context()))
	assert.Nil(t, db.Close())

	db, err = OpenDatabase(DB_TYPE_SQLITE, dbPath)
	assert.Nil(t, err)
	defer db.Close()

	tx, err := db.BeginTx(t.Context(), &sql.TxOptions{ReadOnly: true})
	assert.Nil(t, err)
	var count int
	err = tx.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM checksum_records").Scan(&count)
	assert.Nil(t, err)
	assert.Equal(t, 0, count)
	assert.Nil(t, tx.Commit())
}

func TestOpenDatabaseWithUnknownType(t *testing.T) {
	testutils.SkipIfIntegration(t)
	_, err := OpenDatabase(DatabaseType("oracle"), "")
	assert.ErrorIs(t, err, ErrUnknownDatabaseType)

	_, err = ParseDatabaseType("oracle")
	assert.ErrorIs(t, err, ErrUnknownDatabaseType)
	dbType, err := ParseDatabaseType("postgres")
	assert.Nil(t, err)
	assert.Equal(t, DB_TYPE_POSTGRES, dbType)
}

func setupPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, error) {
	return postgres.Run(ctx, "postgres:17.5-alpine3.22",
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithDatabase("postgres"),
		postgres.BasicWaitStrategies())
}

func TestOpenPostgresDatabase(t *testing.T) {
	testutils.SkipIfIntegration(t)
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	pgContainer, err := setupPostgresContainer(ctx)
	assert.Nil(t, err)
	defer pgContainer.Terminate(context.Background())
	dbUrl, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	assert.Nil(t, err)

	db, err := OpenDatabase(DB_TYPE_POSTGRES, dbUrl)
	assert.Nil(t, err)
	defer db.Close()
	assert.Equal(t, DB_TYPE_POSTGRES, db.GetDatabaseType())
	assert.Nil(t, db.PingContext(ctx))

	// a second open must find the schema current
	db2, err := OpenDatabase(DB_TYPE_POSTGRES, dbUrl)
	assert.Nil(t, err)
	assert.Nil(t, db2.Close())
}
