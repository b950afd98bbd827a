package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/**/*.sql
var migrationsFilesystem embed.FS

const (
	SQLITE_MIGRATION_PATH   = "migrations/sqlite"
	POSTGRES_MIGRATION_PATH = "migrations/postgres"
)

type DatabaseType string

const (
	DB_TYPE_SQLITE   DatabaseType = "sqlite"
	DB_TYPE_POSTGRES DatabaseType = "postgres"
)

var ErrUnknownDatabaseType = errors.New("unknown database type")

type Database interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
	GetDatabaseType() DatabaseType
}

// OpenDatabase opens and migrates the database of the given type.
// For sqlite the dataSource is a file path, for postgres a connection url.
func OpenDatabase(dbType DatabaseType, dataSource string) (Database, error) {
	switch dbType {
	case DB_TYPE_SQLITE:
		return OpenSqliteDatabase(dataSource)
	case DB_TYPE_POSTGRES:
		return OpenPostgresDatabase(dataSource)
	}
	return nil, ErrUnknownDatabaseType
}

func ParseDatabaseType(s string) (DatabaseType, error) {
	switch DatabaseType(s) {
	case DB_TYPE_SQLITE, DB_TYPE_POSTGRES:
		return DatabaseType(s), nil
	}
	return "", ErrUnknownDatabaseType
}

func runMigrations(migrationPath string, databaseName string, newDriver func() (migrateDriver, error)) error {
	m, err := createMigrateInstance(migrationPath, databaseName, newDriver)
	if err != nil {
		return err
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func createMigrateInstance(migrationPath string, databaseName string, newDriver func() (migrateDriver, error)) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFilesystem, migrationPath)
	if err != nil {
		return nil, err
	}
	databaseDriver, err := newDriver()
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", sourceDriver, databaseName, databaseDriver)
}
