package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	migrateDatabase "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

type migrateDriver = migrateDatabase.Driver

// In auto-vacuum full mode freelist pages are moved to the end of the file
// and the file is truncated.
// See https://www.sqlite.org/pragma.html#pragma_auto_vacuum
var sqlitePragmas = []string{
	"PRAGMA auto_vacuum = FULL;",
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA foreign_keys = ON;",
}

type sqliteDatabase struct {
	readOnlyDb  *sql.DB
	writeableDb *sql.DB
}

func (sdb *sqliteDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if opts != nil && opts.ReadOnly {
		return sdb.readOnlyDb.BeginTx(ctx, opts)
	}
	return sdb.writeableDb.BeginTx(ctx, opts)
}

func (sdb *sqliteDatabase) PingContext(ctx context.Context) error {
	return sdb.readOnlyDb.PingContext(ctx)
}

func (sdb *sqliteDatabase) Close() error {
	err := sdb.readOnlyDb.Close()
	if err != nil {
		return err
	}
	return sdb.writeableDb.Close()
}

func (sdb *sqliteDatabase) GetDatabaseType() DatabaseType {
	return DB_TYPE_SQLITE
}

func OpenSqliteDatabase(dbPath string) (Database, error) {
	err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm)
	if err != nil {
		return nil, err
	}
	writeableDb, err := sql.Open("sqlite3", dbPath+"?mode=rwc&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	err = setupWriteableSqliteDatabase(writeableDb)
	if err != nil {
		writeableDb.Close()
		return nil, err
	}

	readOnlyDb, err := sql.Open("sqlite3", dbPath+"?mode=ro&_busy_timeout=5000&_txlock=deferred")
	if err != nil {
		writeableDb.Close()
		return nil, err
	}
	return &sqliteDatabase{readOnlyDb: readOnlyDb, writeableDb: writeableDb}, nil
}

func setupWriteableSqliteDatabase(db *sql.DB) error {
	// sqlite allows a single writer, the immediate txlock serializes on that one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	for _, pragma := range sqlitePragmas {
		_, err := db.Exec(pragma)
		if err != nil {
			return err
		}
	}
	return runMigrations(SQLITE_MIGRATION_PATH, "sqlite3", func() (migrateDriver, error) {
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	})
}
