package database

import (
	"context"
	"database/sql"

	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type pgxDatabase struct {
	db *sql.DB
}

func (pdb *pgxDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return pdb.db.BeginTx(ctx, opts)
}

func (pdb *pgxDatabase) PingContext(ctx context.Context) error {
	return pdb.db.PingContext(ctx)
}

func (pdb *pgxDatabase) Close() error {
	return pdb.db.Close()
}

func (pdb *pgxDatabase) GetDatabaseType() DatabaseType {
	return DB_TYPE_POSTGRES
}

func OpenPostgresDatabase(dbUrl string) (Database, error) {
	db, err := sql.Open("pgx", dbUrl)
	if err != nil {
		return nil, err
	}
	err = runMigrations(POSTGRES_MIGRATION_PATH, "pgx", func() (migrateDriver, error) {
		return pgx.WithInstance(db, &pgx.Config{})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &pgxDatabase{db: db}, nil
}
