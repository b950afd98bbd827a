package bitstreamcontent

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	FindBitstreamContentByStorageKey(ctx context.Context, tx *sql.Tx, storageKey string) (*Entity, error)
	PutBitstreamContent(ctx context.Context, tx *sql.Tx, bitstreamContent *Entity) error
	DeleteBitstreamContentByStorageKey(ctx context.Context, tx *sql.Tx, storageKey string) error
}

type Entity struct {
	StorageKey string
	Content    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
