package pgx

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/database/repository/bitstreamcontent"
)

type pgxRepository struct {
}

const (
	findBitstreamContentByStorageKeyStmt   = "SELECT storage_key, content, created_at, updated_at FROM bitstream_contents WHERE storage_key = $1"
	upsertBitstreamContentStmt             = "INSERT INTO bitstream_contents (storage_key, content, created_at, updated_at) VALUES($1, $2, $3, $4) ON CONFLICT (storage_key) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at"
	deleteBitstreamContentByStorageKeyStmt = "DELETE FROM bitstream_contents WHERE storage_key = $1"
)

func NewRepository() (bitstreamcontent.Repository, error) {
	return &pgxRepository{}, nil
}

func convertRowToBitstreamContentEntity(bitstreamContentRow *sql.Row) (*bitstreamcontent.Entity, error) {
	var storageKey string
	var content []byte
	var createdAt time.Time
	var updatedAt time.Time
	err := bitstreamContentRow.Scan(&storageKey, &content, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &bitstreamcontent.Entity{
		StorageKey: storageKey,
		Content:    content,
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  updatedAt.UTC(),
	}, nil
}

func (bcr *pgxRepository) FindBitstreamContentByStorageKey(ctx context.Context, tx *sql.Tx, storageKey string) (*bitstreamcontent.Entity, error) {
	row := tx.QueryRowContext(ctx, findBitstreamContentByStorageKeyStmt, storageKey)
	return convertRowToBitstreamContentEntity(row)
}

func (bcr *pgxRepository) PutBitstreamContent(ctx context.Context, tx *sql.Tx, bitstreamContent *bitstreamcontent.Entity) error {
	bitstreamContent.UpdatedAt = time.Now().UTC()
	if bitstreamContent.CreatedAt.IsZero() {
		bitstreamContent.CreatedAt = bitstreamContent.UpdatedAt
	}
	_, err := tx.ExecContext(ctx, upsertBitstreamContentStmt, bitstreamContent.StorageKey, bitstreamContent.Content, bitstreamContent.CreatedAt, bitstreamContent.UpdatedAt)
	return err
}

func (bcr *pgxRepository) DeleteBitstreamContentByStorageKey(ctx context.Context, tx *sql.Tx, storageKey string) error {
	_, err := tx.ExecContext(ctx, deleteBitstreamContentByStorageKeyStmt, storageKey)
	return err
}
