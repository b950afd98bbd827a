package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/database/repository/bitstream"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
)

type sqliteRepository struct {
}

const (
	bitstreamColumns                    = "id, item_id, name, storage_key, size, checksum, checksum_algorithm, deleted, created_at, updated_at"
	findBitstreamByIdStmt               = "SELECT " + bitstreamColumns + " FROM bitstreams WHERE id = $1"
	findAllBitstreamsStmt               = "SELECT " + bitstreamColumns + " FROM bitstreams ORDER BY id ASC"
	findBitstreamIdsInContainerTreeStmt = "WITH RECURSIVE tree(id) AS (SELECT id FROM containers WHERE id = $1 UNION SELECT c.id FROM containers c JOIN tree t ON c.parent_id = t.id) SELECT b.id FROM bitstreams b JOIN tree t ON b.item_id = t.id ORDER BY b.id ASC"
	insertBitstreamStmt                 = "INSERT INTO bitstreams (" + bitstreamColumns + ") VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"
	updateBitstreamByIdStmt             = "UPDATE bitstreams SET item_id = $1, name = $2, storage_key = $3, size = $4, checksum = $5, checksum_algorithm = $6, deleted = $7, updated_at = $8 WHERE id = $9"
	deleteBitstreamByIdStmt             = "DELETE FROM bitstreams WHERE id = $1"
)

func NewRepository() (bitstream.Repository, error) {
	return &sqliteRepository{}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func convertRowToBitstreamEntity(row rowScanner) (*bitstream.Entity, error) {
	var id string
	var itemId sql.NullString
	var name string
	var storageKey string
	var size int64
	var checksum string
	var checksumAlgorithm string
	var deleted bool
	var createdAt time.Time
	var updatedAt time.Time
	err := row.Scan(&id, &itemId, &name, &storageKey, &size, &checksum, &checksumAlgorithm, &deleted, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	bitstreamId := fixity.MustParseBitstreamId(id)
	entity := bitstream.Entity{
		Id:                &bitstreamId,
		Name:              name,
		StorageKey:        storageKey,
		Size:              size,
		Checksum:          checksum,
		ChecksumAlgorithm: checksumAlgorithm,
		Deleted:           deleted,
		CreatedAt:         createdAt.UTC(),
		UpdatedAt:         updatedAt.UTC(),
	}
	if itemId.Valid {
		ulidItemId := ulid.MustParse(itemId.String)
		entity.ItemId = &ulidItemId
	}
	return &entity, nil
}

func nullableUlid(id *ulid.ULID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func (br *sqliteRepository) FindBitstreamById(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*bitstream.Entity, error) {
	row := tx.QueryRowContext(ctx, findBitstreamByIdStmt, bitstreamId.String())
	return convertRowToBitstreamEntity(row)
}

func (br *sqliteRepository) FindAllBitstreams(ctx context.Context, tx *sql.Tx) ([]bitstream.Entity, error) {
	rows, err := tx.QueryContext(ctx, findAllBitstreamsStmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bitstreamEntities := []bitstream.Entity{}
	for rows.Next() {
		bitstreamEntity, err := convertRowToBitstreamEntity(rows)
		if err != nil {
			return nil, err
		}
		bitstreamEntities = append(bitstreamEntities, *bitstreamEntity)
	}
	return bitstreamEntities, rows.Err()
}

func (br *sqliteRepository) FindBitstreamIdsInContainerTree(ctx context.Context, tx *sql.Tx, containerId ulid.ULID) ([]fixity.BitstreamId, error) {
	rows, err := tx.QueryContext(ctx, findBitstreamIdsInContainerTreeStmt, containerId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bitstreamIds := []fixity.BitstreamId{}
	for rows.Next() {
		var id string
		err = rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		bitstreamIds = append(bitstreamIds, fixity.MustParseBitstreamId(id))
	}
	return bitstreamIds, rows.Err()
}

func (br *sqliteRepository) SaveBitstream(ctx context.Context, tx *sql.Tx, bitstream *bitstream.Entity) error {
	if bitstream.Id == nil {
		id := fixity.NewRandomBitstreamId()
		bitstream.Id = &id
		bitstream.CreatedAt = time.Now().UTC()
		bitstream.UpdatedAt = bitstream.CreatedAt
		_, err := tx.ExecContext(ctx, insertBitstreamStmt, bitstream.Id.String(), nullableUlid(bitstream.ItemId), bitstream.Name, bitstream.StorageKey, bitstream.Size, bitstream.Checksum, bitstream.ChecksumAlgorithm, bitstream.Deleted, bitstream.CreatedAt, bitstream.UpdatedAt)
		if err != nil {
			bitstream.Id = nil
		}
		return err
	}

	bitstream.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, updateBitstreamByIdStmt, nullableUlid(bitstream.ItemId), bitstream.Name, bitstream.StorageKey, bitstream.Size, bitstream.Checksum, bitstream.ChecksumAlgorithm, bitstream.Deleted, bitstream.UpdatedAt, bitstream.Id.String())
	return err
}

func (br *sqliteRepository) DeleteBitstreamById(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error {
	_, err := tx.ExecContext(ctx, deleteBitstreamByIdStmt, bitstreamId.String())
	return err
}
