package pgx

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/database/repository/container"
	"github.com/oklog/ulid/v2"
)

type pgxRepository struct {
}

const (
	findContainerByIdStmt     = "SELECT id, type, handle, name, parent_id, created_at, updated_at FROM containers WHERE id = $1"
	findContainerByHandleStmt = "SELECT id, type, handle, name, parent_id, created_at, updated_at FROM containers WHERE handle = $1"
	insertContainerStmt       = "INSERT INTO containers (id, type, handle, name, parent_id, created_at, updated_at) VALUES($1, $2, $3, $4, $5, $6, $7)"
	updateContainerByIdStmt   = "UPDATE containers SET type = $1, handle = $2, name = $3, parent_id = $4, updated_at = $5 WHERE id = $6"
)

func NewRepository() (container.Repository, error) {
	return &pgxRepository{}, nil
}

func convertRowToContainerEntity(containerRow *sql.Row) (*container.Entity, error) {
	var id string
	var containerType string
	var handle sql.NullString
	var name string
	var parentId sql.NullString
	var createdAt time.Time
	var updatedAt time.Time
	err := containerRow.Scan(&id, &containerType, &handle, &name, &parentId, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	ulidId := ulid.MustParse(id)
	entity := container.Entity{
		Id:        &ulidId,
		Type:      containerType,
		Name:      name,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if handle.Valid {
		entity.Handle = &handle.String
	}
	if parentId.Valid {
		ulidParentId := ulid.MustParse(parentId.String)
		entity.ParentId = &ulidParentId
	}
	return &entity, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableUlid(id *ulid.ULID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func (cr *pgxRepository) FindContainerById(ctx context.Context, tx *sql.Tx, id ulid.ULID) (*container.Entity, error) {
	row := tx.QueryRowContext(ctx, findContainerByIdStmt, id.String())
	return convertRowToContainerEntity(row)
}

func (cr *pgxRepository) FindContainerByHandle(ctx context.Context, tx *sql.Tx, handle string) (*container.Entity, error) {
	row := tx.QueryRowContext(ctx, findContainerByHandleStmt, handle)
	return convertRowToContainerEntity(row)
}

func (cr *pgxRepository) SaveContainer(ctx context.Context, tx *sql.Tx, container *container.Entity) error {
	if container.Id == nil {
		id := ulid.Make()
		container.Id = &id
		container.CreatedAt = time.Now().UTC()
		container.UpdatedAt = container.CreatedAt
		_, err := tx.ExecContext(ctx, insertContainerStmt, container.Id.String(), container.Type, nullableString(container.Handle), container.Name, nullableUlid(container.ParentId), container.CreatedAt, container.UpdatedAt)
		if err != nil {
			container.Id = nil
		}
		return err
	}

	container.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, updateContainerByIdStmt, container.Type, nullableString(container.Handle), container.Name, nullableUlid(container.ParentId), container.UpdatedAt, container.Id.String())
	return err
}
