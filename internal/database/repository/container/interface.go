package container

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
)

type Repository interface {
	FindContainerById(ctx context.Context, tx *sql.Tx, id ulid.ULID) (*Entity, error)
	FindContainerByHandle(ctx context.Context, tx *sql.Tx, handle string) (*Entity, error)
	SaveContainer(ctx context.Context, tx *sql.Tx, container *Entity) error
}

type Entity struct {
	Id        *ulid.ULID
	Type      string
	Handle    *string
	Name      string
	ParentId  *ulid.ULID
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	CommunityType  = "COMMUNITY"
	CollectionType = "COLLECTION"
	ItemType       = "ITEM"
)
