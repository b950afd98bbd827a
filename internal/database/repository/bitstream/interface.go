package bitstream

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
)

type Repository interface {
	FindBitstreamById(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*Entity, error)
	FindAllBitstreams(ctx context.Context, tx *sql.Tx) ([]Entity, error)
	// FindBitstreamIdsInContainerTree returns the ids of all bitstreams below the container, ordered by id.
	FindBitstreamIdsInContainerTree(ctx context.Context, tx *sql.Tx, containerId ulid.ULID) ([]fixity.BitstreamId, error)
	SaveBitstream(ctx context.Context, tx *sql.Tx, bitstream *Entity) error
	DeleteBitstreamById(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error
}

type Entity struct {
	Id                *fixity.BitstreamId
	ItemId            *ulid.ULID
	Name              string
	StorageKey        string
	Size              int64
	Checksum          string
	ChecksumAlgorithm string
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
