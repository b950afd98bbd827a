package catalog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/checksum"
	"github.com/jdillenkofer/fixity/internal/database"
	"github.com/jdillenkofer/fixity/internal/database/repository/bitstream"
	"github.com/jdillenkofer/fixity/internal/database/repository/container"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrRootNotFound = errors.New("scope root not found")
var ErrBitstreamNotFound = errors.New("bitstream not found")
var ErrContainerNotFound = errors.New("container not found")
var ErrInvalidContainerType = errors.New("invalid container type")
var ErrInvalidParent = errors.New("invalid parent container")
var ErrHandleTaken = errors.New("handle already taken")

type ContainerType string

const (
	Community  ContainerType = container.CommunityType
	Collection ContainerType = container.CollectionType
	Item       ContainerType = container.ItemType
)

// allowedParents lists the container types a container may be nested in.
// A nil entry means the container may be a root.
var allowedParents = map[ContainerType][]*ContainerType{
	Community:  {nil, ptr(Community)},
	Collection: {ptr(Community)},
	Item:       {ptr(Collection)},
}

func ptr[T any](v T) *T {
	return &v
}

func ParseContainerType(s string) (ContainerType, error) {
	switch ContainerType(s) {
	case Community, Collection, Item:
		return ContainerType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidContainerType, s)
}

type Container struct {
	Id        ulid.ULID
	Type      ContainerType
	Handle    string
	Name      string
	ParentId  *ulid.ULID
	CreatedAt time.Time
}

type Bitstream struct {
	Id                fixity.BitstreamId
	ItemId            ulid.ULID
	Name              string
	StorageKey        string
	Size              int64
	Checksum          string
	ChecksumAlgorithm string
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Catalog is the object tree the fixity checker verifies against.
type Catalog interface {
	CreateContainer(ctx context.Context, containerType ContainerType, handle string, name string, parentId *ulid.ULID) (*Container, error)
	RegisterBitstream(ctx context.Context, itemId ulid.ULID, name string, reader io.Reader) (*Bitstream, error)
	// GetBitstream returns nil when the bitstream is unknown.
	GetBitstream(ctx context.Context, id fixity.BitstreamId) (*Bitstream, error)
	ListBitstreams(ctx context.Context) ([]Bitstream, error)
	MarkDeleted(ctx context.Context, id fixity.BitstreamId) error
	Purge(ctx context.Context, id fixity.BitstreamId) error
	// Resolve expands a bitstream id, container id or handle into the sorted ids below it.
	Resolve(ctx context.Context, root string) ([]fixity.BitstreamId, error)
}

type sqlCatalog struct {
	db                  database.Database
	containerRepository container.Repository
	bitstreamRepository bitstream.Repository
	store               bitstore.BitstreamStore
	ingestAlgorithm     checksum.Algorithm
	tracer              trace.Tracer
}

var _ Catalog = (*sqlCatalog)(nil)

func New(db database.Database, containerRepository container.Repository, bitstreamRepository bitstream.Repository, store bitstore.BitstreamStore, ingestAlgorithm checksum.Algorithm) (Catalog, error) {
	return &sqlCatalog{
		db:                  db,
		containerRepository: containerRepository,
		bitstreamRepository: bitstreamRepository,
		store:               store,
		ingestAlgorithm:     ingestAlgorithm,
		tracer:              otel.Tracer("internal/catalog"),
	}, nil
}

func convertContainer(entity *container.Entity) *Container {
	c := &Container{
		Id:        *entity.Id,
		Type:      ContainerType(entity.Type),
		Name:      entity.Name,
		ParentId:  entity.ParentId,
		CreatedAt: entity.CreatedAt,
	}
	if entity.Handle != nil {
		c.Handle = *entity.Handle
	}
	return c
}

func convertBitstream(entity *bitstream.Entity) *Bitstream {
	b := &Bitstream{
		Id:                *entity.Id,
		Name:              entity.Name,
		StorageKey:        entity.StorageKey,
		Size:              entity.Size,
		Checksum:          entity.Checksum,
		ChecksumAlgorithm: entity.ChecksumAlgorithm,
		Deleted:           entity.Deleted,
		CreatedAt:         entity.CreatedAt,
		UpdatedAt:         entity.UpdatedAt,
	}
	if entity.ItemId != nil {
		b.ItemId = *entity.ItemId
	}
	return b
}

func (c *sqlCatalog) CreateContainer(ctx context.Context, containerType ContainerType, handle string, name string, parentId *ulid.ULID) (*Container, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.CreateContainer")
	defer span.End()

	parents, ok := allowedParents[containerType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContainerType, containerType)
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return nil, err
	}

	var parentType *ContainerType
	if parentId != nil {
		parent, err := c.containerRepository.FindContainerById(ctx, tx, *parentId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if parent == nil {
			tx.Rollback()
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, parentId.String())
		}
		parentType = ptr(ContainerType(parent.Type))
	}
	allowed := false
	for _, p := range parents {
		if (p == nil && parentType == nil) || (p != nil && parentType != nil && *p == *parentType) {
			allowed = true
		}
	}
	if !allowed {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %s cannot be placed there", ErrInvalidParent, containerType)
	}

	entity := container.Entity{
		Type:     string(containerType),
		Name:     name,
		ParentId: parentId,
	}
	if handle != "" {
		existing, err := c.containerRepository.FindContainerByHandle(ctx, tx, handle)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if existing != nil {
			tx.Rollback()
			return nil, fmt.Errorf("%w: %s", ErrHandleTaken, handle)
		}
		entity.Handle = &handle
	}
	err = c.containerRepository.SaveContainer(ctx, tx, &entity)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return convertContainer(&entity), nil
}

func (c *sqlCatalog) findItem(ctx context.Context, itemId ulid.ULID) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	item, err := c.containerRepository.FindContainerById(ctx, tx, itemId)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, itemId.String())
	}
	if ContainerType(item.Type) != Item {
		return fmt.Errorf("%w: bitstreams belong to items, not %s", ErrInvalidParent, item.Type)
	}
	return nil
}

// RegisterBitstream streams the content into the bitstore while hashing it
// with the ingest algorithm, then records the bitstream in the catalog.
func (c *sqlCatalog) RegisterBitstream(ctx context.Context, itemId ulid.ULID, name string, reader io.Reader) (*Bitstream, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.RegisterBitstream")
	defer span.End()

	err := c.findItem(ctx, itemId)
	if err != nil {
		return nil, err
	}

	storageKey := bitstore.NewStorageKey()
	hash := c.ingestAlgorithm.Hash()
	counter := &countingReader{reader: io.TeeReader(reader, hash)}
	err = c.store.PutBitstream(ctx, storageKey, counter)
	if err != nil {
		return nil, err
	}

	entity := bitstream.Entity{
		ItemId:            &itemId,
		Name:              name,
		StorageKey:        storageKey,
		Size:              counter.n,
		Checksum:          hex.EncodeToString(hash.Sum(nil)),
		ChecksumAlgorithm: c.ingestAlgorithm.Name,
	}
	span.SetAttributes(attribute.Int64("bitstream.size", entity.Size))

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		c.discardBytes(ctx, storageKey)
		return nil, err
	}
	err = c.bitstreamRepository.SaveBitstream(ctx, tx, &entity)
	if err != nil {
		tx.Rollback()
		c.discardBytes(ctx, storageKey)
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		c.discardBytes(ctx, storageKey)
		return nil, err
	}
	slog.Debug(fmt.Sprintf("Registered bitstream %s (%d bytes, %s %s)", entity.Id.String(), entity.Size, entity.ChecksumAlgorithm, entity.Checksum))
	return convertBitstream(&entity), nil
}

func (c *sqlCatalog) discardBytes(ctx context.Context, storageKey string) {
	err := c.store.DeleteBitstream(ctx, storageKey)
	if err != nil && !errors.Is(err, bitstore.ErrBitstreamNotFound) {
		slog.Warn(fmt.Sprintf("Could not remove orphaned bitstream content %s: %s", storageKey, err))
	}
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *sqlCatalog) GetBitstream(ctx context.Context, id fixity.BitstreamId) (*Bitstream, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.GetBitstream")
	defer span.End()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	entity, err := c.bitstreamRepository.FindBitstreamById(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	return convertBitstream(entity), nil
}

func (c *sqlCatalog) ListBitstreams(ctx context.Context) ([]Bitstream, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.ListBitstreams")
	defer span.End()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	entities, err := c.bitstreamRepository.FindAllBitstreams(ctx, tx)
	if err != nil {
		return nil, err
	}
	bitstreams := make([]Bitstream, 0, len(entities))
	for i := range entities {
		bitstreams = append(bitstreams, *convertBitstream(&entities[i]))
	}
	return bitstreams, nil
}

func (c *sqlCatalog) MarkDeleted(ctx context.Context, id fixity.BitstreamId) error {
	ctx, span := c.tracer.Start(ctx, "Catalog.MarkDeleted")
	defer span.End()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	entity, err := c.bitstreamRepository.FindBitstreamById(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if entity == nil {
		tx.Rollback()
		return fmt.Errorf("%w: %s", ErrBitstreamNotFound, id.String())
	}
	if entity.Deleted {
		tx.Rollback()
		return nil
	}
	entity.Deleted = true
	err = c.bitstreamRepository.SaveBitstream(ctx, tx, entity)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Purge removes the catalog row and then the stored bytes.
// Missing bytes are not an error, the row is what the scheduler lists.
func (c *sqlCatalog) Purge(ctx context.Context, id fixity.BitstreamId) error {
	ctx, span := c.tracer.Start(ctx, "Catalog.Purge")
	defer span.End()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	entity, err := c.bitstreamRepository.FindBitstreamById(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if entity == nil {
		tx.Rollback()
		return fmt.Errorf("%w: %s", ErrBitstreamNotFound, id.String())
	}
	err = c.bitstreamRepository.DeleteBitstreamById(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	err = tx.Commit()
	if err != nil {
		return err
	}
	err = c.store.DeleteBitstream(ctx, entity.StorageKey)
	if err != nil && !errors.Is(err, bitstore.ErrBitstreamNotFound) {
		return err
	}
	return nil
}

func (c *sqlCatalog) Resolve(ctx context.Context, root string) ([]fixity.BitstreamId, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.root", root))

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	bitstreamId, parseErr := fixity.NewBitstreamIdFromString(root)
	if parseErr == nil {
		b, err := c.bitstreamRepository.FindBitstreamById(ctx, tx, *bitstreamId)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return []fixity.BitstreamId{*b.Id}, nil
		}
		containerEntity, err := c.containerRepository.FindContainerById(ctx, tx, ulid.MustParse(root))
		if err != nil {
			return nil, err
		}
		if containerEntity != nil {
			return c.bitstreamRepository.FindBitstreamIdsInContainerTree(ctx, tx, *containerEntity.Id)
		}
	}

	containerEntity, err := c.containerRepository.FindContainerByHandle(ctx, tx, root)
	if err != nil {
		return nil, err
	}
	if containerEntity == nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	return c.bitstreamRepository.FindBitstreamIdsInContainerTree(ctx, tx, *containerEntity.Id)
}
