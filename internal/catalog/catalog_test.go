package catalog

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/bitstore/filesystem"
	"github.com/jdillenkofer/fixity/internal/checksum"
	repositoryFactory "github.com/jdillenkofer/fixity/internal/database/repository"
	"github.com/jdillenkofer/fixity/internal/database/testdb"
	"github.com/jdillenkofer/fixity/internal/fixity"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func setupCatalog(t *testing.T) (Catalog, bitstore.BitstreamStore) {
	ctx := t.Context()
	db := testdb.Open(t)
	containerRepository, err := repositoryFactory.NewContainerRepository(db)
	assert.Nil(t, err)
	bitstreamRepository, err := repositoryFactory.NewBitstreamRepository(db)
	assert.Nil(t, err)
	store, err := filesystem.New(t.TempDir())
	assert.Nil(t, err)
	assert.Nil(t, store.Start(ctx))
	t.Cleanup(func() { store.Stop(ctx) })
	md5, err := checksum.NewDefaultRegistry().Lookup("MD5")
	assert.Nil(t, err)
	c, err := New(db, containerRepository, bitstreamRepository, store, *md5)
	assert.Nil(t, err)
	return c, store
}

type tree struct {
	community  *Container
	collection *Container
	item       *Container
}

func createTree(t *testing.T, c Catalog, handlePrefix string) tree {
	ctx := t.Context()
	community, err := c.CreateContainer(ctx, Community, handlePrefix+"/1", "Community", nil)
	assert.Nil(t, err)
	collection, err := c.CreateContainer(ctx, Collection, handlePrefix+"/2", "Collection", &community.Id)
	assert.Nil(t, err)
	item, err := c.CreateContainer(ctx, Item, handlePrefix+"/3", "Item", &collection.Id)
	assert.Nil(t, err)
	return tree{community: community, collection: collection, item: item}
}

func TestRegisterBitstreamHashesWhileStoring(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	c, store := setupCatalog(t)
	tr := createTree(t, c, "123456789")

	b, err := c.RegisterBitstream(ctx, tr.item.Id, "abc.txt", bytes.NewReader([]byte("abc")))
	assert.Nil(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", b.Checksum)
	assert.Equal(t, "MD5", b.ChecksumAlgorithm)
	assert.Equal(t, int64(3), b.Size)
	assert.False(t, b.Deleted)

	reader, err := store.OpenForRead(ctx, b.StorageKey)
	assert.Nil(t, err)
	content, err := io.ReadAll(reader)
	reader.Close()
	assert.Nil(t, err)
	assert.Equal(t, []byte("abc"), content)

	found, err := c.GetBitstream(ctx, b.Id)
	assert.Nil(t, err)
	assert.Equal(t, b.Checksum, found.Checksum)
	assert.Equal(t, tr.item.Id, found.ItemId)
}

func TestRegisterBitstreamRequiresItem(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	c, _ := setupCatalog(t)
	tr := createTree(t, c, "123456789")

	_, err := c.RegisterBitstream(ctx, tr.collection.Id, "x", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrInvalidParent)
	_, err = c.RegisterBitstream(ctx, ulid.Make(), "x", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestCreateContainerEnforcesHierarchy(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	c, _ := setupCatalog(t)
	tr := createTree(t, c, "123456789")

	_, err := c.CreateContainer(ctx, Item, "", "orphan", nil)
	assert.ErrorIs(t, err, ErrInvalidParent)
	_, err = c.CreateContainer(ctx, Collection, "", "nested", &tr.collection.Id)
	assert.ErrorIs(t, err, ErrInvalidParent)
	_, err = c.CreateContainer(ctx, Community, "123456789/1", "duplicate", nil)
	assert.ErrorIs(t, err, ErrHandleTaken)
	_, err = c.CreateContainer(ctx, ContainerType("BUNDLE"), "", "bundle", nil)
	assert.ErrorIs(t, err, ErrInvalidContainerType)
	subCommunity, err := c.CreateContainer(ctx, Community, "", "sub", &tr.community.Id)
	assert.Nil(t, err)
	assert.Equal(t, tr.community.Id, *subCommunity.ParentId)
}

func TestResolve(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	c, _ := setupCatalog(t)
	first := createTree(t, c, "first")
	second := createTree(t, c, "second")

	var firstIds []fixity.BitstreamId
	for range 3 {
		b, err := c.RegisterBitstream(ctx, first.item.Id, "f", bytes.NewReader([]byte("first")))
		assert.Nil(t, err)
		firstIds = append(firstIds, b.Id)
	}
	other, err := c.RegisterBitstream(ctx, second.item.Id, "s", bytes.NewReader([]byte("second")))
	assert.Nil(t, err)

	byHandle, err := c.Resolve(ctx, "first/1")
	assert.Nil(t, err)
	assert.Equal(t, firstIds, byHandle)

	byContainerId, err := c.Resolve(ctx, first.collection.Id.String())
	assert.Nil(t, err)
	assert.Equal(t, firstIds, byContainerId)

	byBitstreamId, err := c.Resolve(ctx, other.Id.String())
	assert.Nil(t, err)
	assert.Equal(t, []fixity.BitstreamId{other.Id}, byBitstreamId)

	_, err = c.Resolve(ctx, "unknown/42")
	assert.ErrorIs(t, err, ErrRootNotFound)
	_, err = c.Resolve(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, ErrRootNotFound)

	empty, err := c.CreateContainer(ctx, Collection, "empty/1", "empty", &second.community.Id)
	assert.Nil(t, err)
	ids, err := c.Resolve(ctx, empty.Handle)
	assert.Nil(t, err)
	assert.Empty(t, ids)
}

func TestMarkDeletedAndPurge(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	c, store := setupCatalog(t)
	tr := createTree(t, c, "123456789")
	b, err := c.RegisterBitstream(ctx, tr.item.Id, "doomed", bytes.NewReader([]byte("doomed")))
	assert.Nil(t, err)

	assert.Nil(t, c.MarkDeleted(ctx, b.Id))
	assert.Nil(t, c.MarkDeleted(ctx, b.Id))
	found, err := c.GetBitstream(ctx, b.Id)
	assert.Nil(t, err)
	assert.True(t, found.Deleted)

	listed, err := c.ListBitstreams(ctx)
	assert.Nil(t, err)
	assert.Len(t, listed, 1)
	assert.True(t, listed[0].Deleted)

	assert.Nil(t, c.Purge(ctx, b.Id))
	found, err = c.GetBitstream(ctx, b.Id)
	assert.Nil(t, err)
	assert.Nil(t, found)
	_, err = store.OpenForRead(ctx, b.StorageKey)
	assert.True(t, errors.Is(err, bitstore.ErrBitstreamNotFound))

	assert.ErrorIs(t, c.Purge(ctx, b.Id), ErrBitstreamNotFound)
	assert.ErrorIs(t, c.MarkDeleted(ctx, fixity.NewRandomBitstreamId()), ErrBitstreamNotFound)
}
