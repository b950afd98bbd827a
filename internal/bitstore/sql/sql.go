package sql

import (
	"bytes"
	"context"
	"database/sql"
	"io"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/database"
	"github.com/jdillenkofer/fixity/internal/database/repository/bitstreamcontent"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
)

// sqlBitstreamStore keeps bitstream bytes in the bitstream_contents table.
type sqlBitstreamStore struct {
	*lifecycle.ValidatedLifecycle
	db                         database.Database
	bitstreamContentRepository bitstreamcontent.Repository
}

var _ bitstore.BitstreamStore = (*sqlBitstreamStore)(nil)

func New(db database.Database, bitstreamContentRepository bitstreamcontent.Repository) (bitstore.BitstreamStore, error) {
	validatedLifecycle, err := lifecycle.NewValidatedLifecycle("SqlBitstreamStore")
	if err != nil {
		return nil, err
	}
	return &sqlBitstreamStore{
		ValidatedLifecycle:         validatedLifecycle,
		db:                         db,
		bitstreamContentRepository: bitstreamContentRepository,
	}, nil
}

func (bs *sqlBitstreamStore) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return err
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	tx, err := bs.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	err = bs.bitstreamContentRepository.PutBitstreamContent(ctx, tx, &bitstreamcontent.Entity{
		StorageKey: storageKey,
		Content:    content,
	})
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (bs *sqlBitstreamStore) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return nil, err
	}
	tx, err := bs.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	bitstreamContent, err := bs.bitstreamContentRepository.FindBitstreamContentByStorageKey(ctx, tx, storageKey)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	if bitstreamContent == nil {
		return nil, bitstore.ErrBitstreamNotFound
	}
	return io.NopCloser(bytes.NewReader(bitstreamContent.Content)), nil
}

func (bs *sqlBitstreamStore) DeleteBitstream(ctx context.Context, storageKey string) error {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return err
	}
	tx, err := bs.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	err = bs.bitstreamContentRepository.DeleteBitstreamContentByStorageKey(ctx, tx, storageKey)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
