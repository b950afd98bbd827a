package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
)

type filesystemBitstreamStore struct {
	*lifecycle.ValidatedLifecycle
	root string
}

var _ bitstore.BitstreamStore = (*filesystemBitstreamStore)(nil)

func New(root string) (bitstore.BitstreamStore, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	validatedLifecycle, err := lifecycle.NewValidatedLifecycle("FilesystemBitstreamStore")
	if err != nil {
		return nil, err
	}
	return &filesystemBitstreamStore{
		ValidatedLifecycle: validatedLifecycle,
		root:               root,
	}, nil
}

func (bs *filesystemBitstreamStore) Start(ctx context.Context) error {
	err := bs.ValidatedLifecycle.Start(ctx)
	if err != nil {
		return err
	}
	return os.MkdirAll(bs.root, os.ModePerm)
}

// Keys are spread over subdirectories named after their last two characters,
// ulid keys share their leading timestamp characters.
func (bs *filesystemBitstreamStore) getFilename(storageKey string) (string, error) {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return "", err
	}
	shard := storageKey
	if len(shard) > 2 {
		shard = shard[len(shard)-2:]
	}
	return filepath.Join(bs.root, shard, storageKey), nil
}

func (bs *filesystemBitstreamStore) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	filename, err := bs.getFilename(storageKey)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(filename), os.ModePerm)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(filename), "."+storageKey+".tmp-*")
	if err != nil {
		return err
	}
	tmpFilename := f.Name()
	_, err = io.Copy(f, reader)
	if err == nil {
		err = f.Sync()
	}
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpFilename)
		return err
	}
	return os.Rename(tmpFilename, filename)
}

func (bs *filesystemBitstreamStore) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	filename, err := bs.getFilename(storageKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, bitstore.ErrBitstreamNotFound
		}
		return nil, err
	}
	return f, nil
}

func (bs *filesystemBitstreamStore) DeleteBitstream(ctx context.Context, storageKey string) error {
	filename, err := bs.getFilename(storageKey)
	if err != nil {
		return err
	}
	err = os.Remove(filename)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
