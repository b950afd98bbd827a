package bitstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/jdillenkofer/fixity/internal/lifecycle"
	"github.com/oklog/ulid/v2"
)

var ErrBitstreamNotFound = errors.New("bitstream not found")
var ErrInvalidStorageKey = errors.New("invalid storage key")

var storageKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// BitstreamStore holds the bytes of bitstreams, addressed by an opaque storage key.
type BitstreamStore interface {
	lifecycle.Manager
	PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error
	// OpenForRead returns ErrBitstreamNotFound when nothing is stored under the key.
	// The caller is responsible for closing the ReadCloser.
	OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// DeleteBitstream succeeds when nothing is stored under the key.
	DeleteBitstream(ctx context.Context, storageKey string) error
}

func NewStorageKey() string {
	return ulid.Make().String()
}

func ValidateStorageKey(storageKey string) error {
	if !storageKeyPattern.MatchString(storageKey) {
		return fmt.Errorf("%w: %q", ErrInvalidStorageKey, storageKey)
	}
	return nil
}

// Tester runs a put, overwrite, read and delete round trip against a store.
func Tester(store BitstreamStore, content []byte) error {
	ctx := context.Background()
	err := store.Start(ctx)
	if err != nil {
		return err
	}
	defer store.Stop(ctx)

	storageKey := NewStorageKey()

	err = store.PutBitstream(ctx, storageKey, bytes.NewReader([]byte("overwritten")))
	if err != nil {
		return err
	}
	err = store.PutBitstream(ctx, storageKey, bytes.NewReader(content))
	if err != nil {
		return err
	}

	reader, err := store.OpenForRead(ctx, storageKey)
	if err != nil {
		return err
	}
	readContent, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return err
	}
	if !bytes.Equal(content, readContent) {
		return errors.New("read returned invalid content")
	}

	err = store.DeleteBitstream(ctx, storageKey)
	if err != nil {
		return err
	}
	err = store.DeleteBitstream(ctx, storageKey)
	if err != nil {
		return err
	}

	reader, err = store.OpenForRead(ctx, storageKey)
	if !errors.Is(err, ErrBitstreamNotFound) {
		if reader != nil {
			reader.Close()
		}
		return fmt.Errorf("expected ErrBitstreamNotFound, got %v", err)
	}

	_, err = store.OpenForRead(ctx, "../escape")
	if !errors.Is(err, ErrInvalidStorageKey) {
		return fmt.Errorf("expected ErrInvalidStorageKey, got %v", err)
	}
	return nil
}
