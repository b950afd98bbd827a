package encryption

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	aeadsubtle "github.com/google/tink/go/aead/subtle"
	streamingaeadsubtle "github.com/google/tink/go/streamingaead/subtle"
	"github.com/google/tink/go/tink"
	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
	"golang.org/x/crypto/scrypt"
)

const (
	HeaderVersion = 1
	KeyTypeLocal  = "local"

	maxHeaderLength = 64 * 1024
)

var ErrUnsupportedHeader = errors.New("unsupported encryption header")

// Header precedes the ciphertext of every stored bitstream.
// It carries the data encryption key wrapped by the key encryption key.
type Header struct {
	Version      int    `json:"version"`
	KeyType      string `json:"keyType"`
	EncryptedDEK []byte `json:"encryptedDEK"`
}

type encryptionMiddleware struct {
	*lifecycle.ValidatedLifecycle
	masterAEAD tink.AEAD
	inner      bitstore.BitstreamStore
}

var _ bitstore.BitstreamStore = (*encryptionMiddleware)(nil)

// NewWithLocalKMS derives the key encryption key from a password.
// The storage key is bound as associated data, so ciphertexts cannot be swapped between keys.
func NewWithLocalKMS(password string, inner bitstore.BitstreamStore) (bitstore.BitstreamStore, error) {
	if password == "" {
		return nil, errors.New("password is required for local KMS")
	}
	kekBytes, err := scrypt.Key([]byte(password), []byte("fixity"), 1<<16, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	kekAEAD, err := aeadsubtle.NewAESGCM(kekBytes)
	if err != nil {
		return nil, err
	}
	validatedLifecycle, err := lifecycle.NewValidatedLifecycle("EncryptionBitstreamStoreMiddleware")
	if err != nil {
		return nil, err
	}
	return &encryptionMiddleware{
		ValidatedLifecycle: validatedLifecycle,
		masterAEAD:         kekAEAD,
		inner:              inner,
	}, nil
}

func (mw *encryptionMiddleware) Start(ctx context.Context) error {
	err := mw.ValidatedLifecycle.Start(ctx)
	if err != nil {
		return err
	}
	return mw.inner.Start(ctx)
}

func (mw *encryptionMiddleware) Stop(ctx context.Context) error {
	err := mw.ValidatedLifecycle.Stop(ctx)
	if err != nil {
		return err
	}
	return mw.inner.Stop(ctx)
}

func newStreamingAEAD(dek []byte) (*streamingaeadsubtle.AESGCMHKDF, error) {
	return streamingaeadsubtle.NewAESGCMHKDF(dek, "SHA256", 32, 4096, 0)
}

func (mw *encryptionMiddleware) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return err
	}
	dek := make([]byte, 32)
	_, err = rand.Read(dek)
	if err != nil {
		return err
	}
	streamingAEAD, err := newStreamingAEAD(dek)
	if err != nil {
		return err
	}
	encryptedDEK, err := mw.masterAEAD.Encrypt(dek, []byte(storageKey))
	if err != nil {
		return err
	}
	headerBytes, err := json.Marshal(Header{
		Version:      HeaderVersion,
		KeyType:      KeyTypeLocal,
		EncryptedDEK: encryptedDEK,
	})
	if err != nil {
		return err
	}

	encryptReader, encryptWriter := io.Pipe()
	go func() {
		lengthBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(lengthBytes, uint32(len(headerBytes)))
		_, err := encryptWriter.Write(append(lengthBytes, headerBytes...))
		if err != nil {
			encryptWriter.CloseWithError(err)
			return
		}
		streamWriter, err := streamingAEAD.NewEncryptingWriter(encryptWriter, []byte(storageKey))
		if err != nil {
			encryptWriter.CloseWithError(err)
			return
		}
		_, err = io.Copy(streamWriter, reader)
		if err != nil {
			encryptWriter.CloseWithError(err)
			return
		}
		encryptWriter.CloseWithError(streamWriter.Close())
	}()

	err = mw.inner.PutBitstream(ctx, storageKey, encryptReader)
	// unblocks the writer if the inner store stopped reading early
	encryptReader.CloseWithError(io.ErrClosedPipe)
	return err
}

func readHeader(reader io.Reader) (*Header, error) {
	lengthBytes := make([]byte, 4)
	_, err := io.ReadFull(reader, lengthBytes)
	if err != nil {
		return nil, err
	}
	headerLength := binary.BigEndian.Uint32(lengthBytes)
	if headerLength > maxHeaderLength {
		return nil, fmt.Errorf("%w: header length %d", ErrUnsupportedHeader, headerLength)
	}
	headerBytes := make([]byte, headerLength)
	_, err = io.ReadFull(reader, headerBytes)
	if err != nil {
		return nil, err
	}
	var header Header
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return nil, err
	}
	if header.Version != HeaderVersion || header.KeyType != KeyTypeLocal {
		return nil, fmt.Errorf("%w: version %d key type %q", ErrUnsupportedHeader, header.Version, header.KeyType)
	}
	return &header, nil
}

func (mw *encryptionMiddleware) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	rc, err := mw.inner.OpenForRead(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	header, err := readHeader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	dek, err := mw.masterAEAD.Decrypt(header.EncryptedDEK, []byte(storageKey))
	if err != nil {
		rc.Close()
		return nil, err
	}
	streamingAEAD, err := newStreamingAEAD(dek)
	if err != nil {
		rc.Close()
		return nil, err
	}
	decryptingReader, err := streamingAEAD.NewDecryptingReader(rc, []byte(storageKey))
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &compositeReadCloser{Reader: decryptingReader, closer: rc}, nil
}

type compositeReadCloser struct {
	io.Reader
	closer io.Closer
}

func (c *compositeReadCloser) Close() error {
	return c.closer.Close()
}

func (mw *encryptionMiddleware) DeleteBitstream(ctx context.Context, storageKey string) error {
	return mw.inner.DeleteBitstream(ctx, storageKey)
}
