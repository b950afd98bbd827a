package sftp

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const maxSftpRetries = 3
const waitDurationBeforeRetry = 3 * time.Second

type sftpBitstreamStore struct {
	*lifecycle.ValidatedLifecycle
	addr         string
	clientConfig *ssh.ClientConfig
	root         string
	mu           sync.Mutex
	client       *sftp.Client
}

var _ bitstore.BitstreamStore = (*sftpBitstreamStore)(nil)

func New(addr string, clientConfig *ssh.ClientConfig, root string) (bitstore.BitstreamStore, error) {
	validatedLifecycle, err := lifecycle.NewValidatedLifecycle("SftpBitstreamStore")
	if err != nil {
		return nil, err
	}
	return &sftpBitstreamStore{
		ValidatedLifecycle: validatedLifecycle,
		addr:               addr,
		clientConfig:       clientConfig,
		root:               root,
	}, nil
}

func (s *sftpBitstreamStore) Start(ctx context.Context) error {
	err := s.ValidatedLifecycle.Start(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.reconnectSftpClient()
	if err != nil {
		return err
	}
	_, err = doRetriableOperation(func() (struct{}, error) {
		return struct{}{}, s.client.MkdirAll(s.root)
	}, maxSftpRetries, s.reconnectSftpClient)
	return err
}

func (s *sftpBitstreamStore) Stop(ctx context.Context) error {
	err := s.ValidatedLifecycle.Stop(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// reconnectSftpClient must be called with mu held.
func (s *sftpBitstreamStore) reconnectSftpClient() error {
	if s.client != nil {
		slog.Warn("Reconnecting sftp client to " + s.addr)
		time.Sleep(waitDurationBeforeRetry)
		s.client.Close()
		s.client = nil
	}

	client, err := ssh.Dial("tcp", s.addr, s.clientConfig)
	if err != nil {
		return err
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return err
	}
	s.client = sftpClient
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist)
}

// doRetriableOperation retries op after preRetry succeeded.
// A missing file is a final answer and never retried.
func doRetriableOperation[T any](op func() (T, error), maxRetries int, preRetry func() error) (T, error) {
	retries := 0
	var empty T
	for {
		t, err := op()
		if err == nil {
			return t, nil
		}
		if isNotExist(err) {
			return empty, err
		}
		retries += 1
		if retries >= maxRetries {
			return empty, err
		}
		err = preRetry()
		if err != nil {
			return empty, err
		}
	}
}

func (s *sftpBitstreamStore) getFilename(storageKey string) (string, error) {
	err := bitstore.ValidateStorageKey(storageKey)
	if err != nil {
		return "", err
	}
	return path.Join(s.root, storageKey), nil
}

func (s *sftpBitstreamStore) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	filename, err := s.getFilename(storageKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := doRetriableOperation(func() (*sftp.File, error) {
		return s.client.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	}, maxSftpRetries, s.reconnectSftpClient)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, reader)
	closeErr := f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (s *sftpBitstreamStore) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	filename, err := s.getFilename(storageKey)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := doRetriableOperation(func() (*sftp.File, error) {
		return s.client.OpenFile(filename, os.O_RDONLY)
	}, maxSftpRetries, s.reconnectSftpClient)
	if err != nil {
		if isNotExist(err) {
			return nil, bitstore.ErrBitstreamNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *sftpBitstreamStore) DeleteBitstream(ctx context.Context, storageKey string) error {
	filename, err := s.getFilename(storageKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = doRetriableOperation(func() (struct{}, error) {
		return struct{}{}, s.client.Remove(filename)
	}, maxSftpRetries, s.reconnectSftpClient)
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}
