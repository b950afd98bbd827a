package auditlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Log appends hash chained check entries to a writer.
type Log struct {
	mu       sync.Mutex
	writer   io.Writer
	closer   io.Closer
	signer   Signer
	lastHash []byte
	now      func() time.Time
}

// NewLog starts a fresh chain on writer by writing the genesis entry.
func NewLog(writer io.Writer, signer Signer) (*Log, error) {
	l := &Log{
		writer: writer,
		signer: signer,
		now:    time.Now,
	}
	err := l.append(EntryTypeGenesis, nil, genesisPreviousHash[:])
	if err != nil {
		return nil, err
	}
	return l, nil
}

// OpenFile appends to the log at path, continuing its chain.
// An existing file is validated first and must not be corrupted.
func OpenFile(path string, signer Signer) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		l, err := NewLog(f, signer)
		if err != nil {
			f.Close()
			return nil, err
		}
		l.closer = f
		return l, nil
	}

	validator := NewValidator(nil)
	decoder := NewDecoder(f)
	for {
		entry, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = validator.ValidateEntry(entry)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("refusing to extend audit log %s: %w", path, err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &Log{
		writer:   f,
		closer:   f,
		signer:   signer,
		lastHash: validator.LastHash(),
		now:      time.Now,
	}, nil
}

func (l *Log) append(entryType EntryType, check *CheckDetails, previousHash []byte) error {
	entry := &Entry{
		Version:      CurrentVersion,
		Timestamp:    l.now().UTC(),
		Type:         entryType,
		Check:        check,
		PreviousHash: previousHash,
	}
	err := entry.Seal(l.signer)
	if err != nil {
		return err
	}
	err = EncodeEntry(l.writer, entry)
	if err != nil {
		return err
	}
	l.lastHash = entry.Hash
	return nil
}

// AppendCheck links a new check entry to the end of the chain.
func (l *Log) AppendCheck(ctx context.Context, check CheckDetails) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	check.WindowStart = check.WindowStart.UTC()
	check.WindowEnd = check.WindowEnd.UTC()
	return l.append(EntryTypeCheck, &check, l.lastHash)
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
