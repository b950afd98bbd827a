package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"hash/crc64"
	"io"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	MD5       = "MD5"
	SHA1      = "SHA-1"
	SHA256    = "SHA-256"
	SHA384    = "SHA-384"
	SHA512    = "SHA-512"
	CRC32     = "CRC32"
	CRC32C    = "CRC32C"
	CRC64NVME = "CRC64NVME"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// Algorithm produces lower-case hex digests.
type Algorithm struct {
	Name    string
	newHash func() hash.Hash
}

func NewAlgorithm(name string, newHash func() hash.Hash) Algorithm {
	return Algorithm{Name: name, newHash: newHash}
}

func (a Algorithm) Hash() hash.Hash {
	return a.newHash()
}

// Calculate consumes the reader and returns its digest and the number of bytes read.
func (a Algorithm) Calculate(ctx context.Context, reader io.Reader) (string, int64, error) {
	tracer := otel.Tracer("internal/checksum")
	_, span := tracer.Start(ctx, "Algorithm.Calculate")
	span.SetAttributes(attribute.String("checksum.algorithm", a.Name))
	defer span.End()

	h := a.newHash()
	n, err := io.Copy(h, reader)
	if err != nil {
		span.RecordError(err)
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Registry maps normalized algorithm names to algorithms.
type Registry struct {
	algorithms map[string]Algorithm
}

func NewRegistry(algorithms ...Algorithm) *Registry {
	r := &Registry{algorithms: make(map[string]Algorithm, len(algorithms))}
	for _, algorithm := range algorithms {
		r.algorithms[normalize(algorithm.Name)] = algorithm
	}
	return r
}

func ociAlgorithm(name string, algorithm digest.Algorithm) Algorithm {
	return NewAlgorithm(name, algorithm.Hash)
}

// NewDefaultRegistry knows every algorithm the checker supports out of the box.
func NewDefaultRegistry() *Registry {
	crc64NvmeTable := crc64.MakeTable(0x9a6c9329ac4bc9b5)
	crc32cTable := crc32.MakeTable(crc32.Castagnoli)
	return NewRegistry(
		NewAlgorithm(MD5, md5.New),
		NewAlgorithm(SHA1, sha1.New),
		ociAlgorithm(SHA256, digest.SHA256),
		ociAlgorithm(SHA384, digest.SHA384),
		ociAlgorithm(SHA512, digest.SHA512),
		NewAlgorithm(CRC32, func() hash.Hash { return crc32.NewIEEE() }),
		NewAlgorithm(CRC32C, func() hash.Hash { return crc32.New(crc32cTable) }),
		NewAlgorithm(CRC64NVME, func() hash.Hash { return crc64.New(crc64NvmeTable) }),
	)
}

func normalize(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "")
	return strings.ReplaceAll(name, "_", "")
}

func (r *Registry) Lookup(name string) (*Algorithm, error) {
	algorithm, ok := r.algorithms[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return &algorithm, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.algorithms))
	for _, algorithm := range r.algorithms {
		names = append(names, algorithm.Name)
	}
	sort.Strings(names)
	return names
}
