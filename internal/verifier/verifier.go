package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/catalog"
	"github.com/jdillenkofer/fixity/internal/checksum"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/ledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultAlgorithm = "MD5"

// Verifier reads a bitstream and compares it to its recorded digest.
// Every observation is an outcome; errors are reserved for lookup failures.
type Verifier interface {
	Verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error)
}

type RecordFinder interface {
	FindByBitstreamId(ctx context.Context, id fixity.BitstreamId) (*ledger.Record, error)
}

type BitstreamFinder interface {
	GetBitstream(ctx context.Context, id fixity.BitstreamId) (*catalog.Bitstream, error)
}

type verifier struct {
	records          RecordFinder
	bitstreams       BitstreamFinder
	store            bitstore.BitstreamStore
	registry         *checksum.Registry
	defaultAlgorithm string
	tracer           trace.Tracer
}

var _ Verifier = (*verifier)(nil)

// New creates a verifier. An empty defaultAlgorithm means MD5.
func New(records RecordFinder, bitstreams BitstreamFinder, store bitstore.BitstreamStore, registry *checksum.Registry, defaultAlgorithm string) (Verifier, error) {
	if defaultAlgorithm == "" {
		defaultAlgorithm = DefaultAlgorithm
	}
	return &verifier{
		records:          records,
		bitstreams:       bitstreams,
		store:            store,
		registry:         registry,
		defaultAlgorithm: defaultAlgorithm,
		tracer:           otel.Tracer("internal/verifier"),
	}, nil
}

func (v *verifier) Verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error) {
	ctx, span := v.tracer.Start(ctx, "Verifier.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("bitstream.id", id.String()))

	verification, err := v.verify(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("fixity.outcome", string(verification.Outcome)))
	return verification, nil
}

func (v *verifier) verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error) {
	record, err := v.records.FindByBitstreamId(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		slog.Error(fmt.Sprintf("No checksum record for bitstream %s", id.String()))
		return &fixity.Verification{Outcome: fixity.BitstreamInfoNotFound}, nil
	}

	algorithmName := record.Algorithm
	if algorithmName == "" {
		algorithmName = v.defaultAlgorithm
	}

	b, err := v.bitstreams.GetBitstream(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		slog.Warn(fmt.Sprintf("Bitstream %s has a checksum record but is missing from the catalog", id.String()))
		return &fixity.Verification{Outcome: fixity.BitstreamNotFound, Algorithm: algorithmName}, nil
	}
	if b.Deleted {
		return &fixity.Verification{Outcome: fixity.BitstreamMarkedDeleted, Algorithm: algorithmName, Deleted: true}, nil
	}

	algorithm, err := v.registry.Lookup(algorithmName)
	if err != nil {
		slog.Warn(fmt.Sprintf("Cannot verify bitstream %s: %s", id.String(), err))
		return &fixity.Verification{Outcome: fixity.ChecksumAlgorithmInvalid, Algorithm: algorithmName}, nil
	}

	observed, err := v.readDigest(ctx, b.StorageKey, algorithm)
	if err != nil {
		slog.Warn(fmt.Sprintf("Could not read bitstream %s (%s): %s", id.String(), b.StorageKey, err))
		return &fixity.Verification{Outcome: fixity.BitstreamNotFound, Algorithm: algorithm.Name}, nil
	}

	outcome := fixity.ChecksumMatch
	if !strings.EqualFold(observed, record.ExpectedDigest) {
		outcome = fixity.ChecksumNoMatch
		slog.Warn(fmt.Sprintf("Checksum mismatch for bitstream %s: expected %s, observed %s", id.String(), record.ExpectedDigest, observed))
	}
	return &fixity.Verification{ObservedDigest: observed, Outcome: outcome, Algorithm: algorithm.Name}, nil
}

func (v *verifier) readDigest(ctx context.Context, storageKey string, algorithm *checksum.Algorithm) (string, error) {
	reader, err := v.store.OpenForRead(ctx, storageKey)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	digest, _, err := algorithm.Calculate(ctx, reader)
	return digest, err
}
