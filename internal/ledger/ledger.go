package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdillenkofer/fixity/internal/auditlog"
	"github.com/jdillenkofer/fixity/internal/catalog"
	"github.com/jdillenkofer/fixity/internal/database"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumhistory"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumrecord"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrBitstreamUnknown = errors.New("bitstream unknown to the catalog")
var ErrRecordNotFound = errors.New("checksum record not found")

// Record is the current fixity state of one bitstream.
// A nil WindowEnd means the bitstream was never checked.
type Record struct {
	BitstreamId     fixity.BitstreamId
	Deleted         bool
	ExpectedDigest  string
	ObservedDigest  string
	Algorithm       string
	Scheduled       bool
	WindowStart     *time.Time
	WindowEnd       *time.Time
	Outcome         fixity.Outcome
	MatchedPrevious bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HistoryEntry is one immutable check result.
type HistoryEntry struct {
	Id             ulid.ULID
	BitstreamId    fixity.BitstreamId
	Deleted        bool
	ExpectedDigest string
	ObservedDigest string
	Algorithm      string
	WindowStart    time.Time
	WindowEnd      time.Time
	Outcome        fixity.Outcome
	CreatedAt      time.Time
}

// HistoryQuery selects history entries whose window ended in [From, To).
type HistoryQuery struct {
	From        *time.Time
	To          *time.Time
	Outcome     *fixity.Outcome
	BitstreamId *fixity.BitstreamId
	Limit       int
}

// BitstreamLister is the part of the catalog reconciliation reads.
type BitstreamLister interface {
	ListBitstreams(ctx context.Context) ([]catalog.Bitstream, error)
	GetBitstream(ctx context.Context, id fixity.BitstreamId) (*catalog.Bitstream, error)
}

// HistoryMirror receives every history entry before the recording transaction commits.
type HistoryMirror interface {
	AppendCheck(ctx context.Context, check auditlog.CheckDetails) error
}

type Store struct {
	db                database.Database
	recordRepository  checksumrecord.Repository
	historyRepository checksumhistory.Repository
	lister            BitstreamLister
	mirror            HistoryMirror
	tracer            trace.Tracer
}

// New creates the store. mirror may be nil.
func New(db database.Database, recordRepository checksumrecord.Repository, historyRepository checksumhistory.Repository, lister BitstreamLister, mirror HistoryMirror) (*Store, error) {
	return &Store{
		db:                db,
		recordRepository:  recordRepository,
		historyRepository: historyRepository,
		lister:            lister,
		mirror:            mirror,
		tracer:            otel.Tracer("internal/ledger"),
	}, nil
}

func convertRecord(entity *checksumrecord.Entity) *Record {
	return &Record{
		BitstreamId:     entity.BitstreamId,
		Deleted:         entity.Deleted,
		ExpectedDigest:  entity.ExpectedDigest,
		ObservedDigest:  entity.ObservedDigest,
		Algorithm:       entity.Algorithm,
		Scheduled:       entity.Scheduled,
		WindowStart:     entity.WindowStart,
		WindowEnd:       entity.WindowEnd,
		Outcome:         entity.Outcome,
		MatchedPrevious: entity.MatchedPrevious,
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
	}
}

func convertHistoryEntry(entity *checksumhistory.Entity) HistoryEntry {
	return HistoryEntry{
		Id:             *entity.Id,
		BitstreamId:    entity.BitstreamId,
		Deleted:        entity.Deleted,
		ExpectedDigest: entity.ExpectedDigest,
		ObservedDigest: entity.ObservedDigest,
		Algorithm:      entity.Algorithm,
		WindowStart:    entity.WindowStart,
		WindowEnd:      entity.WindowEnd,
		Outcome:        entity.Outcome,
		CreatedAt:      entity.CreatedAt,
	}
}

// FindByBitstreamId returns nil when the bitstream has no record.
func (s *Store) FindByBitstreamId(ctx context.Context, id fixity.BitstreamId) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "Store.FindByBitstreamId")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	entity, err := s.recordRepository.FindChecksumRecordByBitstreamId(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	return convertRecord(entity), nil
}

// RecordResult appends the result to the history and applies it to the record
// in one transaction. The expected digest is never changed here.
func (s *Store) RecordResult(ctx context.Context, result *fixity.Result) error {
	ctx, span := s.tracer.Start(ctx, "Store.RecordResult")
	defer span.End()
	span.SetAttributes(
		attribute.String("bitstream.id", result.BitstreamId.String()),
		attribute.String("fixity.outcome", string(result.Outcome)),
	)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	record, err := s.recordRepository.FindChecksumRecordByBitstreamIdForUpdate(ctx, tx, result.BitstreamId)
	if err != nil {
		tx.Rollback()
		return err
	}

	historyEntity := checksumhistory.Entity{
		BitstreamId:    result.BitstreamId,
		Deleted:        result.Deleted,
		ObservedDigest: result.ObservedDigest,
		Algorithm:      result.Algorithm,
		WindowStart:    result.WindowStart.UTC(),
		WindowEnd:      result.WindowEnd.UTC(),
		Outcome:        result.Outcome,
	}
	if record != nil {
		historyEntity.ExpectedDigest = record.ExpectedDigest
		if historyEntity.Algorithm == "" {
			historyEntity.Algorithm = record.Algorithm
		}
	}
	err = s.historyRepository.SaveChecksumHistoryEntry(ctx, tx, &historyEntity)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("could not append history for %s: %w", result.BitstreamId.String(), err)
	}

	if record == nil {
		slog.Warn(fmt.Sprintf("No checksum record for %s, only the history entry was written", result.BitstreamId.String()))
	} else {
		applyResult(record, result)
		err = s.recordRepository.UpdateChecksumRecord(ctx, tx, record)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("could not update checksum record for %s: %w", result.BitstreamId.String(), err)
		}
	}

	if s.mirror != nil {
		err = s.mirror.AppendCheck(ctx, auditlog.CheckDetails{
			HistoryId:      historyEntity.Id.String(),
			BitstreamId:    historyEntity.BitstreamId.String(),
			Outcome:        string(historyEntity.Outcome),
			ExpectedDigest: historyEntity.ExpectedDigest,
			ObservedDigest: historyEntity.ObservedDigest,
			Algorithm:      historyEntity.Algorithm,
			Deleted:        historyEntity.Deleted,
			WindowStart:    historyEntity.WindowStart,
			WindowEnd:      historyEntity.WindowEnd,
		})
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("could not mirror history for %s: %w", result.BitstreamId.String(), err)
		}
	}

	return tx.Commit()
}

func applyResult(record *checksumrecord.Entity, result *fixity.Result) {
	windowStart := result.WindowStart.UTC()
	windowEnd := result.WindowEnd.UTC()
	record.MatchedPrevious = result.ObservedDigest != "" && result.ObservedDigest == record.ObservedDigest
	if result.ObservedDigest != "" {
		record.ObservedDigest = result.ObservedDigest
	}
	if result.Algorithm != "" {
		record.Algorithm = result.Algorithm
	}
	record.Outcome = result.Outcome
	record.Deleted = result.Deleted
	record.WindowStart = &windowStart
	record.WindowEnd = &windowEnd
	if result.Outcome == fixity.BitstreamMarkedDeleted {
		record.Deleted = true
		record.Scheduled = false
	}
}

func baselineRecord(b *catalog.Bitstream) *checksumrecord.Entity {
	entity := &checksumrecord.Entity{
		BitstreamId:    b.Id,
		Deleted:        b.Deleted,
		ExpectedDigest: b.Checksum,
		ObservedDigest: b.Checksum,
		Algorithm:      b.ChecksumAlgorithm,
		Scheduled:      !b.Deleted,
		Outcome:        fixity.ChecksumMatch,
	}
	if b.Deleted {
		entity.Outcome = fixity.BitstreamMarkedDeleted
	}
	return entity
}

// ReconcileMissing inserts a baseline record for every catalog bitstream
// that has none yet and returns how many were inserted.
func (s *Store) ReconcileMissing(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ReconcileMissing")
	defer span.End()

	bitstreams, err := s.lister.ListBitstreams(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return 0, err
	}
	inserted := 0
	for i := range bitstreams {
		ok, err := s.recordRepository.InsertChecksumRecordIfAbsent(ctx, tx, baselineRecord(&bitstreams[i]))
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if ok {
			inserted++
		}
	}
	err = tx.Commit()
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("ledger.inserted", inserted))
	if inserted > 0 {
		slog.Info(fmt.Sprintf("Reconciled %d new checksum records", inserted))
	}
	return inserted, nil
}

// ReconcileOne inserts the baseline record for a single bitstream and reports whether it was missing.
func (s *Store) ReconcileOne(ctx context.Context, id fixity.BitstreamId) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "Store.ReconcileOne")
	defer span.End()

	b, err := s.lister.GetBitstream(ctx, id)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, fmt.Errorf("%w: %s", ErrBitstreamUnknown, id.String())
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return false, err
	}
	inserted, err := s.recordRepository.InsertChecksumRecordIfAbsent(ctx, tx, baselineRecord(b))
	if err != nil {
		tx.Rollback()
		return false, err
	}
	err = tx.Commit()
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// DeleteRecord purges the history and the record of a bitstream.
func (s *Store) DeleteRecord(ctx context.Context, id fixity.BitstreamId) error {
	ctx, span := s.tracer.Start(ctx, "Store.DeleteRecord")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	err = s.historyRepository.DeleteChecksumHistoryEntriesByBitstreamId(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	err = s.recordRepository.DeleteChecksumRecordByBitstreamId(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SetScheduled includes or excludes a bitstream from selection.
func (s *Store) SetScheduled(ctx context.Context, id fixity.BitstreamId, scheduled bool) error {
	ctx, span := s.tracer.Start(ctx, "Store.SetScheduled")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: false})
	if err != nil {
		return err
	}
	updated, err := s.recordRepository.UpdateScheduledByBitstreamId(ctx, tx, id, scheduled)
	if err != nil {
		tx.Rollback()
		return err
	}
	if !updated {
		tx.Rollback()
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id.String())
	}
	return tx.Commit()
}

// FindOldestScheduled returns the next bitstream due for a check or nil when none is.
func (s *Store) FindOldestScheduled(ctx context.Context, before *time.Time) (*fixity.BitstreamId, error) {
	ctx, span := s.tracer.Start(ctx, "Store.FindOldestScheduled")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return s.recordRepository.FindOldestScheduledBitstreamId(ctx, tx, before)
}

func (s *Store) CountByOutcome(ctx context.Context) (map[fixity.Outcome]int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return s.recordRepository.CountChecksumRecordsByOutcome(ctx, tx)
}

func (s *Store) FindHistory(ctx context.Context, query HistoryQuery) ([]HistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "Store.FindHistory")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	entities, err := s.historyRepository.FindChecksumHistoryEntries(ctx, tx, checksumhistory.Query{
		From:        query.From,
		To:          query.To,
		Outcome:     query.Outcome,
		BitstreamId: query.BitstreamId,
		Limit:       query.Limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(entities))
	for i := range entities {
		entries = append(entries, convertHistoryEntry(&entities[i]))
	}
	return entries, nil
}

// CountHistoryByOutcome counts the checks whose window ended in [from, to).
func (s *Store) CountHistoryByOutcome(ctx context.Context, from time.Time, to time.Time) (map[fixity.Outcome]int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return s.historyRepository.CountChecksumHistoryEntriesByOutcome(ctx, tx, from, to)
}
