package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/database/repository/checksumrecord"
	"github.com/jdillenkofer/fixity/internal/fixity"
)

type sqliteRepository struct {
}

const (
	checksumRecordColumns                 = "bitstream_id, deleted, expected_digest, observed_digest, algorithm, scheduled, window_start, window_end, outcome, matched_previous, created_at, updated_at"
	findChecksumRecordByBitstreamIdStmt   = "SELECT " + checksumRecordColumns + " FROM checksum_records WHERE bitstream_id = $1"
	findOldestScheduledBitstreamIdStmt    = "SELECT bitstream_id FROM checksum_records WHERE scheduled = TRUE ORDER BY window_end ASC NULLS FIRST, bitstream_id ASC LIMIT 1"
	findOldestScheduledBitstreamIdBefore  = "SELECT bitstream_id FROM checksum_records WHERE scheduled = TRUE AND (window_end IS NULL OR window_end < $1) ORDER BY window_end ASC NULLS FIRST, bitstream_id ASC LIMIT 1"
	countChecksumRecordsByOutcomeStmt     = "SELECT outcome, COUNT(*) FROM checksum_records GROUP BY outcome"
	insertChecksumRecordIfAbsentStmt      = "INSERT INTO checksum_records (" + checksumRecordColumns + ") VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (bitstream_id) DO NOTHING"
	updateChecksumRecordStmt              = "UPDATE checksum_records SET deleted = $1, expected_digest = $2, observed_digest = $3, algorithm = $4, scheduled = $5, window_start = $6, window_end = $7, outcome = $8, matched_previous = $9, updated_at = $10 WHERE bitstream_id = $11"
	updateScheduledByBitstreamIdStmt      = "UPDATE checksum_records SET scheduled = $1, updated_at = $2 WHERE bitstream_id = $3"
	deleteChecksumRecordByBitstreamIdStmt = "DELETE FROM checksum_records WHERE bitstream_id = $1"
)

func NewRepository() (checksumrecord.Repository, error) {
	return &sqliteRepository{}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func convertRowToChecksumRecordEntity(row rowScanner) (*checksumrecord.Entity, error) {
	var bitstreamId string
	var deleted bool
	var expectedDigest string
	var observedDigest string
	var algorithm string
	var scheduled bool
	var windowStart sql.NullTime
	var windowEnd sql.NullTime
	var outcome string
	var matchedPrevious bool
	var createdAt time.Time
	var updatedAt time.Time
	err := row.Scan(&bitstreamId, &deleted, &expectedDigest, &observedDigest, &algorithm, &scheduled, &windowStart, &windowEnd, &outcome, &matchedPrevious, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	entity := checksumrecord.Entity{
		BitstreamId:     fixity.MustParseBitstreamId(bitstreamId),
		Deleted:         deleted,
		ExpectedDigest:  expectedDigest,
		ObservedDigest:  observedDigest,
		Algorithm:       algorithm,
		Scheduled:       scheduled,
		Outcome:         fixity.Outcome(outcome),
		MatchedPrevious: matchedPrevious,
		CreatedAt:       createdAt.UTC(),
		UpdatedAt:       updatedAt.UTC(),
	}
	if windowStart.Valid {
		t := windowStart.Time.UTC()
		entity.WindowStart = &t
	}
	if windowEnd.Valid {
		t := windowEnd.Time.UTC()
		entity.WindowEnd = &t
	}
	return &entity, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (crr *sqliteRepository) FindChecksumRecordByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*checksumrecord.Entity, error) {
	row := tx.QueryRowContext(ctx, findChecksumRecordByBitstreamIdStmt, bitstreamId.String())
	return convertRowToChecksumRecordEntity(row)
}

// sqlite write transactions are opened with _txlock=immediate and therefore already hold the database write lock.
func (crr *sqliteRepository) FindChecksumRecordByBitstreamIdForUpdate(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*checksumrecord.Entity, error) {
	return crr.FindChecksumRecordByBitstreamId(ctx, tx, bitstreamId)
}

func (crr *sqliteRepository) FindOldestScheduledBitstreamId(ctx context.Context, tx *sql.Tx, before *time.Time) (*fixity.BitstreamId, error) {
	var row *sql.Row
	if before != nil {
		row = tx.QueryRowContext(ctx, findOldestScheduledBitstreamIdBefore, before.UTC())
	} else {
		row = tx.QueryRowContext(ctx, findOldestScheduledBitstreamIdStmt)
	}
	var bitstreamId string
	err := row.Scan(&bitstreamId)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	id := fixity.MustParseBitstreamId(bitstreamId)
	return &id, nil
}

func (crr *sqliteRepository) CountChecksumRecordsByOutcome(ctx context.Context, tx *sql.Tx) (map[fixity.Outcome]int64, error) {
	rows, err := tx.QueryContext(ctx, countChecksumRecordsByOutcomeStmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[fixity.Outcome]int64{}
	for rows.Next() {
		var outcome string
		var count int64
		err = rows.Scan(&outcome, &count)
		if err != nil {
			return nil, err
		}
		counts[fixity.Outcome(outcome)] = count
	}
	return counts, rows.Err()
}

func (crr *sqliteRepository) InsertChecksumRecordIfAbsent(ctx context.Context, tx *sql.Tx, checksumRecord *checksumrecord.Entity) (bool, error) {
	checksumRecord.CreatedAt = time.Now().UTC()
	checksumRecord.UpdatedAt = checksumRecord.CreatedAt
	result, err := tx.ExecContext(ctx, insertChecksumRecordIfAbsentStmt, checksumRecord.BitstreamId.String(), checksumRecord.Deleted, checksumRecord.ExpectedDigest, checksumRecord.ObservedDigest, checksumRecord.Algorithm, checksumRecord.Scheduled, nullableTime(checksumRecord.WindowStart), nullableTime(checksumRecord.WindowEnd), string(checksumRecord.Outcome), checksumRecord.MatchedPrevious, checksumRecord.CreatedAt, checksumRecord.UpdatedAt)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (crr *sqliteRepository) UpdateChecksumRecord(ctx context.Context, tx *sql.Tx, checksumRecord *checksumrecord.Entity) error {
	checksumRecord.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, updateChecksumRecordStmt, checksumRecord.Deleted, checksumRecord.ExpectedDigest, checksumRecord.ObservedDigest, checksumRecord.Algorithm, checksumRecord.Scheduled, nullableTime(checksumRecord.WindowStart), nullableTime(checksumRecord.WindowEnd), string(checksumRecord.Outcome), checksumRecord.MatchedPrevious, checksumRecord.UpdatedAt, checksumRecord.BitstreamId.String())
	return err
}

func (crr *sqliteRepository) UpdateScheduledByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId, scheduled bool) (bool, error) {
	result, err := tx.ExecContext(ctx, updateScheduledByBitstreamIdStmt, scheduled, time.Now().UTC(), bitstreamId.String())
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

func (crr *sqliteRepository) DeleteChecksumRecordByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error {
	_, err := tx.ExecContext(ctx, deleteChecksumRecordByBitstreamIdStmt, bitstreamId.String())
	return err
}
