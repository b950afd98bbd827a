package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jdillenkofer/fixity/internal/database/repository/checksumhistory"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
)

type sqliteRepository struct {
}

const (
	checksumHistoryColumns                        = "id, bitstream_id, deleted, expected_digest, observed_digest, algorithm, window_start, window_end, outcome, created_at"
	findChecksumHistoryEntriesStmt                = "SELECT " + checksumHistoryColumns + " FROM checksum_history"
	countChecksumHistoryEntriesByOutcomeStmt      = "SELECT outcome, COUNT(*) FROM checksum_history WHERE window_end >= $1 AND window_end < $2 GROUP BY outcome"
	insertChecksumHistoryEntryStmt                = "INSERT INTO checksum_history (" + checksumHistoryColumns + ") VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"
	deleteChecksumHistoryEntriesByBitstreamIdStmt = "DELETE FROM checksum_history WHERE bitstream_id = $1"
)

func NewRepository() (checksumhistory.Repository, error) {
	return &sqliteRepository{}, nil
}

func convertRowsToChecksumHistoryEntity(rows *sql.Rows) (*checksumhistory.Entity, error) {
	var id string
	var bitstreamId string
	var deleted bool
	var expectedDigest string
	var observedDigest string
	var algorithm string
	var windowStart time.Time
	var windowEnd time.Time
	var outcome string
	var createdAt time.Time
	err := rows.Scan(&id, &bitstreamId, &deleted, &expectedDigest, &observedDigest, &algorithm, &windowStart, &windowEnd, &outcome, &createdAt)
	if err != nil {
		return nil, err
	}
	ulidId := ulid.MustParse(id)
	return &checksumhistory.Entity{
		Id:             &ulidId,
		BitstreamId:    fixity.MustParseBitstreamId(bitstreamId),
		Deleted:        deleted,
		ExpectedDigest: expectedDigest,
		ObservedDigest: observedDigest,
		Algorithm:      algorithm,
		WindowStart:    windowStart.UTC(),
		WindowEnd:      windowEnd.UTC(),
		Outcome:        fixity.Outcome(outcome),
		CreatedAt:      createdAt.UTC(),
	}, nil
}

func (chr *sqliteRepository) SaveChecksumHistoryEntry(ctx context.Context, tx *sql.Tx, checksumHistoryEntry *checksumhistory.Entity) error {
	id := ulid.Make()
	checksumHistoryEntry.Id = &id
	checksumHistoryEntry.CreatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, insertChecksumHistoryEntryStmt, checksumHistoryEntry.Id.String(), checksumHistoryEntry.BitstreamId.String(), checksumHistoryEntry.Deleted, checksumHistoryEntry.ExpectedDigest, checksumHistoryEntry.ObservedDigest, checksumHistoryEntry.Algorithm, checksumHistoryEntry.WindowStart.UTC(), checksumHistoryEntry.WindowEnd.UTC(), string(checksumHistoryEntry.Outcome), checksumHistoryEntry.CreatedAt)
	if err != nil {
		checksumHistoryEntry.Id = nil
	}
	return err
}

func (chr *sqliteRepository) FindChecksumHistoryEntries(ctx context.Context, tx *sql.Tx, query checksumhistory.Query) ([]checksumhistory.Entity, error) {
	whereClause, args := query.BuildWhereClause()
	stmt := findChecksumHistoryEntriesStmt + whereClause + " ORDER BY window_end ASC, id ASC"
	if query.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	checksumHistoryEntities := []checksumhistory.Entity{}
	for rows.Next() {
		checksumHistoryEntity, err := convertRowsToChecksumHistoryEntity(rows)
		if err != nil {
			return nil, err
		}
		checksumHistoryEntities = append(checksumHistoryEntities, *checksumHistoryEntity)
	}
	return checksumHistoryEntities, rows.Err()
}

func (chr *sqliteRepository) CountChecksumHistoryEntriesByOutcome(ctx context.Context, tx *sql.Tx, from time.Time, to time.Time) (map[fixity.Outcome]int64, error) {
	rows, err := tx.QueryContext(ctx, countChecksumHistoryEntriesByOutcomeStmt, from.UTC(), to.UTC())
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

func (chr *sqliteRepository) DeleteChecksumHistoryEntriesByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error {
	_, err := tx.ExecContext(ctx, deleteChecksumHistoryEntriesByBitstreamIdStmt, bitstreamId.String())
	return err
}
