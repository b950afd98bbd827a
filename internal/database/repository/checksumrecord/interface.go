package checksumrecord

import (
	"context"
	"database/sql"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
)

type Repository interface {
	FindChecksumRecordByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*Entity, error)
	// FindChecksumRecordByBitstreamIdForUpdate locks the row until tx ends where the database supports row locks.
	FindChecksumRecordByBitstreamIdForUpdate(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) (*Entity, error)
	// FindOldestScheduledBitstreamId returns the scheduled record with the smallest window_end,
	// never processed records first and ties broken by bitstream id.
	// If before is set only records whose window ended before it are considered.
	FindOldestScheduledBitstreamId(ctx context.Context, tx *sql.Tx, before *time.Time) (*fixity.BitstreamId, error)
	CountChecksumRecordsByOutcome(ctx context.Context, tx *sql.Tx) (map[fixity.Outcome]int64, error)
	// InsertChecksumRecordIfAbsent reports whether a row was inserted.
	InsertChecksumRecordIfAbsent(ctx context.Context, tx *sql.Tx, checksumRecord *Entity) (bool, error)
	UpdateChecksumRecord(ctx context.Context, tx *sql.Tx, checksumRecord *Entity) error
	UpdateScheduledByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId, scheduled bool) (bool, error)
	DeleteChecksumRecordByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error
}

type Entity struct {
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
