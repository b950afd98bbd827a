package checksumhistory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/oklog/ulid/v2"
)

type Repository interface {
	// SaveChecksumHistoryEntry only ever inserts, entries are immutable.
	SaveChecksumHistoryEntry(ctx context.Context, tx *sql.Tx, checksumHistoryEntry *Entity) error
	FindChecksumHistoryEntries(ctx context.Context, tx *sql.Tx, query Query) ([]Entity, error)
	CountChecksumHistoryEntriesByOutcome(ctx context.Context, tx *sql.Tx, from time.Time, to time.Time) (map[fixity.Outcome]int64, error)
	DeleteChecksumHistoryEntriesByBitstreamId(ctx context.Context, tx *sql.Tx, bitstreamId fixity.BitstreamId) error
}

type Entity struct {
	Id             *ulid.ULID
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

// Query filters history entries by the end of their window, [From, To).
// Zero values leave a filter unset. Results are ordered by window end, oldest first.
type Query struct {
	From        *time.Time
	To          *time.Time
	Outcome     *fixity.Outcome
	BitstreamId *fixity.BitstreamId
	Limit       int
}

// BuildWhereClause renders the query filters with positional parameters starting at $1.
func (q Query) BuildWhereClause() (string, []any) {
	clause := ""
	args := []any{}
	appendCondition := func(condition string, arg any) {
		args = append(args, arg)
		if clause == "" {
			clause = " WHERE "
		} else {
			clause += " AND "
		}
		clause += fmt.Sprintf(condition, len(args))
	}
	if q.From != nil {
		appendCondition("window_end >= $%d", q.From.UTC())
	}
	if q.To != nil {
		appendCondition("window_end < $%d", q.To.UTC())
	}
	if q.Outcome != nil {
		appendCondition("outcome = $%d", string(*q.Outcome))
	}
	if q.BitstreamId != nil {
		appendCondition("bitstream_id = $%d", q.BitstreamId.String())
	}
	return clause, args
}
