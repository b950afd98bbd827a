package ledger

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jdillenkofer/fixity/internal/auditlog"
	"github.com/jdillenkofer/fixity/internal/catalog"
	repositoryFactory "github.com/jdillenkofer/fixity/internal/database/repository"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumhistory"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumrecord"
	"github.com/jdillenkofer/fixity/internal/database/testdb"
	"github.com/jdillenkofer/fixity/internal/dispatcher"
	"github.com/jdillenkofer/fixity/internal/fixity"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
)

var errInjected = errors.New("injected failure")

type fakeLister struct {
	bitstreams []catalog.Bitstream
}

func (f *fakeLister) ListBitstreams(ctx context.Context) ([]catalog.Bitstream, error) {
	return f.bitstreams, nil
}

func (f *fakeLister) GetBitstream(ctx context.Context, id fixity.BitstreamId) (*catalog.Bitstream, error) {
	for i := range f.bitstreams {
		if f.bitstreams[i].Id == id {
			return &f.bitstreams[i], nil
		}
	}
	return nil, nil
}

type failingHistoryRepository struct {
	checksumhistory.Repository
	fail bool
}

func (f *failingHistoryRepository) SaveChecksumHistoryEntry(ctx context.Context, tx *sql.Tx, entity *checksumhistory.Entity) error {
	if f.fail {
		return errInjected
	}
	return f.Repository.SaveChecksumHistoryEntry(ctx, tx, entity)
}

type failingRecordRepository struct {
	checksumrecord.Repository
	failUpdate bool
}

func (f *failingRecordRepository) UpdateChecksumRecord(ctx context.Context, tx *sql.Tx, entity *checksumrecord.Entity) error {
	if f.failUpdate {
		return errInjected
	}
	return f.Repository.UpdateChecksumRecord(ctx, tx, entity)
}

type recordingMirror struct {
	checks []auditlog.CheckDetails
	fail   bool
}

func (m *recordingMirror) AppendCheck(ctx context.Context, check auditlog.CheckDetails) error {
	if m.fail {
		return errInjected
	}
	m.checks = append(m.checks, check)
	return nil
}

type fixture struct {
	store             *Store
	lister            *fakeLister
	historyRepository *failingHistoryRepository
	recordRepository  *failingRecordRepository
	mirror            *recordingMirror
}

func setup(t *testing.T, bitstreams ...catalog.Bitstream) *fixture {
	db := testdb.Open(t)
	recordRepository, err := repositoryFactory.NewChecksumRecordRepository(db)
	assert.Nil(t, err)
	historyRepository, err := repositoryFactory.NewChecksumHistoryRepository(db)
	assert.Nil(t, err)
	f := &fixture{
		lister:            &fakeLister{bitstreams: bitstreams},
		historyRepository: &failingHistoryRepository{Repository: historyRepository},
		recordRepository:  &failingRecordRepository{Repository: recordRepository},
		mirror:            &recordingMirror{},
	}
	f.store, err = New(db, f.recordRepository, f.historyRepository, f.lister, f.mirror)
	assert.Nil(t, err)
	return f
}

func catalogBitstream(checksum string, deleted bool) catalog.Bitstream {
	return catalog.Bitstream{
		Id:                fixity.NewRandomBitstreamId(),
		Checksum:          checksum,
		ChecksumAlgorithm: "MD5",
		Deleted:           deleted,
	}
}

func result(id fixity.BitstreamId, observed string, outcome fixity.Outcome, windowEnd time.Time) *fixity.Result {
	return &fixity.Result{
		BitstreamId: id,
		Verification: fixity.Verification{
			ObservedDigest: observed,
			Outcome:        outcome,
			Algorithm:      "MD5",
		},
		WindowStart: windowEnd.Add(-time.Second),
		WindowEnd:   windowEnd,
	}
}

func TestReconcileMissingInsertsOptimisticBaseline(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	live := catalogBitstream("abc123", false)
	gone := catalogBitstream("def456", true)
	f := setup(t, live, gone)

	inserted, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 2, inserted)

	record, err := f.store.FindByBitstreamId(ctx, live.Id)
	assert.Nil(t, err)
	assert.Equal(t, "abc123", record.ExpectedDigest)
	assert.Equal(t, "abc123", record.ObservedDigest)
	assert.Equal(t, fixity.ChecksumMatch, record.Outcome)
	assert.True(t, record.Scheduled)
	assert.Nil(t, record.WindowEnd)

	record, err = f.store.FindByBitstreamId(ctx, gone.Id)
	assert.Nil(t, err)
	assert.Equal(t, fixity.BitstreamMarkedDeleted, record.Outcome)
	assert.False(t, record.Scheduled)
	assert.True(t, record.Deleted)
}

func TestReconcileMissingIsIdempotent(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)

	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "zzz999", fixity.ChecksumNoMatch, time.Now())))
	before, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)

	inserted, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 0, inserted)
	after, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.Equal(t, before, after)

	f.lister.bitstreams = append(f.lister.bitstreams, catalogBitstream("fff000", false))
	inserted, err = f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, inserted)
}

func TestReconcileOne(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)

	inserted, err := f.store.ReconcileOne(ctx, b.Id)
	assert.Nil(t, err)
	assert.True(t, inserted)
	inserted, err = f.store.ReconcileOne(ctx, b.Id)
	assert.Nil(t, err)
	assert.False(t, inserted)

	_, err = f.store.ReconcileOne(ctx, fixity.NewRandomBitstreamId())
	assert.ErrorIs(t, err, ErrBitstreamUnknown)
}

func TestRecordResultMismatchKeepsExpectedDigest(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("def456", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	windowEnd := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "zzz999", fixity.ChecksumNoMatch, windowEnd)))

	record, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.Equal(t, "def456", record.ExpectedDigest)
	assert.Equal(t, "zzz999", record.ObservedDigest)
	assert.Equal(t, fixity.ChecksumNoMatch, record.Outcome)
	assert.False(t, record.MatchedPrevious)
	assert.True(t, windowEnd.Equal(*record.WindowEnd))
	assert.True(t, record.WindowEnd.Sub(*record.WindowStart) >= 0)

	history, err := f.store.FindHistory(ctx, HistoryQuery{BitstreamId: &b.Id})
	assert.Nil(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "def456", history[0].ExpectedDigest)
	assert.Equal(t, "zzz999", history[0].ObservedDigest)
	assert.True(t, windowEnd.Equal(history[0].WindowEnd))

	assert.Len(t, f.mirror.checks, 1)
	assert.Equal(t, history[0].Id.String(), f.mirror.checks[0].HistoryId)
	assert.Equal(t, "CHECKSUM_NO_MATCH", f.mirror.checks[0].Outcome)
}

func TestRecordResultTracksMatchedPrevious(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "abc123", fixity.ChecksumMatch, time.Now())))
	record, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.True(t, record.MatchedPrevious)

	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "", fixity.BitstreamNotFound, time.Now())))
	record, err = f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.False(t, record.MatchedPrevious)
	assert.Equal(t, "abc123", record.ObservedDigest)
	assert.Equal(t, fixity.BitstreamNotFound, record.Outcome)
	assert.True(t, record.Scheduled)
}

func TestRecordResultMarkedDeletedUnschedules(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	deleted := result(b.Id, "", fixity.BitstreamMarkedDeleted, time.Now())
	deleted.Deleted = true
	assert.Nil(t, f.store.RecordResult(ctx, deleted))
	record, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.True(t, record.Deleted)
	assert.False(t, record.Scheduled)

	next, err := f.store.FindOldestScheduled(ctx, nil)
	assert.Nil(t, err)
	assert.Nil(t, next)
}

func TestRecordResultWithoutRecordWritesHistoryOnly(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	f := setup(t)
	id := fixity.NewRandomBitstreamId()

	assert.Nil(t, f.store.RecordResult(ctx, result(id, "", fixity.BitstreamInfoNotFound, time.Now())))
	record, err := f.store.FindByBitstreamId(ctx, id)
	assert.Nil(t, err)
	assert.Nil(t, record)
	history, err := f.store.FindHistory(ctx, HistoryQuery{BitstreamId: &id})
	assert.Nil(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, fixity.BitstreamInfoNotFound, history[0].Outcome)
}

func assertUntouched(t *testing.T, f *fixture, id fixity.BitstreamId) {
	ctx := t.Context()
	record, err := f.store.FindByBitstreamId(ctx, id)
	assert.Nil(t, err)
	assert.Nil(t, record.WindowEnd)
	assert.Equal(t, fixity.ChecksumMatch, record.Outcome)
	assert.Equal(t, "abc123", record.ObservedDigest)
	history, err := f.store.FindHistory(ctx, HistoryQuery{BitstreamId: &id})
	assert.Nil(t, err)
	assert.Empty(t, history)
}

func TestRecordResultIsAtomicWhenHistoryInsertFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	f.historyRepository.fail = true
	err = f.store.RecordResult(ctx, result(b.Id, "zzz999", fixity.ChecksumNoMatch, time.Now()))
	assert.ErrorIs(t, err, errInjected)
	f.historyRepository.fail = false
	assertUntouched(t, f, b.Id)
}

func TestRecordResultIsAtomicWhenRecordUpdateFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	f.recordRepository.failUpdate = true
	err = f.store.RecordResult(ctx, result(b.Id, "zzz999", fixity.ChecksumNoMatch, time.Now()))
	assert.ErrorIs(t, err, errInjected)
	assertUntouched(t, f, b.Id)
	assert.Empty(t, f.mirror.checks)
}

func TestRecordResultIsAtomicWhenMirrorFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	f.mirror.fail = true
	err = f.store.RecordResult(ctx, result(b.Id, "zzz999", fixity.ChecksumNoMatch, time.Now()))
	assert.ErrorIs(t, err, errInjected)
	assertUntouched(t, f, b.Id)
}

func TestDeleteRecordRemovesHistoryAndRecord(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	other := catalogBitstream("def456", false)
	f := setup(t, b, other)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "abc123", fixity.ChecksumMatch, time.Now())))
	assert.Nil(t, f.store.RecordResult(ctx, result(other.Id, "def456", fixity.ChecksumMatch, time.Now())))

	assert.Nil(t, f.store.DeleteRecord(ctx, b.Id))
	record, err := f.store.FindByBitstreamId(ctx, b.Id)
	assert.Nil(t, err)
	assert.Nil(t, record)
	history, err := f.store.FindHistory(ctx, HistoryQuery{})
	assert.Nil(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, other.Id, history[0].BitstreamId)
}

func TestSetScheduled(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	f := setup(t, b)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	assert.Nil(t, f.store.SetScheduled(ctx, b.Id, false))
	next, err := f.store.FindOldestScheduled(ctx, nil)
	assert.Nil(t, err)
	assert.Nil(t, next)

	assert.Nil(t, f.store.SetScheduled(ctx, b.Id, true))
	next, err = f.store.FindOldestScheduled(ctx, nil)
	assert.Nil(t, err)
	assert.Equal(t, b.Id, *next)

	assert.ErrorIs(t, f.store.SetScheduled(ctx, fixity.NewRandomBitstreamId(), true), ErrRecordNotFound)
}

func TestFindOldestScheduledOrdering(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	first := catalogBitstream("aaa", false)
	second := catalogBitstream("bbb", false)
	if second.Id.Compare(first.Id) < 0 {
		first, second = second, first
	}
	f := setup(t, first, second)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	next, err := f.store.FindOldestScheduled(ctx, nil)
	assert.Nil(t, err)
	assert.Equal(t, first.Id, *next)

	runStart := time.Now().UTC()
	assert.Nil(t, f.store.RecordResult(ctx, result(first.Id, "aaa", fixity.ChecksumMatch, runStart.Add(time.Second))))
	next, err = f.store.FindOldestScheduled(ctx, &runStart)
	assert.Nil(t, err)
	assert.Equal(t, second.Id, *next)

	assert.Nil(t, f.store.RecordResult(ctx, result(second.Id, "bbb", fixity.ChecksumMatch, runStart.Add(2*time.Second))))
	next, err = f.store.FindOldestScheduled(ctx, &runStart)
	assert.Nil(t, err)
	assert.Nil(t, next)

	next, err = f.store.FindOldestScheduled(ctx, nil)
	assert.Nil(t, err)
	assert.Equal(t, first.Id, *next)
}

func TestLoopingVisitsInWindowEndOrder(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	const n = 5
	bitstreams := make([]catalog.Bitstream, 0, n)
	for range n {
		bitstreams = append(bitstreams, catalogBitstream("aaa", false))
	}
	slices.SortFunc(bitstreams, func(a, b catalog.Bitstream) int { return a.Id.Compare(b.Id) })
	f := setup(t, bitstreams...)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	// window ends run against id order and mix whole and fractional seconds
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	expected := make([]fixity.BitstreamId, 0, n)
	for i := n - 1; i >= 0; i-- {
		windowEnd := base.Add(time.Duration(n-1-i) * 1500 * time.Millisecond)
		assert.Nil(t, f.store.RecordResult(ctx, result(bitstreams[i].Id, "aaa", fixity.ChecksumMatch, windowEnd)))
		expected = append(expected, bitstreams[i].Id)
	}

	source := dispatcher.NewLooping(f.store)
	visited := []fixity.BitstreamId{}
	now := base.Add(time.Hour)
	for range 2 * n {
		id, ok, err := source.Next(ctx)
		assert.Nil(t, err)
		assert.True(t, ok)
		visited = append(visited, id)
		now = now.Add(time.Second)
		assert.Nil(t, f.store.RecordResult(ctx, result(id, "aaa", fixity.ChecksumMatch, now)))
	}
	assert.Equal(t, expected, visited[:n])
	assert.Equal(t, expected, visited[n:])
}

func TestReportingQueries(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	b := catalogBitstream("abc123", false)
	c := catalogBitstream("def456", false)
	f := setup(t, b, c)
	_, err := f.store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, f.store.RecordResult(ctx, result(b.Id, "abc123", fixity.ChecksumMatch, day.Add(time.Hour))))
	assert.Nil(t, f.store.RecordResult(ctx, result(c.Id, "zzz999", fixity.ChecksumNoMatch, day.Add(2*time.Hour))))
	assert.Nil(t, f.store.RecordResult(ctx, result(c.Id, "zzz999", fixity.ChecksumNoMatch, day.Add(26*time.Hour))))

	counts, err := f.store.CountHistoryByOutcome(ctx, day, day.Add(24*time.Hour))
	assert.Nil(t, err)
	assert.Equal(t, map[fixity.Outcome]int64{fixity.ChecksumMatch: 1, fixity.ChecksumNoMatch: 1}, counts)

	noMatch := fixity.ChecksumNoMatch
	from := day
	to := day.Add(24 * time.Hour)
	entries, err := f.store.FindHistory(ctx, HistoryQuery{From: &from, To: &to, Outcome: &noMatch})
	assert.Nil(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, c.Id, entries[0].BitstreamId)

	limited, err := f.store.FindHistory(ctx, HistoryQuery{Limit: 2})
	assert.Nil(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, b.Id, limited[0].BitstreamId)

	ledgerCounts, err := f.store.CountByOutcome(ctx)
	assert.Nil(t, err)
	assert.Equal(t, map[fixity.Outcome]int64{fixity.ChecksumMatch: 1, fixity.ChecksumNoMatch: 1}, ledgerCounts)
}
