package checker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jdillenkofer/fixity/internal/bitstore/filesystem"
	"github.com/jdillenkofer/fixity/internal/catalog"
	"github.com/jdillenkofer/fixity/internal/checksum"
	repositoryFactory "github.com/jdillenkofer/fixity/internal/database/repository"
	"github.com/jdillenkofer/fixity/internal/database/testdb"
	"github.com/jdillenkofer/fixity/internal/dispatcher"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/ledger"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/jdillenkofer/fixity/internal/verifier"
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

// digestVerifier pretends to read bitstreams whose bytes hash to the configured digests.
type digestVerifier struct {
	mu       sync.Mutex
	records  verifier.RecordFinder
	observed map[fixity.BitstreamId]string
	visited  []fixity.BitstreamId
}

func (v *digestVerifier) Verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error) {
	v.mu.Lock()
	v.visited = append(v.visited, id)
	v.mu.Unlock()
	record, err := v.records.FindByBitstreamId(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &fixity.Verification{Outcome: fixity.BitstreamInfoNotFound}, nil
	}
	observed := v.observed[id]
	outcome := fixity.ChecksumMatch
	if observed != record.ExpectedDigest {
		outcome = fixity.ChecksumNoMatch
	}
	return &fixity.Verification{ObservedDigest: observed, Outcome: outcome, Algorithm: "MD5"}, nil
}

func newLedger(t *testing.T, lister ledger.BitstreamLister) *ledger.Store {
	db := testdb.Open(t)
	recordRepository, err := repositoryFactory.NewChecksumRecordRepository(db)
	assert.Nil(t, err)
	historyRepository, err := repositoryFactory.NewChecksumHistoryRepository(db)
	assert.Nil(t, err)
	store, err := ledger.New(db, recordRepository, historyRepository, lister, nil)
	assert.Nil(t, err)
	return store
}

func countHistory(t *testing.T, store *ledger.Store) int {
	entries, err := store.FindHistory(t.Context(), ledger.HistoryQuery{})
	assert.Nil(t, err)
	return len(entries)
}

func TestEndToEndSweep(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	// b1 sorts after b2 by id, so only its missing window puts it first.
	b1 := fixity.MustParseBitstreamId("01BX5ZZKBKACTAV9WEVGEMMVRZ")
	b2 := fixity.MustParseBitstreamId("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	lister := &fakeLister{bitstreams: []catalog.Bitstream{
		{Id: b1, Checksum: "abc123", ChecksumAlgorithm: "MD5"},
		{Id: b2, Checksum: "def456", ChecksumAlgorithm: "MD5"},
	}}
	store := newLedger(t, lister)
	_, err := store.ReconcileMissing(ctx)
	assert.Nil(t, err)

	yesterday := time.Now().Add(-24 * time.Hour)
	err = store.RecordResult(ctx, &fixity.Result{
		BitstreamId:  b2,
		Verification: fixity.Verification{ObservedDigest: "def456", Outcome: fixity.ChecksumMatch, Algorithm: "MD5"},
		WindowStart:  yesterday.Add(-time.Second),
		WindowEnd:    yesterday,
	})
	assert.Nil(t, err)
	historyBefore := countHistory(t, store)

	v := &digestVerifier{records: store, observed: map[fixity.BitstreamId]string{b1: "abc123", b2: "zzz999"}}
	runner := New(dispatcher.NewOldestFirst(store, time.Now()), v, store)
	report, err := runner.Run(ctx)
	assert.Nil(t, err)

	assert.Equal(t, []fixity.BitstreamId{b1, b2}, v.visited)
	assert.Equal(t, Exhausted, runner.State())
	assert.Equal(t, Exhausted, report.State)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Outcomes[fixity.ChecksumMatch])
	assert.Equal(t, 1, report.Outcomes[fixity.ChecksumNoMatch])
	assert.Equal(t, []fixity.BitstreamId{b2}, report.Mismatches)

	record1, err := store.FindByBitstreamId(ctx, b1)
	assert.Nil(t, err)
	assert.Equal(t, fixity.ChecksumMatch, record1.Outcome)
	assert.NotNil(t, record1.WindowEnd)

	record2, err := store.FindByBitstreamId(ctx, b2)
	assert.Nil(t, err)
	assert.Equal(t, fixity.ChecksumNoMatch, record2.Outcome)
	assert.Equal(t, "def456", record2.ExpectedDigest)
	assert.Equal(t, "zzz999", record2.ObservedDigest)
	assert.True(t, record2.WindowEnd.After(yesterday))

	assert.Equal(t, historyBefore+2, countHistory(t, store))
}

func TestEndToEndSweepReadsAndHashesStoredBytes(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx := t.Context()
	db := testdb.Open(t)
	containerRepository, err := repositoryFactory.NewContainerRepository(db)
	assert.Nil(t, err)
	bitstreamRepository, err := repositoryFactory.NewBitstreamRepository(db)
	assert.Nil(t, err)
	recordRepository, err := repositoryFactory.NewChecksumRecordRepository(db)
	assert.Nil(t, err)
	historyRepository, err := repositoryFactory.NewChecksumHistoryRepository(db)
	assert.Nil(t, err)
	bitstreamStore, err := filesystem.New(t.TempDir())
	assert.Nil(t, err)
	assert.Nil(t, bitstreamStore.Start(ctx))
	t.Cleanup(func() { bitstreamStore.Stop(ctx) })

	registry := checksum.NewDefaultRegistry()
	md5, err := registry.Lookup("MD5")
	assert.Nil(t, err)
	c, err := catalog.New(db, containerRepository, bitstreamRepository, bitstreamStore, *md5)
	assert.Nil(t, err)
	community, err := c.CreateContainer(ctx, catalog.Community, "", "Community", nil)
	assert.Nil(t, err)
	collection, err := c.CreateContainer(ctx, catalog.Collection, "", "Collection", &community.Id)
	assert.Nil(t, err)
	item, err := c.CreateContainer(ctx, catalog.Item, "", "Item", &collection.Id)
	assert.Nil(t, err)

	b1, err := c.RegisterBitstream(ctx, item.Id, "b1", bytes.NewReader([]byte("abc")))
	assert.Nil(t, err)
	b2, err := c.RegisterBitstream(ctx, item.Id, "b2", bytes.NewReader([]byte("def")))
	assert.Nil(t, err)
	b3, err := c.RegisterBitstream(ctx, item.Id, "b3", bytes.NewReader([]byte("ghi")))
	assert.Nil(t, err)

	store, err := ledger.New(db, recordRepository, historyRepository, c, nil)
	assert.Nil(t, err)
	inserted, err := store.ReconcileMissing(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 3, inserted)

	assert.Nil(t, bitstreamStore.PutBitstream(ctx, b2.StorageKey, bytes.NewReader([]byte("rotten"))))
	assert.Nil(t, c.MarkDeleted(ctx, b3.Id))

	v, err := verifier.New(store, c, bitstreamStore, registry, "")
	assert.Nil(t, err)
	runner := New(dispatcher.NewOldestFirst(store, time.Now()), v, store)
	report, err := runner.Run(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, []fixity.BitstreamId{b2.Id}, report.Mismatches)

	record1, err := store.FindByBitstreamId(ctx, b1.Id)
	assert.Nil(t, err)
	assert.Equal(t, fixity.ChecksumMatch, record1.Outcome)
	assert.True(t, record1.MatchedPrevious)

	record2, err := store.FindByBitstreamId(ctx, b2.Id)
	assert.Nil(t, err)
	assert.Equal(t, fixity.ChecksumNoMatch, record2.Outcome)
	assert.Equal(t, b2.Checksum, record2.ExpectedDigest)
	assert.NotEqual(t, b2.Checksum, record2.ObservedDigest)

	record3, err := store.FindByBitstreamId(ctx, b3.Id)
	assert.Nil(t, err)
	assert.Equal(t, fixity.BitstreamMarkedDeleted, record3.Outcome)
	assert.True(t, record3.Deleted)
	assert.False(t, record3.Scheduled)

	// A second sweep starting now finds nothing left to do.
	again := New(dispatcher.NewOldestFirst(store, report.Start), v, store)
	report, err = again.Run(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 0, report.Processed)
}

type fakeVerifier struct {
	outcomes map[fixity.BitstreamId]fixity.Outcome
	err      error
}

func (v *fakeVerifier) Verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &fixity.Verification{ObservedDigest: "00", Outcome: v.outcomes[id], Algorithm: "MD5"}, nil
}

type fakeRecorder struct {
	results []fixity.Result
	failAt  int
}

func (r *fakeRecorder) RecordResult(ctx context.Context, result *fixity.Result) error {
	if r.failAt > 0 && len(r.results)+1 == r.failAt {
		return errInjected
	}
	r.results = append(r.results, *result)
	return nil
}

func ids(n int) []fixity.BitstreamId {
	result := make([]fixity.BitstreamId, n)
	for i := range result {
		result[i] = fixity.NewRandomBitstreamId()
	}
	return result
}

func TestVerifierOutcomesNeverAbort(t *testing.T) {
	testutils.SkipIfIntegration(t)
	candidates := ids(len(fixity.Outcomes))
	v := &fakeVerifier{outcomes: map[fixity.BitstreamId]fixity.Outcome{}}
	for i, outcome := range fixity.Outcomes {
		v.outcomes[candidates[i]] = outcome
	}
	recorder := &fakeRecorder{}

	report, err := New(dispatcher.NewList(candidates), v, recorder).Run(t.Context())
	assert.Nil(t, err)
	assert.Equal(t, Exhausted, report.State)
	assert.Equal(t, len(fixity.Outcomes), report.Processed)
	for _, outcome := range fixity.Outcomes {
		assert.Equal(t, 1, report.Outcomes[outcome])
	}
	assert.Equal(t, []fixity.BitstreamId{candidates[1]}, report.Mismatches)
	assert.Equal(t, []fixity.BitstreamId{candidates[2]}, report.NotFound)
	assert.Len(t, recorder.results, len(fixity.Outcomes))
}

func TestRunRecordsTheWindowAroundEachVerification(t *testing.T) {
	testutils.SkipIfIntegration(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := start
	now := func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	candidate := fixity.NewRandomBitstreamId()
	recorder := &fakeRecorder{}
	v := &fakeVerifier{outcomes: map[fixity.BitstreamId]fixity.Outcome{candidate: fixity.ChecksumMatch}}

	report, err := NewWithClock(dispatcher.NewList([]fixity.BitstreamId{candidate}), v, recorder, now).Run(t.Context())
	assert.Nil(t, err)
	assert.Len(t, recorder.results, 1)
	result := recorder.results[0]
	assert.Equal(t, candidate, result.BitstreamId)
	assert.True(t, result.WindowStart.After(report.Start))
	assert.True(t, result.WindowEnd.After(result.WindowStart))
	assert.False(t, report.End.Before(result.WindowEnd))
}

func TestRunAbortsWhenRecordingFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	candidates := ids(3)
	v := &fakeVerifier{outcomes: map[fixity.BitstreamId]fixity.Outcome{}}
	recorder := &fakeRecorder{failAt: 2}
	runner := New(dispatcher.NewList(candidates), v, recorder)

	report, err := runner.Run(t.Context())
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, Aborted, runner.State())
	assert.Equal(t, Aborted, report.State)
	assert.Equal(t, 1, report.Processed)
	assert.NotEmpty(t, report.Error)
	assert.Len(t, recorder.results, 1)
}

func TestRunAbortsWhenVerifierFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	recorder := &fakeRecorder{}
	runner := New(dispatcher.NewList(ids(2)), &fakeVerifier{err: errInjected}, recorder)

	report, err := runner.Run(t.Context())
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, Aborted, report.State)
	assert.Empty(t, recorder.results)
}

type failingSource struct{}

func (failingSource) Next(ctx context.Context) (fixity.BitstreamId, bool, error) {
	return fixity.BitstreamId{}, false, errInjected
}

func TestRunAbortsWhenDispatchFails(t *testing.T) {
	testutils.SkipIfIntegration(t)
	report, err := New(failingSource{}, &fakeVerifier{}, &fakeRecorder{}).Run(t.Context())
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, Aborted, report.State)
}

func TestRunAbortsWhenContextIsCancelled(t *testing.T) {
	testutils.SkipIfIntegration(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	recorder := &fakeRecorder{}

	report, err := New(dispatcher.NewList(ids(2)), &fakeVerifier{}, recorder).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Aborted, report.State)
	assert.Empty(t, recorder.results)
}

func TestRunnerIsSingleUse(t *testing.T) {
	testutils.SkipIfIntegration(t)
	runner := New(dispatcher.NewList(nil), &fakeVerifier{}, &fakeRecorder{})
	assert.Equal(t, Idle, runner.State())

	report, err := runner.Run(t.Context())
	assert.Nil(t, err)
	assert.Equal(t, 0, report.Processed)

	report, err = runner.Run(t.Context())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Nil(t, report)
}

func TestCountBoundedSmokeTest(t *testing.T) {
	testutils.SkipIfIntegration(t)
	source, err := dispatcher.NewCountBounded(dispatcher.NewList(ids(10)), 3)
	assert.Nil(t, err)
	recorder := &fakeRecorder{}

	report, err := New(source, &fakeVerifier{}, recorder).Run(t.Context())
	assert.Nil(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Len(t, recorder.results, 3)
}
