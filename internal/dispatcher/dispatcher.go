package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
)

var ErrNegativeCount = errors.New("count must not be negative")
var ErrScopeNotResolved = errors.New("scope root could not be resolved")

// CandidateSource yields bitstream ids to verify.
// ok is false once the source is exhausted; err reports persistence failures only.
type CandidateSource interface {
	Next(ctx context.Context) (id fixity.BitstreamId, ok bool, err error)
}

// Selector returns the scheduled bitstream with the oldest window end,
// optionally restricted to windows that ended before the given time.
type Selector interface {
	FindOldestScheduled(ctx context.Context, before *time.Time) (*fixity.BitstreamId, error)
}

// Resolver expands a scope root into the bitstream ids below it.
type Resolver interface {
	Resolve(ctx context.Context, root string) ([]fixity.BitstreamId, error)
}

type oldestFirst struct {
	mu        sync.Mutex
	selector  Selector
	before    *time.Time
	exhausted bool
}

// NewOldestFirst visits every scheduled bitstream that was not checked since runStart and then stops.
// It relies on each yielded id being recorded with a window end at or after runStart.
// Until then Next yields the same id again, so a selector based source serves a single consumer.
func NewOldestFirst(selector Selector, runStart time.Time) CandidateSource {
	runStart = runStart.UTC()
	return &oldestFirst{selector: selector, before: &runStart}
}

// NewLooping always yields the least recently checked bitstream and only stops when nothing is scheduled.
// Like NewOldestFirst it serves a single consumer.
func NewLooping(selector Selector) CandidateSource {
	return &oldestFirst{selector: selector}
}

func (s *oldestFirst) Next(ctx context.Context) (fixity.BitstreamId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted {
		return fixity.BitstreamId{}, false, nil
	}
	id, err := s.selector.FindOldestScheduled(ctx, s.before)
	if err != nil {
		return fixity.BitstreamId{}, false, err
	}
	if id == nil {
		if s.before != nil {
			s.exhausted = true
		}
		return fixity.BitstreamId{}, false, nil
	}
	return *id, true, nil
}

type list struct {
	mu  sync.Mutex
	ids []fixity.BitstreamId
	pos int
}

// NewList yields the given ids in order.
func NewList(ids []fixity.BitstreamId) CandidateSource {
	return &list{ids: slices.Clone(ids)}
}

func (s *list) Next(ctx context.Context) (fixity.BitstreamId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.ids) {
		return fixity.BitstreamId{}, false, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return id, true, nil
}

type countBounded struct {
	mu        sync.Mutex
	inner     CandidateSource
	remaining int
}

// NewCountBounded yields at most count ids of inner.
func NewCountBounded(inner CandidateSource, count int) (CandidateSource, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, count)
	}
	return &countBounded{inner: inner, remaining: count}, nil
}

func (s *countBounded) Next(ctx context.Context) (fixity.BitstreamId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return fixity.BitstreamId{}, false, nil
	}
	id, ok, err := s.inner.Next(ctx)
	if err != nil {
		return fixity.BitstreamId{}, false, err
	}
	if !ok {
		s.remaining = 0
		return fixity.BitstreamId{}, false, nil
	}
	s.remaining--
	return id, true, nil
}

type deadlineBounded struct {
	mu        sync.Mutex
	inner     CandidateSource
	deadline  time.Time
	now       func() time.Time
	exhausted bool
}

// NewDeadlineBounded stops yielding once the deadline has passed.
// The deadline is checked before delegating, a started verification is never cut short.
func NewDeadlineBounded(inner CandidateSource, deadline time.Time) CandidateSource {
	return NewDeadlineBoundedWithClock(inner, deadline, time.Now)
}

func NewDeadlineBoundedWithClock(inner CandidateSource, deadline time.Time, now func() time.Time) CandidateSource {
	return &deadlineBounded{inner: inner, deadline: deadline, now: now}
}

func (s *deadlineBounded) Next(ctx context.Context) (fixity.BitstreamId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted || !s.now().Before(s.deadline) {
		s.exhausted = true
		return fixity.BitstreamId{}, false, nil
	}
	id, ok, err := s.inner.Next(ctx)
	if err != nil {
		return fixity.BitstreamId{}, false, err
	}
	if !ok {
		s.exhausted = true
	}
	return id, ok, nil
}

// NewScopeFiltered resolves root once and yields the ids below it in id order.
func NewScopeFiltered(ctx context.Context, resolver Resolver, root string) (CandidateSource, error) {
	ids, err := resolveScope(ctx, resolver, root)
	if err != nil {
		return nil, err
	}
	return NewList(ids), nil
}

func resolveScope(ctx context.Context, resolver Resolver, root string) ([]fixity.BitstreamId, error) {
	ids, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScopeNotResolved, root, err)
	}
	ids = slices.Clone(ids)
	slices.SortFunc(ids, func(a, b fixity.BitstreamId) int { return a.Compare(b) })
	return slices.CompactFunc(ids, func(a, b fixity.BitstreamId) bool { return a == b }), nil
}
