// Package cache holds short-lived snapshots of hot listings. Snapshots are
// never invalidated on write; readers see data at most one TTL old.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/store"
)

// DefaultTTL is the lifetime of a snapshot.
const DefaultTTL = 60 * time.Second

// RefreshTimeout bounds a single reload.
const RefreshTimeout = 10 * time.Second

// LatestSize is the number of items in a latest snapshot.
const LatestSize = 8

// Snapshot memoizes the result of load for ttl. Concurrent refreshes are
// collapsed into one call.
type Snapshot[T any] struct {
	ttl   time.Duration
	clock clock.Clock
	load  func(context.Context) (T, error)
	group singleflight.Group

	mu      sync.RWMutex
	value   T
	fetched time.Time
	valid   bool
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot[T any](ttl time.Duration, clk clock.Clock, load func(context.Context) (T, error)) *Snapshot[T] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Snapshot[T]{ttl: ttl, clock: clk, load: load}
}

// Get returns the cached value when it is younger than the TTL and reloads
// it otherwise. A failed reload leaves the previous value in place. The
// reload outlives a cancelled caller so other waiters still get the result.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	var zero T

	s.mu.RLock()
	if s.valid && s.clock.Now().Sub(s.fetched) < s.ttl {
		v := s.value
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	ch := s.group.DoChan("refresh", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()

		fetched := s.clock.Now()
		value, err := s.load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.value, s.fetched, s.valid = value, fetched, true
		s.mu.Unlock()
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// FetchedAt returns when the current value was loaded.
func (s *Snapshot[T]) FetchedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetched, s.valid
}

// Source lists posts and companies.
type Source interface {
	ListPosts(ctx context.Context, f store.PostFilter) ([]store.Post, error)
	ListCompanies(ctx context.Context, f store.CompanyFilter) ([]store.Company, error)
}

// Latest caches the newest visible posts and the newest companies.
type Latest struct {
	posts     *Snapshot[[]store.Post]
	companies *Snapshot[[]store.Company]
}

// NewLatest creates the latest-items cache over src.
func NewLatest(src Source, ttl time.Duration, clk clock.Clock) *Latest {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Latest{
		posts: NewSnapshot(ttl, clk, func(ctx context.Context) ([]store.Post, error) {
			return src.ListPosts(ctx, store.PostFilter{Limit: LatestSize})
		}),
		companies: NewSnapshot(ttl, clk, func(ctx context.Context) ([]store.Company, error) {
			return src.ListCompanies(ctx, store.CompanyFilter{Limit: LatestSize})
		}),
	}
}

// Posts returns the latest visible posts.
func (l *Latest) Posts(ctx context.Context) ([]store.Post, error) {
	return l.posts.Get(ctx)
}

// Companies returns the latest companies.
func (l *Latest) Companies(ctx context.Context) ([]store.Company, error) {
	return l.companies.Get(ctx)
}
