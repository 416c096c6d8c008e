// Package querycache keeps derived views of backend data consistent with the
// mutations issued through it.
//
// Reads are answered from memory until a mutation invalidates them. Reads of
// the same query identity are coalesced into one backend call. A read that is
// in flight when its query is invalidated is never cancelled, but its result
// is stored as stale so the next read fetches again.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     any
	hasValue  bool
	fresh     bool
	epoch     uint64 // bumped on every invalidation
	started   uint64 // sequence number of the newest fetch
	lastErr   error
	updatedAt time.Time
}

// Cache maps query identities to their last known results.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	seq     uint64
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[Key]*entry),
		now:     time.Now,
		logger:  logger,
	}
}

// Snapshot describes the cache state of one query.
type Snapshot struct {
	Fresh     bool
	HasValue  bool
	LastError error
	UpdatedAt time.Time
}

func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Fresh: e.fresh, HasValue: e.hasValue, LastError: e.lastErr, UpdatedAt: e.updatedAt}
}

// Invalidate marks the given queries stale. In-flight reads are left running.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		e := c.entryLocked(k)
		e.epoch++
		e.fresh = false
	}
}

// Expire invalidates key when its value is older than maxAge.
func (c *Cache) Expire(key Key, maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.fresh {
		return
	}
	if c.now().Sub(e.updatedAt) >= maxAge {
		e.epoch++
		e.fresh = false
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Read returns the current value of key, fetching it when absent or stale.
func Read[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.fresh && e.hasValue {
		v, ok := e.value.(T)
		cached := e.value
		c.mu.Unlock()
		if !ok {
			return zero, fmt.Errorf("query %s: cached value has type %T", key, cached)
		}
		return v, nil
	}
	flight := fmt.Sprintf("%s#%d", key, e.epoch)
	c.mu.Unlock()

	ch := c.group.DoChan(flight, func() (any, error) {
		return c.fetch(ctx, key, func(fctx context.Context) (any, error) {
			return fetch(fctx)
		})
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query %s: fetched value has type %T", key, res.Val)
		}
		return v, nil
	}
}

func (c *Cache) fetch(ctx context.Context, key Key, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	// A flight that finished between the caller's check and now already
	// stored a fresh value for this epoch.
	if e.fresh && e.hasValue {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.seq++
	seq := c.seq
	e.started = seq
	epoch := e.epoch
	c.mu.Unlock()

	// Late subscribers share this call, so the first caller's cancellation must not abort it.
	val, err := fn(context.WithoutCancel(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entryLocked(key)
	if e.started != seq {
		c.logger.Debug("query result superseded", "key", string(key), "seq", seq)
		return val, err
	}
	if err != nil {
		e.lastErr = err
		e.fresh = false
		return nil, err
	}
	e.value = val
	e.hasValue = true
	e.lastErr = nil
	e.updatedAt = c.now()
	e.fresh = e.epoch == epoch
	return val, nil
}

// Mutate runs a backend write and, only if it succeeds, invalidates every
// query the mutation declares.
func Mutate[T any](ctx context.Context, c *Cache, m Mutation, id int64, fn func(context.Context) (T, error)) (T, error) {
	out, err := fn(ctx)
	if err != nil {
		return out, err
	}
	keys := Invalidates(m, id)
	c.Invalidate(keys...)
	c.logger.Debug("mutation invalidated queries", "mutation", m.String(), "id", id, "keys", len(keys))
	return out, nil
}
