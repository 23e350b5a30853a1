// Package cache memoizes the last successful snapshot fetch for a fixed TTL.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skymind/internal/flights"
	"skymind/internal/metrics"
)

// DefaultTTL is how long a fetched snapshot is served before refetching.
const DefaultTTL = 5 * time.Minute

// Entry is the single cached slot.
type Entry struct {
	Snapshot  flights.Snapshot `json:"snapshot"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Backend stores the slot. Implementations may expire entries on their own;
// the Cache still checks age against its TTL.
type Backend interface {
	Get(ctx context.Context) (Entry, bool, error)
	Set(ctx context.Context, e Entry, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// RefreshFunc produces a fresh snapshot.
type RefreshFunc func(ctx context.Context) (flights.Snapshot, error)

// Cache owns {last_result, last_fetch_time} behind GetOrRefresh.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend replaces the in-process slot.
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics counts backend failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns a cache with the given TTL. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{backend: NewMemoryBackend(), ttl: ttl, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the memoization window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// GetOrRefresh returns the cached snapshot while it is younger than the TTL,
// otherwise calls refresh and stores the result. Failed refreshes are not
// cached. fromCache reports whether refresh was skipped.
//
// Backend failures never fail the call: an unreadable slot counts as a miss
// and a failed store still returns the fresh snapshot.
func (c *Cache) GetOrRefresh(ctx context.Context, refresh RefreshFunc) (snap flights.Snapshot, fromCache bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.backend.Get(ctx)
	if err != nil {
		c.backendError("get", err)
		ok = false
	}
	now := c.now()
	if ok && now.Sub(e.FetchedAt) < c.ttl {
		return e.Snapshot, true, nil
	}

	snap, err = refresh(ctx)
	if err != nil {
		return flights.Snapshot{}, false, err
	}
	if err := c.backend.Set(ctx, Entry{Snapshot: snap, FetchedAt: now}, c.ttl); err != nil {
		c.backendError("set", err)
	}
	return snap, false, nil
}

func (c *Cache) backendError(op string, err error) {
	c.log.Warn("fetch cache backend failed", "op", op, "err", err)
	if c.metrics != nil {
		c.metrics.CacheErrors.WithLabelValues(op).Inc()
	}
}

// Invalidate clears the slot so the next call refreshes.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Clear(ctx)
}

// MemoryBackend keeps the slot in process memory.
type MemoryBackend struct {
	mu    sync.Mutex
	entry Entry
	ok    bool
}

// NewMemoryBackend returns an empty in-process slot.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Get(context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry, m.ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, e Entry, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry, m.ok = e, true
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry, m.ok = Entry{}, false
	return nil
}
