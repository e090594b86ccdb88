package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aamritt0/calendar-backend/internal/ics"
)

// ErrSourceUnavailable is returned when every fetch strategy failed and no
// cached data of any age exists. It is the only failure a caller sees from
// the pipeline; everything else degrades to stale or partial data.
var ErrSourceUnavailable = errors.New("calendar source unavailable and no cached data")

// Loader produces a freshly fetched and parsed event list.
type Loader interface {
	Load(ctx context.Context) ([]ics.Event, error)
}

// snapshot is an immutable fetch result. The cache replaces the whole
// snapshot on refresh, never mutates one in place, so concurrent readers
// observe either the old or the new list, never a torn mix.
type snapshot struct {
	events    []ics.Event
	fetchedAt time.Time
}

// Cache keeps the most recent event list for the process lifetime and
// serves it in three tiers: fresh (serve as-is), stale (serve as-is, kick a
// background refresh), expired (fetch synchronously, fall back to whatever
// is held if the fetch fails).
type Cache struct {
	loader   Loader
	freshFor time.Duration
	staleFor time.Duration

	mu   sync.RWMutex
	snap *snapshot

	refreshing atomic.Bool

	lastErrMu sync.Mutex
	lastErr   error

	tierReads metric.Int64Counter

	now func() time.Time
}

// NewCache builds a cache over loader. staleFor must be at least freshFor;
// shorter values are raised to freshFor, collapsing the stale tier.
func NewCache(loader Loader, freshFor, staleFor time.Duration) *Cache {
	if staleFor < freshFor {
		staleFor = freshFor
	}
	tierReads, err := otel.Meter("calendar-backend/feed").Int64Counter(
		"feed.cache.reads",
		metric.WithDescription("Cache reads by serving tier"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		slog.Error("Failed to create cache read counter", "error", err)
	}
	return &Cache{
		loader:    loader,
		freshFor:  freshFor,
		staleFor:  staleFor,
		tierReads: tierReads,
		now:       time.Now,
	}
}

// Events returns the current event list, fetching from upstream only when
// nothing servable is cached. The returned slice is shared and must be
// treated as read-only.
func (c *Cache) Events(ctx context.Context) ([]ics.Event, error) {
	now := c.now()
	snap := c.snapshot()

	if snap != nil {
		age := now.Sub(snap.fetchedAt)

		if age < c.freshFor {
			c.countRead(ctx, "fresh")
			return snap.events, nil
		}

		if age < c.staleFor {
			c.countRead(ctx, "stale")
			c.triggerRefresh()
			return snap.events, nil
		}
	}

	events, err := c.loader.Load(ctx)
	if err != nil {
		c.setLastErr(err)
		if snap != nil {
			// Doubly stale, but availability beats freshness.
			slog.WarnContext(ctx, "Synchronous refresh failed, serving expired cache", "age", now.Sub(snap.fetchedAt), "error", err)
			c.countRead(ctx, "emergency")
			return snap.events, nil
		}
		c.countRead(ctx, "miss")
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	c.install(&snapshot{events: events, fetchedAt: c.now()})
	c.setLastErr(nil)
	c.countRead(ctx, "sync-refresh")
	return events, nil
}

// triggerRefresh starts at most one detached background refresh. A failed
// refresh leaves the current snapshot untouched; the entry simply ages into
// a worse tier. Nothing from this path can reach the request that tripped
// it — that request already has its answer.
func (c *Cache) triggerRefresh() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		events, err := c.loader.Load(ctx)
		if err != nil {
			c.setLastErr(err)
			slog.Warn("Background refresh failed, keeping current cache", "error", err)
			return
		}

		c.install(&snapshot{events: events, fetchedAt: c.now()})
		c.setLastErr(nil)
		slog.Info("Background refresh complete", "events", len(events))
	}()
}

func (c *Cache) snapshot() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) install(s *snapshot) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func (c *Cache) setLastErr(err error) {
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()
}

// Status describes the cache for the health endpoint.
type Status struct {
	HasData    bool      `json:"hasData"`
	FetchedAt  time.Time `json:"fetchedAt,omitzero"`
	EventCount int       `json:"eventCount"`
	Tier       string    `json:"tier"`
	Refreshing bool      `json:"refreshing"`
	LastError  string    `json:"lastError,omitempty"`
}

// Status reports the current tier without touching the network.
func (c *Cache) Status() Status {
	st := Status{Tier: "empty", Refreshing: c.refreshing.Load()}

	if snap := c.snapshot(); snap != nil {
		st.HasData = true
		st.FetchedAt = snap.fetchedAt
		st.EventCount = len(snap.events)

		switch age := c.now().Sub(snap.fetchedAt); {
		case age < c.freshFor:
			st.Tier = "fresh"
		case age < c.staleFor:
			st.Tier = "stale"
		default:
			st.Tier = "expired"
		}
	}

	c.lastErrMu.Lock()
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.lastErrMu.Unlock()

	return st
}

func (c *Cache) countRead(ctx context.Context, tier string) {
	if c.tierReads == nil {
		return
	}
	c.tierReads.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}
