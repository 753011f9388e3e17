package source

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"cruscotto/internal/cache"
	"cruscotto/internal/core"
)

// Source is a backend able to serve both read ports.
type Source interface {
	TransactionLister
	CategoryTotaler
}

// Cached puts response caches in front of a Source. Entries are keyed by
// operation and window; concurrent misses for the same key share one call.
type Cached struct {
	next         Source
	transactions *cache.ResponseCache[[]core.TransactionRecord]
	categories   *cache.ResponseCache[[]CategoryTotal]
	ttl          time.Duration
	group        singleflight.Group
	logger       *slog.Logger
	loadTimeout  time.Duration
}

// DefaultLoadTimeout bounds a single backend load.
const DefaultLoadTimeout = 30 * time.Second

var _ Source = (*Cached)(nil)

func NewCached(next Source, transactions *cache.ResponseCache[[]core.TransactionRecord], categories *cache.ResponseCache[[]CategoryTotal], ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		next:         next,
		transactions: transactions,
		categories:   categories,
		ttl:          ttl,
		logger:       logger,
		loadTimeout:  DefaultLoadTimeout,
	}
}

func (c *Cached) ListTransactions(ctx context.Context, w core.Window) ([]core.TransactionRecord, error) {
	return through(ctx, c, c.transactions, "transactions:"+w.String(), func(ctx context.Context) ([]core.TransactionRecord, error) {
		return c.next.ListTransactions(ctx, w)
	})
}

func (c *Cached) CategoryTotals(ctx context.Context, w core.Window) ([]CategoryTotal, error) {
	return through(ctx, c, c.categories, "categories:"+w.String(), func(ctx context.Context) ([]CategoryTotal, error) {
		return c.next.CategoryTotals(ctx, w)
	})
}

// through serves key from rc or runs load once for all concurrent callers.
// load runs detached from the caller and bounded by loadTimeout, so one
// caller giving up neither fails the others nor prevents caching. Callers
// get their own copy of the slice.
func through[E any](ctx context.Context, c *Cached, rc *cache.ResponseCache[[]E], key string, load func(context.Context) ([]E, error)) ([]E, error) {
	if v, ok := rc.Get(key); ok {
		c.logger.DebugContext(ctx, "Source cache hit", "cache_key", key)
		return slices.Clone(v), nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		gen := rc.Generation()
		lctx, cancel := context.WithTimeout(detached, c.loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if !rc.SetIfGeneration(key, v, c.ttl, gen) {
			c.logger.DebugContext(detached, "Source result invalidated while loading", "cache_key", key)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]E)), nil
	}
}
