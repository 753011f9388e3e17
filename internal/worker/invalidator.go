package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"cruscotto/internal/amqp"
	"cruscotto/internal/cache"
)

// Clearable is a cache the invalidator can empty.
type Clearable interface {
	Clear()
	Stats() cache.Stats
}

// Invalidator empties the response caches when the backend reports that
// transactions changed, so the next dashboard read refetches.
type Invalidator struct {
	caches        []Clearable
	logger        *slog.Logger
	invalidations atomic.Int64
}

func NewInvalidator(logger *slog.Logger, caches ...Clearable) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{caches: caches, logger: logger}
}

var _ amqp.Handler = (*Invalidator)(nil).HandleTransactionsChanged

// HandleTransactionsChanged clears every registered cache. Keys do not
// encode a comparable date range for every backend, so the whole cache is
// dropped even when the message names a range.
func (i *Invalidator) HandleTransactionsChanged(ctx context.Context, msg *amqp.TransactionsChangedMessage) error {
	removed := 0
	for _, c := range i.caches {
		removed += c.Stats().Size
		c.Clear()
	}
	i.invalidations.Add(1)

	i.logger.InfoContext(ctx, "Response caches invalidated",
		"source", msg.Source,
		"from", msg.From,
		"to", msg.To,
		"entries_removed", removed)
	return nil
}

// Invalidations returns how many messages have been handled.
func (i *Invalidator) Invalidations() int64 {
	return i.invalidations.Load()
}
