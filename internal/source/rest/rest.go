// Package rest reads transactions from the finance backend's JSON API
// through cached fetchers.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"cruscotto/internal/cache"
	"cruscotto/internal/core"
	"cruscotto/internal/fetch"
	"cruscotto/internal/source"
)

const (
	transactionsPath = "/transactions"
	categoriesPath   = "/statistics/categories"
)

// Client implements the source ports over HTTP.
type Client struct {
	transactions *fetch.Fetcher[[]core.TransactionRecord]
	categories   *fetch.Fetcher[[]source.CategoryTotal]
	logger       *slog.Logger
}

var (
	_ source.TransactionLister = (*Client)(nil)
	_ source.CategoryTotaler   = (*Client)(nil)
)

// Config configures a Client. The caches are owned by the caller so they
// can be registered with a sweep manager and inspected.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	TTL               time.Duration
	Logger            *slog.Logger
	TransactionsCache *cache.ResponseCache[[]core.TransactionRecord]
	CategoriesCache   *cache.ResponseCache[[]source.CategoryTotal]
}

// New builds a Client sharing one pooled HTTP client between both fetchers.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TransactionsCache == nil {
		cfg.TransactionsCache = cache.NewResponseCache[[]core.TransactionRecord]()
	}
	if cfg.CategoriesCache == nil {
		cfg.CategoriesCache = cache.NewResponseCache[[]source.CategoryTotal]()
	}

	httpClient := fetch.NewHTTPClient(cfg.Timeout)
	fc := fetch.Config{
		BaseURL: cfg.BaseURL,
		Client:  httpClient,
		TTL:     cfg.TTL,
		Logger:  logger,
	}
	return &Client{
		transactions: fetch.New(cfg.TransactionsCache, fc),
		categories:   fetch.New(cfg.CategoriesCache, fc),
		logger:       logger,
	}
}

// ListTransactions implements source.TransactionLister.
func (c *Client) ListTransactions(ctx context.Context, w core.Window) ([]core.TransactionRecord, error) {
	records, err := c.transactions.FetchThrough(ctx, windowURL(transactionsPath, w), fetch.Options{}, 0)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", w, err)
	}
	return slices.Clone(records), nil
}

// CategoryTotals implements source.CategoryTotaler.
func (c *Client) CategoryTotals(ctx context.Context, w core.Window) ([]source.CategoryTotal, error) {
	totals, err := c.categories.FetchThrough(ctx, windowURL(categoriesPath, w), fetch.Options{}, 0)
	if err != nil {
		return nil, fmt.Errorf("category totals %s: %w", w, err)
	}
	// The API does not promise an order.
	totals = slices.Clone(totals)
	source.SortCategoryTotals(totals)
	return totals, nil
}

// Counters reports hit/miss counts of the transactions fetcher.
func (c *Client) Counters() (hits, misses int64) {
	return c.transactions.Counters()
}

func windowURL(path string, w core.Window) string {
	q := url.Values{}
	q.Set("from", core.FormatDate(w.From))
	q.Set("to", core.FormatDate(w.To))
	return path + "?" + q.Encode()
}
