package backend

import (
	"context"
	"fmt"
	"log/slog"

	"cruscotto/internal/cache"
	"cruscotto/internal/core"
	"cruscotto/internal/source"
	gsheet "cruscotto/internal/source/google"
	"cruscotto/internal/source/memory"
	"cruscotto/internal/source/rest"
	"cruscotto/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// Create implements Factory.Create
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []cache.Option{cache.WithDefaultTTL(config.CacheTTL), cache.WithMaxEntries(config.CacheMaxEntries)}
	res := &Result{
		Transactions: cache.NewResponseCache[[]core.TransactionRecord](opts...),
		Categories:   cache.NewResponseCache[[]source.CategoryTotal](opts...),
	}

	switch config.Type {
	case RESTBackend:
		res.Backend = rest.New(rest.Config{
			BaseURL:           config.APIBaseURL,
			Timeout:           config.APITimeout,
			TTL:               config.CacheTTL,
			Logger:            f.logger,
			TransactionsCache: res.Transactions,
			CategoriesCache:   res.Categories,
		})
		f.logger.Info("Initialized REST backend", "base_url", config.APIBaseURL, "timeout", config.APITimeout)
		return res, nil

	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		res.Ready = repo.Ping
		res.Cleanup = repo.Close
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return f.cached(res, repo, config), nil

	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountFile: config.GoogleServiceAccountFile,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
			Logger:             f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
		return f.cached(res, cli, config), nil

	case MemoryBackend:
		store, err := memory.NewFromFile(config.MemorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile, "records", store.Len())
		return f.cached(res, store, config), nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) cached(res *Result, next source.Source, config Config) *Result {
	res.Backend = source.NewCached(next, res.Transactions, res.Categories, config.CacheTTL, f.logger)
	return res
}
