package backend

import (
	"context"
	"time"

	"cruscotto/internal/cache"
	"cruscotto/internal/core"
	"cruscotto/internal/source"
)

// Backend is the read side every data source provides.
type Backend = source.Source

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the backend, the response caches in front of it and an
// optional cleanup function.
type Result struct {
	Backend Backend
	// Transactions and Categories are the response caches serving Backend.
	// They are registered with the sweep manager and exposed by the API.
	Transactions *cache.ResponseCache[[]core.TransactionRecord]
	Categories   *cache.ResponseCache[[]source.CategoryTotal]
	// Ready reports whether the underlying store is reachable; nil means
	// always ready.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// Create creates a backend instance based on the provided config
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type Type

	// Response caches
	CacheTTL        time.Duration
	CacheMaxEntries int

	// REST specific
	APIBaseURL string
	APITimeout time.Duration

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Memory backend specific
	MemorySeedFile string
}

// Type represents the type of backend
type Type string

const (
	RESTBackend   Type = "rest"
	SQLiteBackend Type = "sqlite"
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case RESTBackend, SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
