package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"cruscotto/internal/core"
	"cruscotto/internal/source"
)

type Store struct {
	mu    sync.Mutex
	items []core.TransactionRecord
}

var (
	_ source.TransactionLister = (*Store)(nil)
	_ source.TransactionWriter = (*Store)(nil)
	_ source.CategoryTotaler   = (*Store)(nil)
)

func New(records []core.TransactionRecord) *Store {
	return &Store{items: append([]core.TransactionRecord(nil), records...)}
}

// NewFromFile seeds a store from a JSON array of transaction records.
// An empty path yields an empty store.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(nil), nil
	}
	records, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return New(records), nil
}

// ReadSeedFile decodes a JSON array of transaction records.
func ReadSeedFile(path string) ([]core.TransactionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []core.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return records, nil
}

// InsertTransactions appends the records and returns how many were stored.
func (s *Store) InsertTransactions(_ context.Context, records []core.TransactionRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = fmt.Sprintf("mem:%d", len(s.items)+1)
		}
		s.items = append(s.items, r)
	}
	return len(records), nil
}

// ListTransactions returns records dated inside w in insertion order.
// Records with unparsable dates are returned as-is so aggregation can
// account for them.
func (s *Store) ListTransactions(_ context.Context, w core.Window) ([]core.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TransactionRecord, 0, len(s.items))
	for _, r := range s.items {
		if d, err := core.ParseDate(r.Date); err == nil && !w.Contains(d) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CategoryTotals(ctx context.Context, w core.Window) ([]source.CategoryTotal, error) {
	records, err := s.ListTransactions(ctx, w)
	if err != nil {
		return nil, err
	}
	return source.TotalsByCategory(records, w), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
