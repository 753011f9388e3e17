package source

import (
	"context"
	"sort"
	"strings"

	"cruscotto/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionLister interface {
		// ListTransactions returns the raw records the backend holds for w.
		ListTransactions(ctx context.Context, w core.Window) ([]core.TransactionRecord, error)
	}

	// CategoryTotaler returns per-category spending over a window.
	CategoryTotaler interface {
		CategoryTotals(ctx context.Context, w core.Window) ([]CategoryTotal, error)
	}

	// TransactionWriter stores records, returning how many were written.
	TransactionWriter interface {
		InsertTransactions(ctx context.Context, records []core.TransactionRecord) (int, error)
	}
)

// CategoryTotal is the spending magnitude of one top-level category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// TotalsByCategory sums record magnitudes per category, largest first.
// Records whose date falls outside w are ignored.
func TotalsByCategory(records []core.TransactionRecord, w core.Window) []CategoryTotal {
	sums := map[string]float64{}
	for _, r := range records {
		d, err := core.ParseDate(r.Date)
		if err != nil || !w.Contains(d) {
			continue
		}
		name := strings.TrimSpace(r.Category)
		if name == "" {
			name = core.Uncategorized
		}
		sums[name] += r.Magnitude()
	}
	out := make([]CategoryTotal, 0, len(sums))
	for name, total := range sums {
		out = append(out, CategoryTotal{Category: name, Total: total})
	}
	SortCategoryTotals(out)
	return out
}

// SortCategoryTotals orders totals largest first, ties by name.
func SortCategoryTotals(totals []CategoryTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Category < totals[j].Category
	})
}
