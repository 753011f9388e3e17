package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cruscotto/internal/core"
	"cruscotto/internal/fetch"
)

func testWindow() core.Window {
	return core.NewWindow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
}

func TestListTransactionsCachesPerWindow(t *testing.T) {
	var calls atomic.Int32
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/transactions" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[{"id":"1","date":"2024-01-05","amount":-80,"subcategory":"Food"}]`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api", TTL: time.Minute})

	for i := 0; i < 3; i++ {
		records, err := c.ListTransactions(context.Background(), testWindow())
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(records) != 1 || records[0].Subcategory != "Food" || records[0].Amount != -80 {
			t.Fatalf("records = %+v", records)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if gotQuery != "from=2024-01-01&to=2024-01-31" {
		t.Fatalf("query = %q", gotQuery)
	}
	if hits, misses := c.Counters(); hits != 2 || misses != 1 {
		t.Fatalf("counters = %d/%d", hits, misses)
	}

	other := core.NewWindow(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	if _, err := c.ListTransactions(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("a different window must miss the cache: calls = %d", calls.Load())
	}
}

func TestListTransactionsSurfacesRequestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ListTransactions(context.Background(), testWindow())
	if !errors.Is(err, fetch.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
}

func TestCategoryTotals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/statistics/categories" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `[{"category":"Food","total":80},{"category":"Housing","total":900},{"category":"Bills","total":80}]`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	totals, err := c.CategoryTotals(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("CategoryTotals: %v", err)
	}
	want := []string{"Housing", "Bills", "Food"}
	if len(totals) != len(want) {
		t.Fatalf("totals = %+v", totals)
	}
	for i, name := range want {
		if totals[i].Category != name {
			t.Fatalf("totals[%d] = %+v, want %s (largest first, ties by name)", i, totals[i], name)
		}
	}

	// Editing the result must not reach the cached entry.
	totals[0].Category = "changed"
	again, err := c.CategoryTotals(context.Background(), testWindow())
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Category != "Housing" {
		t.Fatalf("cached entry was modified: %+v", again)
	}
}
