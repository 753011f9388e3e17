package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cruscotto/internal/core"
)

func january() core.Window {
	return core.NewWindow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
}

func TestMemoryStoreInsertAndList(t *testing.T) {
	s := New(nil)
	n, err := s.InsertTransactions(context.Background(), []core.TransactionRecord{
		{Date: "2024-01-05", Amount: -30, Subcategory: "Food"},
		{Date: "2024-02-05", Amount: -10, Subcategory: "Food"},
		{Date: "not-a-date", Amount: -1},
	})
	if err != nil || n != 3 {
		t.Fatalf("insert: n=%d err=%v", n, err)
	}

	got, err := s.ListTransactions(context.Background(), january())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want in-window record plus malformed one, got %+v", got)
	}
	if got[0].ID != "mem:1" || got[1].Date != "not-a-date" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestNewFromFile(t *testing.T) {
	s, err := NewFromFile("")
	if err != nil || s.Len() != 0 {
		t.Fatalf("empty path: len=%d err=%v", s.Len(), err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	seed := `[{"id":"a","date":"2024-01-02","amount":-12.5,"category":"Home","subcategory":"Rent"},
	          {"id":"b","date":"2024-01-03","amount":-80,"category":"Food","subcategory":"Groceries"}]`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	totals, err := s.CategoryTotals(context.Background(), january())
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 2 || totals[0].Category != "Food" || totals[0].Total != 80 {
		t.Fatalf("totals = %+v", totals)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := NewFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}
