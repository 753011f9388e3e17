package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cruscotto/internal/core"
)

// Sheet columns, left to right.
const (
	colDate = iota
	colAmount
	colSubcategory
	colCategory
	colDescription
)

// Day-first layouts accepted on top of core.ParseDate.
var sheetDateLayouts = []string{"02/01/2006", "2/1/2006", "02.01.2006"}

// parseTransactionRows converts a values matrix (as returned by the Sheets
// API) into records. A leading header row is skipped. Rows with no amount
// or an unparsable one are dropped and counted; dates are normalized to
// YYYY-MM-DD when recognized and passed through otherwise.
func parseTransactionRows(values [][]interface{}) ([]core.TransactionRecord, int) {
	out := make([]core.TransactionRecord, 0, len(values))
	dropped := 0
	for i, raw := range values {
		row := toStrings(raw)
		if isBlank(row) {
			continue
		}
		if i == 0 && isHeader(row) {
			continue
		}
		amount, err := core.ParseAmount(safeGet(row, colAmount))
		if err != nil {
			dropped++
			continue
		}
		out = append(out, core.TransactionRecord{
			ID:          fmt.Sprintf("row:%d", i+1),
			Date:        normalizeDate(safeGet(row, colDate)),
			Amount:      amount,
			Subcategory: safeGet(row, colSubcategory),
			Category:    safeGet(row, colCategory),
			Description: safeGet(row, colDescription),
		})
	}
	return out, dropped
}

func normalizeDate(s string) string {
	if d, err := core.ParseDate(s); err == nil {
		return core.FormatDate(d)
	}
	for _, layout := range sheetDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return core.FormatDate(d)
		}
	}
	// Google serial date numbers (days since 1899-12-30).
	if n, err := strconv.Atoi(s); err == nil && n > 0 && n < 2958466 {
		return core.FormatDate(time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n))
	}
	return s
}

func isHeader(row []string) bool {
	return strings.EqualFold(safeGet(row, colDate), "date") ||
		strings.EqualFold(safeGet(row, colAmount), "amount")
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
