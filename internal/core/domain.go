package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Uncategorized is the subcategory assigned to records without one.
const Uncategorized = "Uncategorized"

const (
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

const dateLayout = "2006-01-02"

type (
	// Granularity is the width of a reporting period.
	Granularity string

	// TransactionRecord is a raw transaction as returned by the backend.
	// Date is kept as text: records with unparsable dates are dropped by
	// aggregation rather than rejected at decode time.
	TransactionRecord struct {
		ID          string  `json:"id,omitempty"`
		Date        string  `json:"date"`
		Amount      float64 `json:"amount"`
		Category    string  `json:"category,omitempty"`
		Subcategory string  `json:"subcategory,omitempty"`
		Description string  `json:"description,omitempty"`
	}

	// Window is an inclusive reporting range of calendar dates.
	Window struct {
		From time.Time
		To   time.Time
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidWindow = errors.New("invalid window")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseDate parses YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return truncateDay(t), nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// SubcategoryOrDefault returns the trimmed subcategory, or Uncategorized
// when it is empty.
func (r TransactionRecord) SubcategoryOrDefault() string {
	if s := strings.TrimSpace(r.Subcategory); s != "" {
		return s
	}
	return Uncategorized
}

// NewWindow builds a window from two instants, keeping only their dates.
func NewWindow(from, to time.Time) Window {
	return Window{From: truncateDay(from), To: truncateDay(to)}
}

// ParseWindow parses both ends with ParseDate and validates the result.
func ParseWindow(from, to string) (Window, error) {
	f, err := ParseDate(from)
	if err != nil {
		return Window{}, fmt.Errorf("from: %w", err)
	}
	t, err := ParseDate(to)
	if err != nil {
		return Window{}, fmt.Errorf("to: %w", err)
	}
	w := Window{From: f, To: t}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// LastDays returns the window ending on now's date and starting n days earlier.
func LastDays(n int, now time.Time) Window {
	to := truncateDay(now)
	return Window{From: to.AddDate(0, 0, -n), To: to}
}

// Validate checks that both ends are set and To is not before From.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidWindow)
	}
	if w.To.Before(w.From) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidWindow, FormatDate(w.To), FormatDate(w.From))
	}
	return nil
}

// Days returns the number of whole days between From and To.
func (w Window) Days() int {
	from := truncateDay(w.From)
	to := truncateDay(w.To)
	// Dates are midnight UTC, so the difference is an exact multiple of 24h.
	return int(to.Sub(from).Hours() / 24)
}

// Contains reports whether the date of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(w.From)) && !d.After(truncateDay(w.To))
}

// String renders the window as "from..to".
func (w Window) String() string {
	return FormatDate(w.From) + ".." + FormatDate(w.To)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
