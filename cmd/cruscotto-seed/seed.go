package main

import (
	"context"
	"fmt"
	"time"

	"cruscotto/internal/amqp"
	"cruscotto/internal/core"
	"cruscotto/internal/log"
	"cruscotto/internal/source"
	"cruscotto/internal/source/memory"
)

// Publisher sends change notifications.
type Publisher interface {
	PublishTransactionsChanged(ctx context.Context, msg *amqp.TransactionsChangedMessage) error
}

// Summary reports the outcome of an import.
type Summary struct {
	Read   int
	Stored int
	// Window spans the dates of the imported records; zero if none parsed.
	Window core.Window
	// Notified is true when a change notification was published.
	Notified bool
}

const seedSource = "seed"

// Import reads the seed file, writes its records and, when a publisher is
// given and something was stored, announces the change. A failed
// notification is logged but does not fail the import.
func Import(ctx context.Context, path string, w source.TransactionWriter, pub Publisher, logger *log.Logger) (Summary, error) {
	start := time.Now()

	records, err := memory.ReadSeedFile(path)
	if err != nil {
		return Summary{}, err
	}

	stored, err := w.InsertTransactions(ctx, records)
	if err != nil {
		return Summary{}, fmt.Errorf("store records: %w", err)
	}

	summary := Summary{Read: len(records), Stored: stored, Window: span(records)}
	logger.Info("Records imported",
		log.FieldOperation, log.OpImport,
		log.FieldRecords, stored,
		log.FieldSkipped, len(records)-stored,
		log.FieldDuration, time.Since(start).Milliseconds())

	if pub == nil || stored == 0 {
		return summary, nil
	}

	msg := amqp.NewTransactionsChangedMessage(seedSource, summary.Window, stored)
	if err := pub.PublishTransactionsChanged(ctx, msg); err != nil {
		logger.Warn("Failed to publish change notification", log.FieldError, err)
		return summary, nil
	}
	summary.Notified = true
	return summary, nil
}

// span returns the smallest window holding every parsable record date.
func span(records []core.TransactionRecord) core.Window {
	var w core.Window
	for _, r := range records {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			continue
		}
		if w.From.IsZero() || d.Before(w.From) {
			w.From = d
		}
		if w.To.IsZero() || d.After(w.To) {
			w.To = d
		}
	}
	return w
}
