package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cruscotto/internal/core"
	"cruscotto/internal/source"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ source.TransactionLister = (*SQLiteRepository)(nil)
	_ source.TransactionWriter = (*SQLiteRepository)(nil)
	_ source.CategoryTotaler   = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite repository ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const upsertTransaction = `
INSERT INTO transactions (external_id, date, amount, category, subcategory, description)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
    date = excluded.date,
    amount = excluded.amount,
    category = excluded.category,
    subcategory = excluded.subcategory,
    description = excluded.description,
    updated_at = CURRENT_TIMESTAMP`

// InsertTransactions stores records in one transaction. Records carrying an
// ID replace the row previously imported with that ID. Records whose date
// cannot be parsed are skipped; the returned count covers stored rows only.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, records []core.TransactionRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTransaction)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	stored, skipped := 0, 0
	for _, rec := range records {
		d, err := core.ParseDate(rec.Date)
		if err != nil {
			skipped++
			continue
		}
		var externalID sql.NullString
		if id := strings.TrimSpace(rec.ID); id != "" {
			externalID = sql.NullString{String: id, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			externalID,
			core.FormatDate(d),
			rec.Amount,
			strings.TrimSpace(rec.Category),
			strings.TrimSpace(rec.Subcategory),
			rec.Description,
		); err != nil {
			return 0, fmt.Errorf("insert transaction %q: %w", rec.ID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	r.logger.InfoContext(ctx, "Transactions saved to SQLite", "stored", stored, "skipped", skipped)
	return stored, nil
}

// ListTransactions returns the rows dated inside w ordered by date.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, w core.Window) ([]core.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, external_id, date, amount, category, subcategory, description
FROM transactions
WHERE date BETWEEN ? AND ?
ORDER BY date, id`, core.FormatDate(w.From), core.FormatDate(w.To))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.TransactionRecord, 0)
	for rows.Next() {
		var (
			id         int64
			externalID sql.NullString
			rec        core.TransactionRecord
		)
		if err := rows.Scan(&id, &externalID, &rec.Date, &rec.Amount, &rec.Category, &rec.Subcategory, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.ID = externalID.String
		if !externalID.Valid {
			rec.ID = strconv.FormatInt(id, 10)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// CategoryTotals sums absolute amounts per category, largest first.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, w core.Window) ([]source.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT CASE WHEN TRIM(category) = '' THEN ? ELSE category END AS name,
       SUM(ABS(amount)) AS total
FROM transactions
WHERE date BETWEEN ? AND ?
GROUP BY name
ORDER BY total DESC, name ASC`, core.Uncategorized, core.FormatDate(w.From), core.FormatDate(w.To))
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	out := make([]source.CategoryTotal, 0)
	for rows.Next() {
		var ct source.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return out, nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
