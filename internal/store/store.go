// Package store caches fetched price history in SQLite so repeated runs
// for the same coin and year do not hit the rate-limited price API again.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/me/staketax/internal/reward"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_years (
		coin       TEXT    NOT NULL,
		year       INTEGER NOT NULL,
		fetched_at TEXT    NOT NULL,
		PRIMARY KEY (coin, year)
	)`,

	`CREATE TABLE IF NOT EXISTS price_points (
		coin TEXT    NOT NULL,
		ts   INTEGER NOT NULL,
		usd  TEXT    NOT NULL,
		PRIMARY KEY (coin, ts)
	)`,
}

// PriceStore is a SQLite-backed cache of USD price points.
type PriceStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the cache database at path and applies the
// schema. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*PriceStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &PriceStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database.
func (s *PriceStore) Close() error { return s.db.Close() }

// Prices returns the cached points for coin covering year. ok is false
// when the (coin, year) pair was never stored; an empty cached fetch is
// distinguishable from a missing one.
func (s *PriceStore) Prices(ctx context.Context, coin string, year int) (points []reward.PricePoint, ok bool, err error) {
	var fetchedAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM price_years WHERE coin = ? AND year = ?`,
		coin, year,
	).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query price year: %w", err)
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	to := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, usd FROM price_points WHERE coin = ? AND ts >= ? AND ts < ? ORDER BY ts`,
		coin, from, to,
	)
	if err != nil {
		return nil, false, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts  int64
			usd string
		)
		if err := rows.Scan(&ts, &usd); err != nil {
			return nil, false, fmt.Errorf("scan price point: %w", err)
		}
		d, err := decimal.NewFromString(usd)
		if err != nil {
			return nil, false, fmt.Errorf("cached price %q: %w", usd, err)
		}
		points = append(points, reward.PricePoint{Timestamp: ts, USD: d})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	s.logger.Debug("price cache hit", "coin", coin, "year", year, "points", len(points))
	return points, true, nil
}

// PutPrices stores the fetched points for (coin, year) in one
// transaction, replacing any earlier fetch.
func (s *PriceStore) PutPrices(ctx context.Context, coin string, year int, points []reward.PricePoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO price_years (coin, year, fetched_at) VALUES (?, ?, ?)`,
		coin, year, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("store price year: %w", err)
	}
	for _, p := range points {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO price_points (coin, ts, usd) VALUES (?, ?, ?)`,
			coin, p.Timestamp, p.USD.String(),
		); err != nil {
			return fmt.Errorf("store price point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("cached price history", "coin", coin, "year", year, "points", len(points))
	return nil
}
