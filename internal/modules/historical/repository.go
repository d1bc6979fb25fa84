// Package historical stores daily price and exchange-rate series and serves
// them to report runs.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/database"
	"github.com/aristath/finreport/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads and writes history.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// StorePrices upserts closing prices for a symbol
func (r *Repository) StorePrices(ctx context.Context, symbol string, points []domain.Point) error {
	return r.upsert(ctx,
		"INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)",
		func(p domain.Point) []interface{} {
			return []interface{}{symbol, domain.Day(p.Date).Unix(), p.Value}
		}, points)
}

// StoreRates upserts rates expressed as units of quote per one unit of base
func (r *Repository) StoreRates(ctx context.Context, base, quote string, points []domain.Point) error {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	return r.upsert(ctx,
		"INSERT OR REPLACE INTO exchange_rates (base, quote, date, rate) VALUES (?, ?, ?, ?)",
		func(p domain.Point) []interface{} {
			return []interface{}{base, quote, domain.Day(p.Date).Unix(), p.Value}
		}, points)
}

func (r *Repository) upsert(ctx context.Context, query string, args func(domain.Point) []interface{}, points []domain.Point) error {
	for _, p := range points {
		if p.Value <= 0 {
			return fmt.Errorf("non-positive value %v on %s", p.Value, p.Date.Format(domain.DateLayout))
		}
	}
	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, args(p)...); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", p.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
}

// PriceSeries returns closing prices for symbol within [from, to] in date order.
// An empty result is reported as a data gap.
func (r *Repository) PriceSeries(ctx context.Context, symbol string, from, to time.Time) (domain.Series, error) {
	series, err := r.querySeries(ctx, symbol, `
		SELECT date, close FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, bound(from, 0), bound(to, 1<<62))
	if err != nil {
		return series, err
	}
	if series.Len() == 0 {
		return series, domain.NewSecurityError(symbol, domain.ErrDataGap, "no prices between %s and %s",
			from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	}
	return series, nil
}

// RateSeries returns units of quote per unit of base. When only the inverse
// pair is stored, its reciprocal is returned.
func (r *Repository) RateSeries(ctx context.Context, base, quote string, from, to time.Time) (domain.Series, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	id := base + quote

	query := `
		SELECT date, rate FROM exchange_rates
		WHERE base = ? AND quote = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`
	series, err := r.querySeries(ctx, id, query, base, quote, bound(from, 0), bound(to, 1<<62))
	if err != nil || series.Len() > 0 {
		return series, err
	}

	inverse, err := r.querySeries(ctx, id, query, quote, base, bound(from, 0), bound(to, 1<<62))
	if err != nil {
		return inverse, err
	}
	if inverse.Len() == 0 {
		return inverse, domain.NewSecurityError(id, domain.ErrDataGap, "no exchange rates for %s/%s", base, quote)
	}
	for i := range inverse.Points {
		inverse.Points[i].Value = 1 / inverse.Points[i].Value
	}
	r.log.Debug().Str("pair", id).Msg("Using inverted exchange rate series")
	return inverse, nil
}

// Symbols lists symbols with stored prices and their observation counts
func (r *Repository) Symbols(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT symbol, COUNT(*) FROM daily_prices GROUP BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var symbol string
		var n int
		if err := rows.Scan(&symbol, &n); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out[symbol] = n
	}
	return out, rows.Err()
}

func (r *Repository) querySeries(ctx context.Context, id, query string, args ...interface{}) (domain.Series, error) {
	series := domain.Series{ID: id}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return series, fmt.Errorf("failed to query series %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var dateUnix int64
		var value float64
		if err := rows.Scan(&dateUnix, &value); err != nil {
			return series, fmt.Errorf("failed to scan series %s: %w", id, err)
		}
		series.Points = append(series.Points, domain.Point{
			Date:  time.Unix(dateUnix, 0).UTC(),
			Value: value,
		})
	}
	if err := rows.Err(); err != nil {
		return series, fmt.Errorf("error iterating series %s: %w", id, err)
	}
	return series, nil
}

func bound(t time.Time, fallback int64) int64 {
	if t.IsZero() {
		return fallback
	}
	return domain.Day(t).Unix()
}
