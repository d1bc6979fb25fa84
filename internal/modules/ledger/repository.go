package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/finreport/internal/database"
	"github.com/aristath/finreport/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository stores validated transaction records in ledger.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// ReplaceAll swaps a portfolio's ledger for records atomically. Records are
// validated first; file order is kept in seq.
func (r *Repository) ReplaceAll(ctx context.Context, portfolio string, records []domain.TransactionRecord) error {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	now := time.Now().Unix()
	err := database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE portfolio = ?", portfolio); err != nil {
			return fmt.Errorf("failed to clear ledger: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (
				portfolio, seq, ts, code, code2, name, security_type, industry, market,
				operation, quantity, currency, unit_price, amount, broker_fee, tax_fee,
				exchange_rate, imported_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, rec := range records {
			_, err := stmt.ExecContext(ctx,
				portfolio, i, rec.Timestamp.Unix(), rec.Code, rec.Code2, rec.Name,
				string(rec.Type), rec.Industry, rec.Market, string(rec.Operation),
				rec.Quantity.String(), rec.Currency, rec.UnitPrice.String(), rec.Amount.String(),
				rec.BrokerFee.String(), rec.TaxFee.String(), rec.ExchangeRate.String(), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert record %d (%s): %w", i, rec.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("portfolio", portfolio).
		Int("records", len(records)).
		Msg("Ledger replaced")
	return nil
}

// List returns a portfolio's records ordered by timestamp and file order.
func (r *Repository) List(ctx context.Context, portfolio string) ([]domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, ts, code, code2, name, security_type, industry, market, operation,
		       quantity, currency, unit_price, amount, broker_fee, tax_fee, exchange_rate
		FROM transactions
		WHERE portfolio = ?
		ORDER BY ts ASC, seq ASC
	`, portfolio)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return records, nil
}

// Portfolios lists the portfolios that have a stored ledger
func (r *Repository) Portfolios(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT portfolio FROM transactions ORDER BY portfolio")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanRecord(rows *sql.Rows) (domain.TransactionRecord, error) {
	var (
		rec                                   domain.TransactionRecord
		ts                                    int64
		typ, op                               string
		qty, price, amount, broker, tax, rate string
	)
	err := rows.Scan(&rec.Seq, &ts, &rec.Code, &rec.Code2, &rec.Name, &typ, &rec.Industry, &rec.Market,
		&op, &qty, &rec.Currency, &price, &amount, &broker, &tax, &rate)
	if err != nil {
		return rec, fmt.Errorf("failed to scan transaction: %w", err)
	}

	rec.Timestamp = time.Unix(ts, 0).UTC()
	rec.Type = domain.SecurityType(typ)
	rec.Operation = domain.Operation(op)

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{qty, &rec.Quantity}, {price, &rec.UnitPrice}, {amount, &rec.Amount},
		{broker, &rec.BrokerFee}, {tax, &rec.TaxFee}, {rate, &rec.ExchangeRate},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return rec, fmt.Errorf("corrupt decimal %q for %s seq %d: %w", f.raw, rec.Code, rec.Seq, err)
		}
		*f.dst = d
	}
	return rec, nil
}
