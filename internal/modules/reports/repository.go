// Package reports persists finished analysis reports in reports.db.
package reports

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no stored report matches
var ErrNotFound = errors.New("report not found")

// Meta describes a stored report without decoding its payload
type Meta struct {
	RunID       string    `json:"run_id"`
	Portfolio   string    `json:"portfolio"`
	GeneratedAt time.Time `json:"generated_at"`
	Warnings    int       `json:"warnings"`
	Size        int       `json:"size"`
}

// Repository stores msgpack-encoded reports
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a reports repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "reports").Logger(),
	}
}

// Save stores a report, replacing any report with the same run ID
func (r *Repository) Save(ctx context.Context, report *analysis.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report has no run ID")
	}

	payload, err := Encode(report)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (run_id, portfolio, generated_at, warnings, payload)
		VALUES (?, ?, ?, ?, ?)
	`, report.RunID, report.Portfolio, report.GeneratedAt.UnixMilli(), len(report.Warnings), payload)
	if err != nil {
		return fmt.Errorf("failed to store report %s: %w", report.RunID, err)
	}

	r.log.Debug().
		Str("run_id", report.RunID).
		Str("portfolio", report.Portfolio).
		Int("bytes", len(payload)).
		Msg("Report stored")
	return nil
}

// Get loads a report by run ID
func (r *Repository) Get(ctx context.Context, runID string) (*analysis.Report, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, "SELECT payload FROM reports WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", runID, err)
	}
	return Decode(payload)
}

// Latest loads the most recent report of a portfolio
func (r *Repository) Latest(ctx context.Context, portfolio string) (*analysis.Report, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM reports
		WHERE portfolio = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`, portfolio).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %s: %w", portfolio, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest report for %s: %w", portfolio, err)
	}
	return Decode(payload)
}

// List returns report metadata for a portfolio, newest first. An empty
// portfolio lists every report.
func (r *Repository) List(ctx context.Context, portfolio string) ([]Meta, error) {
	query := `
		SELECT run_id, portfolio, generated_at, warnings, length(payload)
		FROM reports`
	var args []interface{}
	if portfolio != "" {
		query += " WHERE portfolio = ?"
		args = append(args, portfolio)
	}
	query += " ORDER BY generated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var m Meta
		var generated int64
		if err := rows.Scan(&m.RunID, &m.Portfolio, &generated, &m.Warnings, &m.Size); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		m.GeneratedAt = time.UnixMilli(generated).UTC()
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Prune keeps the newest keep reports of each portfolio and deletes the rest.
// It returns the number of reports removed.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	var removed int64
	err := database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM reports
			WHERE run_id IN (
				SELECT run_id FROM (
					SELECT run_id,
					       ROW_NUMBER() OVER (PARTITION BY portfolio ORDER BY generated_at DESC) AS rn
					FROM reports
				) WHERE rn > ?
			)
		`, keep)
		if err != nil {
			return fmt.Errorf("failed to prune reports: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		r.log.Info().Int64("removed", removed).Int("keep", keep).Msg("Pruned old reports")
	}
	return removed, nil
}

// Encode serializes a report with msgpack, keyed by its json field names
func Encode(report *analysis.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode
func Decode(payload []byte) (*analysis.Report, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("json")

	var report analysis.Report
	if err := dec.Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
