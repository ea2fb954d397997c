package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// gasBalanceRepo implements GasBalanceRepo over sqlx for both supported dialects
type gasBalanceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewGasBalanceRepo creates a new gas balance table repository
func NewGasBalanceRepo(db *sqlx.DB, timeout time.Duration) persistence.GasBalanceRepo {
	return &gasBalanceRepo{
		db:      db,
		timeout: timeout,
	}
}

// ReplaceForFile atomically rewrites the lines parsed from one file
func (r *gasBalanceRepo) ReplaceForFile(ctx context.Context, fingerprint string, lines []persistence.GasBalanceLine) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(lines)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := r.db.Rebind(`DELETE FROM gas_balance_lines WHERE raw_file_fingerprint = ?`)
	if _, err := tx.ExecContext(ctx, deleteQuery, fingerprint); err != nil {
		return fmt.Errorf("failed to clear gas balance lines: %w", err)
	}

	if len(lines) > 0 {
		stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
			INSERT INTO gas_balance_lines (raw_file_fingerprint, line_order, business_date,
				sign, description, flowrate, pd)
			VALUES (?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, line := range lines {
			_, err = stmt.ExecContext(ctx,
				fingerprint, line.LineOrder, line.BusinessDate,
				line.Sign, line.Description, line.Flowrate, line.PD)
			if err != nil {
				return fmt.Errorf("failed to insert gas balance line: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListByDate returns all lines for a business date ordered by file and line
func (r *gasBalanceRepo) ListByDate(ctx context.Context, businessDate string) ([]persistence.GasBalanceLine, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT raw_file_fingerprint, line_order, business_date,
			sign, description, flowrate, pd
		FROM gas_balance_lines
		WHERE business_date = ?
		ORDER BY raw_file_fingerprint, line_order`)

	rows, err := r.db.QueryxContext(ctx, query, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query gas balance lines: %w", err)
	}
	defer rows.Close()

	var lines []persistence.GasBalanceLine
	for rows.Next() {
		var line persistence.GasBalanceLine
		err := rows.Scan(
			&line.RawFileFingerprint, &line.LineOrder, &line.BusinessDate,
			&line.Sign, &line.Description, &line.Flowrate, &line.PD)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gas balance line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gas balance lines: %w", err)
	}

	return lines, nil
}
