package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// verdictsRepo implements VerdictsRepo over sqlx for both supported dialects
type verdictsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewVerdictsRepo creates a new reconciliation verdict repository
func NewVerdictsRepo(db *sqlx.DB, timeout time.Duration) persistence.VerdictsRepo {
	return &verdictsRepo{
		db:      db,
		timeout: timeout,
	}
}

// ReplaceForAssetDate deletes prior verdicts of the pair and inserts the new
// set in one transaction, so a re-run never leaves stale metrics behind
func (r *verdictsRepo) ReplaceForAssetDate(ctx context.Context, assetTag, businessDate string, verdicts []persistence.ReconciliationVerdict) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(verdicts)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := r.db.Rebind(`
		DELETE FROM reconciliation_verdicts
		WHERE asset_tag = ? AND business_date = ?`)
	if _, err := tx.ExecContext(ctx, deleteQuery, assetTag, businessDate); err != nil {
		return fmt.Errorf("failed to clear verdicts: %w", err)
	}

	if len(verdicts) > 0 {
		stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
			INSERT INTO reconciliation_verdicts (asset_tag, business_date, metric,
				daily_value, sum_hourly, hourly_count, delta_abs, delta_pct,
				verdict, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, v := range verdicts {
			_, err = stmt.ExecContext(ctx,
				v.AssetTag, v.BusinessDate, v.Metric,
				v.DailyValue, v.SumHourly, v.HourlyCount, v.DeltaAbs, v.DeltaPct,
				string(v.Verdict), v.ComputedAt)
			if err != nil {
				return fmt.Errorf("failed to insert verdict: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListByAssetDate returns verdicts for one asset-day ordered by metric
func (r *verdictsRepo) ListByAssetDate(ctx context.Context, assetTag, businessDate string) ([]persistence.ReconciliationVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT asset_tag, business_date, metric, daily_value, sum_hourly,
			hourly_count, delta_abs, delta_pct, verdict, computed_at
		FROM reconciliation_verdicts
		WHERE asset_tag = ? AND business_date = ?
		ORDER BY metric`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []persistence.ReconciliationVerdict
	for rows.Next() {
		var v persistence.ReconciliationVerdict
		var verdict string
		err := rows.Scan(
			&v.AssetTag, &v.BusinessDate, &v.Metric, &v.DailyValue, &v.SumHourly,
			&v.HourlyCount, &v.DeltaAbs, &v.DeltaPct, &verdict, &v.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.Verdict = domain.Verdict(verdict)
		verdicts = append(verdicts, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdicts: %w", err)
	}

	return verdicts, nil
}

// Summary returns verdict counts within the date range
func (r *verdictsRepo) Summary(ctx context.Context, dates persistence.DateRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT verdict, COUNT(*)
		FROM reconciliation_verdicts
		WHERE business_date >= ? AND business_date <= ?
		GROUP BY verdict
		ORDER BY verdict`)

	rows, err := r.db.QueryxContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var verdict string
		var count int64
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, fmt.Errorf("failed to scan verdict count: %w", err)
		}
		counts[verdict] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdict counts: %w", err)
	}

	return counts, nil
}

// UpsertCompleteness writes the coverage row for an asset-day
func (r *verdictsRepo) UpsertCompleteness(ctx context.Context, c persistence.Completeness) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO completeness (asset_tag, business_date, expected_hourly,
			found_hourly, has_daily, completeness_pct, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_tag, business_date) DO UPDATE SET
			expected_hourly = excluded.expected_hourly,
			found_hourly = excluded.found_hourly,
			has_daily = excluded.has_daily,
			completeness_pct = excluded.completeness_pct,
			status = excluded.status`)

	_, err := r.db.ExecContext(ctx, query,
		c.AssetTag, c.BusinessDate, c.ExpectedHourly,
		c.FoundHourly, c.HasDaily, c.CompletenessPct, c.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert completeness: %w", err)
	}

	return nil
}

// ListCompleteness returns coverage rows within the date range
func (r *verdictsRepo) ListCompleteness(ctx context.Context, dates persistence.DateRange) ([]persistence.Completeness, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT asset_tag, business_date, expected_hourly, found_hourly,
			has_daily, completeness_pct, status
		FROM completeness
		WHERE business_date >= ? AND business_date <= ?
		ORDER BY asset_tag, business_date`)

	rows, err := r.db.QueryxContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query completeness: %w", err)
	}
	defer rows.Close()

	var entries []persistence.Completeness
	for rows.Next() {
		var c persistence.Completeness
		err := rows.Scan(
			&c.AssetTag, &c.BusinessDate, &c.ExpectedHourly, &c.FoundHourly,
			&c.HasDaily, &c.CompletenessPct, &c.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completeness: %w", err)
		}
		entries = append(entries, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completeness: %w", err)
	}

	return entries, nil
}
