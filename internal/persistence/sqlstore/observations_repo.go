package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// observationsRepo implements ObservationsRepo over sqlx for both supported dialects
type observationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewObservationsRepo creates a new cross-validation observation repository
func NewObservationsRepo(db *sqlx.DB, timeout time.Duration) persistence.ObservationsRepo {
	return &observationsRepo{
		db:      db,
		timeout: timeout,
	}
}

// UpsertBatch replaces observations for their natural keys atomically
func (r *observationsRepo) UpsertBatch(ctx context.Context, observations []persistence.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(observations)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO observations (asset_tag, source, metric, business_date, time_window,
			value, unit, raw_file_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_tag, source, metric, business_date, time_window) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			raw_file_fingerprint = excluded.raw_file_fingerprint`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		_, err = stmt.ExecContext(ctx,
			obs.AssetTag, string(obs.Source), obs.Metric, obs.BusinessDate,
			obs.TimeWindow, obs.Value, obs.Unit, obs.RawFileFingerprint)
		if err != nil {
			return fmt.Errorf("failed to upsert observation in batch: %w", err)
		}
	}

	return tx.Commit()
}

// ListByAssetDate returns all observations of one asset-day
func (r *observationsRepo) ListByAssetDate(ctx context.Context, assetTag, businessDate string) ([]persistence.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT asset_tag, source, metric, business_date, time_window,
			value, unit, raw_file_fingerprint
		FROM observations
		WHERE asset_tag = ? AND business_date = ?
		ORDER BY metric, time_window, source`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []persistence.Observation
	for rows.Next() {
		var obs persistence.Observation
		var source string
		err := rows.Scan(
			&obs.AssetTag, &source, &obs.Metric, &obs.BusinessDate,
			&obs.TimeWindow, &obs.Value, &obs.Unit, &obs.RawFileFingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Source = domain.Source(source)
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return observations, nil
}

// TouchedAssetDates lists distinct (asset, date) pairs with observations in range
func (r *observationsRepo) TouchedAssetDates(ctx context.Context, dates persistence.DateRange) ([]persistence.AssetDate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT DISTINCT asset_tag, business_date
		FROM observations
		WHERE business_date >= ? AND business_date <= ?
		ORDER BY asset_tag, business_date`)

	rows, err := r.db.QueryxContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query touched asset dates: %w", err)
	}
	defer rows.Close()

	return scanAssetDates(rows)
}
