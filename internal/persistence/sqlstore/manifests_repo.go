package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// manifestsRepo implements ManifestsRepo over sqlx for both supported dialects
type manifestsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewManifestsRepo creates a new delivery manifest repository
func NewManifestsRepo(db *sqlx.DB, timeout time.Duration) persistence.ManifestsRepo {
	return &manifestsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert writes the manifest row for its (batch, asset, date) key
func (r *manifestsRepo) Upsert(ctx context.Context, m persistence.Manifest) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO manifests (batch_id, asset_tag, business_date,
			expected_hourly, found_hourly, has_daily, has_calibration, quality_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id, asset_tag, business_date) DO UPDATE SET
			expected_hourly = excluded.expected_hourly,
			found_hourly = excluded.found_hourly,
			has_daily = excluded.has_daily,
			has_calibration = excluded.has_calibration,
			quality_flag = excluded.quality_flag`)

	_, err := r.db.ExecContext(ctx, query,
		m.BatchID, m.AssetTag, m.BusinessDate,
		m.ExpectedHourly, m.FoundHourly, m.HasDaily, m.HasCalibration, m.QualityFlag)
	if err != nil {
		return fmt.Errorf("failed to upsert manifest: %w", err)
	}

	return nil
}

// ListByBatch returns all manifests of a batch
func (r *manifestsRepo) ListByBatch(ctx context.Context, batchID string) ([]persistence.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT batch_id, asset_tag, business_date,
			expected_hourly, found_hourly, has_daily, has_calibration, quality_flag
		FROM manifests
		WHERE batch_id = ?
		ORDER BY asset_tag, business_date`)

	rows, err := r.db.QueryxContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifests: %w", err)
	}
	defer rows.Close()

	var manifests []persistence.Manifest
	for rows.Next() {
		var m persistence.Manifest
		err := rows.Scan(
			&m.BatchID, &m.AssetTag, &m.BusinessDate,
			&m.ExpectedHourly, &m.FoundHourly, &m.HasDaily, &m.HasCalibration,
			&m.QualityFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manifest: %w", err)
		}
		manifests = append(manifests, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manifests: %w", err)
	}

	return manifests, nil
}
