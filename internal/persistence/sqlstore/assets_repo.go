package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// assetsRepo implements AssetsRepo over sqlx for both supported dialects
type assetsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAssetsRepo creates a new asset dimension repository
func NewAssetsRepo(db *sqlx.DB, timeout time.Duration) persistence.AssetsRepo {
	return &assetsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Ensure seeds the asset if unseen and returns the stored row. Conflicting
// writers keep the earlier dimensions.
func (r *assetsRepo) Ensure(ctx context.Context, asset persistence.Asset) (persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO assets (tag, kind, bank, stream, riser, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tag) DO NOTHING`)

	_, err := r.db.ExecContext(ctx, query,
		asset.Tag, asset.Kind, asset.Bank, asset.Stream, asset.Riser, asset.CreatedAt)
	if err != nil {
		return persistence.Asset{}, fmt.Errorf("failed to ensure asset: %w", err)
	}

	stored, err := r.get(ctx, asset.Tag)
	if err != nil {
		return persistence.Asset{}, err
	}
	if stored == nil {
		return persistence.Asset{}, fmt.Errorf("failed to ensure asset %s: row not found after insert", asset.Tag)
	}

	return *stored, nil
}

// Get retrieves one asset by tag
func (r *assetsRepo) Get(ctx context.Context, tag string) (*persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.get(ctx, tag)
}

// List returns all assets ordered by tag
func (r *assetsRepo) List(ctx context.Context) ([]persistence.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT tag, kind, bank, stream, riser, created_at
		FROM assets
		ORDER BY tag`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []persistence.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

func (r *assetsRepo) get(ctx context.Context, tag string) (*persistence.Asset, error) {
	query := r.db.Rebind(`
		SELECT tag, kind, bank, stream, riser, created_at
		FROM assets
		WHERE tag = ?`)

	asset, err := scanAsset(r.db.QueryRowxContext(ctx, query, tag))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return asset, nil
}

func scanAsset(row rowScanner) (*persistence.Asset, error) {
	var asset persistence.Asset
	err := row.Scan(
		&asset.Tag, &asset.Kind, &asset.Bank, &asset.Stream, &asset.Riser,
		&asset.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}
