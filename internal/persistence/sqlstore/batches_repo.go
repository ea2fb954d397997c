package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// batchesRepo implements BatchesRepo over sqlx for both supported dialects
type batchesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBatchesRepo creates a new ingestion batch repository
func NewBatchesRepo(db *sqlx.DB, timeout time.Duration) persistence.BatchesRepo {
	return &batchesRepo{
		db:      db,
		timeout: timeout,
	}
}

// Create registers a new batch in PROCESSING state
func (r *batchesRepo) Create(ctx context.Context, batch persistence.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO batches (id, name, fingerprint, file_count, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.Name, batch.Fingerprint, batch.FileCount,
		string(batch.Status), batch.StartedAt, batch.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("batch %s already registered: %w", batch.Fingerprint, persistence.ErrDuplicate)
		}
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// Finish records the terminal status and completion time
func (r *batchesRepo) Finish(ctx context.Context, id string, status domain.BatchStatus, completedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		UPDATE batches
		SET status = ?, completed_at = ?
		WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, string(status), completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to finish batch %s: %w", id, persistence.ErrNotFound)
	}

	return nil
}

// Get retrieves one batch by id
func (r *batchesRepo) Get(ctx context.Context, id string) (*persistence.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, name, fingerprint, file_count, status, started_at, completed_at
		FROM batches
		WHERE id = ?`)

	return r.getOne(ctx, query, id)
}

// GetByFingerprint finds a previously registered batch submission
func (r *batchesRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*persistence.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, name, fingerprint, file_count, status, started_at, completed_at
		FROM batches
		WHERE fingerprint = ?`)

	return r.getOne(ctx, query, fingerprint)
}

// List returns the most recent batches
func (r *batchesRepo) List(ctx context.Context, limit int) ([]persistence.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, name, fingerprint, file_count, status, started_at, completed_at
		FROM batches
		ORDER BY started_at DESC
		LIMIT ?`)

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []persistence.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return batches, nil
}

// FileStatusCounts returns per-parse-status file counts for a batch
func (r *batchesRepo) FileStatusCounts(ctx context.Context, batchID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT parse_status, COUNT(*)
		FROM raw_files
		WHERE batch_id = ?
		GROUP BY parse_status
		ORDER BY parse_status`)

	rows, err := r.db.QueryxContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count batch files: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func (r *batchesRepo) getOne(ctx context.Context, query string, arg any) (*persistence.Batch, error) {
	batch, err := scanBatch(r.db.QueryRowxContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

func scanBatch(row rowScanner) (*persistence.Batch, error) {
	var batch persistence.Batch
	var status string
	err := row.Scan(
		&batch.ID, &batch.Name, &batch.Fingerprint, &batch.FileCount,
		&status, &batch.StartedAt, &batch.CompletedAt)
	if err != nil {
		return nil, err
	}
	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}
