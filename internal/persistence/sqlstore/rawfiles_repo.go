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

// rawFilesRepo implements RawFilesRepo over sqlx for both supported dialects
type rawFilesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRawFilesRepo creates a new staged file repository
func NewRawFilesRepo(db *sqlx.DB, timeout time.Duration) persistence.RawFilesRepo {
	return &rawFilesRepo{
		db:      db,
		timeout: timeout,
	}
}

// Claim stages the file under its content fingerprint. The conflict target
// makes exactly one concurrent caller win; losers get the stored row back.
func (r *rawFilesRepo) Claim(ctx context.Context, file persistence.RawFile) (bool, *persistence.RawFile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	warningsJSON, err := marshalStrings(file.Warnings)
	if err != nil {
		return false, nil, err
	}
	errorsJSON, err := marshalStrings(file.Errors)
	if err != nil {
		return false, nil, err
	}

	query := r.db.Rebind(`
		INSERT INTO raw_files (fingerprint, filename, size_bytes, shape, parse_status,
			source_path, batch_id, record_count, warnings, errors, staged_at, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`)

	res, err := r.db.ExecContext(ctx, query,
		file.Fingerprint, file.Filename, file.SizeBytes, string(file.Shape),
		string(file.ParseStatus), file.SourcePath, file.BatchID, file.RecordCount,
		warningsJSON, errorsJSON, file.StagedAt, file.ParsedAt)
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim raw file: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim raw file: %w", err)
	}
	if affected > 0 {
		return true, nil, nil
	}

	existing, err := r.get(ctx, file.Fingerprint)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		return false, nil, fmt.Errorf("failed to claim raw file %s: conflicting row disappeared", file.Fingerprint)
	}

	return false, existing, nil
}

// MarkParsed writes back the parse outcome for a fingerprint
func (r *rawFilesRepo) MarkParsed(ctx context.Context, fingerprint string, status domain.ParseStatus, recordCount int, warnings, errors []string, parsedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	warningsJSON, err := marshalStrings(warnings)
	if err != nil {
		return err
	}
	errorsJSON, err := marshalStrings(errors)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE raw_files
		SET parse_status = ?, record_count = ?, warnings = ?, errors = ?, parsed_at = ?
		WHERE fingerprint = ?`)

	res, err := r.db.ExecContext(ctx, query,
		string(status), recordCount, warningsJSON, errorsJSON, parsedAt, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to mark raw file parsed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark raw file parsed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to mark raw file %s parsed: %w", fingerprint, persistence.ErrNotFound)
	}

	return nil
}

// Get retrieves one staged file by fingerprint
func (r *rawFilesRepo) Get(ctx context.Context, fingerprint string) (*persistence.RawFile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.get(ctx, fingerprint)
}

// ListByBatch returns all files of one batch ordered by filename
func (r *rawFilesRepo) ListByBatch(ctx context.Context, batchID string) ([]persistence.RawFile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT fingerprint, filename, size_bytes, shape, parse_status,
			source_path, batch_id, record_count, warnings, errors, staged_at, parsed_at
		FROM raw_files
		WHERE batch_id = ?
		ORDER BY filename`)

	rows, err := r.db.QueryxContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw files: %w", err)
	}
	defer rows.Close()

	var files []persistence.RawFile
	for rows.Next() {
		file, err := scanRawFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw file: %w", err)
		}
		files = append(files, *file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw files: %w", err)
	}

	return files, nil
}

func (r *rawFilesRepo) get(ctx context.Context, fingerprint string) (*persistence.RawFile, error) {
	query := r.db.Rebind(`
		SELECT fingerprint, filename, size_bytes, shape, parse_status,
			source_path, batch_id, record_count, warnings, errors, staged_at, parsed_at
		FROM raw_files
		WHERE fingerprint = ?`)

	file, err := scanRawFile(r.db.QueryRowxContext(ctx, query, fingerprint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get raw file: %w", err)
	}

	return file, nil
}

func scanRawFile(row rowScanner) (*persistence.RawFile, error) {
	var file persistence.RawFile
	var shape, status string
	var warningsJSON, errorsJSON []byte

	err := row.Scan(
		&file.Fingerprint, &file.Filename, &file.SizeBytes, &shape, &status,
		&file.SourcePath, &file.BatchID, &file.RecordCount,
		&warningsJSON, &errorsJSON, &file.StagedAt, &file.ParsedAt)
	if err != nil {
		return nil, err
	}

	file.Shape = domain.Shape(shape)
	file.ParseStatus = domain.ParseStatus(status)

	if file.Warnings, err = unmarshalStrings(warningsJSON); err != nil {
		return nil, err
	}
	if file.Errors, err = unmarshalStrings(errorsJSON); err != nil {
		return nil, err
	}

	return &file, nil
}
