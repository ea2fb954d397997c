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

// crossValRepo implements CrossValRepo over sqlx for both supported dialects
type crossValRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCrossValRepo creates a new cross-validation repository
func NewCrossValRepo(db *sqlx.DB, timeout time.Duration) persistence.CrossValRepo {
	return &crossValRepo{
		db:      db,
		timeout: timeout,
	}
}

// UpsertVerdicts replaces cross verdicts for their natural keys
func (r *crossValRepo) UpsertVerdicts(ctx context.Context, verdicts []persistence.CrossVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(verdicts)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO cross_verdicts (asset_tag, business_date, time_window, metric,
			spreadsheet_value, xml_value, pdf_value, txt_value, sources_present,
			max_abs, max_pct, tolerance_applied, classification, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_tag, business_date, time_window, metric) DO UPDATE SET
			spreadsheet_value = excluded.spreadsheet_value,
			xml_value = excluded.xml_value,
			pdf_value = excluded.pdf_value,
			txt_value = excluded.txt_value,
			sources_present = excluded.sources_present,
			max_abs = excluded.max_abs,
			max_pct = excluded.max_pct,
			tolerance_applied = excluded.tolerance_applied,
			classification = excluded.classification,
			computed_at = excluded.computed_at`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range verdicts {
		_, err = stmt.ExecContext(ctx,
			v.AssetTag, v.BusinessDate, v.TimeWindow, v.Metric,
			v.SpreadsheetValue, v.XMLValue, v.PDFValue, v.TXTValue, v.SourcesPresent,
			v.MaxAbs, v.MaxPct, v.ToleranceApplied, string(v.Classification), v.ComputedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert cross verdict: %w", err)
		}
	}

	return tx.Commit()
}

// Summary returns classification counts within the date range
func (r *crossValRepo) Summary(ctx context.Context, dates persistence.DateRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT classification, COUNT(*)
		FROM cross_verdicts
		WHERE business_date >= ? AND business_date <= ?
		GROUP BY classification
		ORDER BY classification`)

	rows, err := r.db.QueryxContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count cross verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var classification string
		var count int64
		if err := rows.Scan(&classification, &count); err != nil {
			return nil, fmt.Errorf("failed to scan classification count: %w", err)
		}
		counts[classification] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classification counts: %w", err)
	}

	return counts, nil
}

// GetStreak returns the streak row for (asset, metric)
func (r *crossValRepo) GetStreak(ctx context.Context, assetTag, metric string) (*persistence.InconsistencyStreak, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT asset_tag, metric, status, first_occurrence, last_occurrence, consecutive_days
		FROM inconsistency_streaks
		WHERE asset_tag = ? AND metric = ?`)

	streak, err := scanStreak(r.db.QueryRowxContext(ctx, query, assetTag, metric))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	return streak, nil
}

// UpsertStreak writes the streak row for its key
func (r *crossValRepo) UpsertStreak(ctx context.Context, s persistence.InconsistencyStreak) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO inconsistency_streaks (asset_tag, metric, status,
			first_occurrence, last_occurrence, consecutive_days)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_tag, metric) DO UPDATE SET
			status = excluded.status,
			first_occurrence = excluded.first_occurrence,
			last_occurrence = excluded.last_occurrence,
			consecutive_days = excluded.consecutive_days`)

	_, err := r.db.ExecContext(ctx, query,
		s.AssetTag, s.Metric, string(s.Status),
		s.FirstOccurrence, s.LastOccurrence, s.ConsecutiveDays)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}

	return nil
}

// ListStreaks returns streaks with the given status ordered by asset
func (r *crossValRepo) ListStreaks(ctx context.Context, status domain.StreakStatus) ([]persistence.InconsistencyStreak, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT asset_tag, metric, status, first_occurrence, last_occurrence, consecutive_days
		FROM inconsistency_streaks
		WHERE status = ?
		ORDER BY asset_tag, metric`)

	rows, err := r.db.QueryxContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []persistence.InconsistencyStreak
	for rows.Next() {
		streak, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		streaks = append(streaks, *streak)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating streaks: %w", err)
	}

	return streaks, nil
}

// CreateNonConformance inserts the event if its id is new. The conflict
// target keeps escalation idempotent across re-runs.
func (r *crossValRepo) CreateNonConformance(ctx context.Context, nc persistence.NonConformance) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO non_conformances (event_id, asset_tag, metric, occurrence_date,
			detected_at, description, partial_deadline, final_deadline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`)

	res, err := r.db.ExecContext(ctx, query,
		nc.EventID, nc.AssetTag, nc.Metric, nc.OccurrenceDate,
		nc.DetectedAt, nc.Description, nc.PartialDeadline, nc.FinalDeadline)
	if err != nil {
		return false, fmt.Errorf("failed to create non-conformance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create non-conformance: %w", err)
	}

	return affected > 0, nil
}

// ListNonConformances returns events ordered by occurrence date descending
func (r *crossValRepo) ListNonConformances(ctx context.Context, limit int) ([]persistence.NonConformance, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT event_id, asset_tag, metric, occurrence_date, detected_at,
			description, partial_deadline, final_deadline
		FROM non_conformances
		ORDER BY occurrence_date DESC, event_id
		LIMIT ?`)

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-conformances: %w", err)
	}
	defer rows.Close()

	var events []persistence.NonConformance
	for rows.Next() {
		var nc persistence.NonConformance
		err := rows.Scan(
			&nc.EventID, &nc.AssetTag, &nc.Metric, &nc.OccurrenceDate, &nc.DetectedAt,
			&nc.Description, &nc.PartialDeadline, &nc.FinalDeadline)
		if err != nil {
			return nil, fmt.Errorf("failed to scan non-conformance: %w", err)
		}
		events = append(events, nc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating non-conformances: %w", err)
	}

	return events, nil
}

func scanStreak(row rowScanner) (*persistence.InconsistencyStreak, error) {
	var s persistence.InconsistencyStreak
	var status string
	err := row.Scan(
		&s.AssetTag, &s.Metric, &status,
		&s.FirstOccurrence, &s.LastOccurrence, &s.ConsecutiveDays)
	if err != nil {
		return nil, err
	}
	s.Status = domain.StreakStatus(status)
	return &s, nil
}
