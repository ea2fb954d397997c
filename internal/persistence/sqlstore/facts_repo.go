package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// factsRepo implements FactsRepo over sqlx for both supported dialects
type factsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFactsRepo creates a new canonical fact repository
func NewFactsRepo(db *sqlx.DB, timeout time.Duration) persistence.FactsRepo {
	return &factsRepo{
		db:      db,
		timeout: timeout,
	}
}

// productionColumns lists every column of production_facts in insert order.
// The metric block comes from the canonical list so the repo can never drift
// from the schema.
func productionColumns() []string {
	cols := []string{"asset_tag", "report_type", "period_start", "period_end", "business_date"}
	cols = append(cols, domain.ProductionMetrics()...)
	return append(cols,
		"avg_pressure_kpa", "avg_temperature_c",
		"density_gas_kgm3", "density_oil_kgm3", "density_water_kgm3",
		"flow_time_min", "quality_flags", "raw_file_fingerprint")
}

// productionUpsertQuery builds the rebound upsert statement shared by the
// single-row and batch paths
func (r *factsRepo) productionUpsertQuery() string {
	cols := productionColumns()
	marks := make([]string, len(cols))
	var updates []string
	for i, col := range cols {
		marks[i] = "?"
		switch col {
		case "asset_tag", "period_end", "report_type":
			continue
		}
		updates = append(updates, col+" = excluded."+col)
	}

	return r.db.Rebind(fmt.Sprintf(`
		INSERT INTO production_facts (%s)
		VALUES (%s)
		ON CONFLICT (asset_tag, period_end, report_type) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(marks, ", "), strings.Join(updates, ", ")))
}

func productionUpsertArgs(fact persistence.ProductionFact) ([]any, error) {
	flagsJSON, err := marshalStrings(fact.QualityFlags)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(productionColumns()))
	args = append(args,
		fact.AssetTag, string(fact.ReportType), fact.PeriodStart, fact.PeriodEnd,
		fact.BusinessDate)
	for _, metric := range domain.ProductionMetrics() {
		args = append(args, fact.Value(metric))
	}
	return append(args,
		fact.AvgPressureKPa, fact.AvgTemperatureC,
		fact.DensityGasKgM3, fact.DensityOilKgM3, fact.DensityWaterKgM3,
		fact.FlowTimeMin, flagsJSON, fact.RawFileFingerprint), nil
}

// UpsertProduction replaces the fact for its (asset, period end, report type) key
func (r *factsRepo) UpsertProduction(ctx context.Context, fact persistence.ProductionFact) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args, err := productionUpsertArgs(fact)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, r.productionUpsertQuery(), args...); err != nil {
		return fmt.Errorf("failed to upsert production fact: %w", err)
	}

	return nil
}

// UpsertProductionBatch writes one file's record stream in a single
// transaction, so a failing row rolls back every fact from the same file
func (r *factsRepo) UpsertProductionBatch(ctx context.Context, facts []persistence.ProductionFact) error {
	if len(facts) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(facts)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.productionUpsertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, fact := range facts {
		args, err := productionUpsertArgs(fact)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert production fact %s/%s: %w",
				fact.AssetTag, fact.PeriodEnd.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// UpsertCalibration replaces the calibration for its (number, asset) key
func (r *factsRepo) UpsertCalibration(ctx context.Context, fact persistence.CalibrationFact) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	averagesJSON, err := marshalJSON(calPairs(fact.Averages))
	if err != nil {
		return err
	}
	accumulatedJSON, err := marshalJSON(calPairs(fact.Accumulated))
	if err != nil {
		return err
	}
	flagsJSON, err := marshalStrings(fact.Flags)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO calibration_facts (calibration_no, asset_tag, window_start, window_end,
			status, selected_mpfm,
			k_used_gas, k_used_oil, k_used_hc, k_used_water,
			k_new_gas, k_new_oil, k_new_hc, k_new_water,
			averages, accumulated, flags, raw_file_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (calibration_no, asset_tag) DO UPDATE SET
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			status = excluded.status,
			selected_mpfm = excluded.selected_mpfm,
			k_used_gas = excluded.k_used_gas,
			k_used_oil = excluded.k_used_oil,
			k_used_hc = excluded.k_used_hc,
			k_used_water = excluded.k_used_water,
			k_new_gas = excluded.k_new_gas,
			k_new_oil = excluded.k_new_oil,
			k_new_hc = excluded.k_new_hc,
			k_new_water = excluded.k_new_water,
			averages = excluded.averages,
			accumulated = excluded.accumulated,
			flags = excluded.flags,
			raw_file_fingerprint = excluded.raw_file_fingerprint`)

	_, err = r.db.ExecContext(ctx, query,
		fact.CalibrationNo, fact.AssetTag, fact.WindowStart, fact.WindowEnd,
		fact.Status, fact.SelectedMPFM,
		fact.KUsedGas, fact.KUsedOil, fact.KUsedHC, fact.KUsedWater,
		fact.KNewGas, fact.KNewOil, fact.KNewHC, fact.KNewWater,
		averagesJSON, accumulatedJSON, flagsJSON, fact.RawFileFingerprint)
	if err != nil {
		return fmt.Errorf("failed to upsert calibration fact: %w", err)
	}

	return nil
}

// DailyFact returns the DAILY fact for an asset-day
func (r *factsRepo) DailyFact(ctx context.Context, assetTag, businessDate string) (*persistence.ProductionFact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM production_facts
		WHERE asset_tag = ? AND business_date = ? AND report_type = ?
		ORDER BY period_end DESC
		LIMIT 1`, strings.Join(productionColumns(), ", ")))

	row := r.db.QueryRowxContext(ctx, query, assetTag, businessDate, string(domain.ReportDaily))

	fact, err := scanProductionFact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily fact: %w", err)
	}

	return fact, nil
}

// HourlyFacts returns all HOURLY facts of an asset-day ordered by period end
func (r *factsRepo) HourlyFacts(ctx context.Context, assetTag, businessDate string) ([]persistence.ProductionFact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM production_facts
		WHERE asset_tag = ? AND business_date = ? AND report_type = ?
		ORDER BY period_end`, strings.Join(productionColumns(), ", ")))

	rows, err := r.db.QueryxContext(ctx, query, assetTag, businessDate, string(domain.ReportHourly))
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly facts: %w", err)
	}
	defer rows.Close()

	var facts []persistence.ProductionFact
	for rows.Next() {
		fact, err := scanProductionFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hourly fact: %w", err)
		}
		facts = append(facts, *fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly facts: %w", err)
	}

	return facts, nil
}

// TouchedAssetDates lists distinct (asset, date) pairs with facts in range
func (r *factsRepo) TouchedAssetDates(ctx context.Context, dates persistence.DateRange) ([]persistence.AssetDate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT DISTINCT asset_tag, business_date
		FROM production_facts
		WHERE business_date >= ? AND business_date <= ?
		ORDER BY asset_tag, business_date`)

	rows, err := r.db.QueryxContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query touched asset dates: %w", err)
	}
	defer rows.Close()

	return scanAssetDates(rows)
}

// Calibrations returns calibrations for an asset ordered by window start
func (r *factsRepo) Calibrations(ctx context.Context, assetTag string) ([]persistence.CalibrationFact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT calibration_no, asset_tag, window_start, window_end,
			status, selected_mpfm,
			k_used_gas, k_used_oil, k_used_hc, k_used_water,
			k_new_gas, k_new_oil, k_new_hc, k_new_water,
			averages, accumulated, flags, raw_file_fingerprint
		FROM calibration_facts
		WHERE asset_tag = ?
		ORDER BY window_start, calibration_no`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrations: %w", err)
	}
	defer rows.Close()

	var facts []persistence.CalibrationFact
	for rows.Next() {
		fact, err := scanCalibrationFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}
		facts = append(facts, *fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calibrations: %w", err)
	}

	return facts, nil
}

func scanProductionFact(row rowScanner) (*persistence.ProductionFact, error) {
	metrics := domain.ProductionMetrics()

	var fact persistence.ProductionFact
	var reportType string
	var flagsJSON []byte
	metricVals := make([]*float64, len(metrics))

	dests := make([]any, 0, len(metrics)+13)
	dests = append(dests,
		&fact.AssetTag, &reportType, &fact.PeriodStart, &fact.PeriodEnd,
		&fact.BusinessDate)
	for i := range metricVals {
		dests = append(dests, &metricVals[i])
	}
	dests = append(dests,
		&fact.AvgPressureKPa, &fact.AvgTemperatureC,
		&fact.DensityGasKgM3, &fact.DensityOilKgM3, &fact.DensityWaterKgM3,
		&fact.FlowTimeMin, &flagsJSON, &fact.RawFileFingerprint)

	if err := row.Scan(dests...); err != nil {
		return nil, err
	}

	fact.ReportType = domain.ReportType(reportType)
	fact.Values = make(map[string]*float64, len(metrics))
	for i, metric := range metrics {
		if metricVals[i] != nil {
			fact.Values[metric] = metricVals[i]
		}
	}

	flags, err := unmarshalStrings(flagsJSON)
	if err != nil {
		return nil, err
	}
	fact.QualityFlags = flags

	return &fact, nil
}

func scanCalibrationFact(row rowScanner) (*persistence.CalibrationFact, error) {
	var fact persistence.CalibrationFact
	var averagesJSON, accumulatedJSON, flagsJSON []byte

	err := row.Scan(
		&fact.CalibrationNo, &fact.AssetTag, &fact.WindowStart, &fact.WindowEnd,
		&fact.Status, &fact.SelectedMPFM,
		&fact.KUsedGas, &fact.KUsedOil, &fact.KUsedHC, &fact.KUsedWater,
		&fact.KNewGas, &fact.KNewOil, &fact.KNewHC, &fact.KNewWater,
		&averagesJSON, &accumulatedJSON, &flagsJSON, &fact.RawFileFingerprint)
	if err != nil {
		return nil, err
	}

	if fact.Averages, err = unmarshalCalPairs(averagesJSON); err != nil {
		return nil, err
	}
	if fact.Accumulated, err = unmarshalCalPairs(accumulatedJSON); err != nil {
		return nil, err
	}
	if fact.Flags, err = unmarshalStrings(flagsJSON); err != nil {
		return nil, err
	}

	return &fact, nil
}

func calPairs(pairs []persistence.CalPair) []persistence.CalPair {
	if pairs == nil {
		return []persistence.CalPair{}
	}
	return pairs
}

func unmarshalCalPairs(raw []byte) ([]persistence.CalPair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pairs []persistence.CalPair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("unmarshal calibration pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return pairs, nil
}

func scanAssetDates(rows *sqlx.Rows) ([]persistence.AssetDate, error) {
	var pairs []persistence.AssetDate
	for rows.Next() {
		var pair persistence.AssetDate
		if err := rows.Scan(&pair.AssetTag, &pair.BusinessDate); err != nil {
			return nil, fmt.Errorf("failed to scan asset date: %w", err)
		}
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset dates: %w", err)
	}

	return pairs, nil
}
