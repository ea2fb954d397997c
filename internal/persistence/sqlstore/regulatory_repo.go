package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// regulatoryRepo implements RegulatoryRepo over sqlx for both supported dialects
type regulatoryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegulatoryRepo creates a new submission side-table repository
func NewRegulatoryRepo(db *sqlx.DB, timeout time.Duration) persistence.RegulatoryRepo {
	return &regulatoryRepo{
		db:      db,
		timeout: timeout,
	}
}

// ReplaceForFile atomically rewrites everything one submission stated for one
// asset. Re-parsing the same file converges on the latest content.
func (r *regulatoryRepo) ReplaceForFile(ctx context.Context, bundle persistence.RegulatoryBundle) error {
	total := len(bundle.MeterFactors) + len(bundle.Instruments) +
		len(bundle.Periods) + len(bundle.Alarms) + len(bundle.Audits)

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(total/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"flow_computer_configs", "meter_factors", "instruments",
		"xml_periods", "alarms", "audits",
	}
	for _, table := range tables {
		query := r.db.Rebind(fmt.Sprintf(
			`DELETE FROM %s WHERE raw_file_fingerprint = ? AND asset_tag = ?`, table))
		if _, err := tx.ExecContext(ctx, query, bundle.RawFileFingerprint, bundle.AssetTag); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := r.insertConfig(ctx, tx, bundle); err != nil {
		return err
	}
	if err := r.insertMeterFactors(ctx, tx, bundle.MeterFactors); err != nil {
		return err
	}
	if err := r.insertInstruments(ctx, tx, bundle.Instruments); err != nil {
		return err
	}
	if err := r.insertPeriods(ctx, tx, bundle.Periods); err != nil {
		return err
	}
	if err := r.insertAlarms(ctx, tx, bundle.Alarms); err != nil {
		return err
	}
	if err := r.insertAudits(ctx, tx, bundle.Audits); err != nil {
		return err
	}

	return tx.Commit()
}

// ListPeriods returns measurement periods for an asset within the range
func (r *regulatoryRepo) ListPeriods(ctx context.Context, assetTag string, dates persistence.DateRange) ([]persistence.XMLPeriodRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT raw_file_fingerprint, asset_tag, seq, period_start, period_end,
			business_date, flow_duration_hours, gross_volume_m3, net_volume_m3,
			corrected_volume_m3, totalizer_start, totalizer_end, bsw_pct,
			relative_density, static_pressure_kpa, temperature_c, diff_pressure_kpa,
			ctl, cpl, ctpl, meter_factor
		FROM xml_periods
		WHERE asset_tag = ? AND business_date >= ? AND business_date <= ?
		ORDER BY business_date, raw_file_fingerprint, seq`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag, dates.From, dates.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement periods: %w", err)
	}
	defer rows.Close()

	var periods []persistence.XMLPeriodRow
	for rows.Next() {
		var p persistence.XMLPeriodRow
		err := rows.Scan(
			&p.RawFileFingerprint, &p.AssetTag, &p.Seq, &p.PeriodStart, &p.PeriodEnd,
			&p.BusinessDate, &p.FlowDurationHours, &p.GrossVolumeM3, &p.NetVolumeM3,
			&p.CorrectedVolumeM3, &p.TotalizerStart, &p.TotalizerEnd, &p.BSWPct,
			&p.RelativeDensity, &p.StaticPressureKPa, &p.TemperatureC, &p.DiffPressureKPa,
			&p.CTL, &p.CPL, &p.CTPL, &p.MeterFactor)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement period: %w", err)
		}
		periods = append(periods, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating measurement periods: %w", err)
	}

	return periods, nil
}

// ListAlarms returns alarm events for an asset ordered by time
func (r *regulatoryRepo) ListAlarms(ctx context.Context, assetTag string) ([]persistence.AlarmRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT raw_file_fingerprint, asset_tag, seq, ts, parameter, value
		FROM alarms
		WHERE asset_tag = ?
		ORDER BY ts, seq`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarms: %w", err)
	}
	defer rows.Close()

	var alarms []persistence.AlarmRow
	for rows.Next() {
		var a persistence.AlarmRow
		err := rows.Scan(
			&a.RawFileFingerprint, &a.AssetTag, &a.Seq, &a.Timestamp,
			&a.Parameter, &a.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		alarms = append(alarms, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alarms: %w", err)
	}

	return alarms, nil
}

// ListInstruments returns the instrument inventory from the most recently
// staged submission that declared one for the asset
func (r *regulatoryRepo) ListInstruments(ctx context.Context, assetTag string) ([]persistence.InstrumentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT i.raw_file_fingerprint, i.asset_tag, i.seq, i.kind, i.serial,
			i.type_code, i.manufacturer, i.model, i.limit_low, i.limit_high,
			i.last_calibration, i.uncertainty
		FROM instruments i
		JOIN raw_files f ON f.fingerprint = i.raw_file_fingerprint
		WHERE i.asset_tag = ?
			AND f.staged_at = (
				SELECT MAX(f2.staged_at)
				FROM instruments i2
				JOIN raw_files f2 ON f2.fingerprint = i2.raw_file_fingerprint
				WHERE i2.asset_tag = i.asset_tag)
		ORDER BY i.seq`)

	rows, err := r.db.QueryxContext(ctx, query, assetTag)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []persistence.InstrumentRow
	for rows.Next() {
		var in persistence.InstrumentRow
		err := rows.Scan(
			&in.RawFileFingerprint, &in.AssetTag, &in.Seq, &in.Kind, &in.Serial,
			&in.TypeCode, &in.Manufacturer, &in.Model, &in.LimitLow, &in.LimitHigh,
			&in.LastCalibration, &in.Uncertainty)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

func (r *regulatoryRepo) insertConfig(ctx context.Context, tx *sqlx.Tx, bundle persistence.RegulatoryBundle) error {
	if bundle.Config == nil {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO flow_computer_configs (raw_file_fingerprint, asset_tag, collected_at,
			ambient_temperature_c, atmospheric_kpa, reference_kpa, relative_density,
			software_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	c := bundle.Config
	_, err := tx.ExecContext(ctx, query,
		bundle.RawFileFingerprint, bundle.AssetTag, c.CollectedAt,
		c.AmbientTemperatureC, c.AtmosphericKPa, c.ReferenceKPa, c.RelativeDensity,
		c.SoftwareVersion)
	if err != nil {
		return fmt.Errorf("failed to insert flow computer config: %w", err)
	}

	return nil
}

func (r *regulatoryRepo) insertMeterFactors(ctx context.Context, tx *sqlx.Tx, factors []persistence.MeterFactorRow) error {
	if len(factors) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO meter_factors (raw_file_fingerprint, asset_tag, idx, factor, pulses)
		VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range factors {
		if _, err := stmt.ExecContext(ctx, f.RawFileFingerprint, f.AssetTag, f.Idx, f.Factor, f.Pulses); err != nil {
			return fmt.Errorf("failed to insert meter factor: %w", err)
		}
	}

	return nil
}

func (r *regulatoryRepo) insertInstruments(ctx context.Context, tx *sqlx.Tx, instruments []persistence.InstrumentRow) error {
	if len(instruments) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO instruments (raw_file_fingerprint, asset_tag, seq, kind, serial,
			type_code, manufacturer, model, limit_low, limit_high, last_calibration, uncertainty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, in := range instruments {
		_, err := stmt.ExecContext(ctx,
			in.RawFileFingerprint, in.AssetTag, in.Seq, in.Kind, in.Serial,
			in.TypeCode, in.Manufacturer, in.Model, in.LimitLow, in.LimitHigh,
			in.LastCalibration, in.Uncertainty)
		if err != nil {
			return fmt.Errorf("failed to insert instrument: %w", err)
		}
	}

	return nil
}

func (r *regulatoryRepo) insertPeriods(ctx context.Context, tx *sqlx.Tx, periods []persistence.XMLPeriodRow) error {
	if len(periods) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO xml_periods (raw_file_fingerprint, asset_tag, seq, period_start, period_end,
			business_date, flow_duration_hours, gross_volume_m3, net_volume_m3,
			corrected_volume_m3, totalizer_start, totalizer_end, bsw_pct,
			relative_density, static_pressure_kpa, temperature_c, diff_pressure_kpa,
			ctl, cpl, ctpl, meter_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range periods {
		_, err := stmt.ExecContext(ctx,
			p.RawFileFingerprint, p.AssetTag, p.Seq, p.PeriodStart, p.PeriodEnd,
			p.BusinessDate, p.FlowDurationHours, p.GrossVolumeM3, p.NetVolumeM3,
			p.CorrectedVolumeM3, p.TotalizerStart, p.TotalizerEnd, p.BSWPct,
			p.RelativeDensity, p.StaticPressureKPa, p.TemperatureC, p.DiffPressureKPa,
			p.CTL, p.CPL, p.CTPL, p.MeterFactor)
		if err != nil {
			return fmt.Errorf("failed to insert measurement period: %w", err)
		}
	}

	return nil
}

func (r *regulatoryRepo) insertAlarms(ctx context.Context, tx *sqlx.Tx, alarms []persistence.AlarmRow) error {
	if len(alarms) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO alarms (raw_file_fingerprint, asset_tag, seq, ts, parameter, value)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alarms {
		_, err := stmt.ExecContext(ctx,
			a.RawFileFingerprint, a.AssetTag, a.Seq, a.Timestamp, a.Parameter, a.Value)
		if err != nil {
			return fmt.Errorf("failed to insert alarm: %w", err)
		}
	}

	return nil
}

func (r *regulatoryRepo) insertAudits(ctx context.Context, tx *sqlx.Tx, audits []persistence.AuditRow) error {
	if len(audits) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO audits (raw_file_fingerprint, asset_tag, seq, ts, parameter, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range audits {
		_, err := stmt.ExecContext(ctx,
			a.RawFileFingerprint, a.AssetTag, a.Seq, a.Timestamp, a.Parameter,
			a.OldValue, a.NewValue)
		if err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	return nil
}
