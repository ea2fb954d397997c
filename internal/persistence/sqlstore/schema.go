package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// dialect carries the few type spellings the two engines disagree on.
type dialect struct {
	timestamp string
	json      string
}

func dialectFor(driver string) dialect {
	if driver == "postgres" {
		return dialect{timestamp: "TIMESTAMPTZ", json: "JSONB"}
	}
	return dialect{timestamp: "TIMESTAMP", json: "TEXT"}
}

// Bootstrap creates the schema if it does not exist yet. Statements are
// idempotent; running against an initialized store is a no-op.
func Bootstrap(ctx context.Context, db *sqlx.DB, driver string) error {
	for _, stmt := range schemaStatements(dialectFor(driver)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(d dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS assets (
			tag TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			bank TEXT,
			stream TEXT,
			riser TEXT,
			created_at ` + d.timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			fingerprint TEXT NOT NULL UNIQUE,
			file_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			started_at ` + d.timestamp + ` NOT NULL,
			completed_at ` + d.timestamp + `
		)`,

		`CREATE TABLE IF NOT EXISTS raw_files (
			fingerprint TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			shape TEXT NOT NULL,
			parse_status TEXT NOT NULL,
			source_path TEXT NOT NULL DEFAULT '',
			batch_id TEXT REFERENCES batches(id),
			record_count INTEGER NOT NULL DEFAULT 0,
			warnings ` + d.json + ` NOT NULL DEFAULT '[]',
			errors ` + d.json + ` NOT NULL DEFAULT '[]',
			staged_at ` + d.timestamp + ` NOT NULL,
			parsed_at ` + d.timestamp + `
		)`,

		`CREATE TABLE IF NOT EXISTS manifests (
			batch_id TEXT NOT NULL REFERENCES batches(id),
			asset_tag TEXT NOT NULL,
			business_date TEXT NOT NULL,
			expected_hourly INTEGER NOT NULL,
			found_hourly INTEGER NOT NULL,
			has_daily BOOLEAN NOT NULL,
			has_calibration BOOLEAN NOT NULL,
			quality_flag TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (batch_id, asset_tag, business_date)
		)`,

		productionFactsDDL(d),

		`CREATE INDEX IF NOT EXISTS idx_production_facts_date
			ON production_facts (business_date)`,

		`CREATE TABLE IF NOT EXISTS calibration_facts (
			calibration_no TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			window_start ` + d.timestamp + `,
			window_end ` + d.timestamp + `,
			status TEXT NOT NULL DEFAULT '',
			selected_mpfm TEXT NOT NULL DEFAULT '',
			k_used_gas DOUBLE PRECISION,
			k_used_oil DOUBLE PRECISION,
			k_used_hc DOUBLE PRECISION,
			k_used_water DOUBLE PRECISION,
			k_new_gas DOUBLE PRECISION,
			k_new_oil DOUBLE PRECISION,
			k_new_hc DOUBLE PRECISION,
			k_new_water DOUBLE PRECISION,
			averages ` + d.json + ` NOT NULL DEFAULT '[]',
			accumulated ` + d.json + ` NOT NULL DEFAULT '[]',
			flags ` + d.json + ` NOT NULL DEFAULT '[]',
			raw_file_fingerprint TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (calibration_no, asset_tag)
		)`,

		`CREATE TABLE IF NOT EXISTS observations (
			asset_tag TEXT NOT NULL,
			source TEXT NOT NULL,
			metric TEXT NOT NULL,
			business_date TEXT NOT NULL,
			time_window TEXT NOT NULL DEFAULT '',
			value DOUBLE PRECISION NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			raw_file_fingerprint TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (asset_tag, source, metric, business_date, time_window)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_observations_date
			ON observations (business_date)`,

		`CREATE TABLE IF NOT EXISTS gas_balance_lines (
			raw_file_fingerprint TEXT NOT NULL,
			line_order INTEGER NOT NULL,
			business_date TEXT NOT NULL DEFAULT '',
			sign TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			flowrate DOUBLE PRECISION,
			pd DOUBLE PRECISION,
			PRIMARY KEY (raw_file_fingerprint, line_order)
		)`,

		`CREATE TABLE IF NOT EXISTS flow_computer_configs (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			collected_at ` + d.timestamp + `,
			ambient_temperature_c DOUBLE PRECISION,
			atmospheric_kpa DOUBLE PRECISION,
			reference_kpa DOUBLE PRECISION,
			relative_density DOUBLE PRECISION,
			software_version TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (raw_file_fingerprint, asset_tag)
		)`,

		`CREATE TABLE IF NOT EXISTS meter_factors (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			idx INTEGER NOT NULL,
			factor DOUBLE PRECISION,
			pulses DOUBLE PRECISION,
			PRIMARY KEY (raw_file_fingerprint, asset_tag, idx)
		)`,

		`CREATE TABLE IF NOT EXISTS instruments (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			serial TEXT NOT NULL DEFAULT '',
			type_code TEXT NOT NULL DEFAULT '',
			manufacturer TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			limit_low DOUBLE PRECISION,
			limit_high DOUBLE PRECISION,
			last_calibration ` + d.timestamp + `,
			uncertainty DOUBLE PRECISION,
			PRIMARY KEY (raw_file_fingerprint, asset_tag, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS xml_periods (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			seq INTEGER NOT NULL,
			period_start ` + d.timestamp + `,
			period_end ` + d.timestamp + `,
			business_date TEXT NOT NULL DEFAULT '',
			flow_duration_hours DOUBLE PRECISION,
			gross_volume_m3 DOUBLE PRECISION,
			net_volume_m3 DOUBLE PRECISION,
			corrected_volume_m3 DOUBLE PRECISION,
			totalizer_start DOUBLE PRECISION,
			totalizer_end DOUBLE PRECISION,
			bsw_pct DOUBLE PRECISION,
			relative_density DOUBLE PRECISION,
			static_pressure_kpa DOUBLE PRECISION,
			temperature_c DOUBLE PRECISION,
			diff_pressure_kpa DOUBLE PRECISION,
			ctl DOUBLE PRECISION,
			cpl DOUBLE PRECISION,
			ctpl DOUBLE PRECISION,
			meter_factor DOUBLE PRECISION,
			PRIMARY KEY (raw_file_fingerprint, asset_tag, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS alarms (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts ` + d.timestamp + `,
			parameter TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (raw_file_fingerprint, asset_tag, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS audits (
			raw_file_fingerprint TEXT NOT NULL,
			asset_tag TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts ` + d.timestamp + `,
			parameter TEXT NOT NULL DEFAULT '',
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (raw_file_fingerprint, asset_tag, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_verdicts (
			asset_tag TEXT NOT NULL,
			business_date TEXT NOT NULL,
			metric TEXT NOT NULL,
			daily_value DOUBLE PRECISION,
			sum_hourly DOUBLE PRECISION,
			hourly_count INTEGER NOT NULL DEFAULT 0,
			delta_abs DOUBLE PRECISION,
			delta_pct DOUBLE PRECISION,
			verdict TEXT NOT NULL,
			computed_at ` + d.timestamp + ` NOT NULL,
			PRIMARY KEY (asset_tag, business_date, metric)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reconciliation_verdicts_date
			ON reconciliation_verdicts (business_date)`,

		`CREATE TABLE IF NOT EXISTS completeness (
			asset_tag TEXT NOT NULL,
			business_date TEXT NOT NULL,
			expected_hourly INTEGER NOT NULL,
			found_hourly INTEGER NOT NULL,
			has_daily BOOLEAN NOT NULL,
			completeness_pct DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (asset_tag, business_date)
		)`,

		`CREATE TABLE IF NOT EXISTS cross_verdicts (
			asset_tag TEXT NOT NULL,
			business_date TEXT NOT NULL,
			time_window TEXT NOT NULL DEFAULT '',
			metric TEXT NOT NULL,
			spreadsheet_value DOUBLE PRECISION,
			xml_value DOUBLE PRECISION,
			pdf_value DOUBLE PRECISION,
			txt_value DOUBLE PRECISION,
			sources_present INTEGER NOT NULL DEFAULT 0,
			max_abs DOUBLE PRECISION,
			max_pct DOUBLE PRECISION,
			tolerance_applied DOUBLE PRECISION,
			classification TEXT NOT NULL,
			computed_at ` + d.timestamp + ` NOT NULL,
			PRIMARY KEY (asset_tag, business_date, time_window, metric)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cross_verdicts_date
			ON cross_verdicts (business_date)`,

		`CREATE TABLE IF NOT EXISTS inconsistency_streaks (
			asset_tag TEXT NOT NULL,
			metric TEXT NOT NULL,
			status TEXT NOT NULL,
			first_occurrence TEXT NOT NULL,
			last_occurrence TEXT NOT NULL,
			consecutive_days INTEGER NOT NULL,
			PRIMARY KEY (asset_tag, metric)
		)`,

		`CREATE TABLE IF NOT EXISTS non_conformances (
			event_id TEXT PRIMARY KEY,
			asset_tag TEXT NOT NULL,
			metric TEXT NOT NULL,
			occurrence_date TEXT NOT NULL,
			detected_at ` + d.timestamp + ` NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			partial_deadline TEXT NOT NULL,
			final_deadline TEXT NOT NULL
		)`,
	}
}

// productionFactsDDL builds the wide fact table: the 30 canonical metric
// columns come from the declared metric list so schema and reconciler can
// never drift apart.
func productionFactsDDL(d dialect) string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE IF NOT EXISTS production_facts (
			asset_tag TEXT NOT NULL,
			report_type TEXT NOT NULL,
			period_start ` + d.timestamp + ` NOT NULL,
			period_end ` + d.timestamp + ` NOT NULL,
			business_date TEXT NOT NULL,
`)
	for _, metric := range domain.ProductionMetrics() {
		b.WriteString("\t\t\t" + metric + " DOUBLE PRECISION,\n")
	}
	b.WriteString(`			avg_pressure_kpa DOUBLE PRECISION,
			avg_temperature_c DOUBLE PRECISION,
			density_gas_kgm3 DOUBLE PRECISION,
			density_oil_kgm3 DOUBLE PRECISION,
			density_water_kgm3 DOUBLE PRECISION,
			flow_time_min DOUBLE PRECISION,
			quality_flags ` + d.json + ` NOT NULL DEFAULT '[]',
			raw_file_fingerprint TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (asset_tag, period_end, report_type)
		)`)
	return b.String()
}
