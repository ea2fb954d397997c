package persistence

import (
	"context"
	"time"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// DateRange is an inclusive business-date window. Dates use the canonical
// YYYY-MM-DD key so both storage dialects compare them lexically.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Contains reports whether the date key falls inside the range.
func (r DateRange) Contains(date string) bool {
	return date >= r.From && date <= r.To
}

// Asset is one measuring point. The first writer seeds the dimensions;
// later writers keep the earlier values.
type Asset struct {
	Tag       string    `json:"tag" db:"tag"`
	Kind      string    `json:"kind" db:"kind"`
	Bank      *string   `json:"bank,omitempty" db:"bank"`
	Stream    *string   `json:"stream,omitempty" db:"stream"`
	Riser     *string   `json:"riser,omitempty" db:"riser"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Batch is one ingestion run over a directory, archive or single file.
type Batch struct {
	ID          string             `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	Fingerprint string             `json:"fingerprint" db:"fingerprint"`
	FileCount   int                `json:"file_count" db:"file_count"`
	Status      domain.BatchStatus `json:"status" db:"status"`
	StartedAt   time.Time          `json:"started_at" db:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// RawFile is one staged input file, keyed by content fingerprint.
type RawFile struct {
	Fingerprint string             `json:"fingerprint" db:"fingerprint"`
	Filename    string             `json:"filename" db:"filename"`
	SizeBytes   int64              `json:"size_bytes" db:"size_bytes"`
	Shape       domain.Shape       `json:"shape" db:"shape"`
	ParseStatus domain.ParseStatus `json:"parse_status" db:"parse_status"`
	SourcePath  string             `json:"source_path" db:"source_path"`
	BatchID     *string            `json:"batch_id,omitempty" db:"batch_id"`
	RecordCount int                `json:"record_count" db:"record_count"`
	Warnings    []string           `json:"warnings,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	StagedAt    time.Time          `json:"staged_at" db:"staged_at"`
	ParsedAt    *time.Time         `json:"parsed_at,omitempty" db:"parsed_at"`
}

// Manifest records what one batch delivered for one asset and day.
type Manifest struct {
	BatchID        string `json:"batch_id" db:"batch_id"`
	AssetTag       string `json:"asset_tag" db:"asset_tag"`
	BusinessDate   string `json:"business_date" db:"business_date"`
	ExpectedHourly int    `json:"expected_hourly" db:"expected_hourly"`
	FoundHourly    int    `json:"found_hourly" db:"found_hourly"`
	HasDaily       bool   `json:"has_daily" db:"has_daily"`
	HasCalibration bool   `json:"has_calibration" db:"has_calibration"`
	QualityFlag    string `json:"quality_flag,omitempty" db:"quality_flag"`
}

// ProductionFact is one canonical production row at hourly or daily grain.
// Values is keyed by the canonical 30-metric column list; absent metrics are
// simply missing from the map (stored as NULL).
type ProductionFact struct {
	AssetTag     string
	ReportType   domain.ReportType
	PeriodStart  time.Time
	PeriodEnd    time.Time
	BusinessDate string
	Values       map[string]*float64

	AvgPressureKPa   *float64
	AvgTemperatureC  *float64
	DensityGasKgM3   *float64
	DensityOilKgM3   *float64
	DensityWaterKgM3 *float64
	FlowTimeMin      *float64

	QualityFlags       []string
	RawFileFingerprint string
}

// Value returns the metric value or nil when absent.
func (f *ProductionFact) Value(metric string) *float64 {
	if f.Values == nil {
		return nil
	}
	return f.Values[metric]
}

// CalPair is an MPFM-vs-separator reading captured during calibration.
type CalPair struct {
	Label     string   `json:"label"`
	MPFM      *float64 `json:"mpfm,omitempty"`
	Separator *float64 `json:"separator,omitempty"`
}

// CalibrationFact is one PVT calibration result.
type CalibrationFact struct {
	CalibrationNo string     `json:"calibration_no" db:"calibration_no"`
	AssetTag      string     `json:"asset_tag" db:"asset_tag"`
	WindowStart   *time.Time `json:"window_start,omitempty" db:"window_start"`
	WindowEnd     *time.Time `json:"window_end,omitempty" db:"window_end"`
	Status        string     `json:"status,omitempty" db:"status"`
	SelectedMPFM  string     `json:"selected_mpfm,omitempty" db:"selected_mpfm"`

	KUsedGas   *float64 `json:"k_used_gas,omitempty" db:"k_used_gas"`
	KUsedOil   *float64 `json:"k_used_oil,omitempty" db:"k_used_oil"`
	KUsedHC    *float64 `json:"k_used_hc,omitempty" db:"k_used_hc"`
	KUsedWater *float64 `json:"k_used_water,omitempty" db:"k_used_water"`
	KNewGas    *float64 `json:"k_new_gas,omitempty" db:"k_new_gas"`
	KNewOil    *float64 `json:"k_new_oil,omitempty" db:"k_new_oil"`
	KNewHC     *float64 `json:"k_new_hc,omitempty" db:"k_new_hc"`
	KNewWater  *float64 `json:"k_new_water,omitempty" db:"k_new_water"`

	Averages    []CalPair `json:"averages,omitempty"`
	Accumulated []CalPair `json:"accumulated,omitempty"`
	Flags       []string  `json:"flags,omitempty"`

	RawFileFingerprint string `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
}

// Observation is the narrow per-source grain the cross-validator compares.
type Observation struct {
	AssetTag           string        `json:"asset_tag" db:"asset_tag"`
	Source             domain.Source `json:"source" db:"source"`
	Metric             string        `json:"metric" db:"metric"`
	BusinessDate       string        `json:"business_date" db:"business_date"`
	TimeWindow         string        `json:"time_window" db:"time_window"`
	Value              float64       `json:"value" db:"value"`
	Unit               string        `json:"unit" db:"unit"`
	RawFileFingerprint string        `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
}

// GasBalanceLine is one persisted row of a gas balance table.
type GasBalanceLine struct {
	RawFileFingerprint string   `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	LineOrder          int      `json:"line_order" db:"line_order"`
	BusinessDate       string   `json:"business_date" db:"business_date"`
	Sign               string   `json:"sign" db:"sign"`
	Description        string   `json:"description" db:"description"`
	Flowrate           *float64 `json:"flowrate,omitempty" db:"flowrate"`
	PD                 *float64 `json:"pd,omitempty" db:"pd"`
}

// FlowComputerConfigRow is one CONFIGURACAO_CV block of a submission.
type FlowComputerConfigRow struct {
	RawFileFingerprint  string     `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag            string     `json:"asset_tag" db:"asset_tag"`
	CollectedAt         *time.Time `json:"collected_at,omitempty" db:"collected_at"`
	AmbientTemperatureC *float64   `json:"ambient_temperature_c,omitempty" db:"ambient_temperature_c"`
	AtmosphericKPa      *float64   `json:"atmospheric_kpa,omitempty" db:"atmospheric_kpa"`
	ReferenceKPa        *float64   `json:"reference_kpa,omitempty" db:"reference_kpa"`
	RelativeDensity     *float64   `json:"relative_density,omitempty" db:"relative_density"`
	SoftwareVersion     string     `json:"software_version,omitempty" db:"software_version"`
}

// MeterFactorRow is one indexed point of a primary-element curve.
type MeterFactorRow struct {
	RawFileFingerprint string   `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag           string   `json:"asset_tag" db:"asset_tag"`
	Idx                int      `json:"idx" db:"idx"`
	Factor             *float64 `json:"factor,omitempty" db:"factor"`
	Pulses             *float64 `json:"pulses,omitempty" db:"pulses"`
}

// InstrumentRow is one instrument inventory entry of a submission.
type InstrumentRow struct {
	RawFileFingerprint string     `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag           string     `json:"asset_tag" db:"asset_tag"`
	Seq                int        `json:"seq" db:"seq"`
	Kind               string     `json:"kind" db:"kind"`
	Serial             string     `json:"serial" db:"serial"`
	TypeCode           string     `json:"type_code,omitempty" db:"type_code"`
	Manufacturer       string     `json:"manufacturer,omitempty" db:"manufacturer"`
	Model              string     `json:"model,omitempty" db:"model"`
	LimitLow           *float64   `json:"limit_low,omitempty" db:"limit_low"`
	LimitHigh          *float64   `json:"limit_high,omitempty" db:"limit_high"`
	LastCalibration    *time.Time `json:"last_calibration,omitempty" db:"last_calibration"`
	Uncertainty        *float64   `json:"uncertainty,omitempty" db:"uncertainty"`
}

// XMLPeriodRow is one PRODUCAO measurement period of a submission.
type XMLPeriodRow struct {
	RawFileFingerprint string     `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag           string     `json:"asset_tag" db:"asset_tag"`
	Seq                int        `json:"seq" db:"seq"`
	PeriodStart        *time.Time `json:"period_start,omitempty" db:"period_start"`
	PeriodEnd          *time.Time `json:"period_end,omitempty" db:"period_end"`
	BusinessDate       string     `json:"business_date,omitempty" db:"business_date"`
	FlowDurationHours  *float64   `json:"flow_duration_hours,omitempty" db:"flow_duration_hours"`
	GrossVolumeM3      *float64   `json:"gross_volume_m3,omitempty" db:"gross_volume_m3"`
	NetVolumeM3        *float64   `json:"net_volume_m3,omitempty" db:"net_volume_m3"`
	CorrectedVolumeM3  *float64   `json:"corrected_volume_m3,omitempty" db:"corrected_volume_m3"`
	TotalizerStart     *float64   `json:"totalizer_start,omitempty" db:"totalizer_start"`
	TotalizerEnd       *float64   `json:"totalizer_end,omitempty" db:"totalizer_end"`
	BSWPct             *float64   `json:"bsw_pct,omitempty" db:"bsw_pct"`
	RelativeDensity    *float64   `json:"relative_density,omitempty" db:"relative_density"`
	StaticPressureKPa  *float64   `json:"static_pressure_kpa,omitempty" db:"static_pressure_kpa"`
	TemperatureC       *float64   `json:"temperature_c,omitempty" db:"temperature_c"`
	DiffPressureKPa    *float64   `json:"diff_pressure_kpa,omitempty" db:"diff_pressure_kpa"`
	CTL                *float64   `json:"ctl,omitempty" db:"ctl"`
	CPL                *float64   `json:"cpl,omitempty" db:"cpl"`
	CTPL               *float64   `json:"ctpl,omitempty" db:"ctpl"`
	MeterFactor        *float64   `json:"meter_factor,omitempty" db:"meter_factor"`
}

// AlarmRow is one alarm event of a shape-004 submission.
type AlarmRow struct {
	RawFileFingerprint string     `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag           string     `json:"asset_tag" db:"asset_tag"`
	Seq                int        `json:"seq" db:"seq"`
	Timestamp          *time.Time `json:"ts,omitempty" db:"ts"`
	Parameter          string     `json:"parameter,omitempty" db:"parameter"`
	Value              string     `json:"value,omitempty" db:"value"`
}

// AuditRow is one configuration-change event of a shape-004 submission.
type AuditRow struct {
	RawFileFingerprint string     `json:"raw_file_fingerprint" db:"raw_file_fingerprint"`
	AssetTag           string     `json:"asset_tag" db:"asset_tag"`
	Seq                int        `json:"seq" db:"seq"`
	Timestamp          *time.Time `json:"ts,omitempty" db:"ts"`
	Parameter          string     `json:"parameter,omitempty" db:"parameter"`
	OldValue           string     `json:"old_value,omitempty" db:"old_value"`
	NewValue           string     `json:"new_value,omitempty" db:"new_value"`
}

// RegulatoryBundle is everything one submission contributed for one asset,
// replaced atomically per raw file on re-parse.
type RegulatoryBundle struct {
	RawFileFingerprint string
	AssetTag           string
	Config             *FlowComputerConfigRow
	MeterFactors       []MeterFactorRow
	Instruments        []InstrumentRow
	Periods            []XMLPeriodRow
	Alarms             []AlarmRow
	Audits             []AuditRow
}

// ReconciliationVerdict is the hourly-vs-daily result for one metric.
type ReconciliationVerdict struct {
	AssetTag     string         `json:"asset_tag" db:"asset_tag"`
	BusinessDate string         `json:"business_date" db:"business_date"`
	Metric       string         `json:"metric" db:"metric"`
	DailyValue   *float64       `json:"daily_value,omitempty" db:"daily_value"`
	SumHourly    *float64       `json:"sum_hourly,omitempty" db:"sum_hourly"`
	HourlyCount  int            `json:"hourly_count" db:"hourly_count"`
	DeltaAbs     *float64       `json:"delta_abs,omitempty" db:"delta_abs"`
	DeltaPct     *float64       `json:"delta_pct,omitempty" db:"delta_pct"`
	Verdict      domain.Verdict `json:"verdict" db:"verdict"`
	ComputedAt   time.Time      `json:"computed_at" db:"computed_at"`
}

// Completeness summarizes hourly coverage for one asset-day.
type Completeness struct {
	AssetTag        string  `json:"asset_tag" db:"asset_tag"`
	BusinessDate    string  `json:"business_date" db:"business_date"`
	ExpectedHourly  int     `json:"expected_hourly" db:"expected_hourly"`
	FoundHourly     int     `json:"found_hourly" db:"found_hourly"`
	HasDaily        bool    `json:"has_daily" db:"has_daily"`
	CompletenessPct float64 `json:"completeness_pct" db:"completeness_pct"`
	Status          string  `json:"status" db:"status"`
}

// CrossVerdict is the result of comparing sources for one asset-day-metric.
type CrossVerdict struct {
	AssetTag         string                `json:"asset_tag" db:"asset_tag"`
	BusinessDate     string                `json:"business_date" db:"business_date"`
	TimeWindow       string                `json:"time_window" db:"time_window"`
	Metric           string                `json:"metric" db:"metric"`
	SpreadsheetValue *float64              `json:"spreadsheet_value,omitempty" db:"spreadsheet_value"`
	XMLValue         *float64              `json:"xml_value,omitempty" db:"xml_value"`
	PDFValue         *float64              `json:"pdf_value,omitempty" db:"pdf_value"`
	TXTValue         *float64              `json:"txt_value,omitempty" db:"txt_value"`
	SourcesPresent   int                   `json:"sources_present" db:"sources_present"`
	MaxAbs           *float64              `json:"max_abs,omitempty" db:"max_abs"`
	MaxPct           *float64              `json:"max_pct,omitempty" db:"max_pct"`
	ToleranceApplied *float64              `json:"tolerance_applied,omitempty" db:"tolerance_applied"`
	Classification   domain.Classification `json:"classification" db:"classification"`
	ComputedAt       time.Time             `json:"computed_at" db:"computed_at"`
}

// InconsistencyStreak tracks consecutive inconsistent days per asset-metric.
type InconsistencyStreak struct {
	AssetTag        string              `json:"asset_tag" db:"asset_tag"`
	Metric          string              `json:"metric" db:"metric"`
	Status          domain.StreakStatus `json:"status" db:"status"`
	FirstOccurrence string              `json:"first_occurrence" db:"first_occurrence"`
	LastOccurrence  string              `json:"last_occurrence" db:"last_occurrence"`
	ConsecutiveDays int                 `json:"consecutive_days" db:"consecutive_days"`
}

// NonConformance is an escalated cross-validation finding with regulatory
// response deadlines.
type NonConformance struct {
	EventID         string    `json:"event_id" db:"event_id"`
	AssetTag        string    `json:"asset_tag" db:"asset_tag"`
	Metric          string    `json:"metric" db:"metric"`
	OccurrenceDate  string    `json:"occurrence_date" db:"occurrence_date"`
	DetectedAt      time.Time `json:"detected_at" db:"detected_at"`
	Description     string    `json:"description" db:"description"`
	PartialDeadline string    `json:"partial_deadline" db:"partial_deadline"`
	FinalDeadline   string    `json:"final_deadline" db:"final_deadline"`
}

// AssetDate is one touched (asset, business date) pair.
type AssetDate struct {
	AssetTag     string `json:"asset_tag" db:"asset_tag"`
	BusinessDate string `json:"business_date" db:"business_date"`
}

// GroupByAsset splits an asset-ordered pair list into per-asset runs,
// preserving the date order inside each run. Streak arithmetic depends on
// one asset's days arriving oldest first.
func GroupByAsset(pairs []AssetDate) [][]AssetDate {
	var groups [][]AssetDate
	start := 0
	for i := 1; i <= len(pairs); i++ {
		if i == len(pairs) || pairs[i].AssetTag != pairs[start].AssetTag {
			groups = append(groups, pairs[start:i])
			start = i
		}
	}
	return groups
}

// AssetsRepo persists the asset dimension.
type AssetsRepo interface {
	// Ensure seeds the asset if unseen and returns the stored row. The
	// stored dimensions win over the candidate on conflict.
	Ensure(ctx context.Context, asset Asset) (Asset, error)

	// Get retrieves one asset by tag, nil when unknown.
	Get(ctx context.Context, tag string) (*Asset, error)

	// List returns all assets ordered by tag.
	List(ctx context.Context) ([]Asset, error)
}

// BatchesRepo persists ingestion batches.
type BatchesRepo interface {
	// Create registers a new batch in PROCESSING state.
	Create(ctx context.Context, batch Batch) error

	// Finish records the terminal status and completion time.
	Finish(ctx context.Context, id string, status domain.BatchStatus, completedAt time.Time) error

	// Get retrieves one batch by id, nil when unknown.
	Get(ctx context.Context, id string) (*Batch, error)

	// GetByFingerprint finds a previously registered batch submission.
	GetByFingerprint(ctx context.Context, fingerprint string) (*Batch, error)

	// List returns the most recent batches.
	List(ctx context.Context, limit int) ([]Batch, error)

	// FileStatusCounts returns per-parse-status file counts for a batch.
	FileStatusCounts(ctx context.Context, batchID string) (map[string]int64, error)
}

// RawFilesRepo persists staged files keyed by content fingerprint.
type RawFilesRepo interface {
	// Claim stages the file. Exactly one concurrent caller wins the insert;
	// losers receive claimed=false and the already stored row.
	Claim(ctx context.Context, file RawFile) (claimed bool, existing *RawFile, err error)

	// MarkParsed writes back the parse outcome for a fingerprint.
	MarkParsed(ctx context.Context, fingerprint string, status domain.ParseStatus, recordCount int, warnings, errors []string, parsedAt time.Time) error

	// Get retrieves one staged file, nil when unknown.
	Get(ctx context.Context, fingerprint string) (*RawFile, error)

	// ListByBatch returns all files of one batch ordered by filename.
	ListByBatch(ctx context.Context, batchID string) ([]RawFile, error)
}

// ManifestsRepo persists per batch/asset/day delivery manifests.
type ManifestsRepo interface {
	// Upsert writes the manifest row for its (batch, asset, date) key.
	Upsert(ctx context.Context, m Manifest) error

	// ListByBatch returns all manifests of a batch.
	ListByBatch(ctx context.Context, batchID string) ([]Manifest, error)
}

// FactsRepo persists canonical production and calibration facts.
type FactsRepo interface {
	// UpsertProduction replaces the fact for its natural key.
	UpsertProduction(ctx context.Context, fact ProductionFact) error

	// UpsertProductionBatch replaces one file's facts atomically. Either
	// every row of the record stream lands or none does.
	UpsertProductionBatch(ctx context.Context, facts []ProductionFact) error

	// UpsertCalibration replaces the calibration for its natural key.
	UpsertCalibration(ctx context.Context, fact CalibrationFact) error

	// DailyFact returns the DAILY fact for an asset-day, nil when absent.
	DailyFact(ctx context.Context, assetTag, businessDate string) (*ProductionFact, error)

	// HourlyFacts returns all HOURLY facts of an asset-day ordered by period end.
	HourlyFacts(ctx context.Context, assetTag, businessDate string) ([]ProductionFact, error)

	// TouchedAssetDates lists distinct (asset, date) pairs with facts in range.
	TouchedAssetDates(ctx context.Context, dates DateRange) ([]AssetDate, error)

	// Calibrations returns calibrations for an asset ordered by window start.
	Calibrations(ctx context.Context, assetTag string) ([]CalibrationFact, error)
}

// ObservationsRepo persists cross-validation observations.
type ObservationsRepo interface {
	// UpsertBatch replaces observations for their natural keys.
	UpsertBatch(ctx context.Context, observations []Observation) error

	// ListByAssetDate returns all observations of one asset-day.
	ListByAssetDate(ctx context.Context, assetTag, businessDate string) ([]Observation, error)

	// TouchedAssetDates lists distinct (asset, date) pairs with observations in range.
	TouchedAssetDates(ctx context.Context, dates DateRange) ([]AssetDate, error)
}

// GasBalanceRepo persists gas balance tables.
type GasBalanceRepo interface {
	// ReplaceForFile atomically rewrites the lines parsed from one file.
	ReplaceForFile(ctx context.Context, fingerprint string, lines []GasBalanceLine) error

	// ListByDate returns all lines for a business date ordered by file and line.
	ListByDate(ctx context.Context, businessDate string) ([]GasBalanceLine, error)
}

// RegulatoryRepo persists submission side-tables.
type RegulatoryRepo interface {
	// ReplaceForFile atomically rewrites everything one submission stated
	// for one asset.
	ReplaceForFile(ctx context.Context, bundle RegulatoryBundle) error

	// ListPeriods returns measurement periods for an asset within the range.
	ListPeriods(ctx context.Context, assetTag string, dates DateRange) ([]XMLPeriodRow, error)

	// ListAlarms returns alarm events for an asset ordered by time.
	ListAlarms(ctx context.Context, assetTag string) ([]AlarmRow, error)

	// ListInstruments returns the latest known instrument inventory of an asset.
	ListInstruments(ctx context.Context, assetTag string) ([]InstrumentRow, error)
}

// VerdictsRepo persists reconciliation output.
type VerdictsRepo interface {
	// ReplaceForAssetDate deletes prior verdicts of the pair and inserts the
	// new set in one transaction.
	ReplaceForAssetDate(ctx context.Context, assetTag, businessDate string, verdicts []ReconciliationVerdict) error

	// ListByAssetDate returns verdicts for one asset-day ordered by metric.
	ListByAssetDate(ctx context.Context, assetTag, businessDate string) ([]ReconciliationVerdict, error)

	// Summary returns verdict counts within the date range.
	Summary(ctx context.Context, dates DateRange) (map[string]int64, error)

	// UpsertCompleteness writes the coverage row for an asset-day.
	UpsertCompleteness(ctx context.Context, c Completeness) error

	// ListCompleteness returns coverage rows within the date range.
	ListCompleteness(ctx context.Context, dates DateRange) ([]Completeness, error)
}

// CrossValRepo persists cross-validation verdicts, streaks and escalations.
type CrossValRepo interface {
	// UpsertVerdicts replaces cross verdicts for their natural keys.
	UpsertVerdicts(ctx context.Context, verdicts []CrossVerdict) error

	// Summary returns classification counts within the date range.
	Summary(ctx context.Context, dates DateRange) (map[string]int64, error)

	// GetStreak returns the streak row for (asset, metric), nil when absent.
	GetStreak(ctx context.Context, assetTag, metric string) (*InconsistencyStreak, error)

	// UpsertStreak writes the streak row for its key.
	UpsertStreak(ctx context.Context, s InconsistencyStreak) error

	// ListStreaks returns streaks with the given status ordered by asset.
	ListStreaks(ctx context.Context, status domain.StreakStatus) ([]InconsistencyStreak, error)

	// CreateNonConformance inserts the event if its id is new. Returns true
	// when this call created it.
	CreateNonConformance(ctx context.Context, nc NonConformance) (bool, error)

	// ListNonConformances returns events ordered by occurrence date descending.
	ListNonConformances(ctx context.Context, limit int) ([]NonConformance, error)
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Assets       AssetsRepo
	Batches      BatchesRepo
	RawFiles     RawFilesRepo
	Manifests    ManifestsRepo
	Facts        FactsRepo
	Observations ObservationsRepo
	GasBalance   GasBalanceRepo
	Regulatory   RegulatoryRepo
	Verdicts     VerdictsRepo
	CrossVal     CrossValRepo
}

// HealthCheck represents repository health status.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer.
type RepositoryHealth interface {
	// Health returns current repository health status.
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database.
	Ping(ctx context.Context) error
}
