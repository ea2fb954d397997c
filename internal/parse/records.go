package parse

import (
	"time"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// Record is the closed sum of parser outputs. The canonicalizer switches on
// the concrete variant; the sealed marker keeps the set closed.
type Record interface {
	record()
}

func (ProductionRecord) record()  {}
func (CalibrationRecord) record() {}
func (SheetBlockRecord) record()  {}
func (GasBalanceRecord) record()  {}
func (RegulatoryRecord) record()  {}
func (AlarmRecord) record()       {}

// PhaseValues carries one phase-bank row in the fixed MPFM phase order.
// Nil means the report did not state the value.
type PhaseValues struct {
	Gas   *float64
	Oil   *float64
	HC    *float64
	Water *float64
	Total *float64
}

// ByPhase returns the value for a phase.
func (v PhaseValues) ByPhase(p domain.Phase) *float64 {
	switch p {
	case domain.PhaseGas:
		return v.Gas
	case domain.PhaseOil:
		return v.Oil
	case domain.PhaseHC:
		return v.HC
	case domain.PhaseWater:
		return v.Water
	case domain.PhaseTotal:
		return v.Total
	}
	return nil
}

// ProductionRecord is one MPFM production table (one riser section of an
// hourly or daily report).
type ProductionRecord struct {
	AssetTag    string
	Bank        string
	Stream      string
	Riser       string
	ReportType  domain.ReportType
	PeriodStart time.Time
	PeriodEnd   time.Time

	UncorrectedMass PhaseValues // t
	CorrectedMass   PhaseValues // t
	PVTRefMass      PhaseValues // t
	PVTRefVol       PhaseValues // Sm3
	PVTRefMass20C   PhaseValues // t at 20 degC
	PVTRefVol20C    PhaseValues // Sm3 at 20 degC

	AvgPressureKPa   *float64
	AvgTemperatureC  *float64
	DensityGasKgM3   *float64
	DensityOilKgM3   *float64
	DensityWaterKgM3 *float64
	FlowTimeMin      *float64

	SourceFormat domain.Source // pdf or txt
}

// BankValues returns the phase-bank values for a canonical bank prefix.
func (r *ProductionRecord) BankValues(prefix string) PhaseValues {
	switch prefix {
	case "uncorrected_mass":
		return r.UncorrectedMass
	case "corrected_mass":
		return r.CorrectedMass
	case "pvt_ref_mass":
		return r.PVTRefMass
	case "pvt_ref_vol":
		return r.PVTRefVol
	case "pvt_ref_mass_20c":
		return r.PVTRefMass20C
	case "pvt_ref_vol_20c":
		return r.PVTRefVol20C
	}
	return PhaseValues{}
}

// KFactor is one used/new correction factor pair for a phase.
type KFactor struct {
	Phase domain.Phase
	Used  *float64
	New   *float64
}

// AveragePair is an MPFM-vs-separator average reading during calibration.
type AveragePair struct {
	Label     string
	MPFM      *float64
	Separator *float64
}

// AccumulatedMass is an MPFM-vs-separator accumulated mass for one phase.
type AccumulatedMass struct {
	Phase     domain.Phase
	MPFM      *float64
	Separator *float64
}

// CalibrationRecord is one PVT calibration report.
type CalibrationRecord struct {
	AssetTag      string
	CalibrationNo string
	SelectedMPFM  string
	Status        string
	WindowStart   time.Time
	WindowEnd     time.Time
	KFactors      []KFactor
	Averages      []AveragePair
	Accumulated   []AccumulatedMass
	Flags         []string
	SourceFormat  domain.Source
}

// SheetValue is one normalized variable under one asset-tag column.
type SheetValue struct {
	Name     string // canonical metric name
	RawLabel string
	Value    *float64
	Unit     string
}

// SheetBlockRecord is one anchor block column: all variables reported for
// one asset tag in one of the three spreadsheet blocks.
type SheetBlockRecord struct {
	Block       string // cumulative | day | fwa | flat
	AssetTag    string
	SheetName   string
	Field       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Values      []SheetValue
}

// GasBalanceLine is one row of the gas balance table.
type GasBalanceLine struct {
	Order       int
	Sign        string // + | - | TOTAL
	Description string
	Flowrate    *float64
	PD          *float64
}

// GasBalanceRecord is the full gas balance table of one workbook.
type GasBalanceRecord struct {
	SheetName   string
	Field       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Lines       []GasBalanceLine
}

// MeterFactorPoint is one indexed meter-factor/pulse-count pair of the
// primary element curve (indexes 1..12).
type MeterFactorPoint struct {
	Index  int
	Factor *float64
	Pulses *float64
}

// Instrument is one entry of a pressure or temperature instrument inventory.
type Instrument struct {
	Kind            string // pressure | temperature
	Serial          string
	TypeCode        string
	Manufacturer    string
	Model           string
	LimitLow        *float64
	LimitHigh       *float64
	LastCalibration time.Time
	Uncertainty     *float64
}

// ProductionPeriod is one PRODUCAO element of a regulator XML submission.
type ProductionPeriod struct {
	Start             time.Time
	End               time.Time
	FlowDurationHours *float64
	GrossVolumeM3     *float64
	NetVolumeM3       *float64
	CorrectedVolumeM3 *float64
	TotalizerStart    *float64
	TotalizerEnd      *float64
	BSWPct            *float64
	RelativeDensity   *float64
	StaticPressureKPa *float64
	TemperatureC      *float64
	DiffPressureKPa   *float64
	CTL               *float64
	CPL               *float64
	CTPL              *float64
	MeterFactor       *float64
}

// FlowComputerConfig is the CONFIGURACAO_CV block.
type FlowComputerConfig struct {
	CollectedAt         time.Time
	AmbientTemperatureC *float64
	AtmosphericKPa      *float64
	ReferenceKPa        *float64
	RelativeDensity     *float64
	SoftwareVersion     string
}

// RegulatoryRecord is one DADOS_BASICOS element of shapes 001, 002, 003.
type RegulatoryRecord struct {
	XMLShape        domain.Shape
	Installation    string
	AssetTag        string
	PrimarySerial   string
	ComputerSerial  string
	CNPJ8           string
	GeneratedAt     time.Time
	Config          *FlowComputerConfig
	MeterFactors    []MeterFactorPoint
	Instruments     []Instrument
	Periods         []ProductionPeriod
}

// AlarmEvent is one alarm of a shape-004 submission.
type AlarmEvent struct {
	Timestamp time.Time
	Parameter string
	Value     string
}

// AuditEvent is one configuration-change event of a shape-004 submission.
type AuditEvent struct {
	Timestamp time.Time
	Parameter string
	OldValue  string
	NewValue  string
}

// AlarmRecord is one DADOS_BASICOS element of shape 004.
type AlarmRecord struct {
	Installation string
	AssetTag     string
	Alarms       []AlarmEvent
	Events       []AuditEvent
}
