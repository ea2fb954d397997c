package canon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestCanonicalizeHourlyProduction(t *testing.T) {
	rec := &parse.ProductionRecord{
		AssetTag:    "13FT0367",
		Bank:        "B01",
		Stream:      "1",
		ReportType:  domain.ReportHourly,
		PeriodStart: time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),
		CorrectedMass: parse.PhaseValues{
			Gas:   parse.Ptr(80.2),
			Oil:   parse.Ptr(122.5),
			Total: parse.Ptr(210.9),
		},
		PVTRefVol:      parse.PhaseValues{Total: parse.Ptr(130.1)},
		AvgPressureKPa: parse.Ptr(8140.2),
		FlowTimeMin:    parse.Ptr(60.0),
		SourceFormat:   domain.SourcePDF,
	}
	res := Canonicalize(Input{
		Fingerprint: "fp-1",
		Filename:    "B01_13FT0367_hourly.pdf",
		Shape:       domain.ShapeMPFMHourly,
		Records:     []parse.Record{rec},
	})

	require.Len(t, res.Facts, 1)
	fact := res.Facts[0]
	assert.Equal(t, "13FT0367", fact.AssetTag)
	assert.Equal(t, domain.ReportHourly, fact.ReportType)
	assert.Equal(t, "2024-05-10", fact.BusinessDate)
	assert.Equal(t, "fp-1", fact.RawFileFingerprint)
	require.NotNil(t, fact.Values["corrected_mass_oil_t"])
	assert.Equal(t, 122.5, *fact.Values["corrected_mass_oil_t"])
	require.NotNil(t, fact.Values["pvt_ref_vol_total_sm3"])
	assert.Nil(t, fact.Values["uncorrected_mass_gas_t"])

	byMetric := map[string]persistence.Observation{}
	for _, o := range res.Observations {
		byMetric[o.Metric] = o
	}
	oil, ok := byMetric["corrected_mass_oil_t"]
	require.True(t, ok)
	assert.Equal(t, domain.SourcePDF, oil.Source)
	assert.Equal(t, "07:00-08:00", oil.TimeWindow)
	assert.Equal(t, "t", oil.Unit)
	assert.Equal(t, 122.5, oil.Value)
	pressure, ok := byMetric["avg_pressure_kpa"]
	require.True(t, ok)
	assert.Equal(t, "kPa", pressure.Unit)

	require.Len(t, res.Assets, 1)
	asset := res.Assets[0]
	assert.Equal(t, string(domain.KindMPFM), asset.Kind)
	require.NotNil(t, asset.Bank)
	assert.Equal(t, "B01", *asset.Bank)
	assert.Nil(t, asset.Riser)
}

func TestCanonicalizeDailyProductionEndsAtMidnight(t *testing.T) {
	rec := &parse.ProductionRecord{
		AssetTag:      "13FT0368",
		ReportType:    domain.ReportDaily,
		PeriodStart:   time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
		CorrectedMass: parse.PhaseValues{Total: parse.Ptr(2988.1)},
		SourceFormat:  domain.SourceTXT,
	}
	res := Canonicalize(Input{Fingerprint: "fp-2", Records: []parse.Record{rec}})

	require.Len(t, res.Facts, 1)
	// A period closing exactly at midnight belongs to the day just finished.
	assert.Equal(t, "2024-05-10", res.Facts[0].BusinessDate)
	require.Len(t, res.Observations, 1)
	assert.Equal(t, "", res.Observations[0].TimeWindow)
	assert.Equal(t, domain.SourceTXT, res.Observations[0].Source)
}

func TestCanonicalizeCalibrationMapsKFactors(t *testing.T) {
	rec := &parse.CalibrationRecord{
		AssetTag:      "13FT0367",
		CalibrationNo: "CAL-2024-017",
		SelectedMPFM:  "MPFM-2",
		Status:        "APPROVED",
		WindowStart:   time.Date(2024, 5, 8, 6, 0, 0, 0, time.UTC),
		WindowEnd:     time.Date(2024, 5, 8, 18, 0, 0, 0, time.UTC),
		KFactors: []parse.KFactor{
			{Phase: domain.PhaseOil, Used: parse.Ptr(1.0012), New: parse.Ptr(1.0034)},
			{Phase: domain.PhaseWater, Used: parse.Ptr(0.9981), New: parse.Ptr(1.0102)},
		},
		Averages: []parse.AveragePair{
			{Label: "Average pressure", MPFM: parse.Ptr(8141.2), Separator: parse.Ptr(8139.8)},
		},
		Accumulated: []parse.AccumulatedMass{
			{Phase: domain.PhaseOil, MPFM: parse.Ptr(512.4), Separator: parse.Ptr(511.9)},
		},
		Flags: []string{"ignore_for_k_update"},
	}
	res := Canonicalize(Input{Fingerprint: "fp-3", Records: []parse.Record{rec}})

	require.Len(t, res.Calibrations, 1)
	cal := res.Calibrations[0]
	assert.Equal(t, "CAL-2024-017", cal.CalibrationNo)
	require.NotNil(t, cal.KUsedOil)
	assert.Equal(t, 1.0012, *cal.KUsedOil)
	require.NotNil(t, cal.KNewWater)
	assert.Equal(t, 1.0102, *cal.KNewWater)
	assert.Nil(t, cal.KUsedGas)
	require.NotNil(t, cal.WindowStart)
	require.Len(t, cal.Averages, 1)
	assert.Equal(t, "Average pressure", cal.Averages[0].Label)
	require.Len(t, cal.Accumulated, 1)
	assert.Equal(t, "oil", cal.Accumulated[0].Label)
	assert.Equal(t, []string{"ignore_for_k_update"}, cal.Flags)
	assert.Empty(t, res.Observations)
}

func TestCanonicalizeSheetDayBlock(t *testing.T) {
	rec := parse.SheetBlockRecord{
		Block:     "day",
		AssetTag:  "20FT1201",
		SheetName: "oil_daily",
		PeriodEnd: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
		Values: []parse.SheetValue{
			{Name: "mass_t", RawLabel: "Mass", Value: parse.Ptr(2988.1), Unit: "t"},
			{Name: "gross_std_volume_sm3", RawLabel: "Gross standard volume", Value: parse.Ptr(3120.4), Unit: "Sm³"},
			{Name: "energy_gj", RawLabel: "Energy", Value: nil, Unit: "GJ"},
			{Name: "avg_temperature_c", RawLabel: "Average temperature", Value: parse.Ptr(140.0), Unit: "F"},
		},
	}
	res := Canonicalize(Input{Fingerprint: "fp-4", Filename: "oil_daily.xlsx", Records: []parse.Record{rec}})

	require.Len(t, res.Observations, 2)
	for _, o := range res.Observations {
		assert.Equal(t, domain.SourceSpreadsheet, o.Source)
		assert.Equal(t, "2024-05-10", o.BusinessDate)
		assert.Equal(t, "", o.TimeWindow)
	}
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ERR_UNIT")
	assert.Contains(t, res.Warnings[0], "avg_temperature_c")
}

func TestCanonicalizeNamespacesCumulativeBlocks(t *testing.T) {
	records := []parse.Record{
		parse.SheetBlockRecord{
			Block:     "cumulative",
			AssetTag:  "20FT1201",
			PeriodEnd: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
			Values:    []parse.SheetValue{{Name: "mass_t", Value: parse.Ptr(91230.5)}},
		},
		parse.SheetBlockRecord{
			Block:     "fwa",
			AssetTag:  "20FT1201",
			PeriodEnd: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
			Values:    []parse.SheetValue{{Name: "avg_pressure_kpa", Value: parse.Ptr(8140.2)}},
		},
	}
	res := Canonicalize(Input{Fingerprint: "fp-5", Records: records})

	require.Len(t, res.Observations, 2)
	assert.Equal(t, "cum_mass_t", res.Observations[0].Metric)
	assert.Equal(t, "fwa_avg_pressure_kpa", res.Observations[1].Metric)
}

func TestCanonicalizeSheetDateFallsBackToFilename(t *testing.T) {
	rec := parse.SheetBlockRecord{
		Block:    "day",
		AssetTag: "20FT1201",
		Values:   []parse.SheetValue{{Name: "mass_t", Value: parse.Ptr(10.0)}},
	}
	res := Canonicalize(Input{
		Fingerprint: "fp-6",
		Filename:    "oil_report_2024-05-10.xlsx",
		Records:     []parse.Record{rec},
	})

	require.Len(t, res.Observations, 1)
	assert.Equal(t, "2024-05-10", res.Observations[0].BusinessDate)
}

func TestCanonicalizeGasBalance(t *testing.T) {
	rec := parse.GasBalanceRecord{
		SheetName: "gas_balance",
		PeriodEnd: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
		Lines: []parse.GasBalanceLine{
			{Order: 1, Sign: "+", Description: "Export riser", Flowrate: parse.Ptr(1250.5)},
			{Order: 2, Sign: "-", Description: "Fuel gas", Flowrate: parse.Ptr(81.2), PD: parse.Ptr(0.4)},
			{Order: 3, Sign: "TOTAL", Description: "Balance", Flowrate: parse.Ptr(1169.3)},
		},
	}
	res := Canonicalize(Input{Fingerprint: "fp-7", Records: []parse.Record{rec}})

	require.Len(t, res.GasBalance, 3)
	assert.Equal(t, "fp-7", res.GasBalance[0].RawFileFingerprint)
	assert.Equal(t, "2024-05-10", res.GasBalance[0].BusinessDate)
	assert.Equal(t, "TOTAL", res.GasBalance[2].Sign)
	assert.Empty(t, res.Observations)
}

func TestCanonicalizeRegulatoryMergesSameAsset(t *testing.T) {
	first := &parse.RegulatoryRecord{
		XMLShape: domain.ShapeXML002,
		AssetTag: "EMED-001",
		Config: &parse.FlowComputerConfig{
			CollectedAt:    time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC),
			AtmosphericKPa: parse.Ptr(101.3),
		},
		MeterFactors: []parse.MeterFactorPoint{
			{Index: 1, Factor: parse.Ptr(1.0012), Pulses: parse.Ptr(12500.0)},
		},
	}
	second := &parse.RegulatoryRecord{
		XMLShape: domain.ShapeXML002,
		AssetTag: "EMED-001",
		Periods: []parse.ProductionPeriod{
			{
				Start:             time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
				End:               time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC),
				FlowDurationHours: parse.Ptr(23.0),
				GrossVolumeM3:     parse.Ptr(3150.0),
				CorrectedVolumeM3: parse.Ptr(3120.4),
			},
			{
				Start:         time.Date(2024, 5, 11, 6, 0, 0, 0, time.UTC),
				End:           time.Date(2024, 5, 11, 7, 0, 0, 0, time.UTC),
				GrossVolumeM3: parse.Ptr(131.0),
			},
		},
	}
	res := Canonicalize(Input{Fingerprint: "fp-8", Records: []parse.Record{first, second}})

	require.Len(t, res.Regulatory, 1)
	bundle := res.Regulatory[0]
	assert.Equal(t, "EMED-001", bundle.AssetTag)
	require.NotNil(t, bundle.Config)
	require.Len(t, bundle.MeterFactors, 1)
	require.Len(t, bundle.Periods, 2)
	assert.Equal(t, 1, bundle.Periods[0].Seq)
	assert.Equal(t, 2, bundle.Periods[1].Seq)
	assert.Equal(t, "2024-05-10", bundle.Periods[0].BusinessDate)

	byKey := map[string]persistence.Observation{}
	for _, o := range res.Observations {
		byKey[o.Metric+"|"+o.TimeWindow] = o
	}
	std, ok := byKey["gross_std_volume_sm3|"]
	require.True(t, ok)
	assert.Equal(t, domain.SourceXML, std.Source)
	assert.Equal(t, 3120.4, std.Value)
	flow, ok := byKey["flow_time_min|"]
	require.True(t, ok)
	assert.Equal(t, 1380.0, flow.Value)
	hourly, ok := byKey["gross_volume_m3|06:00-07:00"]
	require.True(t, ok)
	assert.Equal(t, "2024-05-11", hourly.BusinessDate)
}

func TestCanonicalizeAlarmEvents(t *testing.T) {
	rec := &parse.AlarmRecord{
		Installation: "P-74",
		AssetTag:     "EMED-002",
		Alarms: []parse.AlarmEvent{
			{Timestamp: time.Date(2024, 5, 10, 3, 12, 0, 0, time.UTC), Parameter: "PRESSURE_HI", Value: "8200"},
		},
		Events: []parse.AuditEvent{
			{Timestamp: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), Parameter: "K_FACTOR", OldValue: "1.0012", NewValue: "1.0034"},
		},
	}
	res := Canonicalize(Input{Fingerprint: "fp-9", Records: []parse.Record{rec}})

	require.Len(t, res.Regulatory, 1)
	bundle := res.Regulatory[0]
	require.Len(t, bundle.Alarms, 1)
	assert.Equal(t, "PRESSURE_HI", bundle.Alarms[0].Parameter)
	require.Len(t, bundle.Audits, 1)
	assert.Equal(t, "1.0034", bundle.Audits[0].NewValue)
	assert.Empty(t, res.Facts)
}

func TestCanonicalizeDropsRecordsWithoutKeys(t *testing.T) {
	records := []parse.Record{
		&parse.ProductionRecord{PeriodEnd: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)},
		&parse.ProductionRecord{AssetTag: "13FT0367"},
		&parse.CalibrationRecord{AssetTag: "13FT0367"},
	}
	res := Canonicalize(Input{Fingerprint: "fp-10", Filename: "x.pdf", Records: records})

	assert.Empty(t, res.Facts)
	assert.Empty(t, res.Calibrations)
	assert.Len(t, res.Warnings, 3)
}

func TestAssetDatesAreDistinctAndSorted(t *testing.T) {
	res := &Result{
		Facts: []persistence.ProductionFact{
			{AssetTag: "B", BusinessDate: "2024-05-10"},
			{AssetTag: "A", BusinessDate: "2024-05-11"},
		},
		Observations: []persistence.Observation{
			{AssetTag: "B", BusinessDate: "2024-05-10"},
			{AssetTag: "A", BusinessDate: "2024-05-10"},
		},
	}
	got := res.AssetDates()
	want := []persistence.AssetDate{
		{AssetTag: "A", BusinessDate: "2024-05-10"},
		{AssetTag: "A", BusinessDate: "2024-05-11"},
		{AssetTag: "B", BusinessDate: "2024-05-10"},
	}
	assert.Equal(t, want, got)
}

func TestDimensionMismatch(t *testing.T) {
	bank1, bank2 := "B01", "B02"
	stored := persistence.Asset{Tag: "13FT0367", Kind: "MPFM", Bank: &bank1}
	candidate := persistence.Asset{Tag: "13FT0367", Kind: "MPFM", Bank: &bank2}

	msg := DimensionMismatch(stored, candidate)
	assert.Contains(t, msg, "13FT0367")
	assert.Contains(t, msg, `bank "B01" kept over "B02"`)

	assert.Empty(t, DimensionMismatch(stored, stored))
	// A candidate stating a dimension the store lacks is absence, not a
	// mismatch.
	assert.Empty(t, DimensionMismatch(persistence.Asset{Tag: "13FT0367"}, candidate))
}
