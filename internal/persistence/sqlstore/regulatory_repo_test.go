package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestRegulatoryReplaceForFileClearsAllSideTables(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRegulatoryRepo(db, time.Second)

	mock.ExpectBegin()
	for _, table := range []string{
		"flow_computer_configs", "meter_factors", "instruments",
		"xml_periods", "alarms", "audits",
	} {
		mock.ExpectExec("DELETE FROM " + table).
			WithArgs("fp-1", "EMED-001").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	mock.ExpectExec("INSERT INTO flow_computer_configs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	factors := mock.ExpectPrepare("INSERT INTO meter_factors")
	factors.ExpectExec().
		WithArgs("fp-1", "EMED-001", 1, 1.0012, 12500.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	periods := mock.ExpectPrepare("INSERT INTO xml_periods")
	periods.ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	collected := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	err := repo.ReplaceForFile(context.Background(), persistence.RegulatoryBundle{
		RawFileFingerprint: "fp-1",
		AssetTag:           "EMED-001",
		Config: &persistence.FlowComputerConfigRow{
			CollectedAt:     &collected,
			SoftwareVersion: "v4.1.2",
		},
		MeterFactors: []persistence.MeterFactorRow{
			{RawFileFingerprint: "fp-1", AssetTag: "EMED-001", Idx: 1,
				Factor: parse.Ptr(1.0012), Pulses: parse.Ptr(12500.0)},
		},
		Periods: []persistence.XMLPeriodRow{
			{RawFileFingerprint: "fp-1", AssetTag: "EMED-001", Seq: 0,
				PeriodStart: &start, PeriodEnd: &end, BusinessDate: "2024-05-01",
				NetVolumeM3: parse.Ptr(1887.2)},
		},
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegulatoryListPeriodsFiltersRange(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRegulatoryRepo(db, time.Second)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"raw_file_fingerprint", "asset_tag", "seq", "period_start", "period_end",
		"business_date", "flow_duration_hours", "gross_volume_m3", "net_volume_m3",
		"corrected_volume_m3", "totalizer_start", "totalizer_end", "bsw_pct",
		"relative_density", "static_pressure_kpa", "temperature_c", "diff_pressure_kpa",
		"ctl", "cpl", "ctpl", "meter_factor",
	}).AddRow("fp-1", "EMED-001", 0, start, start.Add(24*time.Hour),
		"2024-05-01", 23.8, nil, 1887.2, nil, nil, nil, 0.35,
		nil, nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("FROM xml_periods").
		WithArgs("EMED-001", "2024-05-01", "2024-05-31").
		WillReturnRows(rows)

	periods, err := repo.ListPeriods(context.Background(), "EMED-001",
		persistence.DateRange{From: "2024-05-01", To: "2024-05-31"})
	require.NoError(t, err)

	require.Len(t, periods, 1)
	require.NotNil(t, periods[0].NetVolumeM3)
	assert.InDelta(t, 1887.2, *periods[0].NetVolumeM3, 1e-9)
	require.NotNil(t, periods[0].BSWPct)
	assert.Nil(t, periods[0].MeterFactor)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegulatoryListInstruments(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRegulatoryRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{
		"raw_file_fingerprint", "asset_tag", "seq", "kind", "serial",
		"type_code", "manufacturer", "model", "limit_low", "limit_high",
		"last_calibration", "uncertainty",
	}).
		AddRow("fp-2", "EMED-001", 0, "pressure", "PT-5521", "1", "Emerson", "3051S",
			0.0, 10000.0, nil, 0.04).
		AddRow("fp-2", "EMED-001", 1, "temperature", "TT-2210", "2", "Emerson", "644",
			-20.0, 120.0, nil, 0.1)
	mock.ExpectQuery("FROM instruments").
		WithArgs("EMED-001").
		WillReturnRows(rows)

	instruments, err := repo.ListInstruments(context.Background(), "EMED-001")
	require.NoError(t, err)

	require.Len(t, instruments, 2)
	assert.Equal(t, "pressure", instruments[0].Kind)
	assert.Equal(t, "temperature", instruments[1].Kind)
	require.NotNil(t, instruments[1].LimitLow)
	assert.InDelta(t, -20.0, *instruments[1].LimitLow, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}
