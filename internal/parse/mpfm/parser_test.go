package mpfm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

func writeReport(t *testing.T, name, content string) parse.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return parse.File{Path: path, Name: name}
}

const hourlyReport = `MPFM Measurement Report
Hourly report from 2024.05.01 06:00 to 2024.05.01 07:00
Stream 2

                                 Gas      Oil     HC       Water   Total
MPFM Uncorrected Mass            12.30    4.50    16.80    0.20    17.00
MPFM Corrected Mass              12.10    4.40    16.50    0.20    16.70
PVT Reference Mass               12.00    4.40    16.40    0.20    16.60
PVT Reference Volume             310.00   5.10    315.10   0.20    315.30
PVT Reference Mass [@20 degC]    11.90    4.30    16.20    0.20    16.40
PVT Reference Volume [@20 degC]  309.00   5.00    314.00   0.20    314.20

Average Pressure      5234.1 kPa
Average Temperature   62.1 degC
Gas Density           0.85 kg/m3
Oil Density           812.4 kg/m3
Water Density         1020.0 kg/m3
Flow Time             60 min
`

func TestParseHourlyReport(t *testing.T) {
	file := writeReport(t, "MPFM_Hourly_13FT0367_B01_20240501.txt", hourlyReport)
	file.Shape = domain.ShapeMPFMHourly

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 1)
	assert.Empty(t, out.Warnings)

	rec, ok := out.Records[0].(*parse.ProductionRecord)
	require.True(t, ok)

	assert.Equal(t, "13FT0367", rec.AssetTag)
	assert.Equal(t, "B01", rec.Bank)
	assert.Equal(t, "2", rec.Stream)
	assert.Equal(t, domain.ReportHourly, rec.ReportType)
	assert.Equal(t, time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), rec.PeriodStart)
	assert.Equal(t, time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), rec.PeriodEnd)
	assert.Equal(t, domain.SourceTXT, rec.SourceFormat)

	require.NotNil(t, rec.UncorrectedMass.Gas)
	assert.InDelta(t, 12.30, *rec.UncorrectedMass.Gas, 1e-9)
	require.NotNil(t, rec.CorrectedMass.Total)
	assert.InDelta(t, 16.70, *rec.CorrectedMass.Total, 1e-9)
	require.NotNil(t, rec.PVTRefMass.Oil)
	assert.InDelta(t, 4.40, *rec.PVTRefMass.Oil, 1e-9)
	require.NotNil(t, rec.PVTRefVol.Gas)
	assert.InDelta(t, 310.00, *rec.PVTRefVol.Gas, 1e-9)
	require.NotNil(t, rec.PVTRefMass20C.Gas)
	assert.InDelta(t, 11.90, *rec.PVTRefMass20C.Gas, 1e-9)
	require.NotNil(t, rec.PVTRefVol20C.Water)
	assert.InDelta(t, 0.20, *rec.PVTRefVol20C.Water, 1e-9)

	require.NotNil(t, rec.AvgPressureKPa)
	assert.InDelta(t, 5234.1, *rec.AvgPressureKPa, 1e-9)
	require.NotNil(t, rec.AvgTemperatureC)
	assert.InDelta(t, 62.1, *rec.AvgTemperatureC, 1e-9)
	require.NotNil(t, rec.DensityOilKgM3)
	assert.InDelta(t, 812.4, *rec.DensityOilKgM3, 1e-9)
	require.NotNil(t, rec.FlowTimeMin)
	assert.InDelta(t, 60, *rec.FlowTimeMin, 1e-9)
}

const dailyMultiRiser = `Daily report from 01.05.2024 06:00 to 02.05.2024 06:00
Bank 3

Riser A1 - 13FT0367
MPFM Corrected Mass   100.00   50.00   150.00   2.00   152.00
Average Pressure      5100.0 kPa

Riser B2 - 13FT0368A
MPFM Corrected Mass   90.00    45.00   135.00   1.50   136.50
`

func TestParseDailyMultiRiser(t *testing.T) {
	file := writeReport(t, "MPFM_Daily_20240501.txt", dailyMultiRiser)
	file.Shape = domain.ShapeMPFMDaily

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Len(t, out.Records, 2)

	first := out.Records[0].(*parse.ProductionRecord)
	assert.Equal(t, "13FT0367", first.AssetTag)
	assert.Equal(t, "A1", first.Riser)
	assert.Equal(t, "B03", first.Bank)
	assert.Equal(t, domain.ReportDaily, first.ReportType)
	require.NotNil(t, first.CorrectedMass.Gas)
	assert.InDelta(t, 100.0, *first.CorrectedMass.Gas, 1e-9)
	require.NotNil(t, first.AvgPressureKPa)
	assert.InDelta(t, 5100.0, *first.AvgPressureKPa, 1e-9)

	second := out.Records[1].(*parse.ProductionRecord)
	assert.Equal(t, "13FT0368A", second.AssetTag)
	assert.Equal(t, "B2", second.Riser)
	require.NotNil(t, second.CorrectedMass.Water)
	assert.InDelta(t, 1.50, *second.CorrectedMass.Water, 1e-9)
	assert.Nil(t, second.AvgPressureKPa)
}

func TestParseRequiresPeriodLine(t *testing.T) {
	file := writeReport(t, "MPFM_Hourly_13FT0367.txt", "MPFM Measurement Report\nMPFM Corrected Mass 1 2 3 4 5\n")
	file.Shape = domain.ShapeMPFMHourly

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Empty(t, out.Records)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "report period")
}

func TestParseRiserWithoutBanksIsWarned(t *testing.T) {
	text := `Daily report from 01.05.2024 06:00 to 02.05.2024 06:00

Riser A1 - 13FT0367
MPFM Corrected Mass   100.00   50.00   150.00   2.00   152.00

Riser B2 - 13FT0368
Average Pressure 5100.0 kPa
`
	file := writeReport(t, "MPFM_Daily_20240501.txt", text)
	file.Shape = domain.ShapeMPFMDaily

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "13FT0367", out.Records[0].(*parse.ProductionRecord).AssetTag)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "13FT0368")
}

func TestParseShortBankRowFillsFromLeft(t *testing.T) {
	text := `Hourly report from 2024.05.01 06:00 to 2024.05.01 07:00
MPFM Corrected Mass   12.10   4.40
`
	file := writeReport(t, "MPFM_Hourly_13FT0367.txt", text)
	file.Shape = domain.ShapeMPFMHourly

	out, err := New().Parse(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	rec := out.Records[0].(*parse.ProductionRecord)
	require.NotNil(t, rec.CorrectedMass.Gas)
	assert.InDelta(t, 12.10, *rec.CorrectedMass.Gas, 1e-9)
	require.NotNil(t, rec.CorrectedMass.Oil)
	assert.Nil(t, rec.CorrectedMass.HC)
	assert.Nil(t, rec.CorrectedMass.Water)
	assert.Nil(t, rec.CorrectedMass.Total)
}

func TestFindPeriodLayouts(t *testing.T) {
	cases := []struct {
		name string
		line string
		want time.Time
	}{
		{"dotted ymd", "Hourly report from 2024.05.01 06:00 to 2024.05.01 07:00", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
		{"dotted dmy", "Daily report from 01.05.2024 06:00 to 02.05.2024 06:00", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
		{"iso seconds", "Hourly report from 2024-05-01 06:00:00 to 2024-05-01 07:00:00", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
		{"slashed dmy", "Daily report from 01/05/2024 06:00 to 02/05/2024 06:00", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, start, _, ok := findPeriod(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.want, start)
		})
	}
}

func TestFindBankSources(t *testing.T) {
	assert.Equal(t, "B01", findBank("MPFM_13FT0367_B01_x.txt", ""))
	assert.Equal(t, "B07", findBank("no-hint.txt", "measured on bank 7 today"))
	assert.Equal(t, "", findBank("no-hint.txt", "no hints here"))
}
