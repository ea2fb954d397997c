package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

func TestDetectByFilename(t *testing.T) {
	cases := []struct {
		name string
		want domain.Shape
	}{
		{"submission_2024-05-01.zip", domain.ShapeBatchArchive},
		{"001_33000167_20240501120000_PLT01.xml", domain.ShapeXML001},
		{"002_33000167_20240501120000_PLT01.xml", domain.ShapeXML002},
		{"003_33000167_20240501120000_PLT01.xml", domain.ShapeXML003},
		{"004_33000167_20240501120000_PLT01.xml", domain.ShapeXML004},
		{"005_33000167_20240501120000_PLT01.xml", domain.ShapeUnknown},
		{"MPFM_B02_hourly_2024-05-01_13.pdf", domain.ShapeMPFMHourly},
		{"mpfm_daily_13FT0367_20240501.txt", domain.ShapeMPFMDaily},
		{"PVTCalibration_No_42.pdf", domain.ShapeMPFMPVTCalibration},
		{"daily_oil_report_2024-05-01.xlsx", domain.ShapeSpreadsheetDailyOil},
		{"daily_gas_report_2024-05-01.xlsx", domain.ShapeSpreadsheetDailyGas},
		{"daily_water_report_2024-05-01.xlsx", domain.ShapeSpreadsheetDailyWater},
		{"GasBalance_2024-05-01.xlsx", domain.ShapeSpreadsheetGasBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.name, nil))
		})
	}
}

func TestDetectByContent(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		want    domain.Shape
	}{
		{"hourly report", "report_13.pdf", "MPFM Hourly Report from 2024.05.01 13:00 to 2024.05.01 14:00", domain.ShapeMPFMHourly},
		{"daily report", "report.txt", "Daily Report from 2024.05.01 00:00 to 2024.05.02 00:00", domain.ShapeMPFMDaily},
		{"calibration", "cal.pdf", "Calibration No: 42\nSelected MPFM: B02", domain.ShapeMPFMPVTCalibration},
		{"gas balance sheet", "workbook.xlsx", "Gas Balance\nSign Description Flowrate PD", domain.ShapeSpreadsheetGasBalance},
		{"oil daily sheet", "workbook.xlsx", "Cumulative Totals for oil_2024\n13FT0367", domain.ShapeSpreadsheetDailyOil},
		{"water daily sheet", "workbook.xlsx", "Day Totals water_stream", domain.ShapeSpreadsheetDailyWater},
		{"unprefixed xml by root", "meter-dump.xml", `<?xml version="1.0"?><a003><LISTA_DADOS_BASICOS/></a003>`, domain.ShapeXML003},
		{"xml without submission root", "meter-dump.xml", `<metering><row/></metering>`, domain.ShapeUnknown},
		{"unknown", "data.bin", "nothing recognizable", domain.ShapeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(tc.file, func() (string, error) { return tc.content, nil })
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetectSniffDeterministic(t *testing.T) {
	calls := 0
	sniff := func() (string, error) {
		calls++
		return "hourly report from 2024.05.01 13:00 to 14:00", nil
	}
	first := Detect("scan_output.pdf", sniff)
	second := Detect("scan_output.pdf", sniff)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.ShapeMPFMHourly, first)
	assert.Equal(t, 2, calls)
}

func TestDetectSniffErrorFallsBackToUnknown(t *testing.T) {
	got := Detect("mystery.pdf", func() (string, error) { return "", errors.New("unreadable") })
	assert.Equal(t, domain.ShapeUnknown, got)
}

func TestFilenameRulesWinOverContent(t *testing.T) {
	// filename says hourly even if the sniff would say daily
	got := Detect("mpfm_hourly_x.pdf", func() (string, error) {
		return "daily report from 2024.05.01 to 2024.05.02", nil
	})
	assert.Equal(t, domain.ShapeMPFMHourly, got)
}
