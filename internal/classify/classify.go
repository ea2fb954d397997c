// Package classify assigns each input file a report shape from filename
// conventions first and content sniffing second.
package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/domain"
)

// SniffFunc lazily supplies the first text page (or first sheet text) of a
// file for content-based detection. It is only invoked when filename rules
// are inconclusive, and must be deterministic for a given file.
type SniffFunc func() (string, error)

var (
	xmlPrefixRe = regexp.MustCompile(`^(00[1-4])_`)
	xmlRootRe   = regexp.MustCompile(`(?i)<a(00[1-4])[\s>]`)

	reHourlyReport = regexp.MustCompile(`(?i)hourly\s+report\s+from`)
	reDailyReport  = regexp.MustCompile(`(?i)daily\s+report\s+from`)
	reCalibration  = regexp.MustCompile(`(?i)calibration\s+no|selected\s+mpfm|mass\s+correction\s+factors`)
	reGasBalance   = regexp.MustCompile(`(?i)gas\s+balance`)
	reCumulative   = regexp.MustCompile(`(?i)cumulative\s+totals|day\s+totals`)
)

var archiveExts = map[string]bool{".zip": true}

// Detect classifies a file. Rules run in order, first match wins; when no
// filename rule applies the optional sniff callback decides.
func Detect(filename string, sniff SniffFunc) domain.Shape {
	base := filepath.Base(filename)
	lower := strings.ToLower(base)
	ext := filepath.Ext(lower)

	if archiveExts[ext] {
		return domain.ShapeBatchArchive
	}

	if ext == ".xml" {
		if m := xmlPrefixRe.FindStringSubmatch(base); m != nil {
			return xmlShape(m[1])
		}
		// No filename prefix; the root element still names the shape.
		if sniff != nil {
			if text, err := sniff(); err == nil {
				if m := xmlRootRe.FindStringSubmatch(text); m != nil {
					return xmlShape(m[1])
				}
			}
		}
		return domain.ShapeUnknown
	}

	if strings.Contains(lower, "mpfm") {
		switch {
		case strings.Contains(lower, "hourly"):
			return domain.ShapeMPFMHourly
		case strings.Contains(lower, "daily"):
			return domain.ShapeMPFMDaily
		}
	}
	if strings.Contains(lower, "pvtcalibration") {
		return domain.ShapeMPFMPVTCalibration
	}
	switch {
	case strings.Contains(lower, "daily_oil"):
		return domain.ShapeSpreadsheetDailyOil
	case strings.Contains(lower, "daily_gas"):
		return domain.ShapeSpreadsheetDailyGas
	case strings.Contains(lower, "daily_water"):
		return domain.ShapeSpreadsheetDailyWater
	case strings.Contains(lower, "gasbalance"):
		return domain.ShapeSpreadsheetGasBalance
	}

	if sniff == nil {
		return domain.ShapeUnknown
	}
	text, err := sniff()
	if err != nil || text == "" {
		return domain.ShapeUnknown
	}
	return detectByContent(text)
}

func xmlShape(digits string) domain.Shape {
	switch digits {
	case "001":
		return domain.ShapeXML001
	case "002":
		return domain.ShapeXML002
	case "003":
		return domain.ShapeXML003
	case "004":
		return domain.ShapeXML004
	}
	return domain.ShapeUnknown
}

// detectByContent applies the report-header regexes to a text sample.
func detectByContent(text string) domain.Shape {
	switch {
	case reHourlyReport.MatchString(text):
		return domain.ShapeMPFMHourly
	case reDailyReport.MatchString(text):
		return domain.ShapeMPFMDaily
	case reCalibration.MatchString(text):
		return domain.ShapeMPFMPVTCalibration
	case reGasBalance.MatchString(text):
		return domain.ShapeSpreadsheetGasBalance
	case reCumulative.MatchString(text):
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "water"):
			return domain.ShapeSpreadsheetDailyWater
		case strings.Contains(lower, "gas"):
			return domain.ShapeSpreadsheetDailyGas
		default:
			return domain.ShapeSpreadsheetDailyOil
		}
	}
	return domain.ShapeUnknown
}
