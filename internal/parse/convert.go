package parse

import (
	"strconv"
	"strings"
	"time"
)

// absent markers seen across spreadsheet exports and report dumps.
var nullStrings = map[string]bool{
	"":      true,
	"-":     true,
	"n/a":   true,
	"#ref!": true,
	"null":  true,
	"none":  true,
}

// Number parses a numeric token accepting either decimal separator and
// optional thousands grouping. Returns (nil, true) for recognized absent
// markers and (nil, false) for malformed input.
func Number(raw string) (*float64, bool) {
	s := strings.TrimSpace(raw)
	if nullStrings[strings.ToLower(s)] {
		return nil, true
	}
	s = strings.ReplaceAll(s, " ", "")

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// the later separator is the decimal mark
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// timestamp layouts observed across MPFM report vendors, oldest first.
var timeLayouts = []string{
	"2006.01.02 15:04",
	"02.01.2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	time.RFC3339,
}

// Timestamp parses a report timestamp trying each known layout.
func Timestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RegulatorDate parses the regulator date format DD/MM/YYYY with an
// optional HH:MM:SS time part.
func RegulatorDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"02/01/2006 15:04:05", "02/01/2006 15:04", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Ptr returns a pointer to v; a convenience for literal record fields.
func Ptr(v float64) *float64 { return &v }
