package domain

import (
	"regexp"
	"time"
)

// Asset-tag grammar: two digits, two letters, four digits, optional A/B
// train suffix, e.g. 13FT0367 or 20PT1201A.
var tagExact = regexp.MustCompile(`^\d{2}[A-Z]{2}\d{4}[A-B]?$`)

// tagAnywhere matches the tag grammar inside a longer string.
var tagAnywhere = regexp.MustCompile(`\d{2}[A-Z]{2}\d{4}[A-B]?`)

// IsAssetTag reports whether s is exactly an asset tag.
func IsAssetTag(s string) bool {
	return tagExact.MatchString(s)
}

// FindAssetTag extracts the first asset tag embedded in s, or "".
func FindAssetTag(s string) string {
	return tagAnywhere.FindString(s)
}

var fileDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[-_.]?(\d{2})[-_.]?(\d{2})`),
	regexp.MustCompile(`(\d{2})[-_.](\d{2})[-_.](\d{4})`),
}

// FindFileDate extracts a calendar date embedded in a filename.
// Accepts YYYYMMDD (with optional separators) and DD-MM-YYYY forms.
func FindFileDate(name string) (time.Time, bool) {
	if m := fileDatePatterns[0].FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("20060102", m[1]+m[2]+m[3]); err == nil {
			return t, true
		}
	}
	if m := fileDatePatterns[1].FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("20060102", m[3]+m[2]+m[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BusinessDate is the local calendar date of a period's end instant.
// A period ending exactly at midnight belongs to the day just finished.
func BusinessDate(periodEnd time.Time) time.Time {
	d := periodEnd
	if d.Hour() == 0 && d.Minute() == 0 && d.Second() == 0 {
		d = d.Add(-time.Second)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// DateKey formats a date for natural keys and logs.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
