package sheet

import (
	"regexp"
	"strings"
)

// lexicon maps spreadsheet row labels to canonical metric names. Lookup is
// by normalized prefix so decorated labels ("Gross standard volume (net)")
// still resolve. Unknown labels degrade to snake_case of the raw text.
var lexicon = []struct {
	label  string
	metric string
}{
	{"gross standard volume", "gross_std_volume_sm3"},
	{"net standard volume", "net_std_volume_sm3"},
	{"gross volume", "gross_volume_m3"},
	{"net volume", "net_volume_m3"},
	{"standard volume", "std_volume_sm3"},
	{"corrected mass", "corrected_mass_total_t"},
	{"uncorrected mass", "uncorrected_mass_total_t"},
	{"mass flow", "mass_flow_th"},
	{"mass", "mass_t"},
	{"energy", "energy_gj"},
	{"flow time", "flow_time_min"},
	{"average pressure", "avg_pressure_kpa"},
	{"average temperature", "avg_temperature_c"},
	{"pressure", "avg_pressure_kpa"},
	{"temperature", "avg_temperature_c"},
	{"density", "density_kgm3"},
	{"bsw", "bsw_pct"},
	{"water cut", "water_cut_pct"},
	{"gor", "gor_sm3_sm3"},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalName resolves a raw row label to its canonical metric name.
func CanonicalName(rawLabel string) string {
	norm := normalizeLabel(rawLabel)
	for _, e := range lexicon {
		if strings.HasPrefix(norm, e.label) {
			return e.metric
		}
	}
	return snakeCase(norm)
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ":")
	return strings.Join(strings.Fields(s), " ")
}

func snakeCase(s string) string {
	s = nonAlnum.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}
