package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarmonizeConvertsIntoCanonicalUnits(t *testing.T) {
	cases := []struct {
		name   string
		metric string
		value  float64
		unit   string
		want   float64
	}{
		{name: "mass passthrough", metric: "mass_t", value: 2988.1, unit: "t", want: 2988.1},
		{name: "kilograms to tonnes", metric: "corrected_mass_total_t", value: 1234.0, unit: "kg", want: 1.234},
		{name: "volume with superscript", metric: "gross_std_volume_sm3", value: 3120.4, unit: "Sm³", want: 3120.4},
		{name: "plain cubic metres serve standard volume", metric: "gross_std_volume_sm3", value: 10.0, unit: "m3", want: 10.0},
		{name: "hours to minutes", metric: "flow_time_min", value: 23.5, unit: "h", want: 1410},
		{name: "bar to kilopascal", metric: "avg_pressure_kpa", value: 81.4, unit: "bar", want: 8140},
		{name: "megajoule to gigajoule", metric: "energy_gj", value: 1500, unit: "MJ", want: 1.5},
		{name: "celsius with degree sign", metric: "avg_temperature_c", value: 62.1, unit: "°C", want: 62.1},
		{name: "gor ratio", metric: "gor_sm3_sm3", value: 110.2, unit: "Sm³/Sm³", want: 110.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Harmonize(tc.metric, tc.value, tc.unit)
			require.True(t, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestHarmonizeRejectsForeignUnits(t *testing.T) {
	_, ok := Harmonize("mass_t", 1.0, "m3")
	assert.False(t, ok)

	_, ok = Harmonize("avg_temperature_c", 80.0, "F")
	assert.False(t, ok)

	_, ok = Harmonize("avg_pressure_kpa", 12.0, "psi")
	assert.False(t, ok)
}

func TestHarmonizeTrustsBlankUnit(t *testing.T) {
	got, ok := Harmonize("mass_t", 42.0, "")
	require.True(t, ok)
	assert.Equal(t, 42.0, got)
}

func TestHarmonizeKeepsUnknownFamilies(t *testing.T) {
	// Labels outside the lexicon degrade to snake_case names with no unit
	// suffix; their stated value is kept as-is.
	got, ok := Harmonize("sand_rate", 42.0, "g/s")
	require.True(t, ok)
	assert.Equal(t, 42.0, got)
}

func TestCanonicalUnit(t *testing.T) {
	cases := map[string]string{
		"mass_t":               "t",
		"corrected_mass_oil_t": "t",
		"gross_std_volume_sm3": "Sm3",
		"gross_volume_m3":      "m3",
		"gor_sm3_sm3":          "Sm3/Sm3",
		"energy_gj":            "GJ",
		"flow_time_min":        "min",
		"avg_pressure_kpa":     "kPa",
		"avg_temperature_c":    "degC",
		"density_kgm3":         "kg/m3",
		"bsw_pct":              "%",
		"mass_flow_th":         "t/h",
		"sand_rate":            "",
	}
	for metric, want := range cases {
		assert.Equal(t, want, CanonicalUnit(metric), metric)
	}
}
