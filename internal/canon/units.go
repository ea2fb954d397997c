package canon

import "strings"

// family groups metrics that share a canonical unit and conversion table.
// Scale factors convert a stated unit into the canonical one.
type family struct {
	suffix string
	unit   string
	scale  map[string]float64
}

// families is ordered: the first matching suffix wins, so the ratio entry
// must precede the bare volume suffix it ends with.
var families = []family{
	{suffix: "_sm3_sm3", unit: "Sm3/Sm3", scale: map[string]float64{"sm3/sm3": 1, "m3/m3": 1}},
	{suffix: "_t", unit: "t", scale: map[string]float64{"t": 1, "ton": 1, "tonne": 1, "tonnes": 1, "mt": 1, "kg": 0.001}},
	{suffix: "_sm3", unit: "Sm3", scale: map[string]float64{"sm3": 1, "m3": 1}},
	{suffix: "_kgm3", unit: "kg/m3", scale: map[string]float64{"kg/m3": 1, "kg/sm3": 1, "g/cm3": 1000}},
	{suffix: "_m3", unit: "m3", scale: map[string]float64{"m3": 1, "sm3": 1}},
	{suffix: "_gj", unit: "GJ", scale: map[string]float64{"gj": 1, "mj": 0.001, "mwh": 3.6, "kwh": 0.0036}},
	{suffix: "_min", unit: "min", scale: map[string]float64{"min": 1, "mins": 1, "minutes": 1, "h": 60, "hr": 60, "hrs": 60, "hours": 60, "s": 1.0 / 60, "sec": 1.0 / 60}},
	{suffix: "_kpa", unit: "kPa", scale: map[string]float64{"kpa": 1, "bar": 100, "bara": 100, "mpa": 1000, "pa": 0.001}},
	{suffix: "_c", unit: "degC", scale: map[string]float64{"c": 1, "degc": 1, "celsius": 1}},
	{suffix: "_pct", unit: "%", scale: map[string]float64{"%": 1, "pct": 1, "percent": 1}},
	{suffix: "_th", unit: "t/h", scale: map[string]float64{"t/h": 1, "kg/h": 0.001}},
}

// CanonicalUnit returns the storage unit for a canonical metric name, or ""
// for metrics outside the known unit families.
func CanonicalUnit(metric string) string {
	if f := familyOf(metric); f != nil {
		return f.unit
	}
	return ""
}

// Harmonize converts a stated value into the metric's canonical unit.
// A blank unit statement is trusted as already canonical, and metrics
// outside the known families keep their stated value. Units the family
// cannot convert report ok=false and the value must be dropped; temperature
// only accepts Celsius because offset scales do not convert by a factor.
func Harmonize(metric string, value float64, unit string) (float64, bool) {
	norm := normalizeUnit(unit)
	if norm == "" {
		return value, true
	}
	f := familyOf(metric)
	if f == nil {
		return value, true
	}
	scale, ok := f.scale[norm]
	if !ok {
		return 0, false
	}
	return value * scale, true
}

func familyOf(metric string) *family {
	for i := range families {
		if strings.HasSuffix(metric, families[i].suffix) {
			return &families[i]
		}
	}
	return nil
}

// normalizeUnit lowers and strips decoration so "Sm³", "sm3" and "SM 3"
// collapse to one spelling.
func normalizeUnit(unit string) string {
	s := strings.ToLower(strings.TrimSpace(unit))
	return unitCleaner.Replace(s)
}

var unitCleaner = strings.NewReplacer("³", "3", "°", "", "º", "", " ", "", "(", "", ")", "", "[", "", "]", "")
