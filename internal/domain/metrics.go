package domain

import "strings"

// Phase is one component of a multiphase measurement.
type Phase string

const (
	PhaseGas   Phase = "gas"
	PhaseOil   Phase = "oil"
	PhaseHC    Phase = "hc"
	PhaseWater Phase = "water"
	PhaseTotal Phase = "total"
)

// Phases lists the canonical phase order used by MPFM report tables.
var Phases = []Phase{PhaseGas, PhaseOil, PhaseHC, PhaseWater, PhaseTotal}

// MetricKind distinguishes unit families for tolerance selection.
type MetricKind int

const (
	KindMass MetricKind = iota
	KindVolume
	KindEnergy
	KindDuration
	KindOther
)

// Bank is one of the six MPFM phase-banks.
type Bank struct {
	Prefix string // canonical metric name prefix
	Suffix string // unit suffix, _t or _sm3
	Kind   MetricKind
}

// Banks lists the six phase-banks of a production fact in report order.
var Banks = []Bank{
	{Prefix: "uncorrected_mass", Suffix: "_t", Kind: KindMass},
	{Prefix: "corrected_mass", Suffix: "_t", Kind: KindMass},
	{Prefix: "pvt_ref_mass", Suffix: "_t", Kind: KindMass},
	{Prefix: "pvt_ref_vol", Suffix: "_sm3", Kind: KindVolume},
	{Prefix: "pvt_ref_mass_20c", Suffix: "_t", Kind: KindMass},
	{Prefix: "pvt_ref_vol_20c", Suffix: "_sm3", Kind: KindVolume},
}

// MetricName builds the canonical metric name for a bank and phase,
// e.g. corrected_mass + oil -> corrected_mass_oil_t.
func MetricName(b Bank, p Phase) string {
	return b.Prefix + "_" + string(p) + b.Suffix
}

// ProductionMetrics returns the declared reconciliation metric list:
// all six banks broken by all five phases, 30 metrics in stable order.
func ProductionMetrics() []string {
	out := make([]string, 0, len(Banks)*len(Phases))
	for _, b := range Banks {
		for _, p := range Phases {
			out = append(out, MetricName(b, p))
		}
	}
	return out
}

// MetricKindOf reports the unit family of a canonical metric name.
func MetricKindOf(metric string) MetricKind {
	switch {
	case strings.HasSuffix(metric, "_t"):
		return KindMass
	case strings.HasSuffix(metric, "_sm3"), strings.HasSuffix(metric, "_m3"):
		return KindVolume
	case strings.HasSuffix(metric, "_gj"):
		return KindEnergy
	case strings.HasSuffix(metric, "_min"):
		return KindDuration
	}
	return KindOther
}
