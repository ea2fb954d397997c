// Package canon maps parser records onto the canonical persistence model.
//
// Each parsed file yields one Result: production and calibration facts keyed
// by their natural keys, daily and windowed observations for the
// cross-validator, and the asset dimension candidates the stager upserts.
// Mapping never touches the database; persisting a Result is the pipeline's
// job.
package canon

import (
	"fmt"
	"sort"
	"time"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// Input is one parsed file handed to the canonicalizer.
type Input struct {
	Fingerprint string
	Filename    string
	Shape       domain.Shape
	Records     []parse.Record
}

// Result is everything one file contributes to the canonical model.
type Result struct {
	Assets       []persistence.Asset
	Facts        []persistence.ProductionFact
	Calibrations []persistence.CalibrationFact
	Observations []persistence.Observation
	GasBalance   []persistence.GasBalanceLine
	Regulatory   []persistence.RegulatoryBundle
	Warnings     []string
}

// Canonicalize maps the records of one parsed file onto the fact model.
// Records missing their natural key are dropped with a warning; everything
// else lands in the Result in record order.
func Canonicalize(in Input) *Result {
	b := &builder{
		in:        in,
		res:       &Result{},
		regIndex:  map[string]int{},
		assetSeen: map[string]bool{},
	}
	for _, rec := range in.Records {
		switch v := rec.(type) {
		case *parse.ProductionRecord:
			b.production(v)
		case *parse.CalibrationRecord:
			b.calibration(v)
		case parse.SheetBlockRecord:
			b.sheetBlock(v)
		case parse.GasBalanceRecord:
			b.gasBalance(v)
		case *parse.RegulatoryRecord:
			b.regulatory(v)
		case *parse.AlarmRecord:
			b.alarms(v)
		}
	}
	return b.res
}

// AssetDates returns the distinct (asset, business date) pairs this file
// touched. These are the recompute targets for reconciliation and
// cross-validation after the batch lands.
func (r *Result) AssetDates() []persistence.AssetDate {
	seen := map[persistence.AssetDate]bool{}
	for _, f := range r.Facts {
		seen[persistence.AssetDate{AssetTag: f.AssetTag, BusinessDate: f.BusinessDate}] = true
	}
	for _, o := range r.Observations {
		seen[persistence.AssetDate{AssetTag: o.AssetTag, BusinessDate: o.BusinessDate}] = true
	}
	out := make([]persistence.AssetDate, 0, len(seen))
	for ad := range seen {
		out = append(out, ad)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetTag != out[j].AssetTag {
			return out[i].AssetTag < out[j].AssetTag
		}
		return out[i].BusinessDate < out[j].BusinessDate
	})
	return out
}

// DimensionMismatch describes where a candidate disagrees with the stored
// asset row, or "" when they agree. The stored dimensions always win; the
// caller surfaces the difference as a parse warning.
func DimensionMismatch(stored, candidate persistence.Asset) string {
	var diffs []string
	if candidate.Kind != "" && stored.Kind != "" && candidate.Kind != stored.Kind {
		diffs = append(diffs, fmt.Sprintf("kind %q kept over %q", stored.Kind, candidate.Kind))
	}
	diffs = append(diffs, dimDiff("bank", stored.Bank, candidate.Bank)...)
	diffs = append(diffs, dimDiff("stream", stored.Stream, candidate.Stream)...)
	diffs = append(diffs, dimDiff("riser", stored.Riser, candidate.Riser)...)
	if len(diffs) == 0 {
		return ""
	}
	return fmt.Sprintf("asset %s: %s", stored.Tag, joinDiffs(diffs))
}

func dimDiff(name string, stored, candidate *string) []string {
	if stored == nil || candidate == nil || *stored == *candidate {
		return nil
	}
	return []string{fmt.Sprintf("%s %q kept over %q", name, *stored, *candidate)}
}

func joinDiffs(diffs []string) string {
	out := diffs[0]
	for _, d := range diffs[1:] {
		out += ", " + d
	}
	return out
}

type builder struct {
	in        Input
	res       *Result
	regIndex  map[string]int
	assetSeen map[string]bool
}

func (b *builder) warnf(format string, args ...any) {
	b.res.Warnings = append(b.res.Warnings, fmt.Sprintf(format, args...))
}

// asset records one dimension candidate per tag; the first statement in the
// file wins, matching the keep-earlier rule the store applies across files.
func (b *builder) asset(a persistence.Asset) {
	if a.Tag == "" || b.assetSeen[a.Tag] {
		return
	}
	b.assetSeen[a.Tag] = true
	b.res.Assets = append(b.res.Assets, a)
}

func (b *builder) production(rec *parse.ProductionRecord) {
	if rec.AssetTag == "" {
		b.warnf("production record without asset tag dropped (%s)", b.in.Filename)
		return
	}
	if rec.PeriodEnd.IsZero() {
		b.warnf("production record for %s has no period end, dropped", rec.AssetTag)
		return
	}
	dateKey := domain.DateKey(domain.BusinessDate(rec.PeriodEnd))

	fact := persistence.ProductionFact{
		AssetTag:           rec.AssetTag,
		ReportType:         rec.ReportType,
		PeriodStart:        rec.PeriodStart,
		PeriodEnd:          rec.PeriodEnd,
		BusinessDate:       dateKey,
		Values:             map[string]*float64{},
		AvgPressureKPa:     rec.AvgPressureKPa,
		AvgTemperatureC:    rec.AvgTemperatureC,
		DensityGasKgM3:     rec.DensityGasKgM3,
		DensityOilKgM3:     rec.DensityOilKgM3,
		DensityWaterKgM3:   rec.DensityWaterKgM3,
		FlowTimeMin:        rec.FlowTimeMin,
		RawFileFingerprint: b.in.Fingerprint,
	}

	window := timeWindow(rec.PeriodStart, rec.PeriodEnd)
	if rec.ReportType == domain.ReportDaily {
		window = ""
	}
	obs := func(metric string, v *float64) {
		if v == nil {
			return
		}
		b.res.Observations = append(b.res.Observations, persistence.Observation{
			AssetTag:           rec.AssetTag,
			Source:             rec.SourceFormat,
			Metric:             metric,
			BusinessDate:       dateKey,
			TimeWindow:         window,
			Value:              *v,
			Unit:               CanonicalUnit(metric),
			RawFileFingerprint: b.in.Fingerprint,
		})
	}

	for _, bank := range domain.Banks {
		pv := rec.BankValues(bank.Prefix)
		for _, phase := range domain.Phases {
			v := pv.ByPhase(phase)
			if v == nil {
				continue
			}
			metric := domain.MetricName(bank, phase)
			fact.Values[metric] = v
			obs(metric, v)
		}
	}
	obs("flow_time_min", rec.FlowTimeMin)
	obs("avg_pressure_kpa", rec.AvgPressureKPa)
	obs("avg_temperature_c", rec.AvgTemperatureC)
	obs("density_gas_kgm3", rec.DensityGasKgM3)
	obs("density_oil_kgm3", rec.DensityOilKgM3)
	obs("density_water_kgm3", rec.DensityWaterKgM3)

	b.res.Facts = append(b.res.Facts, fact)
	b.asset(persistence.Asset{
		Tag:    rec.AssetTag,
		Kind:   string(domain.KindMPFM),
		Bank:   strPtr(rec.Bank),
		Stream: strPtr(rec.Stream),
		Riser:  strPtr(rec.Riser),
	})
}

func (b *builder) calibration(rec *parse.CalibrationRecord) {
	if rec.AssetTag == "" || rec.CalibrationNo == "" {
		b.warnf("calibration report without asset tag or number dropped (%s)", b.in.Filename)
		return
	}
	fact := persistence.CalibrationFact{
		CalibrationNo:      rec.CalibrationNo,
		AssetTag:           rec.AssetTag,
		WindowStart:        timePtr(rec.WindowStart),
		WindowEnd:          timePtr(rec.WindowEnd),
		Status:             rec.Status,
		SelectedMPFM:       rec.SelectedMPFM,
		Flags:              rec.Flags,
		RawFileFingerprint: b.in.Fingerprint,
	}
	for _, kf := range rec.KFactors {
		switch kf.Phase {
		case domain.PhaseGas:
			fact.KUsedGas, fact.KNewGas = kf.Used, kf.New
		case domain.PhaseOil:
			fact.KUsedOil, fact.KNewOil = kf.Used, kf.New
		case domain.PhaseHC:
			fact.KUsedHC, fact.KNewHC = kf.Used, kf.New
		case domain.PhaseWater:
			fact.KUsedWater, fact.KNewWater = kf.Used, kf.New
		}
	}
	for _, p := range rec.Averages {
		fact.Averages = append(fact.Averages, persistence.CalPair{Label: p.Label, MPFM: p.MPFM, Separator: p.Separator})
	}
	for _, m := range rec.Accumulated {
		fact.Accumulated = append(fact.Accumulated, persistence.CalPair{Label: string(m.Phase), MPFM: m.MPFM, Separator: m.Separator})
	}
	b.res.Calibrations = append(b.res.Calibrations, fact)
	b.asset(persistence.Asset{Tag: rec.AssetTag, Kind: string(domain.KindMPFM)})
}

func (b *builder) sheetBlock(rec parse.SheetBlockRecord) {
	if rec.AssetTag == "" {
		return
	}
	dateKey, ok := b.sheetDate(rec.PeriodStart, rec.PeriodEnd)
	if !ok {
		b.warnf("sheet block %s/%s has no resolvable date, dropped", rec.SheetName, rec.AssetTag)
		return
	}
	prefix := blockPrefix(rec.Block)
	for _, v := range rec.Values {
		if v.Value == nil {
			continue
		}
		value, ok := Harmonize(v.Name, *v.Value, v.Unit)
		if !ok {
			b.warnf("ERR_UNIT: %s %s stated in %q, value dropped", rec.AssetTag, v.Name, v.Unit)
			continue
		}
		unit := CanonicalUnit(v.Name)
		if unit == "" {
			unit = v.Unit
		}
		b.res.Observations = append(b.res.Observations, persistence.Observation{
			AssetTag:           rec.AssetTag,
			Source:             domain.SourceSpreadsheet,
			Metric:             prefix + v.Name,
			BusinessDate:       dateKey,
			TimeWindow:         "",
			Value:              value,
			Unit:               unit,
			RawFileFingerprint: b.in.Fingerprint,
		})
	}
	b.asset(persistence.Asset{Tag: rec.AssetTag, Kind: string(domain.KindTopside)})
}

// blockPrefix namespaces the cumulative and flow-weighted blocks so they
// never collide with the day totals on the observation key.
func blockPrefix(block string) string {
	switch block {
	case "cumulative":
		return "cum_"
	case "fwa":
		return "fwa_"
	}
	return ""
}

func (b *builder) gasBalance(rec parse.GasBalanceRecord) {
	dateKey, ok := b.sheetDate(rec.PeriodStart, rec.PeriodEnd)
	if !ok {
		b.warnf("gas balance %s has no resolvable date", rec.SheetName)
	}
	for _, l := range rec.Lines {
		b.res.GasBalance = append(b.res.GasBalance, persistence.GasBalanceLine{
			RawFileFingerprint: b.in.Fingerprint,
			LineOrder:          l.Order,
			BusinessDate:       dateKey,
			Sign:               l.Sign,
			Description:        l.Description,
			Flowrate:           l.Flowrate,
			PD:                 l.PD,
		})
	}
}

func (b *builder) regulatory(rec *parse.RegulatoryRecord) {
	if rec.AssetTag == "" {
		b.warnf("submission without measuring point tag dropped (%s)", b.in.Filename)
		return
	}
	bundle := b.bundleFor(rec.AssetTag)
	if rec.Config != nil {
		bundle.Config = &persistence.FlowComputerConfigRow{
			RawFileFingerprint:  b.in.Fingerprint,
			AssetTag:            rec.AssetTag,
			CollectedAt:         timePtr(rec.Config.CollectedAt),
			AmbientTemperatureC: rec.Config.AmbientTemperatureC,
			AtmosphericKPa:      rec.Config.AtmosphericKPa,
			ReferenceKPa:        rec.Config.ReferenceKPa,
			RelativeDensity:     rec.Config.RelativeDensity,
			SoftwareVersion:     rec.Config.SoftwareVersion,
		}
	}
	for _, p := range rec.MeterFactors {
		bundle.MeterFactors = append(bundle.MeterFactors, persistence.MeterFactorRow{
			RawFileFingerprint: b.in.Fingerprint,
			AssetTag:           rec.AssetTag,
			Idx:                p.Index,
			Factor:             p.Factor,
			Pulses:             p.Pulses,
		})
	}
	for _, inst := range rec.Instruments {
		bundle.Instruments = append(bundle.Instruments, persistence.InstrumentRow{
			RawFileFingerprint: b.in.Fingerprint,
			AssetTag:           rec.AssetTag,
			Seq:                len(bundle.Instruments) + 1,
			Kind:               inst.Kind,
			Serial:             inst.Serial,
			TypeCode:           inst.TypeCode,
			Manufacturer:       inst.Manufacturer,
			Model:              inst.Model,
			LimitLow:           inst.LimitLow,
			LimitHigh:          inst.LimitHigh,
			LastCalibration:    timePtr(inst.LastCalibration),
			Uncertainty:        inst.Uncertainty,
		})
	}
	for _, p := range rec.Periods {
		b.period(bundle, rec.AssetTag, p)
	}
	b.asset(persistence.Asset{Tag: rec.AssetTag, Kind: string(domain.KindTopside)})
}

func (b *builder) period(bundle *persistence.RegulatoryBundle, tag string, p parse.ProductionPeriod) {
	row := persistence.XMLPeriodRow{
		RawFileFingerprint: b.in.Fingerprint,
		AssetTag:           tag,
		Seq:                len(bundle.Periods) + 1,
		PeriodStart:        timePtr(p.Start),
		PeriodEnd:          timePtr(p.End),
		FlowDurationHours:  p.FlowDurationHours,
		GrossVolumeM3:      p.GrossVolumeM3,
		NetVolumeM3:        p.NetVolumeM3,
		CorrectedVolumeM3:  p.CorrectedVolumeM3,
		TotalizerStart:     p.TotalizerStart,
		TotalizerEnd:       p.TotalizerEnd,
		BSWPct:             p.BSWPct,
		RelativeDensity:    p.RelativeDensity,
		StaticPressureKPa:  p.StaticPressureKPa,
		TemperatureC:       p.TemperatureC,
		DiffPressureKPa:    p.DiffPressureKPa,
		CTL:                p.CTL,
		CPL:                p.CPL,
		CTPL:               p.CTPL,
		MeterFactor:        p.MeterFactor,
	}
	if !p.End.IsZero() {
		dateKey := domain.DateKey(domain.BusinessDate(p.End))
		row.BusinessDate = dateKey
		window := timeWindow(p.Start, p.End)
		b.xmlObs(tag, "gross_volume_m3", dateKey, window, p.GrossVolumeM3)
		b.xmlObs(tag, "net_volume_m3", dateKey, window, p.NetVolumeM3)
		// The corrected volume is the submission's standard-condition
		// figure, the same quantity the spreadsheets state as gross
		// standard volume.
		b.xmlObs(tag, "gross_std_volume_sm3", dateKey, window, p.CorrectedVolumeM3)
		if p.FlowDurationHours != nil {
			mins := *p.FlowDurationHours * 60
			b.xmlObs(tag, "flow_time_min", dateKey, window, &mins)
		}
	}
	bundle.Periods = append(bundle.Periods, row)
}

func (b *builder) xmlObs(tag, metric, dateKey, window string, v *float64) {
	if v == nil {
		return
	}
	b.res.Observations = append(b.res.Observations, persistence.Observation{
		AssetTag:           tag,
		Source:             domain.SourceXML,
		Metric:             metric,
		BusinessDate:       dateKey,
		TimeWindow:         window,
		Value:              *v,
		Unit:               CanonicalUnit(metric),
		RawFileFingerprint: b.in.Fingerprint,
	})
}

func (b *builder) alarms(rec *parse.AlarmRecord) {
	if rec.AssetTag == "" {
		b.warnf("event submission without measuring point tag dropped (%s)", b.in.Filename)
		return
	}
	bundle := b.bundleFor(rec.AssetTag)
	for _, a := range rec.Alarms {
		bundle.Alarms = append(bundle.Alarms, persistence.AlarmRow{
			RawFileFingerprint: b.in.Fingerprint,
			AssetTag:           rec.AssetTag,
			Seq:                len(bundle.Alarms) + 1,
			Timestamp:          timePtr(a.Timestamp),
			Parameter:          a.Parameter,
			Value:              a.Value,
		})
	}
	for _, e := range rec.Events {
		bundle.Audits = append(bundle.Audits, persistence.AuditRow{
			RawFileFingerprint: b.in.Fingerprint,
			AssetTag:           rec.AssetTag,
			Seq:                len(bundle.Audits) + 1,
			Timestamp:          timePtr(e.Timestamp),
			Parameter:          e.Parameter,
			OldValue:           e.OldValue,
			NewValue:           e.NewValue,
		})
	}
	b.asset(persistence.Asset{Tag: rec.AssetTag, Kind: string(domain.KindTopside)})
}

// bundleFor returns the bundle accumulating rows for one asset, creating it
// on first use. A submission may state several DADOS_BASICOS elements for
// the same point; their rows merge into a single replace unit so a later
// element never wipes an earlier one.
func (b *builder) bundleFor(tag string) *persistence.RegulatoryBundle {
	if i, ok := b.regIndex[tag]; ok {
		return &b.res.Regulatory[i]
	}
	b.res.Regulatory = append(b.res.Regulatory, persistence.RegulatoryBundle{
		RawFileFingerprint: b.in.Fingerprint,
		AssetTag:           tag,
	})
	i := len(b.res.Regulatory) - 1
	b.regIndex[tag] = i
	return &b.res.Regulatory[i]
}

// sheetDate resolves a business date for sheet records: the stated period
// end wins, then the period start, then a date embedded in the filename.
// A filename date already names the business day and is not stepped back.
func (b *builder) sheetDate(start, end time.Time) (string, bool) {
	if !end.IsZero() {
		return domain.DateKey(domain.BusinessDate(end)), true
	}
	if !start.IsZero() {
		return domain.DateKey(start), true
	}
	if d, ok := domain.FindFileDate(b.in.Filename); ok {
		return domain.DateKey(d), true
	}
	return "", false
}

// timeWindow renders the observation window. Periods spanning most of a day
// are daily statements and share the empty window.
func timeWindow(start, end time.Time) string {
	if start.IsZero() || end.Sub(start) >= 20*time.Hour {
		return ""
	}
	return start.Format("15:04") + "-" + end.Format("15:04")
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
