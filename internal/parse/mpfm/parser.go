package mpfm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// Multiphase flow meter reports arrive as PDF exports (or plain-text dumps
// of the same layout). The layout is line oriented: a period header, five
// phase columns in a fixed Gas/Oil/HC/Water/Total order, and one line per
// measurement bank. Daily reports may concatenate several risers into one
// document, each introduced by a "Riser <id> - <tag>" header.
type Parser struct{}

func New() *Parser { return &Parser{} }

var (
	rePeriod = regexp.MustCompile(`(?i)(hourly|daily)\s+report\s+from\s+(.+?)\s+to\s+(.+?)\s*$`)
	reRiser  = regexp.MustCompile(`(?i)riser\s+([A-Z]\d+)\s*-\s*(\d{2}[A-Z]{2}\d{4}[A-B]?)`)
	reBank   = regexp.MustCompile(`(?i)\bbank\s+(\d{1,2})\b`)
	reBankFn = regexp.MustCompile(`[._ -][Bb](\d{2})(?:[._ -]|$)`)
	reStream = regexp.MustCompile(`(?i)\bstream\s+([0-9A-Za-z]+)\b`)

	// Bank labels. Order matters: the @20 degC variants must be tested
	// before their plain counterparts or the plain label swallows them.
	bankLabels = []struct {
		re     *regexp.Regexp
		prefix string
	}{
		{regexp.MustCompile(`(?i)pvt\s+reference\s+mass\s*\[?\s*@\s*20\s*deg\s*c\s*\]?`), "pvt_ref_mass_20c"},
		{regexp.MustCompile(`(?i)pvt\s+reference\s+volume\s*\[?\s*@\s*20\s*deg\s*c\s*\]?`), "pvt_ref_vol_20c"},
		{regexp.MustCompile(`(?i)pvt\s+reference\s+mass`), "pvt_ref_mass"},
		{regexp.MustCompile(`(?i)pvt\s+reference\s+volume`), "pvt_ref_vol"},
		{regexp.MustCompile(`(?i)mpfm\s+uncorrected\s+mass`), "uncorrected_mass"},
		{regexp.MustCompile(`(?i)mpfm\s+corrected\s+mass`), "corrected_mass"},
	}

	avgLabels = []struct {
		re  *regexp.Regexp
		set func(*parse.ProductionRecord, *float64)
	}{
		{regexp.MustCompile(`(?i)average\s+pressure`), func(r *parse.ProductionRecord, v *float64) { r.AvgPressureKPa = v }},
		{regexp.MustCompile(`(?i)average\s+temperature`), func(r *parse.ProductionRecord, v *float64) { r.AvgTemperatureC = v }},
		{regexp.MustCompile(`(?i)gas\s+density`), func(r *parse.ProductionRecord, v *float64) { r.DensityGasKgM3 = v }},
		{regexp.MustCompile(`(?i)oil\s+density`), func(r *parse.ProductionRecord, v *float64) { r.DensityOilKgM3 = v }},
		{regexp.MustCompile(`(?i)water\s+density`), func(r *parse.ProductionRecord, v *float64) { r.DensityWaterKgM3 = v }},
		{regexp.MustCompile(`(?i)flow\s*time`), func(r *parse.ProductionRecord, v *float64) { r.FlowTimeMin = v }},
	}

	// Digits glued to letters (Sm3, B01, kg/m3) are unit noise, not values.
	reNumToken = regexp.MustCompile(`[-+]?\b\d+(?:[.,]\d+)*\b`)
)

func (p *Parser) Parse(ctx context.Context, file parse.File) (parse.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return parse.Outcome{}, err
	}
	text, err := reportText(file.Path)
	if err != nil {
		return parse.Outcome{}, err
	}

	switch file.Shape {
	case domain.ShapeMPFMPVTCalibration:
		return p.parseCalibration(file, text), nil
	default:
		return p.parseProduction(file, text), nil
	}
}

func (p *Parser) parseProduction(file parse.File, text string) parse.Outcome {
	out := parse.Outcome{Success: true}

	reportType, start, end, ok := findPeriod(text)
	if !ok {
		out.Fail("no parseable report period line")
		return out
	}

	bank := findBank(file.Name, text)
	stream := findStream(text)

	sections := splitRisers(text)
	if len(sections) == 0 {
		// Single meter report. The asset tag comes from the filename when
		// present, otherwise from anywhere in the body.
		tag := domain.FindAssetTag(file.Name)
		if tag == "" {
			tag = domain.FindAssetTag(text)
		}
		sections = []riserSection{{tag: tag, body: text}}
	}

	for _, sec := range sections {
		rec := parse.ProductionRecord{
			AssetTag:     sec.tag,
			Bank:         bank,
			Stream:       stream,
			Riser:        sec.riser,
			ReportType:   reportType,
			PeriodStart:  start,
			PeriodEnd:    end,
			SourceFormat: sourceFormat(file.Name),
		}
		if rec.AssetTag == "" {
			out.Warn("section without asset tag skipped")
			continue
		}
		banksFound := scanBanks(sec.body, &rec, &out)
		scanAverages(sec.body, &rec)
		if banksFound == 0 {
			out.Warn(fmt.Sprintf("no measurement banks found for %s", rec.AssetTag))
			continue
		}
		out.Records = append(out.Records, &rec)
	}

	if len(out.Records) == 0 {
		out.Fail("no production records extracted")
	}
	return out
}

type riserSection struct {
	riser string
	tag   string
	body  string
}

// splitRisers cuts a daily multi-riser report into per-riser bodies. Text
// before the first header carries only the shared period line and is not a
// section of its own.
func splitRisers(text string) []riserSection {
	matches := reRiser.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	sections := make([]riserSection, 0, len(matches))
	for i, m := range matches {
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		sections = append(sections, riserSection{
			riser: text[m[2]:m[3]],
			tag:   text[m[4]:m[5]],
			body:  text[m[1]:bodyEnd],
		})
	}
	return sections
}

func findPeriod(text string) (domain.ReportType, time.Time, time.Time, bool) {
	for _, line := range strings.Split(text, "\n") {
		m := rePeriod.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, ok1 := parse.Timestamp(strings.TrimSpace(m[2]))
		end, ok2 := parse.Timestamp(strings.TrimSpace(m[3]))
		if !ok1 || !ok2 {
			continue
		}
		rt := domain.ReportHourly
		if strings.EqualFold(m[1], "daily") {
			rt = domain.ReportDaily
		}
		return rt, start, end, true
	}
	return "", time.Time{}, time.Time{}, false
}

func findBank(filename, body string) string {
	if m := reBankFn.FindStringSubmatch(filename); m != nil {
		return "B" + m[1]
	}
	if m := reBank.FindStringSubmatch(body); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return fmt.Sprintf("B%02d", n)
		}
	}
	return ""
}

func findStream(body string) string {
	if m := reStream.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// scanBanks fills the phase value groups of rec from labelled lines in body
// and returns how many banks matched.
func scanBanks(body string, rec *parse.ProductionRecord, out *parse.Outcome) int {
	found := 0
	for _, line := range strings.Split(body, "\n") {
		for _, bl := range bankLabels {
			loc := bl.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			vals := numericTokens(line[loc[1]:], len(domain.Phases))
			if len(vals) == 0 {
				out.Warn(fmt.Sprintf("bank line without values: %s", strings.TrimSpace(line)))
				break
			}
			pv := bankGroup(rec, bl.prefix)
			setPhases(pv, vals)
			found++
			break
		}
	}
	return found
}

func scanAverages(body string, rec *parse.ProductionRecord) {
	for _, line := range strings.Split(body, "\n") {
		for _, al := range avgLabels {
			loc := al.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			vals := numericTokens(line[loc[1]:], 1)
			if len(vals) == 1 {
				al.set(rec, vals[0])
			}
			break
		}
	}
}

func bankGroup(rec *parse.ProductionRecord, prefix string) *parse.PhaseValues {
	switch prefix {
	case "uncorrected_mass":
		return &rec.UncorrectedMass
	case "corrected_mass":
		return &rec.CorrectedMass
	case "pvt_ref_mass":
		return &rec.PVTRefMass
	case "pvt_ref_vol":
		return &rec.PVTRefVol
	case "pvt_ref_mass_20c":
		return &rec.PVTRefMass20C
	default:
		return &rec.PVTRefVol20C
	}
}

// numericTokens pulls up to max numeric tokens from s in reading order.
func numericTokens(s string, max int) []*float64 {
	var vals []*float64
	for _, tok := range reNumToken.FindAllString(s, -1) {
		v, ok := parse.Number(tok)
		if !ok || v == nil {
			continue
		}
		vals = append(vals, v)
		if len(vals) == max {
			break
		}
	}
	return vals
}

// setPhases assigns values in the fixed report column order. Short rows fill
// from the left; missing trailing phases stay absent.
func setPhases(pv *parse.PhaseValues, vals []*float64) {
	targets := []**float64{&pv.Gas, &pv.Oil, &pv.HC, &pv.Water, &pv.Total}
	for i, v := range vals {
		if i >= len(targets) {
			break
		}
		*targets[i] = v
	}
}

func sourceFormat(name string) domain.Source {
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return domain.SourceTXT
	}
	return domain.SourcePDF
}
