package mpfm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// Correction factors outside this band are treated as calibration artifacts
// and withheld from metering updates.
const (
	kFactorMin = 0.5
	kFactorMax = 1.5
)

var (
	reCalNo     = regexp.MustCompile(`(?i)calibration\s+no\.?\s*:?\s*(\d+)`)
	reSelected  = regexp.MustCompile(`(?i)selected\s+mpfm\s*:?\s*(\S+)`)
	reCalStatus = regexp.MustCompile(`(?i)\bstatus\s*:?\s*([A-Za-z]+)`)
	reCalWindow = regexp.MustCompile(`(?i)(?:calibration\s+period|period)\s+from\s+(.+?)\s+to\s+(.+?)\s*$`)

	reAvgHeading = regexp.MustCompile(`(?i)^\s*average\s+values`)
	reAccHeading = regexp.MustCompile(`(?i)^\s*accumulated\s+mass`)
	reMCFHeading = regexp.MustCompile(`(?i)^\s*mass\s+correction\s+factors`)
)

type calSection int

const (
	secNone calSection = iota
	secAverages
	secAccumulated
	secFactors
)

func (p *Parser) parseCalibration(file parse.File, text string) parse.Outcome {
	out := parse.Outcome{Success: true}

	rec := parse.CalibrationRecord{SourceFormat: sourceFormat(file.Name)}

	if m := reCalNo.FindStringSubmatch(text); m != nil {
		rec.CalibrationNo = m[1]
	}
	if m := reSelected.FindStringSubmatch(text); m != nil {
		rec.SelectedMPFM = strings.TrimSpace(m[1])
	}
	if m := reCalStatus.FindStringSubmatch(text); m != nil {
		rec.Status = strings.ToUpper(m[1])
	}
	for _, line := range strings.Split(text, "\n") {
		m := reCalWindow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, ok1 := parse.Timestamp(strings.TrimSpace(m[1]))
		end, ok2 := parse.Timestamp(strings.TrimSpace(m[2]))
		if ok1 && ok2 {
			rec.WindowStart = start
			rec.WindowEnd = end
			break
		}
	}

	rec.AssetTag = domain.FindAssetTag(rec.SelectedMPFM)
	if rec.AssetTag == "" {
		rec.AssetTag = domain.FindAssetTag(file.Name)
	}
	if rec.AssetTag == "" {
		rec.AssetTag = domain.FindAssetTag(text)
	}
	if rec.AssetTag == "" {
		out.Fail("calibration report without an identifiable meter tag")
		return out
	}

	section := secNone
	for _, line := range strings.Split(text, "\n") {
		switch {
		case reAvgHeading.MatchString(line):
			section = secAverages
			continue
		case reAccHeading.MatchString(line):
			section = secAccumulated
			continue
		case reMCFHeading.MatchString(line):
			section = secFactors
			continue
		case reCalWindow.MatchString(line):
			// Window lines carry date tokens that would masquerade as
			// table rows.
			continue
		}

		label, vals := labelledPair(line)
		if label == "" || len(vals) < 2 {
			continue
		}
		switch section {
		case secAverages:
			rec.Averages = append(rec.Averages, parse.AveragePair{
				Label:     label,
				MPFM:      vals[0],
				Separator: vals[1],
			})
		case secAccumulated:
			phase, ok := phaseFromLabel(label)
			if !ok {
				out.Warn(fmt.Sprintf("accumulated mass row with unknown phase %q", label))
				continue
			}
			rec.Accumulated = append(rec.Accumulated, parse.AccumulatedMass{
				Phase:     phase,
				MPFM:      vals[0],
				Separator: vals[1],
			})
		case secFactors:
			phase, ok := phaseFromLabel(label)
			if !ok {
				out.Warn(fmt.Sprintf("correction factor row with unknown phase %q", label))
				continue
			}
			rec.KFactors = append(rec.KFactors, parse.KFactor{
				Phase: phase,
				Used:  vals[0],
				New:   vals[1],
			})
		}
	}

	if len(rec.KFactors) == 0 {
		out.Warn("calibration report without correction factors")
	}
	applyKFlags(&rec)
	out.Records = append(out.Records, &rec)
	return out
}

// labelledPair splits a table row into its leading text label and numeric
// columns. Rows without a label or without numbers are ignored by callers.
func labelledPair(line string) (string, []*float64) {
	loc := reNumToken.FindStringIndex(line)
	if loc == nil {
		return "", nil
	}
	label := strings.TrimSpace(line[:loc[0]])
	if label == "" {
		return "", nil
	}
	return label, numericTokens(line[loc[0]:], 2)
}

func phaseFromLabel(label string) (domain.Phase, bool) {
	switch strings.ToLower(strings.Fields(label)[0]) {
	case "gas":
		return domain.PhaseGas, true
	case "oil":
		return domain.PhaseOil, true
	case "hc", "hydrocarbon":
		return domain.PhaseHC, true
	case "water":
		return domain.PhaseWater, true
	case "total":
		return domain.PhaseTotal, true
	}
	return "", false
}

// applyKFlags marks factors that must not feed metering updates. Water
// factors are always excluded; any new factor outside the plausible band is
// flagged as an outlier and withheld.
func applyKFlags(rec *parse.CalibrationRecord) {
	for _, k := range rec.KFactors {
		if k.New == nil {
			continue
		}
		if k.Phase == domain.PhaseWater {
			addFlag(rec, "ignore_for_k_update")
		}
		if *k.New < kFactorMin || *k.New > kFactorMax {
			addFlag(rec, "cal_factor_outlier_"+string(k.Phase))
		}
	}
}

func addFlag(rec *parse.CalibrationRecord, flag string) {
	for _, f := range rec.Flags {
		if f == flag {
			return
		}
	}
	rec.Flags = append(rec.Flags, flag)
}
