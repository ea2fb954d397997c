package sheet

import (
	"fmt"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// gas-balance column roles resolved from header hints.
type gbLayout struct {
	sign, description, flowrate, pd int
}

// positional fallback when no header row is recognizable.
var gbPositional = gbLayout{sign: 0, description: 1, flowrate: 2, pd: 3}

// parseGasBalance reads the gas balance table: header row after the
// "gas balance" title, then rows until and including TOTAL.
func parseGasBalance(g grid, sheetName string, meta metadata, out *parse.Outcome) {
	titleRow := -1
	for r := 0; r < len(g); r++ {
		for c := range g[r] {
			if strings.HasPrefix(strings.ToLower(g.cell(r, c)), "gas balance") {
				titleRow = r
				break
			}
		}
		if titleRow >= 0 {
			break
		}
	}
	if titleRow < 0 {
		out.Fail("no gas balance header found")
		return
	}

	layout, dataStart := findGBLayout(g, titleRow)
	rec := parse.GasBalanceRecord{
		SheetName:   sheetName,
		Field:       meta.field,
		PeriodStart: meta.periodStart,
		PeriodEnd:   meta.periodEnd,
	}

	order := 0
	blanks := 0
	for r := dataStart; r < len(g); r++ {
		if g.rowBlank(r) {
			blanks++
			if blanks >= blankRowStop {
				break
			}
			continue
		}
		blanks = 0

		sign := strings.ToUpper(strings.TrimSpace(g.cell(r, layout.sign)))
		switch sign {
		case "+", "-", "TOTAL":
		default:
			continue
		}
		order++

		flow, okF := parse.Number(g.cell(r, layout.flowrate))
		if !okF {
			out.Warn(fmt.Sprintf("gas balance row %d: unparseable flowrate %q", r+1, g.cell(r, layout.flowrate)))
		}
		pd, okP := parse.Number(g.cell(r, layout.pd))
		if !okP {
			out.Warn(fmt.Sprintf("gas balance row %d: unparseable pd %q", r+1, g.cell(r, layout.pd)))
		}
		rec.Lines = append(rec.Lines, parse.GasBalanceLine{
			Order:       order,
			Sign:        sign,
			Description: g.cell(r, layout.description),
			Flowrate:    flow,
			PD:          pd,
		})
		if sign == "TOTAL" {
			break
		}
	}

	if len(rec.Lines) == 0 {
		out.Fail("gas balance table has no rows")
		return
	}
	out.Records = append(out.Records, rec)
}

// findGBLayout looks for a header row with column hints in the rows after
// the title; absent that, the positional layout starts right below.
func findGBLayout(g grid, titleRow int) (gbLayout, int) {
	for r := titleRow + 1; r <= titleRow+4 && r < len(g); r++ {
		layout := gbLayout{sign: -1, description: -1, flowrate: -1, pd: -1}
		for c := range g[r] {
			h := strings.ToLower(g.cell(r, c))
			switch {
			case strings.HasPrefix(h, "sign"):
				layout.sign = c
			case strings.HasPrefix(h, "desc"):
				layout.description = c
			case strings.Contains(h, "flow"):
				layout.flowrate = c
			case h == "pd" || strings.HasPrefix(h, "pd "):
				layout.pd = c
			}
		}
		if layout.sign >= 0 && layout.description >= 0 && layout.flowrate >= 0 && layout.pd >= 0 {
			return layout, r + 1
		}
	}
	return gbPositional, titleRow + 1
}
