package sheet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// inlineValue splits a combined "value unit" cell, e.g. "1234,5 Sm³/d".
var inlineValue = regexp.MustCompile(`^([\d\.,\-]+)\s*(.*)$`)

// parseFlat handles sheets without anchor blocks: each row is a label cell
// followed by a value cell (possibly with an inline unit). The asset tag
// comes from the filename since flat sheets carry no tag row.
func parseFlat(g grid, sheetName string, meta metadata, displayName string, out *parse.Outcome) {
	tag := domain.FindAssetTag(displayName)
	rec := parse.SheetBlockRecord{
		Block:       "flat",
		AssetTag:    tag,
		SheetName:   sheetName,
		Field:       meta.field,
		PeriodStart: meta.periodStart,
		PeriodEnd:   meta.periodEnd,
	}

	for r := 0; r < len(g); r++ {
		label, rawValue := flatPair(g, r)
		if label == "" || rawValue == "" {
			continue
		}
		value, unit := rawValue, ""
		if m := inlineValue.FindStringSubmatch(rawValue); m != nil && m[1] != "" {
			value, unit = m[1], strings.TrimSpace(m[2])
		}
		v, ok := parse.Number(value)
		if !ok || v == nil {
			continue // flat sheets are noisy; non-numeric rows are not values
		}
		rec.Values = append(rec.Values, parse.SheetValue{
			Name:     CanonicalName(label),
			RawLabel: label,
			Value:    v,
			Unit:     unit,
		})
	}

	if len(rec.Values) == 0 {
		out.Warn(fmt.Sprintf("sheet %q: no anchor blocks and no flat label/value rows", sheetName))
		return
	}
	out.Records = append(out.Records, rec)
}

// flatPair returns the first two non-empty cells of a row.
func flatPair(g grid, r int) (string, string) {
	first, second := "", ""
	for c := range g[r] {
		v := g.cell(r, c)
		if v == "" {
			continue
		}
		if first == "" {
			first = v
			continue
		}
		second = v
		break
	}
	return first, second
}
