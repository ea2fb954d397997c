// Package sheet parses daily production workbooks and gas-balance sheets.
// Extraction is anchor-driven: each of the three block headers is located,
// the asset-tag row beneath it maps columns to assets, and variable rows
// are walked until the block ends.
package sheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/parse"
)

// anchor phrases, matched case-insensitively as prefixes of a cell.
var anchors = []struct {
	phrase string
	block  string
}{
	{"cumulative totals", "cumulative"},
	{"day totals", "day"},
	{"flow weighted average", "fwa"},
}

// unit markers that identify the unit column left of the first tag column.
var unitMarkers = []string{"m³", "m3", "sm³", "sm3", "kpa", "°c", "kg", "t", "min", "gj", "%"}

const (
	tagRowScanDepth  = 7  // rows below an anchor searched for the tag row
	minTagsInRow     = 2  // cells matching the tag grammar to accept a row
	blankRowStop     = 3  // consecutive blank rows ending a block
	metadataScanRows = 25 // rows scanned for workbook metadata
)

// Parser reads spreadsheet workbooks into sheet-block and gas-balance
// records.
type Parser struct{}

// New returns a spreadsheet parser.
func New() *Parser { return &Parser{} }

// Parse opens the workbook, selects the preferred sheet, and extracts
// either the gas-balance table or the three anchor blocks.
func (p *Parser) Parse(ctx context.Context, file parse.File) (parse.Outcome, error) {
	out := parse.Outcome{Success: true}

	wb, err := xlsx.OpenFile(file.Path)
	if err != nil {
		return out, fmt.Errorf("open workbook %s: %w", file.DisplayName(), err)
	}
	sh := selectSheet(wb)
	if sh == nil {
		out.Fail("workbook has no sheets")
		return out, nil
	}
	g := gridFrom(sh)

	if err := ctx.Err(); err != nil {
		return out, err
	}

	meta := extractMetadata(g)
	if file.Shape == domain.ShapeSpreadsheetGasBalance {
		parseGasBalance(g, sh.Name, meta, &out)
		return out, nil
	}
	parseBlocks(g, sh.Name, meta, file.DisplayName(), &out)
	return out, nil
}

// selectSheet prefers a sheet named oil_*, gas_*, water_* or literal 0001,
// else the first sheet.
func selectSheet(wb *xlsx.File) *xlsx.Sheet {
	if len(wb.Sheets) == 0 {
		return nil
	}
	for _, sh := range wb.Sheets {
		name := strings.ToLower(sh.Name)
		if strings.HasPrefix(name, "oil_") || strings.HasPrefix(name, "gas_") ||
			strings.HasPrefix(name, "water_") || name == "0001" {
			return sh
		}
	}
	return wb.Sheets[0]
}

// grid is the cell matrix of one sheet; all extraction runs on it.
type grid [][]string

func gridFrom(sh *xlsx.Sheet) grid {
	g := make(grid, sh.MaxRow)
	for r := 0; r < sh.MaxRow; r++ {
		row := make([]string, sh.MaxCol)
		for c := 0; c < sh.MaxCol; c++ {
			row[c] = strings.TrimSpace(sh.Cell(r, c).Value)
		}
		g[r] = row
	}
	return g
}

func (g grid) cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}
	return g[r][c]
}

func (g grid) rowBlank(r int) bool {
	if r < 0 || r >= len(g) {
		return true
	}
	for _, v := range g[r] {
		if v != "" {
			return false
		}
	}
	return true
}

// metadata captured from the top of a sheet.
type metadata struct {
	field       string
	periodStart time.Time
	periodEnd   time.Time
}

// extractMetadata reads field and period from the first rows by label
// proximity: the value is the remainder of the cell after the label, or
// the next non-empty cell to the right.
func extractMetadata(g grid) metadata {
	var m metadata
	limit := metadataScanRows
	if limit > len(g) {
		limit = len(g)
	}
	for r := 0; r < limit; r++ {
		for c := range g[r] {
			raw := g.cell(r, c)
			lower := strings.ToLower(raw)
			switch {
			case strings.HasPrefix(lower, "field:") || lower == "field":
				if v := labelValue(g, r, c, raw, "field"); v != "" {
					m.field = v
				}
			case strings.HasPrefix(lower, "period:") || lower == "period":
				v := labelValue(g, r, c, raw, "period")
				if start, end, ok := parsePeriod(v); ok {
					m.periodStart, m.periodEnd = start, end
				}
			}
		}
	}
	return m
}

func labelValue(g grid, r, c int, raw, label string) string {
	rest := strings.TrimSpace(raw[min(len(raw), len(label)):])
	rest = strings.TrimPrefix(rest, ":")
	if v := strings.TrimSpace(rest); v != "" {
		return v
	}
	for cc := c + 1; cc < c+4; cc++ {
		if v := g.cell(r, cc); v != "" {
			return v
		}
	}
	return ""
}

// parsePeriod splits "<ts> till <ts>" and parses both ends.
func parsePeriod(v string) (time.Time, time.Time, bool) {
	lower := strings.ToLower(v)
	idx := strings.Index(lower, " till ")
	if idx < 0 {
		return time.Time{}, time.Time{}, false
	}
	start, ok1 := parse.Timestamp(v[:idx])
	end, ok2 := parse.Timestamp(v[idx+len(" till "):])
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// anchorAt reports the block name when the cell text starts with an anchor
// phrase.
func anchorAt(text string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, a := range anchors {
		if strings.HasPrefix(lower, a.phrase) {
			return a.block, true
		}
	}
	return "", false
}

func (g grid) rowIsAnchor(r int) bool {
	if r < 0 || r >= len(g) {
		return false
	}
	for _, v := range g[r] {
		if _, ok := anchorAt(v); ok {
			return true
		}
	}
	return false
}

// parseBlocks extracts every anchor block; when none exist it falls back
// to the flat label/value layout.
func parseBlocks(g grid, sheetName string, meta metadata, displayName string, out *parse.Outcome) {
	found := 0
	for r := 0; r < len(g); r++ {
		for c := range g[r] {
			block, ok := anchorAt(g.cell(r, c))
			if !ok {
				continue
			}
			found++
			parseBlock(g, r, block, sheetName, meta, out)
			break // one anchor per row
		}
	}
	if found == 0 {
		parseFlat(g, sheetName, meta, displayName, out)
	}
}

// parseBlock walks one anchor block: tag row, unit column, then variable
// rows until the terminator.
func parseBlock(g grid, anchorRow int, block string, sheetName string, meta metadata, out *parse.Outcome) {
	tagRow, tags := findTagRow(g, anchorRow)
	if tagRow < 0 {
		out.Warn(fmt.Sprintf("block %q at row %d: no asset-tag row within %d rows", block, anchorRow+1, tagRowScanDepth))
		return
	}
	firstTagCol := tags[0].col
	unitCol := findUnitColumn(g, tagRow, firstTagCol)

	records := make(map[string]*parse.SheetBlockRecord, len(tags))
	order := make([]string, 0, len(tags))
	for _, tc := range tags {
		if _, dup := records[tc.tag]; dup {
			continue
		}
		records[tc.tag] = &parse.SheetBlockRecord{
			Block:       block,
			AssetTag:    tc.tag,
			SheetName:   sheetName,
			Field:       meta.field,
			PeriodStart: meta.periodStart,
			PeriodEnd:   meta.periodEnd,
		}
		order = append(order, tc.tag)
	}

	blanks := 0
	for r := tagRow + 1; r < len(g); r++ {
		if g.rowBlank(r) {
			blanks++
			if blanks >= blankRowStop {
				break
			}
			continue
		}
		if g.rowIsAnchor(r) {
			break
		}
		blanks = 0

		label := rowLabel(g, r, firstTagCol, unitCol)
		if label == "" {
			continue
		}
		unit := ""
		if unitCol >= 0 {
			unit = g.cell(r, unitCol)
		}
		name := CanonicalName(label)
		for _, tc := range tags {
			raw := g.cell(r, tc.col)
			v, ok := parse.Number(raw)
			if !ok {
				out.Warn(fmt.Sprintf("block %q row %d tag %s: unparseable value %q for %s", block, r+1, tc.tag, raw, label))
				continue
			}
			if v == nil {
				continue // recognized absent marker
			}
			rec := records[tc.tag]
			rec.Values = append(rec.Values, parse.SheetValue{
				Name:     name,
				RawLabel: label,
				Value:    v,
				Unit:     unit,
			})
		}
	}

	for _, tag := range order {
		rec := records[tag]
		if len(rec.Values) == 0 {
			continue
		}
		out.Records = append(out.Records, *rec)
	}
}

type tagCol struct {
	col int
	tag string
}

// findTagRow scans below the anchor for a row holding at least two cells
// matching the asset-tag grammar.
func findTagRow(g grid, anchorRow int) (int, []tagCol) {
	for r := anchorRow + 1; r <= anchorRow+tagRowScanDepth && r < len(g); r++ {
		var tags []tagCol
		for c := range g[r] {
			if domain.IsAssetTag(g.cell(r, c)) {
				tags = append(tags, tagCol{col: c, tag: g.cell(r, c)})
			}
		}
		if len(tags) >= minTagsInRow {
			return r, tags
		}
	}
	return -1, nil
}

// findUnitColumn locates the unit column: the nearest column left of the
// first tag column whose cells in the data rows carry a unit marker.
func findUnitColumn(g grid, tagRow, firstTagCol int) int {
	for c := firstTagCol - 1; c >= 0; c-- {
		for r := tagRow + 1; r <= tagRow+12 && r < len(g); r++ {
			if isUnit(g.cell(r, c)) {
				return c
			}
		}
	}
	return -1
}

func isUnit(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return false
	}
	for _, m := range unitMarkers {
		if lower == m || strings.HasPrefix(lower, m+"/") {
			return true
		}
	}
	return false
}

// rowLabel finds the variable label: the first non-empty cell left of the
// unit column (or of the first tag column when no unit column exists).
func rowLabel(g grid, r, firstTagCol, unitCol int) string {
	limit := firstTagCol
	if unitCol >= 0 {
		limit = unitCol
	}
	for c := 0; c < limit; c++ {
		if v := g.cell(r, c); v != "" {
			return v
		}
	}
	return ""
}
