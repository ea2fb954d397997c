package sheet

import (
	"fmt"
	"strings"

	"github.com/tealeg/xlsx"
)

// Sample returns a bounded text sample of the preferred sheet for content
// sniffing: sheet names plus the first rows joined into one string.
func Sample(path string) (string, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %w", path, err)
	}

	var sb strings.Builder
	for _, sh := range wb.Sheets {
		sb.WriteString(sh.Name)
		sb.WriteByte('\n')
	}
	sh := selectSheet(wb)
	if sh == nil {
		return sb.String(), nil
	}

	const sampleRows = 30
	rows := sh.MaxRow
	if rows > sampleRows {
		rows = sampleRows
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < sh.MaxCol; c++ {
			if v := strings.TrimSpace(sh.Cell(r, c).Value); v != "" {
				sb.WriteString(v)
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
