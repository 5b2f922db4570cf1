package extract

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as a heading followed by tab-separated rows.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", wrapExtractErr("Excel", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", wrapExtractErr("Excel", err)
		}
		var buf strings.Builder
		buf.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			buf.WriteByte('\n')
			buf.WriteString(line)
		}
		if len(rows) > 0 {
			sheets = append(sheets, buf.String())
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
