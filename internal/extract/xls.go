package extract

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/shakinm/xlsReader/xls/structure"

	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

func extractXLS(data []byte) (document.ExtractedText, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return document.ExtractedText{}, corrupt(FormatXLS, err)
	}

	var sb strings.Builder
	n := wb.GetNumberSheets()
	for i := 0; i < n; i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil {
			return document.ExtractedText{}, corrupt(FormatXLS, err)
		}
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, len(sheet.GetRows()))
		for _, row := range sheet.GetRows() {
			if row == nil {
				continue
			}
			rows = append(rows, xlsCells(row.GetCols()))
		}
		writeSheet(&sb, sheet.GetName(), rows)
	}

	out := document.ExtractedText{Text: sb.String()}
	out.SetMeta(document.MetaSheets, strconv.Itoa(n))
	return out, nil
}

func xlsCells(cols []structure.CellData) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		val := col.GetString()
		if val == "" {
			if f := col.GetFloat64(); f != 0 {
				val = strconv.FormatFloat(f, 'f', -1, 64)
			} else if n := col.GetInt64(); n != 0 {
				val = strconv.FormatInt(n, 10)
			}
		}
		out = append(out, val)
	}
	return out
}
