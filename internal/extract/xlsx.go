package extract

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

func extractXLSX(data []byte) (document.ExtractedText, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return document.ExtractedText{}, corrupt(FormatXLSX, err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return document.ExtractedText{}, corrupt(FormatXLSX, err)
		}
		writeSheet(&sb, sheet, rows)
	}

	out := document.ExtractedText{Text: sb.String()}
	out.SetMeta(document.MetaSheets, strconv.Itoa(len(sheets)))
	if props, err := f.GetDocProps(); err == nil && props != nil {
		out.SetMeta(document.MetaTitle, props.Title)
		out.SetMeta(document.MetaSubject, props.Subject)
		out.SetMeta(document.MetaAuthor, props.Creator)
		out.SetMeta(document.MetaKeywords, props.Keywords)
	}
	return out, nil
}

// writeSheet renders non-empty rows as tab-separated lines under the sheet name.
func writeSheet(sb *strings.Builder, name string, rows [][]string) {
	var body strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if body.Len() == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(name)
	sb.WriteString("\n")
	sb.WriteString(body.String())
}
