package extract

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/kailas-cloud/catalogix/internal/domain"
)

// detect sniffs the byte signature. For zip containers it also returns the
// opened archive so DOCX extraction does not parse the central directory twice.
func detect(data []byte, contentType string) (Format, *zip.Reader, error) {
	switch {
	case bytes.HasPrefix(data, sigPDF):
		return FormatPDF, nil, nil
	case bytes.HasPrefix(data, sigOLE):
		return FormatXLS, nil, nil
	case bytes.HasPrefix(data, sigZIP):
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return FormatUnknown, nil, corrupt("zip", err)
		}
		switch {
		case hasEntry(zr, "word/document.xml"):
			return FormatDOCX, zr, nil
		case hasEntry(zr, "xl/workbook.xml"):
			return FormatXLSX, zr, nil
		default:
			return FormatUnknown, nil, domain.ErrUnsupportedFormat
		}
	case isText(data, contentType):
		return FormatText, nil, nil
	default:
		return FormatUnknown, nil, domain.ErrUnsupportedFormat
	}
}

func hasEntry(zr *zip.Reader, name string) bool {
	return findEntry(zr, name) != nil
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}
