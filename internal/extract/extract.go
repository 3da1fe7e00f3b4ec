// Package extract turns uploaded product documents into plain text.
//
// Formats are detected by byte signature, never by file name. Extraction is
// pure: no network, no storage.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

// Format is a detected document format.
type Format string

// Supported formats.
const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatText    Format = "text"
	FormatUnknown Format = ""
)

var (
	sigPDF = []byte("%PDF-")
	sigZIP = []byte("PK\x03\x04")
	sigOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Extractor extracts text from PDF, DOCX, XLSX, XLS and plain-text uploads.
// It is stateless and safe for concurrent use.
type Extractor struct {
	maxPages int
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// WithMaxPages stops PDF extraction after n pages (0 = all). PageCount still reports the full count.
func (e *Extractor) WithMaxPages(n int) *Extractor {
	e.maxPages = n
	return e
}

// Extract detects the document format and returns its text.
// Unknown formats yield domain.ErrUnsupportedFormat; parse failures yield domain.ErrCorruptDocument.
// A document with no extractable text returns an empty Text and no error.
func (e *Extractor) Extract(doc document.Document) (out document.ExtractedText, err error) {
	data := doc.Data()

	format, zr, err := detect(data, doc.ContentType())
	if err != nil {
		return document.ExtractedText{}, err
	}

	// Third-party parsers panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			out = document.ExtractedText{}
			err = fmt.Errorf("%w: %s parser panic: %v", domain.ErrCorruptDocument, format, r)
		}
	}()

	switch format {
	case FormatPDF:
		out, err = extractPDF(data, e.maxPages)
	case FormatDOCX:
		out, err = extractDOCX(zr)
	case FormatXLSX:
		out, err = extractXLSX(data)
	case FormatXLS:
		out, err = extractXLS(data)
	case FormatText:
		out = document.ExtractedText{Text: string(data)}
	default:
		return document.ExtractedText{}, domain.ErrUnsupportedFormat
	}
	if err != nil {
		return document.ExtractedText{}, err
	}

	out.Text = normalize(out.Text)
	out.SetMeta(document.MetaFormat, string(format))
	return out, nil
}

// Detect reports the format Extract would use, without parsing the body.
func Detect(data []byte, contentType string) (Format, error) {
	f, _, err := detect(data, contentType)
	return f, err
}

func corrupt(format Format, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrCorruptDocument, format, err)
}

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
)

// normalize trims the text and collapses runs of blank lines.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = trailingWS.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func isText(data []byte, contentType string) bool {
	if !strings.HasPrefix(contentType, "text/") {
		return false
	}
	return utf8.Valid(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")))
}
