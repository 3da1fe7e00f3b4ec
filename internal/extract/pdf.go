package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

var pdfInfoKeys = []struct {
	pdf  string
	meta string
}{
	{"Title", document.MetaTitle},
	{"Author", document.MetaAuthor},
	{"Subject", document.MetaSubject},
	{"Keywords", document.MetaKeywords},
	{"Creator", document.MetaCreator},
	{"Producer", document.MetaProducer},
}

func extractPDF(data []byte, maxPages int) (document.ExtractedText, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return document.ExtractedText{}, corrupt(FormatPDF, err)
	}

	out := document.ExtractedText{PageCount: r.NumPage()}

	pages := out.PageCount
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() || p.V.Key("Contents").IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return document.ExtractedText{}, corrupt(FormatPDF, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	out.Text = sb.String()

	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		for _, k := range pdfInfoKeys {
			out.SetMeta(k.meta, info.Key(k.pdf).Text())
		}
	}

	return out, nil
}
