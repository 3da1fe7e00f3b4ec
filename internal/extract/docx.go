package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

// coreProps is docProps/core.xml; element names match any namespace.
type coreProps struct {
	Title    string `xml:"title"`
	Subject  string `xml:"subject"`
	Creator  string `xml:"creator"`
	Keywords string `xml:"keywords"`
}

// appProps is docProps/app.xml.
type appProps struct {
	Pages       int    `xml:"Pages"`
	Application string `xml:"Application"`
}

func extractDOCX(zr *zip.Reader) (document.ExtractedText, error) {
	f := findEntry(zr, "word/document.xml")
	if f == nil {
		return document.ExtractedText{}, corrupt(FormatDOCX, errors.New("word/document.xml missing"))
	}
	rc, err := f.Open()
	if err != nil {
		return document.ExtractedText{}, corrupt(FormatDOCX, err)
	}
	defer func() { _ = rc.Close() }()

	text, err := docxText(rc)
	if err != nil {
		return document.ExtractedText{}, corrupt(FormatDOCX, err)
	}
	out := document.ExtractedText{Text: text}

	// Document properties are optional; a broken props part does not fail extraction.
	var core coreProps
	if decodeEntry(zr, "docProps/core.xml", &core) == nil {
		out.SetMeta(document.MetaTitle, core.Title)
		out.SetMeta(document.MetaSubject, core.Subject)
		out.SetMeta(document.MetaAuthor, core.Creator)
		out.SetMeta(document.MetaKeywords, core.Keywords)
	}
	var app appProps
	if decodeEntry(zr, "docProps/app.xml", &app) == nil {
		out.PageCount = app.Pages
		out.SetMeta(document.MetaCreator, app.Application)
	}

	return out, nil
}

func decodeEntry(zr *zip.Reader, name string, v any) error {
	f := findEntry(zr, name)
	if f == nil {
		return errors.New("missing " + name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return xml.NewDecoder(rc).Decode(v)
}

// docxText walks WordprocessingML runs: w:t text, w:tab, w:br, paragraph and table cell ends.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var buf bytes.Buffer
	lastNewline := true

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t", "instrText":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return "", err
				}
				buf.WriteString(s)
				lastNewline = false
			case "tab":
				buf.WriteByte('\t')
			case "br", "cr":
				buf.WriteByte('\n')
				lastNewline = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p", "tr":
				if !lastNewline {
					buf.WriteByte('\n')
					lastNewline = true
				}
			case "tc":
				buf.WriteByte('\t')
			}
		}
	}
	return buf.String(), nil
}
