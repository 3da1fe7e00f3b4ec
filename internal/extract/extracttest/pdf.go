// Package extracttest builds small documents for tests of the extractor and
// of the indexing pipeline.
package extracttest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// PDF writes a minimal single-font PDF with one content stream per page.
// An empty page string produces a page without text operators.
func PDF(pages []string, info map[string]string) []byte {
	n := len(pages)
	fontObj := 3 + 2*n
	infoObj := fontObj + 1

	objs := make([]string, 0, infoObj)
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
	)
	for i, text := range pages {
		var content string
		if text != "" {
			var ops []string
			for j, line := range strings.Split(text, "\n") {
				if j == 0 {
					ops = append(ops, fmt.Sprintf("(%s) Tj", line))
					continue
				}
				ops = append(ops, fmt.Sprintf("T* (%s) Tj", line))
			}
			content = "BT /F1 12 Tf 14 TL 72 720 Td " + strings.Join(ops, " ") + " ET"
		}
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var infoDict strings.Builder
	infoDict.WriteString("<<")
	for _, k := range keys {
		fmt.Fprintf(&infoDict, " /%s (%s)", k, info[k])
	}
	infoDict.WriteString(" >>")
	objs = append(objs, infoDict.String())

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, infoObj, xref)
	return buf.Bytes()
}
