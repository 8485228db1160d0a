package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DOCX is a ZIP containing word/document.xml (OOXML). Text lives in
// <w:t>...</w:t> runs; paragraphs are <w:p> elements. We pull all text runs per
// paragraph so content survives arbitrary run/paragraph attributes.
const docxDocumentXMLPath = "word/document.xml"

var (
	wtRun      = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	paragraphs = regexp.MustCompile(`</w:p>`)
)

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	docXML, err := readZipFile(zr, docxDocumentXMLPath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, para := range paragraphs.Split(string(docXML), -1) {
		runs := wtRun.FindAllStringSubmatch(para, -1)
		if len(runs) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		for i, r := range runs {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(r[1]))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
