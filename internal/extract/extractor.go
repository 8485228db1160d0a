// Package extract provides text extraction from uploaded document bytes.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFileType is returned for extensions outside the allow-list.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrExtractionFailed is returned when a supported file cannot be parsed
// (corrupt bytes, unreadable encoding).
var ErrExtractionFailed = errors.New("text extraction failed")

// Extractor extracts plain text from uploaded files by extension.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether the filename's extension is on the allow-list
// (txt, pdf, docx). The check is case-insensitive.
func (e *Extractor) Supported(filename string) bool {
	switch normalizeExt(filename) {
	case ".txt", ".pdf", ".docx":
		return true
	default:
		return false
	}
}

// Extract returns the text content of the file. The format is selected by the
// filename's extension; unsupported extensions fail with ErrUnsupportedFileType
// before any parsing. Parsing failures wrap ErrExtractionFailed.
func (e *Extractor) Extract(content []byte, filename string) (string, error) {
	switch normalizeExt(filename) {
	case ".txt":
		return extractPlain(content)
	case ".pdf":
		text, err := extractPDF(content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return text, nil
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(filename))
	}
}

func normalizeExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
