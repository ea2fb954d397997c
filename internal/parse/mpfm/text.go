package mpfm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// reportText returns the text layer of a report file. PDF files go through
// the text extractor; .txt dumps are read as-is. No OCR is attempted.
func reportText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read report %s: %w", path, err)
		}
		return string(data), nil
	}
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}
	return sb.String(), nil
}

// FirstPage returns a bounded text sample for content sniffing.
func FirstPage(path string) (string, error) {
	text, err := reportText(path)
	if err != nil {
		return "", err
	}
	const sampleLimit = 4096
	if len(text) > sampleLimit {
		text = text[:sampleLimit]
	}
	return text, nil
}
