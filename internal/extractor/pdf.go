package extractor

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// maxPDFPages caps how many pages are read from a single document.
// Invoices are short; anything past this is noise.
const maxPDFPages = 20

// PDFText extracts plain text from a PDF held in memory.
func PDFText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var b strings.Builder
	for n := 0; n < pages; n++ {
		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("reading PDF page %d: %w", n, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", fmt.Errorf("PDF contains no extractable text")
	}

	return result, nil
}

// IsPDF reports whether the attachment looks like a PDF by MIME type or
// filename extension.
func IsPDF(filename, mimeType string) bool {
	if strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}
