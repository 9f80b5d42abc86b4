package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFBytes bounds how much of an uploaded document is buffered for
// extraction; the pdf reader needs the whole file in memory.
const maxPDFBytes = 20 << 20

// ExtractText extracts plain text from a PDF. The result is sanitized to
// valid UTF-8 with NUL bytes removed, because it flows into JSON embedding
// requests and database text columns. Returns an empty string and nil error
// when the PDF has no extractable text.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxPDFBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	if len(b) > maxPDFBytes {
		return "", fmt.Errorf("pdf exceeds %d bytes", maxPDFBytes)
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(out), "")
	return strings.ReplaceAll(text, "\x00", ""), nil
}
