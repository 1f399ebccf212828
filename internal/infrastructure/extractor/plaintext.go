package extractor

import (
	"bytes"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readPlainText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &domain.ProcessingError{Operation: "read text file", Err: err}
	}
	text, err := decodeText(raw)
	if err != nil {
		return "", &domain.ProcessingError{Operation: "decode text file", Err: err}
	}
	return strings.TrimSpace(text), nil
}

// decodeText tries UTF-8 first and falls back to latin-1, which accepts every byte sequence.
func decodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
