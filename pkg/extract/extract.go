// Package extract turns stored documents into plain text for prompts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnsupported is returned for document types an Extractor cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor reads the text of a document.
type Extractor interface {
	Extract(ctx context.Context, path, mime string) (string, error)
}

// defaultMaxBytes bounds how much of a document PlainText reads.
const defaultMaxBytes = 4 << 20

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".log":  true,
	".html": true,
	".htm":  true,
	".xml":  true,
	".yaml": true,
	".yml":  true,
}

// PlainText extracts text formats as-is. A UTF-8 byte order mark is removed
// and invalid UTF-8 is replaced with U+FFFD.
type PlainText struct {
	MaxBytes int64
}

// NewPlainText returns a PlainText extractor with the default read limit.
func NewPlainText() *PlainText {
	return &PlainText{MaxBytes: defaultMaxBytes}
}

// Supports reports whether the document is a text format.
func (p *PlainText) Supports(path, mime string) bool {
	mime = strings.ToLower(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch {
	case strings.HasPrefix(mime, "text/"):
		return true
	case mime == "application/json", mime == "application/xml", mime == "application/x-yaml":
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

func (p *PlainText) Extract(ctx context.Context, path, mime string) (string, error) {
	if !p.Supports(path, mime) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	limit := p.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(io.LimitReader(f, limit), dec))
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Truncate cuts text to at most limit runes, marking the cut.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "\n...[content truncated]"
}
