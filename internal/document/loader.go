package document

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatPDF      = "pdf"
)

var extFormats = map[string]string{
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".csv":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".json":     FormatJSON,
}

var blankLines = regexp.MustCompile(`\n{3,}`)

type Document struct {
	Source string
	Format string
	Text   string
}

// Load reads an uploaded file and extracts its plain text. PDFs are recognised by
// content. Text formats are taken from the extension and checked against the
// sniffed content type.
func Load(name string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	mtype := mimetype.Detect(data)
	if mtype.Is("application/pdf") {
		return loadPDF(name, data)
	}
	if !isText(mtype) {
		return nil, fmt.Errorf("%s is %s: %w", name, mtype.String(), errors.ErrUnsupportedFormat)
	}
	format, ok := extFormats[strings.ToLower(filepath.Ext(name))]
	if !ok {
		format, ok = sniffFormat(mtype)
		if !ok {
			return nil, fmt.Errorf("%s is %s: %w", name, mtype.String(), errors.ErrUnsupportedFormat)
		}
	}
	var text string
	switch format {
	case FormatMarkdown:
		text = markdownText(data)
	case FormatHTML:
		text, err = htmlText(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		text = string(data)
	}
	text = normalize(text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", name, errors.ErrEmptyDocument)
	}
	return &Document{Source: name, Format: format, Text: text}, nil
}

func loadPDF(name string, data []byte) (*Document, error) {
	text, err := pdfText(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", name, errors.ErrInvalid, err)
	}
	text = normalize(text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", name, errors.ErrEmptyDocument)
	}
	return &Document{Source: name, Format: FormatPDF, Text: text}, nil
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func sniffFormat(mtype *mimetype.MIME) (string, bool) {
	switch {
	case mtype.Is("text/html"):
		return FormatHTML, true
	case mtype.Is("application/json"):
		return FormatJSON, true
	case mtype.Is("text/plain"):
		return FormatText, true
	}
	if isText(mtype) {
		return FormatText, true
	}
	return "", false
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
