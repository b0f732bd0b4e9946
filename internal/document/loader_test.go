package document

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbk2k1/sbk-assistant/internal/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadPlainText(t *testing.T) {
	doc, err := Load("notes.txt", strings.NewReader("\xef\xbb\xbfProject X uses component Y\r\n"))
	require.NoError(t, err)
	require.Equal(t, "notes.txt", doc.Source)
	require.Equal(t, FormatText, doc.Format)
	require.Equal(t, "Project X uses component Y", doc.Text)
}

func TestLoadMarkdown(t *testing.T) {
	src := "# Projects\n\nProject X uses **component Y**\nfor storage.\n\n- item one\n- item two\n\n```go\nfmt.Println(1)\n```\n"
	doc, err := Load("readme.md", strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, doc.Format)
	require.True(t, strings.HasPrefix(doc.Text, "Projects\n\n"))
	require.Contains(t, doc.Text, "Project X uses component Y")
	require.Contains(t, doc.Text, "for storage.")
	require.Contains(t, doc.Text, "item one\nitem two")
	require.True(t, strings.HasSuffix(doc.Text, "fmt.Println(1)"))
	require.NotContains(t, doc.Text, "**")
	require.NotContains(t, doc.Text, "```")
	require.NotContains(t, doc.Text, "# ")
}

func TestLoadHTML(t *testing.T) {
	src := `<html><head><title>About</title><style>p{color:red}</style></head>
<body><h1>Saptarshi</h1><p>Project X uses <b>component Y</b>.</p><script>alert(1)</script></body></html>`
	doc, err := Load("about.html", strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, FormatHTML, doc.Format)
	require.Contains(t, doc.Text, "About")
	require.Contains(t, doc.Text, "Saptarshi")
	require.Contains(t, doc.Text, "Project X uses component Y .")
	require.NotContains(t, doc.Text, "alert")
	require.NotContains(t, doc.Text, "color")
}

func TestLoadSniffsUnknownExtension(t *testing.T) {
	doc, err := Load("upload", strings.NewReader("<!DOCTYPE html><html><body><p>hello</p></body></html>"))
	require.NoError(t, err)
	require.Equal(t, FormatHTML, doc.Format)
	require.Equal(t, "hello", doc.Text)

	doc, err = Load("upload", strings.NewReader("just words"))
	require.NoError(t, err)
	require.Equal(t, FormatText, doc.Format)
}

func TestLoadRejectsBinary(t *testing.T) {
	_, err := Load("report.pdf", strings.NewReader("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj"))
	require.ErrorIs(t, err, errors.ErrUnsupportedFormat)
	require.True(t, errors.IsUnsupported(err))

	_, err = Load("image.txt", strings.NewReader("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.ErrorIs(t, err, errors.ErrUnsupportedFormat)
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load("empty.txt", strings.NewReader("  \n\n "))
	require.ErrorIs(t, err, errors.ErrEmptyDocument)

	_, err = Load("empty.md", strings.NewReader("---\n"))
	require.ErrorIs(t, err, errors.ErrEmptyDocument)
}

func TestLoadPDF(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "project.pdf"))
	require.NoError(t, err)
	for _, name := range []string{"resume.pdf", "upload"} {
		t.Run(name, func(t *testing.T) {
			doc, err := Load(name, bytes.NewReader(raw))
			require.NoError(t, err)
			require.Equal(t, FormatPDF, doc.Format)
			require.Equal(t, name, doc.Source)
			require.Contains(t, doc.Text, "Project X uses component Y")
		})
	}
}

func TestLoadBrokenPDF(t *testing.T) {
	_, err := Load("resume.pdf", strings.NewReader("%PDF-1.4\nnot really a pdf\n"))
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrInvalid)
}
