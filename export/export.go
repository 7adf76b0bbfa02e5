// Package export renders the clipboard history as a downloadable document.
//
// Word produces the HTML dialect word processors open as a .doc file.
// Markdown converts the same rendering with html-to-markdown.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/clipkeep/history"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("export: no history to export")

// Content types of the exported documents.
const (
	ContentType         = "application/msword"
	MarkdownContentType = "text/markdown; charset=utf-8"
)

// Format selects the document flavour.
type Format string

const (
	FormatWord     Format = "doc"
	FormatMarkdown Format = "md"
)

// ParseFormat maps a user-supplied name to a Format. "" means Word.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "doc", "word":
		return FormatWord, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return MarkdownContentType
	}
	return ContentType
}

// Render produces the document for f.
func Render(f Format, records []history.Record, now time.Time) ([]byte, error) {
	if f == FormatMarkdown {
		return Markdown(records, now)
	}
	return Word(records, now)
}

// Filename names an export made at now: Clipboard_History_YYYY-MM-DD.<ext>.
func Filename(now time.Time, ext string) string {
	return "Clipboard_History_" + now.UTC().Format("2006-01-02") + "." + strings.TrimPrefix(ext, ".")
}

const (
	stampLayout = "2006-01-02 15:04:05"
	bom         = "\ufeff"
)

var tmpl = template.Must(template.New("doc").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Local().Format(stampLayout) },
	"lines": lines,
}).Parse(`<html xmlns:o='urn:schemas-microsoft-com:office:office' xmlns:w='urn:schemas-microsoft-com:office:word' xmlns='http://www.w3.org/TR/REC-html40'>
<head>
<meta charset='utf-8'>
<title>Clipboard History</title>
<style>
body { font-family: 'Calibri', sans-serif; }
.item { margin-bottom: 20px; padding: 10px; border-bottom: 1px solid #ccc; }
.source a { color: blue; text-decoration: underline; }
.text { background-color: yellow; padding: 5px; display: inline-block; }
.meta { color: #666; font-size: 0.8em; margin-bottom: 5px; }
</style>
</head>
<body>
{{template "body" .}}
</body>
</html>
{{define "body"}}<h1>Clipboard History Export</h1>
<p>Generated on {{stamp .Now}}</p>
<hr/>
{{range .Records}}<div class="item">
<div class="meta">
<strong>Date:</strong> {{stamp .Timestamp}}<br/>
<strong>Source:</strong> <a href="{{.URL}}">{{or .Title .URL}}</a>
</div>
<div class="text">{{lines .Text}}</div>
</div>
{{end}}{{end}}`))

type view struct {
	Now     time.Time
	Records []history.Record
}

// lines escapes text and turns its line breaks into <br/>.
func lines(text string) template.HTML {
	parts := strings.Split(text, "\n")
	for i, p := range parts {
		parts[i] = template.HTMLEscapeString(p)
	}
	return template.HTML(strings.Join(parts, "<br/>"))
}

// Word renders records as a Word-compatible HTML document prefixed with a
// UTF-8 byte order mark.
func Word(records []history.Record, now time.Time) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	var buf bytes.Buffer
	buf.WriteString(bom)
	if err := tmpl.ExecuteTemplate(&buf, "doc", view{Now: now, Records: records}); err != nil {
		return nil, fmt.Errorf("export: render: %w", err)
	}
	return buf.Bytes(), nil
}

var md = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders records as Markdown.
func Markdown(records []history.Record, now time.Time) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "body", view{Now: now, Records: records}); err != nil {
		return nil, fmt.Errorf("export: render: %w", err)
	}
	out, err := md.ConvertString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("export: markdown: %w", err)
	}
	return []byte(strings.TrimSpace(out) + "\n"), nil
}
