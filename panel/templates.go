package panel

import (
	"html/template"
	"strings"

	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/shield"
)

// recordView is the template-friendly projection of a Record.
type recordView struct {
	ID      int64
	Domain  string
	Time    string
	Text    string
	URL     string
	SafeURL bool
}

func newRecordView(r history.Record) recordView {
	return recordView{
		ID:      r.ID,
		Domain:  Domain(r.URL),
		Time:    r.Timestamp.Local().Format("15:04"),
		Text:    r.Text,
		URL:     r.URL,
		SafeURL: isSafeURL(r.URL),
	}
}

type listPage struct {
	Flash   *shield.FlashMessage
	Records []recordView
}

// isSafeURL returns true if the URL uses http or https scheme.
func isSafeURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

const styles = `<style>
body{font-family:system-ui,sans-serif;width:360px;margin:1rem auto;color:#222;background:#fafafa}
header{display:flex;justify-content:space-between;align-items:center;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
h1{font-size:1.2rem;margin:0}
.clipboard-item{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:.75rem;margin:.75rem 0}
.item-header{display:flex;justify-content:space-between;font-size:.8rem;color:#666}
.item-text{white-space:pre-wrap;word-break:break-word;margin:.5rem 0;max-height:8rem;overflow:hidden}
.item-actions{display:flex;justify-content:space-between;align-items:center}
.item-actions form{display:inline}
.empty-state{color:#999;text-align:center;margin-top:2rem}
.flash{padding:.5rem;border-radius:4px;margin:.5rem 0}
.flash.success{background:#e6f4ea}.flash.error{background:#fce8e6}
</style>`

var listTmpl = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Clipboard History</title>` + styles + `</head><body>
<header><h1>Clipboard History</h1>
<nav><a href="/export?format=doc">Export</a> · <a href="/export?format=md">Markdown</a> · <a href="/clear">Clear</a></nav></header>
{{- with .Flash}}
<div class="flash {{.Type}}">{{.Message}}</div>
{{- end}}
<div id="list-container">
{{- if not .Records}}
<div class="empty-state">
<p>No history yet.</p>
<p>Copy text from any website to see it here.</p>
</div>
{{- end}}
{{- range .Records}}
<div class="clipboard-item">
<div class="item-header"><span class="item-source" title="{{.Domain}}">{{.Domain}}</span><span class="item-time">{{.Time}}</span></div>
<div class="item-text">{{.Text}}</div>
<div class="item-actions">
{{- if .SafeURL}}<a href="{{.URL}}" target="_blank" rel="noopener noreferrer" class="link-btn">🔗 Source</a>{{else}}<span></span>{{end}}
<div>
<form method="post" action="/records/{{.ID}}/delete"><button class="delete-btn" title="Remove Item">🗑️</button></form>
<form method="post" action="/records/{{.ID}}/copy"><button class="copy-btn">Copy</button></form>
</div>
</div>
</div>
{{- end}}
</div>
</body></html>`))

var clearTmpl = template.Must(template.New("clear").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><title>Clear history</title>` + styles + `</head><body>
<h1>Clear all history?</h1>
<form method="post" action="/clear">
<input type="hidden" name="confirm" value="yes">
<button type="submit">Clear</button> <a href="/">Cancel</a>
</form>
</body></html>`))
