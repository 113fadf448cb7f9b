package report

import (
	"html/template"
	"strings"
	"time"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"rfc3339": func(t time.Time) string {
		return t.Format(time.RFC3339)
	},
}).Parse(`<html>
<body>
<h2>Load run {{.RunID}} against database {{.Database}}</h2>
<p>Started {{rfc3339 .StartTime}}, finished {{rfc3339 .EndTime}}.</p>
<p>Files attempted {{.Attempted}}, succeeded {{.Succeeded}}, partial {{.Partial}}, failed {{.Failed}}.</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Status</th><th>Schema</th><th>Table</th><th>File</th><th>Mode</th><th>Loaded</th><th>Ignored</th><th>Error</th></tr>
{{range .Outcomes}}<tr>
<td>{{upper .Status}}</td><td>{{.Schema}}</td><td>{{.Table}}</td><td>{{.File}}</td><td>{{.Mode}}</td><td>{{.RowsLoaded}}</td><td>{{.RowsIgnored}}</td><td>{{.Error}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

// RenderHTML renders the tabular HTML report used by the email channel.
func RenderHTML(s Summary) (string, error) {
	var b strings.Builder
	if err := htmlTemplate.Execute(&b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}
