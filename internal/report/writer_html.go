// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// HTMLWriter renders a document model locally, without a model call.
type HTMLWriter struct{}

var modelTmpl = template.Must(template.New("model").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Meta.Title}}</title>
<style>
{{.Style}}
</style>
</head>
<body>
<h1>{{.Meta.Title}}</h1>
{{with .Meta.Subtitle}}<p><em>{{.}}</em></p>
{{end}}<p>{{.Meta.Author}}{{if and .Meta.Author .Meta.Date}} · {{end}}{{.Meta.Date}}</p>
{{range .Sections}}<h2>{{.Title}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Bullets}}<ul>
{{range .Bullets}}<li>{{.}}</li>
{{end}}</ul>
{{end}}{{range .Tables}}<table>
{{if .Headers}}<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{end}}{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}{{range .Figures}}<figure><img src="{{.Path}}"{{if .WidthPx}} width="{{.WidthPx}}"{{end}}>{{with .Caption}}<figcaption>{{.}}</figcaption>{{end}}</figure>
{{end}}{{end}}{{if .References}}<h2>References</h2>
<ol>
{{range .References}}<li>{{.}}</li>
{{end}}</ol>
{{end}}</body>
</html>
`))

// Write renders doc to path.
func (HTMLWriter) Write(doc *types.ReportDocumentModel, path string) (int64, error) {
	var buf bytes.Buffer
	err := modelTmpl.Execute(&buf, struct {
		*types.ReportDocumentModel
		Style template.CSS
	}{doc, template.CSS(pageStyle)})
	if err != nil {
		return 0, fmt.Errorf("rendering html: %w", err)
	}
	return writeFile(path, []byte(ensureNonEmptySections(buf.String())))
}
