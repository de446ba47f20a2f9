package resume

import (
	"bytes"
	"fmt"
	"html/template"
)

// pdfTemplate A4 单页简历，供无头浏览器打印。
const pdfTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        @page { size: A4; margin: 0; }
        body { margin: 0; font-family: 'Helvetica Neue', Arial, sans-serif; font-size: 11pt; color: #222; }
        .page { width: 794px; min-height: 1122px; padding: 48px; box-sizing: border-box; }
        h1 { margin: 0 0 4px; font-size: 26pt; color: #1f4e79; }
        .level { margin: 0 0 24px; color: #555; font-size: 12pt; }
        h2 { font-size: 13pt; border-bottom: 2px solid #1f4e79; padding-bottom: 4px; margin-top: 28px; }
        ul.tags { list-style: none; padding: 0; margin: 0; }
        ul.tags li { display: inline-block; margin: 0 8px 8px 0; padding: 4px 10px; background: #eef3f8; border-radius: 4px; }
        .highlights { white-space: pre-line; line-height: 1.5; }
    </style>
</head>
<body>
<div class="page">
    <h1>{{.Content.FullName}}</h1>
    {{with .Content.ExperienceLevel}}<p class="level">{{.}}</p>{{end}}
    {{with .Content.CareerHighlights}}
    <h2>Career Highlights</h2>
    <div class="highlights">{{.}}</div>
    {{end}}
    {{with .Content.Skills}}
    <h2>Skills</h2>
    <ul class="tags">{{range .}}<li>{{.}}</li>{{end}}</ul>
    {{end}}
    {{with .Content.Keywords}}
    <h2>Keywords</h2>
    <ul class="tags">{{range .}}<li>{{.}}</li>{{end}}</ul>
    {{end}}
</div>
</body>
</html>`

var pageTemplate = template.Must(template.New("resume").Parse(pdfTemplate))

// RenderHTML 将简历内容渲染为打印用 HTML。
func RenderHTML(title string, content Content) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Title   string
		Content Content
	}{Title: title, Content: content}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render resume html: %w", err)
	}
	return buf.String(), nil
}
