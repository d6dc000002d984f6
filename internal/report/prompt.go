// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"strings"
	"text/template"
)

const (
	maxInputRunes   = 28000
	selectionSample = 1500
	truncatedNotice = "\n\n...[content truncated to bound the input length]"
	htmlMaxTokens   = 8192
)

var selectionTmpl = template.Must(template.New("selection").Parse(`You choose the best outline for a research report.

Available templates:
{{range .}}- {{.Name}}: {{.Description}}
{{end}}
Respond with a JSON object and nothing else:
{"template_name": "one of the names above", "selection_reason": "one sentence"}`))

func selectionSystem(templates []Template) string {
	var buf bytes.Buffer
	if err := selectionTmpl.Execute(&buf, templates); err != nil {
		return ""
	}
	return buf.String()
}

func selectionUser(query, materials string) string {
	var b strings.Builder
	b.WriteString("Topic:\n")
	b.WriteString(firstNonEmpty(query, "(none)"))
	if m := strings.TrimSpace(materials); m != "" {
		b.WriteString("\n\nMaterial excerpt:\n")
		b.WriteString(clipRunes(m, selectionSample))
	}
	return b.String()
}

const htmlSystem = `You are a careful research editor. Turn the research material and outline you receive into a structured, publishable HTML report.

Hard requirements:
1) Output one complete HTML document (<html>...</html>) directly. No Markdown and no explanation text.
2) Objective, concise prose with clear H1/H2/H3 structure.
3) Cite URLs from the material with bracketed numbers [1][2] in the text and list them as hyperlinks, by number, in a References section at the end. Never invent sources.
4) Leave out information the material does not provide. Do not fabricate facts, numbers, or quotes.`

var htmlUserTmpl = template.Must(template.New("html").Parse(`Topic:
{{.Query}}
{{range .Blocks}}
============ {{.Name}} ============
{{.Content}}
{{end}}
Output format:
- Return a complete <html> document.
- Suggested sections: summary, background, evidence, risks and uncertainties, conclusions and recommendations, references.
- Number citations [1][2] and list only URLs that appear in the material under References.`))

type promptBlock struct {
	Name    string
	Content string
}

func htmlUser(query, outline string, src Sources) string {
	data := struct {
		Query  string
		Blocks []promptBlock
	}{Query: firstNonEmpty(query, "Research report")}

	add := func(name, content string) {
		if c := strings.TrimSpace(content); c != "" {
			data.Blocks = append(data.Blocks, promptBlock{Name: name, Content: c})
		}
	}
	add("Outline", outline)
	add("Research material (primary)", clipInput(src.Draft))
	add("Media material", clipInput(src.Media))
	add("Insight material", clipInput(src.Insight))
	add("Discussion log", clipInput(src.ForumLogs))

	var buf bytes.Buffer
	if err := htmlUserTmpl.Execute(&buf, data); err != nil {
		return data.Query
	}
	return buf.String()
}

// clipInput bounds one material block and marks the cut.
func clipInput(s string) string {
	if len([]rune(s)) <= maxInputRunes {
		return s
	}
	return clipRunes(s, maxInputRunes) + truncatedNotice
}
