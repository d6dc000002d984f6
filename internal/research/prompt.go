// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// structureSystem asks for the report outline.
var structureSystem = `You are a research planner. Break the user's research topic into the sections of a concise report.

Respond with a JSON object and nothing else:
{"report_title": "...", "paragraphs": [{"title": "...", "content": "what this section should cover"}]}

Use between 2 and 5 paragraphs, ordered as they should appear in the report. Write titles in the language of the topic.`

var toolList = strings.Join(types.SearchTools, "|")

// searchSystemTmpl is shared by the first-pass and reflection query nodes.
var searchSystemTmpl = template.Must(template.New("search").Parse(`You are a research assistant choosing the next web search.
{{.Task}}

Respond with a JSON object and nothing else:
{"search_query": "...", "search_tool": "one of {{.Tools}}", "reasoning": "one sentence", "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD"}

start_date and end_date are only read by search_news_by_date; omit them otherwise. Keep the query short and specific.`))

var (
	firstSearchSystem = mustRender(searchSystemTmpl, searchPromptData{
		Task:  "Given a report section's title and brief, produce the first search that gathers material for it.",
		Tools: toolList,
	})
	reflectionSystem = mustRender(searchSystemTmpl, searchPromptData{
		Task:  "Given a report section and its current summary, find the most important gap and produce a search that fills it.",
		Tools: toolList,
	})
)

type searchPromptData struct {
	Task  string
	Tools string
}

const firstSummarySystem = `You are a research writer. Using the search results provided, write the body of one report section.

Rules:
- Use only facts supported by the results; name sources inline when useful.
- Write 2 to 4 dense paragraphs in the language of the section title.
- Do not invent numbers, dates, or quotes.

Respond with a JSON object and nothing else:
{"paragraph_latest_state": "the section text"}`

const reflectionSummarySystem = `You are a research writer revising one report section. You receive the current section text and new search results.

Rules:
- Keep everything in the current text that is still correct.
- Integrate the new facts; prefer newer information when sources disagree.
- Do not invent numbers, dates, or quotes.

Respond with a JSON object and nothing else:
{"updated_paragraph_latest_state": "the revised section text"}`

const formattingSystem = `You are an editor assembling a research report from finished sections.

Produce one Markdown document: a level-1 title, then one level-2 heading per section in the given order with its text lightly edited for flow, then a short conclusion. Do not add facts that are not in the sections. Output only the Markdown.`

func mustRender(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		panic(err)
	}
	return buf.String()
}

// payload encodes a node's user message as JSON.
func payload(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

type sectionInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type reflectionInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Latest  string `json:"paragraph_latest_state"`
}

type summaryInput struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	SearchQuery   string `json:"search_query"`
	SearchResults string `json:"search_results"`
	Latest        string `json:"paragraph_latest_state,omitempty"`
}

type finalInput struct {
	ReportTitle string         `json:"report_title"`
	Sections    []finalSection `json:"sections"`
}

type finalSection struct {
	Title   string `json:"title"`
	Summary string `json:"paragraph_latest_state"`
}
