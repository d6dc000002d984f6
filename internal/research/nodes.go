// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"encoding/json"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/jsonx"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// searchPlan is a query node's decision.
type searchPlan struct {
	Query     string
	Tool      string
	Reasoning string
	StartDate string
	EndDate   string
}

// parseStructure reads the outline returned by the structure call. It
// accepts an object with a paragraphs (or sections) list, or a bare list.
// Entries without a title are dropped.
func parseStructure(raw string) (title string, paragraphs []types.Paragraph) {
	v, err := jsonx.Find(jsonx.Clean(raw))
	if err != nil {
		return "", nil
	}
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return "", nil
	}

	var items []any
	switch d := decoded.(type) {
	case []any:
		items = d
	case map[string]any:
		title = jsonx.String(d, "report_title", "title")
		for _, key := range []string{"paragraphs", "sections", "outline"} {
			if list, ok := d[key].([]any); ok {
				items = list
				break
			}
		}
	}

	for _, item := range items {
		switch it := item.(type) {
		case map[string]any:
			t := jsonx.String(it, "title", "heading", "name")
			if t == "" {
				continue
			}
			paragraphs = append(paragraphs, types.Paragraph{
				Title:   t,
				Content: jsonx.String(it, "content", "description", "brief"),
			})
		case string:
			if t := strings.TrimSpace(it); t != "" {
				paragraphs = append(paragraphs, types.Paragraph{Title: t})
			}
		}
	}
	return title, paragraphs
}

// defaultParagraph stands in when the outline comes back empty.
func defaultParagraph(query string) types.Paragraph {
	return types.Paragraph{
		Title:   clipRunes(query, 80),
		Content: "Overview, recent developments, and key facts about: " + query,
	}
}

// parseSearchPlan reads a query node's answer. An unknown or missing tool
// becomes the basic tool, and an empty query falls back to seed clipped to
// 80 runes.
func parseSearchPlan(raw, seed string) searchPlan {
	var plan searchPlan
	if m, err := jsonx.Object(jsonx.Clean(raw)); err == nil {
		plan = searchPlan{
			Query:     jsonx.String(m, "search_query", "query", "q"),
			Tool:      jsonx.String(m, "search_tool", "tool"),
			Reasoning: jsonx.String(m, "reasoning", "why"),
			StartDate: jsonx.String(m, "start_date"),
			EndDate:   jsonx.String(m, "end_date"),
		}
	}
	if !types.IsSearchTool(plan.Tool) {
		plan.Tool = types.ToolBasicSearch
	}
	if plan.StartDate == "" || plan.EndDate == "" {
		plan.StartDate, plan.EndDate = "", ""
	}
	if plan.Query == "" {
		plan.Query = clipRunes(strings.TrimSpace(seed), 80)
	}
	return plan
}

// summaryText pulls the section text out of a summary node's answer. It
// looks for key, then text or content, in a JSON object (or the first
// object of a list, or a list of strings). Anything else yields the
// cleaned raw text so no output is dropped.
func summaryText(raw, key string) string {
	cleaned := jsonx.Clean(raw)
	v, err := jsonx.Find(cleaned)
	if err != nil {
		return cleaned
	}
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return cleaned
	}

	switch d := decoded.(type) {
	case map[string]any:
		if s := jsonx.String(d, key, "text", "content"); s != "" {
			return s
		}
	case []any:
		if len(d) == 0 {
			break
		}
		if first, ok := d[0].(map[string]any); ok {
			if s := jsonx.String(first, key, "text", "content"); s != "" {
				return s
			}
			break
		}
		var lines []string
		for _, item := range d {
			s, ok := item.(string)
			if !ok {
				lines = nil
				break
			}
			if s = strings.TrimSpace(s); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return cleaned
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
