// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	defaultDocTitle   = "Research report"
	defaultDocAuthor  = "Auto Researcher"
	bodySectionTitle  = "Body"
	noContentText     = "(no content available)"
	sourcesLineHeader = "sources:"
)

var (
	sectionHeading = regexp.MustCompile(`^#{2,3}\s+`)
	tableSeparator = regexp.MustCompile(`^\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?$`)
	bareURL        = regexp.MustCompile(`^https?://\S+$`)
)

// ModelInput names the material a document model is built from. Paths
// that are empty or missing are skipped; Text is used only without a
// draft file.
type ModelInput struct {
	StatePath string
	DraftPath string
	Text      string
	Meta      types.DocumentMeta
}

// stateFile reads both research state snapshots and state files that
// already carry structured sections.
type stateFile struct {
	types.ResearchState
	Sections []struct {
		Title      string   `json:"title"`
		Heading    string   `json:"heading"`
		Paragraphs []string `json:"paragraphs"`
		Bullets    []string `json:"bullets"`
	} `json:"sections"`
	References []string `json:"references"`
	Refs       []string `json:"refs"`
	Citations  []string `json:"citations"`
}

// BuildModel assembles a ReportDocumentModel. Explicit state sections are
// merged with draft sections by title; without them the draft (or Text)
// is parsed, and research paragraphs are used only when there is no draft.
// The result always has at least one section.
func BuildModel(in ModelInput, now time.Time) (*types.ReportDocumentModel, error) {
	var (
		sections  []types.Section
		refs      []string
		fromState []types.Section
		title     string
	)

	if in.StatePath != "" && fileExists(in.StatePath) {
		data, err := os.ReadFile(in.StatePath)
		if err != nil {
			return nil, fmt.Errorf("reading state: %w", err)
		}
		var st stateFile
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("parsing state: %w", err)
		}
		title = st.ReportTitle
		for _, list := range [][]string{st.References, st.Refs, st.Citations} {
			if len(list) > 0 {
				refs = list
				break
			}
		}
		for _, s := range st.Sections {
			sections = append(sections, types.Section{
				Title:      firstNonEmpty(s.Title, s.Heading, "Untitled section"),
				Paragraphs: s.Paragraphs,
				Bullets:    s.Bullets,
			})
		}
		for _, p := range st.Paragraphs {
			fromState = append(fromState, types.Section{
				Title:      p.Title,
				Paragraphs: splitParagraphs(firstNonEmpty(p.Research.LatestSummary, p.Content)),
			})
		}
	}

	md := in.Text
	if in.DraftPath != "" && fileExists(in.DraftPath) {
		data, err := os.ReadFile(in.DraftPath)
		if err != nil {
			return nil, fmt.Errorf("reading draft: %w", err)
		}
		md = string(data)
	}

	if strings.TrimSpace(md) != "" {
		parsed, mdTitle, urls := parseMarkdown(md)
		title = firstNonEmpty(title, mdTitle)
		if len(refs) == 0 {
			refs = urls
		}
		sections = mergeSections(sections, parsed)
	} else if len(sections) == 0 {
		sections = fromState
	}

	if len(sections) == 0 {
		sections = []types.Section{{Title: bodySectionTitle, Paragraphs: []string{firstNonEmpty(in.Text, noContentText)}}}
	}

	meta := in.Meta
	meta.Title = firstNonEmpty(meta.Title, title, defaultDocTitle)
	meta.Author = firstNonEmpty(meta.Author, defaultDocAuthor)
	meta.Date = firstNonEmpty(meta.Date, now.Format("2006-01-02"))

	return &types.ReportDocumentModel{Meta: meta, Sections: sections, References: refs}, nil
}

// mergeSections appends the content of parsed sections to base sections
// with the same title and adds the rest at the end.
func mergeSections(base, parsed []types.Section) []types.Section {
	if len(base) == 0 {
		return parsed
	}
	index := make(map[string]int, len(base))
	for i, s := range base {
		index[s.Title] = i
	}
	for _, p := range parsed {
		if i, ok := index[p.Title]; ok {
			base[i].Paragraphs = append(base[i].Paragraphs, p.Paragraphs...)
			base[i].Bullets = append(base[i].Bullets, p.Bullets...)
			base[i].Tables = append(base[i].Tables, p.Tables...)
			continue
		}
		base = append(base, p)
	}
	return base
}

// parseMarkdown splits md at ##/### headings. "- " and "* " lines become
// bullets, pipe tables become tables, and other lines become paragraphs.
// Source-list URLs are collected as references rather than bullets. Lines
// before the first heading go to a "Body" section.
func parseMarkdown(md string) (sections []types.Section, title string, urls []string) {
	var cur *types.Section
	var table *types.TableData
	seen := make(map[string]bool)

	current := func() *types.Section {
		if cur == nil {
			sections = append(sections, types.Section{Title: bodySectionTitle})
			cur = &sections[len(sections)-1]
		}
		return cur
	}
	flushTable := func() {
		if table != nil {
			s := current()
			s.Tables = append(s.Tables, *table)
			table = nil
		}
	}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "|") {
			cells := splitRow(line)
			switch {
			case table == nil:
				table = &types.TableData{Headers: cells}
			case tableSeparator.MatchString(line):
			default:
				table.Rows = append(table.Rows, cells)
			}
			continue
		}
		flushTable()

		switch {
		case line == "":
		case sectionHeading.MatchString(line):
			sections = append(sections, types.Section{Title: strings.TrimSpace(sectionHeading.ReplaceAllString(line, ""))})
			cur = &sections[len(sections)-1]
		case strings.HasPrefix(line, "# "):
			if title == "" {
				title = strings.TrimSpace(line[2:])
			}
		case strings.EqualFold(line, sourcesLineHeader), strings.EqualFold(line, "reference links:"):
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			item := strings.TrimSpace(line[2:])
			if bareURL.MatchString(item) {
				if !seen[item] {
					seen[item] = true
					urls = append(urls, item)
				}
				continue
			}
			s := current()
			s.Bullets = append(s.Bullets, item)
		default:
			s := current()
			s.Paragraphs = append(s.Paragraphs, line)
		}
	}
	flushTable()
	return sections, title, urls
}

func splitRow(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// joinNonEmpty trims parts, drops empty ones and joins the rest with sep.
func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
