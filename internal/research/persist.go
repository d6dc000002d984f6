// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// TimestampLayout names artifact files.
const TimestampLayout = "20060102_150405"

const (
	maxDraftLinks     = 10
	maxMaterialLinks  = 6
	defaultDraftTitle = "Research draft"
)

// Slug keeps letters, digits, spaces, hyphens and underscores, turns
// spaces into underscores, and clips to max runes.
func Slug(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	slug := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	slug = clipRunes(slug, max)
	if slug == "" {
		return "research"
	}
	return slug
}

// handoff is the hand-off file naming a run's artifacts.
type handoff struct {
	Draft  string `json:"draft"`
	State  string `json:"state"`
	Report string `json:"report,omitempty"`
}

// save writes the state snapshot, the draft and, when enabled, the final
// Markdown, followed by a hand-off file. Each failure is logged and
// skipped; the returned handle names only files that were written.
func (e *Engine) save(state *types.ResearchState, report string) types.ArtifactHandle {
	var h types.ArtifactHandle

	dir, err := filepath.Abs(e.cfg.OutputDir)
	if err != nil {
		dir = e.cfg.OutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.log.Warn().Err(err).Str("dir", dir).Msg("cannot create research output directory")
		return h
	}

	stem := Slug(state.Query, 60) + "_" + e.now().Format(TimestampLayout)

	statePath := filepath.Join(dir, "state_"+stem+".json")
	if err := writeJSON(statePath, state); err != nil {
		e.log.Warn().Err(err).Str("path", statePath).Msg("saving research state failed")
	} else {
		h.StatePath = statePath
		fmt.Fprintf(e.out, "state saved to %s\n", statePath)
	}

	draftPath := filepath.Join(dir, "draft_"+stem+".md")
	if err := os.WriteFile(draftPath, []byte(BuildDraft(state)), 0o644); err != nil {
		e.log.Warn().Err(err).Str("path", draftPath).Msg("saving research draft failed")
	} else {
		h.DraftPath = draftPath
		fmt.Fprintf(e.out, "draft saved to %s\n", draftPath)
	}

	if e.cfg.SaveFinalMarkdown && strings.TrimSpace(report) != "" {
		reportPath := filepath.Join(dir, "report_"+stem+".md")
		if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
			e.log.Warn().Err(err).Str("path", reportPath).Msg("saving final markdown failed")
		} else {
			h.ReportPath = reportPath
		}
	}

	if !h.Empty() {
		handoffPath := filepath.Join(dir, "handoff_"+stem+".json")
		if err := writeJSON(handoffPath, handoff{Draft: h.DraftPath, State: h.StatePath, Report: h.ReportPath}); err != nil {
			e.log.Warn().Err(err).Str("path", handoffPath).Msg("saving hand-off file failed")
		}
	}
	return h
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

// BuildDraft renders the Markdown draft: the title, then per section its
// latest summary and up to ten unique source URLs.
func BuildDraft(state *types.ResearchState) string {
	title := firstNonEmpty(state.ReportTitle, state.Query, defaultDraftTitle)
	lines := []string{"# " + title, ""}

	for i, p := range state.Paragraphs {
		lines = append(lines, "## "+firstNonEmpty(p.Title, fmt.Sprintf("Section %d", i+1)), "")
		if s := strings.TrimSpace(p.Research.LatestSummary); s != "" {
			lines = append(lines, s, "")
		}
		if urls := uniqueURLs(p.Research.SearchHistory, maxDraftLinks); len(urls) > 0 {
			lines = append(lines, "Sources:")
			for _, u := range urls {
				lines = append(lines, "- "+u)
			}
			lines = append(lines, "")
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

// AssembleMaterials renders a research state as report material: a
// level-3 heading per section, its summary (or brief), and up to six
// reference links taken from the search history.
func AssembleMaterials(state *types.ResearchState) string {
	if state == nil {
		return ""
	}
	var b strings.Builder
	for i, p := range state.Paragraphs {
		fmt.Fprintf(&b, "### %s\n", firstNonEmpty(p.Title, fmt.Sprintf("Section %d", i+1)))
		body := firstNonEmpty(strings.TrimSpace(p.Research.LatestSummary), strings.TrimSpace(p.Content), "(no material collected for this section)")
		b.WriteString(body)
		b.WriteString("\n")
		if urls := uniqueURLs(p.Research.SearchHistory, maxMaterialLinks); len(urls) > 0 {
			b.WriteString("Reference links:\n")
			for _, u := range urls {
				fmt.Fprintf(&b, "- %s\n", u)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func uniqueURLs(history []types.SearchRecord, max int) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, rec := range history {
		for _, u := range rec.URLs() {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
			if len(urls) >= max {
				return urls
			}
		}
	}
	return urls
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// LoadState reads a state snapshot written by a research run.
func LoadState(path string) (*types.ResearchState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var state types.ResearchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing state %s: %w", filepath.Base(path), err)
	}
	return &state, nil
}

// LatestArtifacts finds the newest research artifacts in dir. The newest
// hand-off file wins when its files still exist; otherwise the newest
// draft and newest state are paired.
func LatestArtifacts(dir string) (types.ArtifactHandle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.ArtifactHandle{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var handoffs, drafts, states []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "handoff_") && strings.HasSuffix(name, ".json"):
			handoffs = append(handoffs, filepath.Join(dir, name))
		case strings.HasPrefix(name, "draft_") && strings.HasSuffix(name, ".md"):
			drafts = append(drafts, filepath.Join(dir, name))
		case strings.HasPrefix(name, "state_") && strings.HasSuffix(name, ".json"):
			states = append(states, filepath.Join(dir, name))
		}
	}

	for _, path := range newestFirst(handoffs) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var ho handoff
		if err := json.Unmarshal(data, &ho); err != nil {
			continue
		}
		h := types.ArtifactHandle{DraftPath: existing(ho.Draft), StatePath: existing(ho.State), ReportPath: existing(ho.Report)}
		if !h.Empty() {
			return h, nil
		}
	}

	var h types.ArtifactHandle
	if d := newestFirst(drafts); len(d) > 0 {
		h.DraftPath = d[0]
	}
	if s := newestFirst(states); len(s) > 0 {
		h.StatePath = s[0]
	}
	return h, nil
}

// newestFirst orders paths by modification time, breaking ties by name
// (names carry the run timestamp).
func newestFirst(paths []string) []string {
	type entry struct {
		path string
		mod  time.Time
	}
	list := make([]entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		list = append(list, entry{p, info.ModTime()})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].mod.Equal(list[j].mod) {
			return list[i].mod.After(list[j].mod)
		}
		return list[i].path > list[j].path
	})
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.path
	}
	return out
}

func existing(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
