// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// reportState is written next to every report.
type reportState struct {
	Query      string             `json:"query"`
	Title      string             `json:"title"`
	Template   string             `json:"template,omitempty"`
	Format     types.OutputFormat `json:"format"`
	HTMLPath   string             `json:"html_path,omitempty"`
	ReportPath string             `json:"report_path"`
	Bytes      int64              `json:"bytes"`
	Fallback   string             `json:"fallback,omitempty"`
	Outline    []string           `json:"outline,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Sources    sourceSummary      `json:"sources"`
}

type sourceSummary struct {
	DraftPath    string `json:"draft_path,omitempty"`
	StatePath    string `json:"state_path,omitempty"`
	DraftChars   int    `json:"draft_chars"`
	MediaChars   int    `json:"media_chars"`
	InsightChars int    `json:"insight_chars"`
	ForumChars   int    `json:"forum_chars"`
}

// outputPath names final_report_<slug>_<ts><ext> in the output directory.
func (e *Engine) outputPath(title string, format types.OutputFormat) string {
	name := "final_report_" + research.Slug(title, 30) + "_" + e.now().Format(research.TimestampLayout) + format.Ext()
	return filepath.Join(e.cfg.OutputDir, name)
}

// saveState writes report_state_<slug>_<ts>.json. Failures are logged and
// yield an empty path.
func (e *Engine) saveState(query string, req Request, src Sources, res Result, outline []string) string {
	st := reportState{
		Query:      query,
		Title:      res.Title,
		Template:   res.Template,
		Format:     res.Format,
		ReportPath: res.Path,
		Bytes:      res.Bytes,
		Fallback:   res.Fallback,
		Outline:    outline,
		CreatedAt:  e.now(),
		Sources: sourceSummary{
			DraftPath:    req.Artifacts.DraftPath,
			StatePath:    req.Artifacts.StatePath,
			DraftChars:   runeCount(src.Draft),
			MediaChars:   runeCount(src.Media),
			InsightChars: runeCount(src.Insight),
			ForumChars:   runeCount(src.ForumLogs),
		},
	}
	if res.Format == types.OutputHTML {
		st.HTMLPath = res.Path
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		e.log.Warn().Err(err).Msg("encoding report state failed")
		return ""
	}
	path := filepath.Join(e.cfg.OutputDir, "report_state_"+research.Slug(firstNonEmpty(query, res.Title), 60)+"_"+e.now().Format(research.TimestampLayout)+".json")
	if _, err := writeFile(path, data); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("saving report state failed")
		return ""
	}
	return path
}

func runeCount(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
