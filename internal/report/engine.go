// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report turns research material, or raw text, into a finished
// document. HTML is written by the model from a selected outline, under a
// hard timeout with local fallbacks; DOCX and PDF are rendered locally
// from a structured document model.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// ProgressFunc receives a completion percentage as generation advances.
type ProgressFunc func(pct int)

// Sources is the material a report is written from, in priority order.
type Sources struct {
	Draft     string
	Media     string
	Insight   string
	ForumLogs string
}

func (s Sources) empty() bool {
	return strings.TrimSpace(s.Draft+s.Media+s.Insight+s.ForumLogs) == ""
}

// best returns the highest-priority non-empty material, else a topic line.
func (s Sources) best(query string) string {
	if t := firstNonEmpty(s.Draft, s.Media, s.Insight, s.ForumLogs); t != "" {
		return t
	}
	if query == "" {
		return ""
	}
	return "topic: " + query
}

// Request describes one report.
type Request struct {
	Query        string
	TemplateHint string
	Format       types.OutputFormat
	Sources      Sources
	// Artifacts supplies a research draft and state when Sources.Draft is
	// empty.
	Artifacts types.ArtifactHandle
}

// Result describes a written report.
type Result struct {
	Path      string             `json:"path"`
	Format    types.OutputFormat `json:"format"`
	Bytes     int64              `json:"bytes"`
	Title     string             `json:"title"`
	Template  string             `json:"template,omitempty"`
	StatePath string             `json:"state_path,omitempty"`
	Fallback  string             `json:"fallback,omitempty"`
}

// Engine generates reports. It may serve concurrent requests.
type Engine struct {
	llm     llm.Invoker
	catalog *Catalog
	cfg     types.ReportConfig
	fonts   []Font
	out     io.Writer
	log     zerolog.Logger
	now     func() time.Time
}

// New returns an Engine. A template directory that cannot be read is
// logged and replaced by the built-in catalog. inv may be nil, in which
// case HTML is always rendered locally.
func New(inv llm.Invoker, cfg *types.PipelineConfig, w io.Writer) *Engine {
	if w == nil {
		w = io.Discard
	}
	log := logx.With("report")
	catalog, err := CatalogFor(cfg.Report.TemplateDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.Report.TemplateDir).Msg("loading templates failed, using built-in catalog")
		catalog = BuiltinCatalog()
	}
	rc := withDefaults(cfg.Report)
	return &Engine{
		llm:     inv,
		catalog: catalog,
		cfg:     rc,
		fonts:   FontChain(rc.FontPaths),
		out:     w,
		log:     log,
		now:     time.Now,
	}
}

func withDefaults(c types.ReportConfig) types.ReportConfig {
	if c.OutputDir == "" {
		c.OutputDir = "reports/final"
	}
	if c.Timeout <= 0 {
		c.Timeout = 900 * time.Second
	}
	if c.OutputFormat == "" {
		c.OutputFormat = types.OutputHTML
	}
	if c.Author == "" {
		c.Author = defaultDocAuthor
	}
	return c
}

// Catalog returns the templates the engine selects from.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Generate writes one report. HTML generation never fails on model
// errors or timeouts; it degrades to a local document. Writer and file
// errors are returned.
func (e *Engine) Generate(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	format := req.Format
	if format == "" {
		format = e.cfg.OutputFormat
	}
	switch format {
	case types.OutputHTML, types.OutputDOCX, types.OutputPDF:
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	src := e.resolveSources(req)
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = e.queryFromState(req.Artifacts.StatePath)
	}
	if query == "" && src.empty() {
		return Result{}, fmt.Errorf("report needs a query or material")
	}
	title := deriveTitle(firstNonEmpty(query, src.best("")))
	src.Draft = normalizeDraft(title, src.Draft)
	fmt.Fprintf(e.out, "report (%s): %s\n", format, title)

	if format == types.OutputHTML {
		return e.generateHTML(ctx, req, query, title, src, progress)
	}
	return e.generateDocument(req, format, query, title, src, progress)
}

func (e *Engine) generateHTML(ctx context.Context, req Request, query, title string, src Sources, progress ProgressFunc) (Result, error) {
	sel := e.selectTemplate(ctx, query, src.best(""), req.TemplateHint)
	fmt.Fprintf(e.out, "  template: %s (%s)\n", sel.Name, sel.Reason)
	progress(40)

	doc, reason := e.renderHTML(ctx, query, title, sel, src)
	progress(90)

	path := e.outputPath(title, types.OutputHTML)
	n, err := writeFile(path, []byte(doc))
	if err != nil {
		return Result{}, err
	}
	res := Result{Path: path, Format: types.OutputHTML, Bytes: n, Title: title, Template: sel.Name, Fallback: reason}
	res.StatePath = e.saveState(query, req, src, res, Outline(doc))
	fmt.Fprintf(e.out, "  saved %s (%d bytes)\n", path, n)
	progress(100)
	return res, nil
}

func (e *Engine) generateDocument(req Request, format types.OutputFormat, query, title string, src Sources, progress ProgressFunc) (Result, error) {
	model, err := BuildModel(ModelInput{
		StatePath: req.Artifacts.StatePath,
		DraftPath: req.Artifacts.DraftPath,
		Text:      firstNonEmpty(src.Draft, src.Media, src.Insight, src.ForumLogs, query),
		Meta:      types.DocumentMeta{Title: title, Author: e.cfg.Author},
	}, e.now())
	if err != nil {
		return Result{}, fmt.Errorf("building document model: %w", err)
	}
	progress(40)

	w, err := WriterFor(format, e.fonts)
	if err != nil {
		return Result{}, err
	}
	path := e.outputPath(title, format)
	n, err := w.Write(model, path)
	if err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", format, err)
	}
	progress(90)

	res := Result{Path: path, Format: format, Bytes: n, Title: title}
	outline := make([]string, len(model.Sections))
	for i, s := range model.Sections {
		outline[i] = s.Title
	}
	res.StatePath = e.saveState(query, req, src, res, outline)
	fmt.Fprintf(e.out, "  saved %s (%d bytes)\n", path, n)
	progress(100)
	return res, nil
}

// GenerateFromArtifacts runs Generate on the newest research artifacts in
// dir. An empty req.Query is taken from the research state.
func (e *Engine) GenerateFromArtifacts(ctx context.Context, dir string, req Request, progress ProgressFunc) (Result, error) {
	h, err := research.LatestArtifacts(dir)
	if err != nil {
		return Result{}, err
	}
	if h.Empty() {
		return Result{}, fmt.Errorf("no research draft or state in %s", dir)
	}
	req.Artifacts = h
	return e.Generate(ctx, req, progress)
}

// resolveSources fills an empty draft from the artifact draft file, then
// from the research state.
func (e *Engine) resolveSources(req Request) Sources {
	src := req.Sources
	if strings.TrimSpace(src.Draft) != "" {
		return src
	}
	if p := req.Artifacts.DraftPath; p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			e.log.Warn().Err(err).Str("path", p).Msg("loading research draft failed")
		} else if strings.TrimSpace(string(data)) != "" {
			src.Draft = string(data)
			return src
		}
	}
	if p := req.Artifacts.StatePath; p != "" {
		state, err := research.LoadState(p)
		if err != nil {
			e.log.Warn().Err(err).Str("path", p).Msg("loading research state failed")
			return src
		}
		src.Draft = research.BuildDraft(state)
	}
	return src
}

func (e *Engine) queryFromState(path string) string {
	if path == "" {
		return ""
	}
	state, err := research.LoadState(path)
	if err != nil {
		return ""
	}
	return firstNonEmpty(state.ReportTitle, state.Query)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
