// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research runs the iterative research loop: outline the topic,
// then for each section search, summarize, and refine the summary over
// reflection passes, and finally assemble a narrative. Every run leaves a
// JSON state snapshot and a Markdown draft on disk for the report stage.
package research

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/jsonx"
	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const summaryMaxTokens = 8192

// ProgressFunc receives a completion percentage as the run advances.
type ProgressFunc func(pct int)

// Result is the outcome of one research run.
type Result struct {
	Report    string
	State     *types.ResearchState
	Artifacts types.ArtifactHandle
}

// Engine runs research. It holds no per-run state and may serve
// concurrent runs.
type Engine struct {
	llm        llm.Invoker
	search     search.Tool
	cfg        types.ResearchConfig
	maxContent int
	out        io.Writer
	log        zerolog.Logger
	now        func() time.Time
}

// New returns an Engine. Progress lines are written to w; a nil w
// discards them.
func New(inv llm.Invoker, tool search.Tool, cfg *types.PipelineConfig, w io.Writer) *Engine {
	if w == nil {
		w = io.Discard
	}
	return &Engine{
		llm:        inv,
		search:     tool,
		cfg:        withDefaults(cfg.Research),
		maxContent: cfg.Search.MaxContentLength,
		out:        w,
		log:        logx.With("research"),
		now:        time.Now,
	}
}

func withDefaults(c types.ResearchConfig) types.ResearchConfig {
	if c.OutputDir == "" {
		c.OutputDir = "reports/query_engine"
	}
	if c.MaxReflections < 0 {
		c.MaxReflections = 0
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.QuickTool == "" || !types.IsSearchTool(c.QuickTool) {
		c.QuickTool = types.ToolLast24Hours
	}
	if c.QuickMaxParagraphs <= 0 {
		c.QuickMaxParagraphs = 2
	}
	if c.QuickMaxResults <= 0 {
		c.QuickMaxResults = 5
	}
	return c
}

// Research runs the full loop for query and persists the artifacts.
// Failures in outlining, searching, or summarizing are returned; a failed
// final assembly falls back to concatenated sections, and persistence
// failures are logged without affecting the result.
func (e *Engine) Research(ctx context.Context, query string, progress ProgressFunc) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("research query is empty")
	}
	if progress == nil {
		progress = func(int) {}
	}

	fmt.Fprintf(e.out, "research: %s\n", clipRunes(oneLine(query), 120))
	state := &types.ResearchState{Query: query}
	state.Touch()

	if err := e.structure(ctx, state); err != nil {
		e.log.Error().Err(err).Msg("research outline failed")
		return Result{}, err
	}
	progress(30)

	if err := e.processParagraphs(ctx, state); err != nil {
		e.log.Error().Err(err).Msg("research paragraphs failed")
		return Result{}, err
	}
	progress(80)

	report := e.finalReport(ctx, state)
	progress(90)

	handle := e.save(state, report)
	progress(100)

	return Result{Report: report, State: state, Artifacts: handle}, nil
}

// structure asks for the outline. An empty outline becomes one section
// covering the whole query.
func (e *Engine) structure(ctx context.Context, state *types.ResearchState) error {
	raw, err := e.llm.Invoke(ctx, structureSystem, state.Query)
	if err != nil {
		return fmt.Errorf("generating report structure: %w", err)
	}
	title, paragraphs := parseStructure(raw)
	if len(paragraphs) == 0 {
		e.log.Warn().Msg("outline came back empty, using a single section")
		paragraphs = []types.Paragraph{defaultParagraph(state.Query)}
	}
	state.ReportTitle = firstNonEmpty(title, state.Query)
	state.Paragraphs = paragraphs
	state.Touch()

	fmt.Fprintf(e.out, "outline: %d sections\n", len(paragraphs))
	for i, p := range paragraphs {
		fmt.Fprintf(e.out, "  %d. %s\n", i+1, p.Title)
	}
	return nil
}

// processParagraphs handles sections strictly in outline order. Within a
// section the first pass precedes every reflection pass.
func (e *Engine) processParagraphs(ctx context.Context, state *types.ResearchState) error {
	total := len(state.Paragraphs)
	if e.cfg.Quick && total > e.cfg.QuickMaxParagraphs {
		total = e.cfg.QuickMaxParagraphs
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "[%d/%d] %s\n", i+1, total, state.Paragraphs[i].Title)

		if err := e.firstPass(ctx, state, i); err != nil {
			return fmt.Errorf("section %q: %w", state.Paragraphs[i].Title, err)
		}
		if e.cfg.Quick {
			continue
		}
		for r := 0; r < e.cfg.MaxReflections; r++ {
			if err := e.reflect(ctx, state, i); err != nil {
				return fmt.Errorf("section %q reflection %d: %w", state.Paragraphs[i].Title, r+1, err)
			}
		}
	}
	return nil
}

func (e *Engine) firstPass(ctx context.Context, state *types.ResearchState, i int) error {
	p := &state.Paragraphs[i]

	var plan searchPlan
	if e.cfg.Quick {
		plan = searchPlan{Query: firstNonEmpty(p.Title, state.Query), Tool: e.cfg.QuickTool}
	} else {
		raw, err := e.llm.Invoke(ctx, firstSearchSystem, payload(sectionInput{Title: p.Title, Content: p.Content}))
		if err != nil {
			return fmt.Errorf("planning search: %w", err)
		}
		plan = parseSearchPlan(raw, firstNonEmpty(p.Title, state.Query))
	}

	results, tool, err := e.runSearch(ctx, plan)
	if err != nil {
		return err
	}
	p.Research.SearchHistory = append(p.Research.SearchHistory, types.SearchRecord{Query: plan.Query, Tool: tool, Results: results})

	raw, err := e.llm.Invoke(ctx, firstSummarySystem, payload(summaryInput{
		Title:         p.Title,
		Content:       p.Content,
		SearchQuery:   plan.Query,
		SearchResults: search.FormatForPrompt(results, e.maxContent),
	}), llm.WithMaxTokens(summaryMaxTokens))
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}
	p.Research.LatestSummary = summaryText(raw, "paragraph_latest_state")
	state.Touch()
	return nil
}

func (e *Engine) reflect(ctx context.Context, state *types.ResearchState, i int) error {
	p := &state.Paragraphs[i]

	raw, err := e.llm.Invoke(ctx, reflectionSystem, payload(reflectionInput{
		Title:   p.Title,
		Content: p.Content,
		Latest:  p.Research.LatestSummary,
	}))
	if err != nil {
		return fmt.Errorf("planning reflection search: %w", err)
	}
	plan := parseSearchPlan(raw, firstNonEmpty(p.Title, state.Query))

	results, tool, err := e.runSearch(ctx, plan)
	if err != nil {
		return err
	}
	p.Research.SearchHistory = append(p.Research.SearchHistory, types.SearchRecord{Query: plan.Query, Tool: tool, Results: results, Reflection: true})

	raw, err = e.llm.Invoke(ctx, reflectionSummarySystem, payload(summaryInput{
		Title:         p.Title,
		Content:       p.Content,
		SearchQuery:   plan.Query,
		SearchResults: search.FormatForPrompt(results, e.maxContent),
		Latest:        p.Research.LatestSummary,
	}), llm.WithMaxTokens(summaryMaxTokens))
	if err != nil {
		return fmt.Errorf("summarizing reflection: %w", err)
	}
	p.Research.LatestSummary = summaryText(raw, "updated_paragraph_latest_state")
	p.Research.ReflectionCount++
	state.Touch()
	return nil
}

// runSearch executes plan and keeps at most the configured number of
// results. It returns the tool actually used, which differs from the plan
// when a by-date search lacks valid dates.
func (e *Engine) runSearch(ctx context.Context, plan searchPlan) ([]types.SearchResult, string, error) {
	req, downgraded, err := search.Normalize(types.SearchRequest{
		Tool:      plan.Tool,
		Query:     plan.Query,
		StartDate: plan.StartDate,
		EndDate:   plan.EndDate,
	})
	if err != nil {
		return nil, "", err
	}
	if downgraded {
		e.log.Warn().Str("query", req.Query).Msg("date bounds missing or invalid, using basic search")
	}
	fmt.Fprintf(e.out, "  search (%s): %s\n", req.Tool, req.Query)

	resp, err := e.search.Call(ctx, req)
	if err != nil {
		return nil, req.Tool, fmt.Errorf("searching: %w", err)
	}

	limit := e.cfg.MaxResults
	if e.cfg.Quick {
		limit = e.cfg.QuickMaxResults
	}
	results := resp.Results
	if len(results) > limit {
		results = results[:limit]
	}
	fmt.Fprintf(e.out, "  %d results\n", len(results))
	return results, req.Tool, nil
}

// finalReport asks for the assembled narrative and falls back to
// concatenating the sections. It never fails.
func (e *Engine) finalReport(ctx context.Context, state *types.ResearchState) string {
	in := finalInput{ReportTitle: state.ReportTitle}
	for _, p := range state.Paragraphs {
		in.Sections = append(in.Sections, finalSection{Title: p.Title, Summary: p.Research.LatestSummary})
	}

	report := ""
	raw, err := e.llm.Invoke(ctx, formattingSystem, payload(in), llm.WithMaxTokens(summaryMaxTokens))
	if err != nil {
		e.log.Warn().Err(err).Msg("final assembly failed, concatenating sections")
	} else {
		report = strings.TrimSpace(jsonx.Clean(raw))
	}
	if report == "" {
		report = manualReport(state)
	}

	state.FinalReport = report
	state.Completed = true
	state.Touch()
	return report
}

// manualReport concatenates "## title\nsummary" per section.
func manualReport(state *types.ResearchState) string {
	var b strings.Builder
	if state.ReportTitle != "" {
		fmt.Fprintf(&b, "# %s\n\n", state.ReportTitle)
	}
	for _, p := range state.Paragraphs {
		fmt.Fprintf(&b, "## %s\n%s\n\n", p.Title, strings.TrimSpace(p.Research.LatestSummary))
	}
	return strings.TrimSpace(b.String())
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
