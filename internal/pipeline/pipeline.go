// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one user turn end to end: plan the turn, read
// memory, optionally research and report, synthesize a reply, and write
// the exchange back to memory. A turn always produces a reply; stage
// failures are folded into it as labeled fragments.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-orchestrator/internal/intent"
	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	noResultReply   = "No result generated; check settings or switches."
	emptyInputReply = "Please enter a message."
	reSkipped       = "(RE skipped: draft/state missing)"
	qeNoSummary     = "[QE done] (no summary returned)"
)

// Planner turns user text into a routing intent. It must not fail.
type Planner interface {
	Parse(ctx context.Context, text string) types.Intent
}

// Researcher runs the research engine.
type Researcher interface {
	Research(ctx context.Context, query string, progress research.ProgressFunc) (research.Result, error)
}

// Reporter runs the report engine.
type Reporter interface {
	Generate(ctx context.Context, req report.Request, progress report.ProgressFunc) (report.Result, error)
}

// Memory is best-effort long-term memory.
type Memory interface {
	Query(ctx context.Context, profile, text string) string
	AddConversation(ctx context.Context, profile, user, reply string) bool
}

// EngineRegistry holds the engines a pipeline drives. It is built once at
// start-up. Nil engines disable their stage.
type EngineRegistry struct {
	Config   *types.PipelineConfig
	LLM      llm.Invoker
	Intent   Planner
	Memory   Memory
	Research Researcher
	Report   Reporter
}

// Pipeline runs turns. It keeps no per-turn state and may serve
// concurrent turns.
type Pipeline struct {
	reg EngineRegistry
	out io.Writer
	log zerolog.Logger
}

// New returns a Pipeline over reg. Stage lines are written to w; a nil w
// discards them.
func New(reg EngineRegistry, w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	if reg.Config == nil {
		reg.Config = &types.PipelineConfig{}
	}
	return &Pipeline{reg: reg, out: w, log: logx.With("pipeline")}
}

// Run executes one turn. It never panics and always returns a non-empty
// Result; an unexpected failure is reported in Error as "<type>: <message>".
func (p *Pipeline) Run(ctx context.Context, req types.TurnRequest) (resp types.TurnResponse) {
	defer func() {
		if v := recover(); v != nil {
			msg := panicMessage(v)
			p.log.Error().Str("panic", msg).Msg("turn aborted")
			resp = types.TurnResponse{Result: noResultReply, Error: msg}
		}
	}()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return types.TurnResponse{Result: emptyInputReply, Error: "empty input"}
	}
	st := &types.PipelineState{
		UserInput:    text,
		ReportOutput: p.outputFormat(req.ReportOutput),
		ForceQuery:   req.ForceQuery,
		ForceReport:  req.ForceReport,
		ForceCombo:   req.ForceCombo,
	}

	p.plan(ctx, st, req.Profile)
	branch, signal := decide(st)
	metrics.Branches.WithLabelValues(string(branch)).Inc()
	ev := p.log.Info().Str("branch", string(branch)).Str("task", string(st.Intent.Task))
	if signal != "" {
		ev = ev.Str("combo_signal", signal)
	}
	ev.Msg("turn routed")
	fmt.Fprintf(p.out, "turn: %s\n", branch)

	resp = types.TurnResponse{
		Plan:        &st.Intent,
		Branch:      string(branch),
		ComboSignal: signal,
		UsedMemory:  st.MemoryContext != "",
	}

	switch branch {
	case BranchChat:
		p.chat(ctx, st, req)
	case BranchQuery:
		resp.UsedQueryEngine = p.research(ctx, st)
		synthesize(st)
	case BranchReport:
		resp.UsedReportEngine = p.report(ctx, st, types.ArtifactHandle{})
		synthesize(st)
	case BranchCombo:
		resp.UsedQueryEngine = p.research(ctx, st)
		switch {
		case !st.QEArtifacts.Empty():
			resp.UsedReportEngine = p.report(ctx, st, st.QEArtifacts)
		case st.ForceReport:
			resp.UsedReportEngine = p.report(ctx, st, types.ArtifactHandle{})
		default:
			st.RETemplate = reSkipped
		}
		synthesize(st)
	}

	p.remember(ctx, req.Profile, st)

	resp.Result = st.FinalReply
	resp.QESummary = st.QESummary
	resp.QEDraftPath = st.QEArtifacts.DraftPath
	resp.QEStatePath = st.QEArtifacts.StatePath
	resp.REReportPath = st.REReportPath
	resp.RETemplate = st.RETemplate
	return resp
}

func (p *Pipeline) outputFormat(requested string) types.OutputFormat {
	f := strings.ToLower(strings.TrimSpace(requested))
	if f == "" {
		f = strings.ToLower(string(p.reg.Config.Report.OutputFormat))
	}
	return types.ParseOutputFormat(f)
}

// plan parses the intent while memory is read. Neither step can fail the
// turn: the parser has its own fallback and memory reads are best effort.
func (p *Pipeline) plan(ctx context.Context, st *types.PipelineState, profile string) {
	defer observe("plan")()

	var (
		in  types.Intent
		mem string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if p.reg.Intent == nil {
			return nil
		}
		var err error
		in, err = guard(func() (types.Intent, error) {
			return p.reg.Intent.Parse(gctx, st.UserInput), nil
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("intent parsing aborted")
		}
		return nil
	})
	g.Go(func() error {
		if p.reg.Memory == nil {
			return nil
		}
		var err error
		mem, err = guard(func() (string, error) {
			return p.reg.Memory.Query(gctx, profile, st.UserInput), nil
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("memory read aborted")
		}
		mem = strings.TrimSpace(mem)
		return nil
	})
	_ = g.Wait()

	st.Intent = in
	st.MemoryContext = mem
}

// research runs the research stage and reports whether it was attempted.
func (p *Pipeline) research(ctx context.Context, st *types.PipelineState) bool {
	if p.reg.Research == nil {
		st.QESummary = "[QE unavailable] research engine not configured"
		return false
	}
	defer observe("research")()

	payload := researchPayload(st, intent.ToQueryEngineInputs(st.Intent))
	res, err := guard(func() (research.Result, error) {
		return p.reg.Research.Research(ctx, payload, nil)
	})
	if err != nil {
		p.fail(st, "research", "[QE failed] "+err.Error())
		return true
	}
	st.QESummary = strings.TrimSpace(res.Report)
	if st.QESummary == "" {
		st.QESummary = qeNoSummary
	}
	st.QEArtifacts = res.Artifacts
	return true
}

// report runs the report stage on the research artifacts, or on the raw
// turn text when h is empty, and reports whether it was attempted.
func (p *Pipeline) report(ctx context.Context, st *types.PipelineState, h types.ArtifactHandle) bool {
	if p.reg.Report == nil {
		p.fail(st, "report", "[RE failed] report engine not configured")
		return false
	}
	defer observe("report")()

	req := report.Request{
		Query:        st.UserInput,
		TemplateHint: templateHint(st.UserInput),
		Format:       st.ReportOutput,
		Artifacts:    h,
	}
	if h.Empty() {
		req.Sources = report.Sources{Draft: st.UserInput, Insight: st.MemoryContext}
	}
	res, err := guard(func() (report.Result, error) {
		return p.reg.Report.Generate(ctx, req, nil)
	})
	if err != nil {
		p.fail(st, "report", "[RE failed] "+err.Error())
		return true
	}
	st.REReportPath = res.Path
	st.RETemplate = firstNonEmpty(res.Template, req.TemplateHint)
	return true
}

// chat answers directly. A failed call still yields a reply.
func (p *Pipeline) chat(ctx context.Context, st *types.PipelineState, req types.TurnRequest) {
	if p.reg.LLM == nil {
		p.fail(st, "chat", "[Chat failed] no language model configured")
		synthesize(st)
		return
	}
	defer observe("chat")()

	answer, err := guard(func() (string, error) {
		return p.reg.LLM.Invoke(ctx,
			chatSystemPrompt(req.ReplyLang, st.MemoryContext),
			chatUserPrompt(st.UserInput, req.History),
			llm.WithTemperature(0.7))
	})
	if err != nil {
		p.fail(st, "chat", "[Chat failed] "+err.Error())
		synthesize(st)
		return
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		synthesize(st)
		return
	}
	st.FinalReply = answer
}

// remember writes the exchange back to memory. The write outlives a
// cancelled request; the gateway bounds how long it may take.
func (p *Pipeline) remember(ctx context.Context, profile string, st *types.PipelineState) {
	if p.reg.Memory == nil {
		return
	}
	entry := firstNonEmpty(st.QESummary, st.FinalReply)
	if entry == "" {
		return
	}
	p.reg.Memory.AddConversation(context.WithoutCancel(ctx), profile, st.UserInput, memoryEntry(entry))
}

func (p *Pipeline) fail(st *types.PipelineState, stage, msg string) {
	metrics.StageFailures.WithLabelValues(stage).Inc()
	p.log.Warn().Str("stage", stage).Str("error", msg).Msg("stage failed")
	st.Failures = append(st.Failures, msg)
}

// synthesize joins the research summary, the report location and any
// failure markers. It never leaves FinalReply empty.
func synthesize(st *types.PipelineState) {
	var parts []string
	if s := strings.TrimSpace(st.QESummary); s != "" {
		parts = append(parts, s)
	}
	switch {
	case st.REReportPath != "":
		parts = append(parts, fmt.Sprintf("report ready: %s (template: %s)", st.REReportPath, st.RETemplate))
	case st.RETemplate == reSkipped:
		parts = append(parts, reSkipped)
	}
	parts = append(parts, st.Failures...)
	if len(parts) == 0 {
		parts = append(parts, noResultReply)
	}
	st.FinalReply = strings.Join(parts, "\n\n")
}

// guard runs fn and turns a panic into an error.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s", panicMessage(r))
		}
	}()
	return fn()
}

func panicMessage(v any) string {
	if err, ok := v.(error); ok {
		return fmt.Sprintf("%T: %v", err, err)
	}
	return fmt.Sprintf("%T: %v", v, v)
}

// observe records a stage's duration when the returned func is called.
func observe(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
