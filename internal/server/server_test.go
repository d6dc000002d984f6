// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func TestMain(m *testing.M) {
	logx.Discard()
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeTurner struct {
	mu   sync.Mutex
	seen []types.TurnRequest
}

func (f *fakeTurner) Run(_ context.Context, req types.TurnRequest) types.TurnResponse {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	return types.TurnResponse{Result: "echo: " + req.Text, Branch: "chat"}
}

type fakeResearcher struct {
	block bool
	err   error
}

func (f *fakeResearcher) Research(ctx context.Context, query string, progress research.ProgressFunc) (research.Result, error) {
	progress(30)
	if f.block {
		<-ctx.Done()
		return research.Result{}, ctx.Err()
	}
	if f.err != nil {
		return research.Result{}, f.err
	}
	progress(100)
	return research.Result{
		Report:    "# Findings\n\n" + query,
		Artifacts: types.ArtifactHandle{DraftPath: "/tmp/draft.md", StatePath: "/tmp/state.json"},
	}, nil
}

type fakeReporter struct {
	dir string

	mu   sync.Mutex
	reqs []report.Request
}

func (f *fakeReporter) Generate(_ context.Context, req report.Request, progress report.ProgressFunc) (report.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	progress(40)
	format := types.ParseOutputFormat(string(req.Format))
	path := filepath.Join(f.dir, "final_report"+format.Ext())
	if err := os.WriteFile(path, []byte("<html>report</html>"), 0o644); err != nil {
		return report.Result{}, err
	}
	progress(100)
	return report.Result{Path: path, Format: format, Template: "auto"}, nil
}

func (f *fakeReporter) last() report.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeSearch struct{}

func (fakeSearch) Name() string { return "fake" }

func (fakeSearch) Call(_ context.Context, req types.SearchRequest) (search.Response, error) {
	switch req.Tool {
	case "nope":
		return search.Response{}, fmt.Errorf("%w: %s", search.ErrUnknownTool, req.Tool)
	case "broken":
		return search.Response{}, errors.New("upstream timeout")
	}
	return search.Response{
		Tool:    req.Tool,
		Query:   req.Query,
		Answer:  "an answer",
		Results: []types.SearchResult{{Title: "A", URL: "https://a.example"}},
	}, nil
}

type fixture struct {
	srv      *Server
	h        http.Handler
	turner   *fakeTurner
	reporter *fakeReporter
	qeDir    string
	reDir    string
}

func newFixture(t *testing.T, res *fakeResearcher) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		turner: &fakeTurner{},
		qeDir:  filepath.Join(root, "query_engine"),
		reDir:  filepath.Join(root, "final"),
	}
	require.NoError(t, os.MkdirAll(f.qeDir, 0o755))
	require.NoError(t, os.MkdirAll(f.reDir, 0o755))
	f.reporter = &fakeReporter{dir: f.reDir}

	cfg := &types.PipelineConfig{}
	cfg.Research.OutputDir = f.qeDir
	cfg.Report.OutputDir = f.reDir
	cfg.Memory.Backend = types.MemoryBackend("none")

	deps := Deps{
		Config:   cfg,
		Pipeline: f.turner,
		Report:   f.reporter,
		Catalog:  report.BuiltinCatalog(),
		Search:   fakeSearch{},
		Models:   []string{"test-model"},
	}
	if res != nil {
		deps.Research = res
	}
	f.srv = New(deps)
	f.h = f.srv.Handler()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f.srv.Close(ctx)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		rd = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func taskOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	task, ok := decode(t, rec)["task"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return task
}

func (f *fixture) waitTask(t *testing.T, kind, id string, want types.TaskStatus) map[string]any {
	t.Helper()
	var task map[string]any
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/"+kind+"/progress/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		task = taskOf(t, rec)
		return task["status"] == string(want)
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func TestChat(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/chat", types.TurnRequest{Text: "hello", ForceQuery: true})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo: hello", resp.Result)
	require.Len(t, f.turner.seen, 1)
	assert.True(t, f.turner.seen[0].ForceQuery)
}

func TestChatBadBody(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/chat", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestChatWithoutPipeline(t *testing.T) {
	srv := New(Deps{})
	t.Cleanup(func() { srv.Close(context.Background()) })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"text":"hi"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})
	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["initialized"])
	assert.Equal(t, false, out["tavily_enabled"])
	assert.Equal(t, "none", out["memory_backend"])
	dirs := out["output_dir"].(map[string]any)
	assert.Equal(t, f.qeDir, dirs["query"])
	assert.Equal(t, f.reDir, dirs["report"])
}

func TestQueryJobLifecycle(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})

	rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "chip exports"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := taskOf(t, rec)["task_id"].(string)
	assert.True(t, strings.HasPrefix(id, "query_"))

	task := f.waitTask(t, "query", id, types.TaskCompleted)
	assert.EqualValues(t, 100, task["progress"])
	assert.Nil(t, task["result"], "progress never carries the result")

	rec = f.do(t, http.MethodGet, "/api/query/result/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Equal(t, "# Findings\n\nchip exports", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/query/result/"+id+"/json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := taskOf(t, rec)["result"].(map[string]any)
	assert.Equal(t, "/tmp/draft.md", result["draft_path"])
	assert.EqualValues(t, len([]rune("# Findings\n\nchip exports")), result["length"])
}

func TestSubmitPrunesExpiredJobs(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})

	run := func() string {
		rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "chip exports"})
		require.Equal(t, http.StatusOK, rec.Code)
		id := taskOf(t, rec)["task_id"].(string)
		f.waitTask(t, "query", id, types.TaskCompleted)
		return id
	}

	first := run()
	second := run()
	assert.Equal(t, 2, f.srv.queries.Len(), "zero retention keeps finished jobs")

	f.srv.cfg.Server.TaskRetention = time.Nanosecond
	time.Sleep(time.Millisecond)
	third := run()
	assert.Equal(t, 1, f.srv.queries.Len())
	for _, id := range []string{first, second} {
		rec := f.do(t, http.MethodGet, "/api/query/progress/"+id, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/query/progress/"+third, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryJobFailure(t *testing.T) {
	f := newFixture(t, &fakeResearcher{err: errors.New("search quota exhausted")})

	rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "x"})
	id := taskOf(t, rec)["task_id"].(string)
	task := f.waitTask(t, "query", id, types.TaskError)
	assert.Equal(t, "search quota exhausted", task["error_message"])

	rec = f.do(t, http.MethodGet, "/api/query/result/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRunValidation(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})
	rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	g := newFixture(t, nil)
	rec = g.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryCancel(t *testing.T) {
	f := newFixture(t, &fakeResearcher{block: true})

	rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "slow"})
	id := taskOf(t, rec)["task_id"].(string)
	f.waitTask(t, "query", id, types.TaskRunning)

	rec = f.do(t, http.MethodGet, "/api/query/result/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "result before completion")

	rec = f.do(t, http.MethodPost, "/api/query/cancel/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", taskOf(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/query/progress/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelFinishedIsConflict(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})
	rec := f.do(t, http.MethodPost, "/api/query/run", map[string]string{"query": "fast"})
	id := taskOf(t, rec)["task_id"].(string)
	f.waitTask(t, "query", id, types.TaskCompleted)

	rec = f.do(t, http.MethodPost, "/api/query/cancel/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownTaskIDs(t *testing.T) {
	f := newFixture(t, &fakeResearcher{})
	for _, target := range []string{
		"/api/query/progress/missing",
		"/api/query/result/missing",
		"/api/query/result/missing/json",
		"/api/report/progress/missing",
		"/api/report/result/missing",
	} {
		rec := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	rec := f.do(t, http.MethodPost, "/api/report/cancel/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolsList(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/query/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tools := decode(t, rec)["tools"].([]any)
	require.Len(t, tools, len(types.SearchTools))
	for _, raw := range tools {
		tool := raw.(map[string]any)
		assert.NotEmpty(t, tool["desc"], tool["name"])
	}
}

func TestToolCall(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/query/tool", types.SearchRequest{Tool: types.ToolBasicSearch, Query: "rates"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.EqualValues(t, 1, out["count"])
	assert.Equal(t, "an answer", out["answer"])

	rec = f.do(t, http.MethodPost, "/api/query/tool", types.SearchRequest{Tool: "nope", Query: "rates"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/query/tool", types.SearchRequest{Tool: "broken", Query: "rates"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/query/tool", types.SearchRequest{Tool: types.ToolBasicSearch})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportJobFromText(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/report/generate", map[string]string{
		"query":           "market brief",
		"text":            "raw notes",
		"custom_template": "fintech_trends.md",
		"output_format":   "PDF",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := taskOf(t, rec)["task_id"].(string)
	f.waitTask(t, "report", id, types.TaskCompleted)

	req := f.reporter.last()
	assert.Equal(t, "raw notes", req.Sources.Draft)
	assert.Equal(t, "fintech_trends", req.TemplateHint)
	assert.Equal(t, types.OutputPDF, req.Format)
	assert.True(t, req.Artifacts.Empty())

	rec = f.do(t, http.MethodGet, "/api/report/result/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>report</html>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = f.do(t, http.MethodGet, "/api/report/result/"+id+"/json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := taskOf(t, rec)["result"].(map[string]any)
	assert.Equal(t, filepath.Join(f.reDir, "final_report.pdf"), result["path"])
}

func TestReportJobUsesLatestArtifacts(t *testing.T) {
	f := newFixture(t, nil)
	draft := filepath.Join(f.qeDir, "draft_topic_20260101_120000.md")
	state := filepath.Join(f.qeDir, "state_topic_20260101_120000.json")
	require.NoError(t, os.WriteFile(draft, []byte("# Draft"), 0o644))
	require.NoError(t, os.WriteFile(state, []byte(`{"query":"topic"}`), 0o644))

	rec := f.do(t, http.MethodPost, "/api/report/generate", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)
	id := taskOf(t, rec)["task_id"].(string)
	f.waitTask(t, "report", id, types.TaskCompleted)

	req := f.reporter.last()
	assert.False(t, req.Artifacts.Empty())
}

func TestReportGenerateValidation(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/report/generate", map[string]string{"output_format": "pptx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv := New(Deps{})
	t.Cleanup(func() { srv.Close(context.Background()) })
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/report/generate", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/report/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["templates"].([]any)
	require.NotEmpty(t, items)
	first := items[0].(map[string]any)
	assert.NotEmpty(t, first["name"])
	assert.Greater(t, first["size"].(float64), 0.0)
}

func download(f *fixture, t *testing.T, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodGet, "/api/report/download?"+params.Encode(), nil)
}

func TestDownload(t *testing.T) {
	f := newFixture(t, nil)
	html := filepath.Join(f.reDir, "brief.html")
	pdf := filepath.Join(f.reDir, "brief.pdf")
	require.NoError(t, os.WriteFile(html, []byte("<p>html</p>"), 0o644))
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))

	rec := download(f, t, url.Values{"path": {html}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>html</p>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "brief.html")

	rec = download(f, t, url.Values{"path": {html}, "format": {"pdf"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = download(f, t, url.Values{"path": {html}, "format": {"docx"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>html</p>", rec.Body.String(), "missing swap falls back to the original")

	rec = download(f, t, url.Values{"path": {html}, "inline": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline"))
}

func TestDownloadRejections(t *testing.T) {
	f := newFixture(t, nil)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	inside := filepath.Join(f.reDir, "brief.html")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o644))
	link := filepath.Join(f.reDir, "brief.pdf")
	require.NoError(t, os.Symlink(outside, link))

	tests := []struct {
		name   string
		params url.Values
		want   int
	}{
		{"outside roots", url.Values{"path": {outside}}, http.StatusForbidden},
		{"traversal", url.Values{"path": {filepath.Join(f.reDir, "..", "..", filepath.Base(filepath.Dir(outside)), "secret.txt")}}, http.StatusForbidden},
		{"missing", url.Values{"path": {filepath.Join(f.reDir, "gone.html")}}, http.StatusNotFound},
		{"empty path", url.Values{}, http.StatusNotFound},
		{"bad format", url.Values{"path": {inside}, "format": {"exe"}}, http.StatusUnprocessableEntity},
		{"symlink outside roots", url.Values{"path": {link}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := download(f, t, tt.params)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	t.Run("swapped extension escaping roots", func(t *testing.T) {
		rec := download(f, t, url.Values{"path": {inside}, "format": {"pdf"}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "x", rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "secret")
	})
}

func TestDownloadRootsDeduplicates(t *testing.T) {
	dir := t.TempDir()
	cfg := &types.PipelineConfig{}
	cfg.Research.OutputDir = dir
	cfg.Report.OutputDir = dir
	cfg.Server.DownloadRoots = []string{dir, "", filepath.Join(dir, "extra")}

	roots := downloadRoots(cfg)
	assert.Len(t, roots, 2)
	for _, r := range roots {
		assert.True(t, filepath.IsAbs(r))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "research_orchestrator_active_tasks")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := &types.PipelineConfig{}
	cfg.Server.Addr = "127.0.0.1:0"
	srv := New(Deps{Config: cfg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
