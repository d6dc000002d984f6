// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func TestMain(m *testing.M) {
	logx.Discard()
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// --- test doubles ---

// fakeLLM answers template selection and HTML generation calls. With
// block set, HTML calls wait for cancellation.
type fakeLLM struct {
	mu        sync.Mutex
	selection string
	selErr    error
	html      string
	htmlErr   error
	block     bool
	calls     []string
	lastUser  string
}

func (f *fakeLLM) Invoke(ctx context.Context, system, user string, _ ...llm.Option) (string, error) {
	f.mu.Lock()
	kind := "select"
	if system == htmlSystem {
		kind = "html"
		f.lastUser = user
	}
	f.calls = append(f.calls, kind)
	block := f.block && kind == "html"
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if kind == "select" {
		return f.selection, f.selErr
	}
	return f.html, f.htmlErr
}

func (f *fakeLLM) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newEngine(t *testing.T, inv llm.Invoker, mutate func(*types.ReportConfig)) *Engine {
	t.Helper()
	cfg := &types.PipelineConfig{Report: types.ReportConfig{OutputDir: t.TempDir()}}
	if mutate != nil {
		mutate(&cfg.Report)
	}
	e := New(inv, cfg, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// requireNoEmptySections fails when an <h2> has no text before the next
// h1/h2 or the end of its container.
func requireNoEmptySections(t *testing.T, doc string) {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	require.NoError(t, err)
	d.Find("h2").Each(func(_ int, s *goquery.Selection) {
		assert.True(t, hasBody(s.Nodes[0]), "empty section %q", s.Text())
	})
}

// --- template selection ---

func TestBuiltinCatalog(t *testing.T) {
	c := BuiltinCatalog()
	names := make([]string, 0, len(c.Templates()))
	for _, tpl := range c.Templates() {
		names = append(names, tpl.Name)
		assert.NotEmpty(t, tpl.Content, tpl.Name)
		assert.NotEmpty(t, tpl.Description, tpl.Name)
	}
	assert.Equal(t, []string{"competition_analysis", "fintech_trends", "sentiment_monitoring", "technology_route"}, names)
}

func TestLoadCatalog_DerivesDescription(t *testing.T) {
	c, err := LoadCatalog(fstest.MapFS{
		"market-scan.md": {Data: []byte("## A\n")},
		"notes.txt":      {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, c.Templates(), 1)
	assert.Equal(t, "Report template for market scan", c.Templates()[0].Description)
}

func TestSelectTemplate_Hint(t *testing.T) {
	inv := &fakeLLM{}
	e := newEngine(t, inv, nil)

	sel := e.selectTemplate(context.Background(), "anything", "", "Competition")
	assert.Equal(t, "competition_analysis", sel.Name)
	assert.Empty(t, inv.callList())
}

func TestSelectTemplate_Keywords(t *testing.T) {
	e := newEngine(t, &fakeLLM{}, nil)
	tests := []struct {
		query string
		want  string
	}{
		{"Fintech development trends in 2025", "fintech_trends"},
		{"金融科技发展趋势", "fintech_trends"},
		{"solid-state battery tech roadmap", "technology_route"},
		{"量子计算技术路线", "technology_route"},
	}
	for _, tt := range tests {
		sel := e.selectTemplate(context.Background(), tt.query, "", "auto")
		assert.Equal(t, tt.want, sel.Name, tt.query)
	}
}

func TestSelectTemplate_LLMChoice(t *testing.T) {
	inv := &fakeLLM{selection: `{"template_name": "sentiment_monitoring", "selection_reason": "public reaction"}`}
	e := newEngine(t, inv, nil)

	sel := e.selectTemplate(context.Background(), "reaction to the new city parking rules", "", "")
	assert.Equal(t, "sentiment_monitoring", sel.Name)
	assert.Equal(t, "public reaction", sel.Reason)

	inv.selection = "I would go with competition_analysis here."
	sel = e.selectTemplate(context.Background(), "who sells the most e-bikes", "", "")
	assert.Equal(t, "competition_analysis", sel.Name)
}

func TestSelectTemplate_FailureUsesGenericOutline(t *testing.T) {
	inv := &fakeLLM{selErr: errors.New("provider down")}
	e := newEngine(t, inv, nil)

	sel := e.selectTemplate(context.Background(), "weather patterns", "", "")
	assert.Equal(t, FreeForm, sel.Name)
	assert.Equal(t, GenericOutline, sel.Content)
}

func TestGenerate_BlankTemplateUsesGenericOutline(t *testing.T) {
	e := newEngine(t, nil, nil)
	c, err := LoadCatalog(fstest.MapFS{"blank.md": {Data: []byte("  \n")}})
	require.NoError(t, err)
	e.catalog = c

	res, err := e.Generate(context.Background(), Request{Query: "weather", TemplateHint: "blank"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "blank", res.Template)
	assert.Equal(t, FallbackEmptyInput, res.Fallback)

	doc := readFile(t, res.Path)
	assert.Equal(t, []string{"Summary", "Background", "Evidence", "Risks", "Recommendations", "References"}, Outline(doc))
	requireNoEmptySections(t, doc)
}

// --- HTML generation ---

func TestGenerate_TimeoutFallsBackToPre(t *testing.T) {
	inv := &fakeLLM{block: true}
	e := newEngine(t, inv, func(c *types.ReportConfig) { c.Timeout = 50 * time.Millisecond })

	start := time.Now()
	res, err := e.Generate(context.Background(), Request{
		Query:        "solid-state batteries",
		TemplateHint: "technology_route",
		Sources:      Sources{Draft: "Battery makers announced pilot lines."},
	}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, FallbackTimeout, res.Fallback)

	d, err := goquery.NewDocumentFromReader(strings.NewReader(readFile(t, res.Path)))
	require.NoError(t, err)
	pre := d.Find("pre").Text()
	assert.Contains(t, pre, "solid-state batteries")
	assert.Contains(t, pre, "Battery makers announced pilot lines.")
}

func TestGenerate_TimeoutKeepsRawQuery(t *testing.T) {
	inv := &fakeLLM{block: true}
	e := newEngine(t, inv, func(c *types.ReportConfig) { c.Timeout = 50 * time.Millisecond })

	query := "Compare \"Project Aurora\" and 'Nimbus'\nFocus on 2025 pilots and regulatory exposure."
	res, err := e.Generate(context.Background(), Request{
		Query:        query,
		TemplateHint: "technology_route",
		Sources:      Sources{Draft: "# Storage outlook\n\nPilot programs expanded."},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackTimeout, res.Fallback)

	d, err := goquery.NewDocumentFromReader(strings.NewReader(readFile(t, res.Path)))
	require.NoError(t, err)
	pre := d.Find("pre").Text()
	assert.Contains(t, pre, "topic: "+query)
	assert.Contains(t, pre, "Focus on 2025 pilots and regulatory exposure.")
	assert.Contains(t, pre, "Pilot programs expanded.")

	inv.mu.Lock()
	defer inv.mu.Unlock()
	assert.Contains(t, inv.lastUser, query, "prompt topic is the raw query")
}

func TestGenerate_LLMErrorFallsBack(t *testing.T) {
	inv := &fakeLLM{htmlErr: errors.New("503")}
	e := newEngine(t, inv, nil)

	res, err := e.Generate(context.Background(), Request{Query: "q", TemplateHint: "fintech", Sources: Sources{Media: "media notes"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackLLMError, res.Fallback)
	assert.Contains(t, readFile(t, res.Path), "media notes")
}

func TestGenerate_BackfillsEmptySections(t *testing.T) {
	inv := &fakeLLM{html: "```html\n<html><head><title>T</title></head><body><h1>T</h1><h2>A</h2><h2>B</h2><p>b</p><h2>C</h2>\n</body></html>\n```"}
	e := newEngine(t, inv, nil)

	res, err := e.Generate(context.Background(), Request{Query: "q", TemplateHint: "fintech", Sources: Sources{Draft: "# d\n\n## A\ntext"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fallback)

	doc := readFile(t, res.Path)
	requireNoEmptySections(t, doc)
	assert.Equal(t, 2, strings.Count(doc, PlaceholderText))
	assert.Equal(t, []string{"A", "B", "C"}, Outline(doc))
}

func TestGenerate_PersistsReportState(t *testing.T) {
	inv := &fakeLLM{html: "<html><body><h2>Only</h2><p>x</p></body></html>"}
	e := newEngine(t, inv, nil)

	res, err := e.Generate(context.Background(), Request{Query: "Solid-state batteries", TemplateHint: "technology_route", Sources: Sources{Draft: "draft"}}, func(int) {})
	require.NoError(t, err)
	assert.Equal(t, "final_report_Solid-state_batteries_20250310_093000.html", filepath.Base(res.Path))
	assert.Equal(t, "technology_route", res.Template)

	var st reportState
	require.NoError(t, json.Unmarshal([]byte(readFile(t, res.StatePath)), &st))
	assert.Equal(t, "Solid-state batteries", st.Query)
	assert.Equal(t, res.Path, st.HTMLPath)
	assert.Equal(t, "technology_route", st.Template)
	assert.Equal(t, 5, st.Sources.DraftChars)
	assert.Equal(t, "report_state_Solid-state_batteries_20250310_093000.json", filepath.Base(res.StatePath))
}

func TestGenerate_Progress(t *testing.T) {
	e := newEngine(t, &fakeLLM{html: "<html><body><p>x</p></body></html>"}, nil)
	var got []int
	_, err := e.Generate(context.Background(), Request{Query: "q", TemplateHint: "fintech", Sources: Sources{Draft: "d"}}, func(p int) { got = append(got, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{40, 90, 100}, got)
}

func TestGenerate_ClipsLongMaterial(t *testing.T) {
	inv := &fakeLLM{html: "<html><body><p>ok</p></body></html>"}
	e := newEngine(t, inv, nil)

	long := strings.Repeat("材", maxInputRunes+500)
	_, err := e.Generate(context.Background(), Request{Query: "q", TemplateHint: "fintech", Sources: Sources{Draft: long}}, nil)
	require.NoError(t, err)

	inv.mu.Lock()
	user := inv.lastUser
	inv.mu.Unlock()
	assert.Contains(t, user, strings.TrimSpace(truncatedNotice))
	assert.Less(t, len([]rune(user)), maxInputRunes+2000)
}

func TestGenerate_ForceLocal(t *testing.T) {
	inv := &fakeLLM{}
	e := newEngine(t, inv, func(c *types.ReportConfig) { c.ForceLocal = true })

	res, err := e.Generate(context.Background(), Request{Query: "q", TemplateHint: "fintech", Sources: Sources{Draft: "# T\n\n## Findings\n- one\n- two\n\n## Empty\n"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackForceLocal, res.Fallback)
	assert.Empty(t, inv.callList())

	doc := readFile(t, res.Path)
	assert.Contains(t, doc, "<li>one</li>")
	requireNoEmptySections(t, doc)
}

func TestGenerate_FromResearchArtifacts(t *testing.T) {
	dir := t.TempDir()
	state := &types.ResearchState{
		Query:       "grid storage",
		ReportTitle: "Grid storage outlook",
		Paragraphs: []types.Paragraph{{
			Title: "Costs",
			Research: types.ResearchRecord{
				LatestSummary: "Pack prices fell.",
				SearchHistory: []types.SearchRecord{{URL: "https://a.example/1"}},
			},
		}},
	}
	statePath := filepath.Join(dir, "state_grid_storage_20250310_090000.json")
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(statePath, data, 0o644))

	inv := &fakeLLM{html: "<html><body><h2>Costs</h2><p>ok</p></body></html>"}
	e := newEngine(t, inv, nil)

	res, err := e.GenerateFromArtifacts(context.Background(), dir, Request{TemplateHint: "technology_route"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Grid storage outlook", res.Title)

	inv.mu.Lock()
	user := inv.lastUser
	inv.mu.Unlock()
	assert.Contains(t, user, "Pack prices fell.")
	assert.Contains(t, user, "https://a.example/1")
}

func TestGenerate_Errors(t *testing.T) {
	e := newEngine(t, nil, nil)

	_, err := e.Generate(context.Background(), Request{Query: "q", Format: "md"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.Generate(context.Background(), Request{}, nil)
	assert.Error(t, err)

	_, err = e.GenerateFromArtifacts(context.Background(), t.TempDir(), Request{}, nil)
	assert.Error(t, err)
}

// --- HTML helpers ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full document", "<html><body><p>x</p></body></html>", "<p>x</p>"},
		{"fenced document", "```html\n<html><body><p>y</p></body></html>\n```", "<p>y</p>"},
		{"fragment", "<h2>Intro</h2><p>z</p>", "<title>T</title>"},
		{"markdown", "## Intro\n\n**bold** text", "<strong>bold</strong>"},
		{"plain text", "just words & more", "<pre>just words &amp; more</pre>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.in, "T")
			assert.Contains(t, got, tt.want)
			assert.True(t, looksLikeHTML(got))
		})
	}
}

func TestEnsureNonEmptySections(t *testing.T) {
	complete := "<html><head></head><body><h2>A</h2><p>a</p></body></html>"
	assert.Equal(t, complete, ensureNonEmptySections(complete))

	tests := []string{
		"<html><body><h2>A</h2></body></html>",
		"<html><body><h2>A</h2>\n  <h2>B</h2><p>b</p></body></html>",
		"<html><body><h2>A</h2><p>  </p><h1>B</h1></body></html>",
		"<html><body><section><h2>A</h2></section></body></html>",
	}
	for _, in := range tests {
		out := ensureNonEmptySections(in)
		assert.Contains(t, out, PlaceholderText, in)
		requireNoEmptySections(t, out)
	}

	// A subheading counts as content.
	nested := "<html><head></head><body><h2>A</h2><h3>A.1</h3><p>x</p></body></html>"
	assert.Equal(t, nested, ensureNonEmptySections(nested))
}

func TestSkeletonHTML(t *testing.T) {
	doc := skeletonHTML("Title <x>", "# Outline\n\n## One\n### One.a\n## Two\n")
	assert.Contains(t, doc, "<h1>Title &lt;x&gt;</h1>")
	assert.Equal(t, []string{"One", "Two"}, Outline(doc))
	assert.Contains(t, doc, "<h3>One.a</h3>")
	requireNoEmptySections(t, doc)
}

// --- titles ---

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  “Solid-state”   batteries \n", "Solid-state batteries"},
		{"[User request]\nEV market share\n\n[Intent]\n{}", "EV market share"},
		{"context\nprimary_query: lithium prices\n", "lithium prices"},
		{"\n\n", "Research report"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveTitle(tt.in), tt.in)
	}
}

func TestNormalizeDraft(t *testing.T) {
	draft := "# About EV batteries\n- scope: global\n- window: 2025\nEV batteries deep research report\n\n## Costs\ntext\n"
	assert.Equal(t, "# EV batteries: deep research report\n\n## Costs\ntext\n", normalizeDraft("EV batteries", draft))

	single := "# 关于电池的深度研究报告\n\n## 成本\n"
	assert.Equal(t, "# 电池: deep research report\n\n## 成本\n", normalizeDraft("电池", single))

	plain := "# Grid storage\n\n## Costs\n"
	assert.Equal(t, plain, normalizeDraft("Grid storage", plain))

	unterminated := "# About X\n- a\n## Costs\n"
	assert.Equal(t, unterminated, normalizeDraft("X", unterminated))
}

// --- document model ---

func TestBuildModel_FromDraft(t *testing.T) {
	dir := t.TempDir()
	draft := filepath.Join(dir, "draft.md")
	require.NoError(t, os.WriteFile(draft, []byte(`# Grid storage

intro line

## Costs

Pack prices fell.
- cheaper cells

| Year | Price |
|------|-------|
| 2024 | 139 |

Sources:
- https://a.example/1
- https://a.example/1

### Outlook
More capacity.
`), 0o644))

	m, err := BuildModel(ModelInput{DraftPath: draft}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "Grid storage", m.Meta.Title)
	assert.Equal(t, "Auto Researcher", m.Meta.Author)
	assert.Equal(t, "2025-03-10", m.Meta.Date)
	require.Len(t, m.Sections, 3)
	assert.Equal(t, types.Section{Title: "Body", Paragraphs: []string{"intro line"}}, m.Sections[0])
	assert.Equal(t, "Costs", m.Sections[1].Title)
	assert.Equal(t, []string{"Pack prices fell."}, m.Sections[1].Paragraphs)
	assert.Equal(t, []string{"cheaper cells"}, m.Sections[1].Bullets)
	require.Len(t, m.Sections[1].Tables, 1)
	assert.Equal(t, []string{"Year", "Price"}, m.Sections[1].Tables[0].Headers)
	assert.Equal(t, [][]string{{"2024", "139"}}, m.Sections[1].Tables[0].Rows)
	assert.Equal(t, "Outlook", m.Sections[2].Title)
	assert.Equal(t, []string{"https://a.example/1"}, m.References)
}

func TestBuildModel_StateOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	state := types.ResearchState{ReportTitle: "R", Paragraphs: []types.Paragraph{
		{Title: "A", Research: types.ResearchRecord{LatestSummary: "one\n\ntwo"}},
		{Title: "B", Content: "brief only"},
	}}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := BuildModel(ModelInput{StatePath: path, Meta: types.DocumentMeta{Author: "Desk"}}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "R", m.Meta.Title)
	assert.Equal(t, "Desk", m.Meta.Author)
	require.Len(t, m.Sections, 2)
	assert.Equal(t, []string{"one", "two"}, m.Sections[0].Paragraphs)
	assert.Equal(t, []string{"brief only"}, m.Sections[1].Paragraphs)
}

func TestBuildModel_MergesExplicitSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sections":[{"heading":"A","paragraphs":["p1"]}],"refs":["[1] x"]}`), 0o644))

	m, err := BuildModel(ModelInput{StatePath: path, Text: "## A\np2\n## B\n- b"}, fixedNow)
	require.NoError(t, err)
	require.Len(t, m.Sections, 2)
	assert.Equal(t, []string{"p1", "p2"}, m.Sections[0].Paragraphs)
	assert.Equal(t, []string{"b"}, m.Sections[1].Bullets)
	assert.Equal(t, []string{"[1] x"}, m.References)
	assert.Equal(t, "Research report", m.Meta.Title)
}

func TestBuildModel_NoContent(t *testing.T) {
	m, err := BuildModel(ModelInput{DraftPath: "/does/not/exist.md"}, fixedNow)
	require.NoError(t, err)
	require.Len(t, m.Sections, 1)
	assert.Equal(t, "Body", m.Sections[0].Title)
	assert.Equal(t, []string{noContentText}, m.Sections[0].Paragraphs)
}

// --- writers ---

func sampleModel() *types.ReportDocumentModel {
	return &types.ReportDocumentModel{
		Meta: types.DocumentMeta{Title: "Grid & storage", Author: "Desk", Date: "2025-03-10"},
		Sections: []types.Section{
			{Title: "Costs", Paragraphs: []string{"Pack prices fell."}, Bullets: []string{"cheaper cells"},
				Tables: []types.TableData{{Headers: []string{"Year", "Price"}, Rows: [][]string{{"2024", "139"}}}}},
			{Title: "Gaps"},
		},
		References: []string{"https://a.example/1"},
	}
}

func TestWriterFor(t *testing.T) {
	for _, f := range []types.OutputFormat{types.OutputHTML, types.OutputDOCX, types.OutputPDF} {
		w, err := WriterFor(f, nil)
		require.NoError(t, err)
		assert.NotNil(t, w)
	}
	_, err := WriterFor("md", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestHTMLWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "r.html")
	n, err := HTMLWriter{}.Write(sampleModel(), path)
	require.NoError(t, err)

	doc := readFile(t, path)
	assert.Equal(t, int64(len(doc)), n)
	assert.Contains(t, doc, "<h1>Grid &amp; storage</h1>")
	assert.Contains(t, doc, "<td>139</td>")
	assert.Equal(t, []string{"Costs", "Gaps", "References"}, Outline(doc))
	requireNoEmptySections(t, doc)
}

func TestDOCXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.docx")
	n, err := DOCXWriter{Fonts: []Font{{Family: "Test CJK", Path: "/missing.ttf"}}}.Write(sampleModel(), path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), n)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	parts := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		parts[f.Name] = string(data)
	}
	require.Contains(t, parts, "[Content_Types].xml")
	require.Contains(t, parts, "word/document.xml")
	assert.Contains(t, parts["word/document.xml"], "Grid &amp; storage")
	assert.Contains(t, parts["word/document.xml"], "<w:tbl>")
	assert.Contains(t, parts["word/document.xml"], "[1] https://a.example/1")
	assert.Contains(t, parts["word/document.xml"], `w:eastAsia="Test CJK"`)
}

func TestPDFWriter_CoreFontFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.pdf")
	n, err := PDFWriter{}.Write(sampleModel(), path)
	require.NoError(t, err)
	assert.Greater(t, n, int64(500))
	assert.True(t, strings.HasPrefix(readFile(t, path), "%PDF"))
}

func TestGenerate_DOCXFromArtifacts(t *testing.T) {
	dir := t.TempDir()
	state := &types.ResearchState{Query: "grid storage", ReportTitle: "Grid storage", Paragraphs: []types.Paragraph{
		{Title: "Costs", Research: types.ResearchRecord{LatestSummary: "Pack prices fell."}},
	}}
	draftPath := filepath.Join(dir, "draft_grid_storage_20250310_090000.md")
	require.NoError(t, os.WriteFile(draftPath, []byte(research.BuildDraft(state)), 0o644))

	e := newEngine(t, nil, func(c *types.ReportConfig) { c.OutputFormat = types.OutputDOCX })
	res, err := e.GenerateFromArtifacts(context.Background(), dir, Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.OutputDOCX, res.Format)
	assert.Equal(t, "final_report_Grid_storage_20250310_093000.docx", filepath.Base(res.Path))
	assert.NotEmpty(t, res.StatePath)
	assert.Greater(t, res.Bytes, int64(0))
}
