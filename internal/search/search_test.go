// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-orchestrator/internal/httputil"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
	httputil.RetryMaxDelay = 5 * time.Millisecond
}

// fakeTavily records request bodies and replies with body.
type fakeTavily struct {
	mu     sync.Mutex
	params []tavilyParams
	auth   string
	status int
	body   string
}

func (f *fakeTavily) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p tavilyParams
	_ = json.NewDecoder(r.Body).Decode(&p)
	f.mu.Lock()
	f.params = append(f.params, p)
	f.auth = r.Header.Get("Authorization")
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(f.body))
}

func (f *fakeTavily) last() tavilyParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[len(f.params)-1]
}

func newTestTavily(t *testing.T, f *fakeTavily) *Tavily {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewTavily(types.SearchConfig{APIKey: "tvly-test", BaseURL: srv.URL, MaxContentLength: 20})
}

const sampleBody = `{
  "answer": "short answer",
  "results": [
    {"title": "Low", "url": "https://example.com/low", "content": "low score", "score": 0.2},
    {"title": "High", "url": "https://www.Example.com/high/", "content": "high score content that is long", "score": 0.9, "published_date": "2025-03-01"},
    {"title": "High again", "url": "https://example.com/high#frag", "content": "dup", "score": 0.5}
  ],
  "images": ["https://img.example.com/a.png", {"url": "https://img.example.com/b.png", "description": "chart"}],
  "response_time": 1.5
}`

// --- Tavily adapter ---

func TestTavily_CallRanksAndDedups(t *testing.T) {
	f := &fakeTavily{body: sampleBody}
	tv := newTestTavily(t, f)

	resp, err := tv.Call(context.Background(), types.SearchRequest{Tool: types.ToolBasicSearch, Query: " batteries "})
	require.NoError(t, err)

	assert.Equal(t, "batteries", f.last().Query)
	f.mu.Lock()
	assert.Equal(t, "Bearer tvly-test", f.auth)
	f.mu.Unlock()
	assert.Equal(t, "short answer", resp.Answer)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "High", resp.Results[0].Title)
	assert.Equal(t, "2025-03-01", resp.Results[0].PublishedDate)
	assert.Equal(t, 1, resp.DupsRemoved)
	assert.LessOrEqual(t, len([]rune(resp.Results[0].Content)), 20)
	require.Len(t, resp.Images, 2)
	assert.Equal(t, "chart", resp.Images[1].Description)
}

func TestTavily_ToolParameters(t *testing.T) {
	tests := []struct {
		req   types.SearchRequest
		check func(t *testing.T, p tavilyParams)
	}{
		{types.SearchRequest{Tool: types.ToolBasicSearch, Query: "q", MaxResults: 3}, func(t *testing.T, p tavilyParams) {
			assert.Equal(t, "basic", p.SearchDepth)
			assert.Equal(t, 3, p.MaxResults)
		}},
		{types.SearchRequest{Tool: types.ToolDeepSearch, Query: "q"}, func(t *testing.T, p tavilyParams) {
			assert.Equal(t, "advanced", p.SearchDepth)
			assert.True(t, p.IncludeAnswer)
		}},
		{types.SearchRequest{Tool: types.ToolLast24Hours, Query: "q"}, func(t *testing.T, p tavilyParams) {
			assert.Equal(t, "day", p.TimeRange)
		}},
		{types.SearchRequest{Tool: types.ToolLastWeek, Query: "q"}, func(t *testing.T, p tavilyParams) {
			assert.Equal(t, "week", p.TimeRange)
		}},
		{types.SearchRequest{Tool: types.ToolImages, Query: "q"}, func(t *testing.T, p tavilyParams) {
			assert.True(t, p.IncludeImages)
		}},
		{types.SearchRequest{Tool: types.ToolSearchByDate, Query: "q", StartDate: "2025-02-01", EndDate: "2025-01-01"}, func(t *testing.T, p tavilyParams) {
			assert.Equal(t, "2025-01-01", p.StartDate)
			assert.Equal(t, "2025-02-01", p.EndDate)
		}},
		{types.SearchRequest{Tool: types.ToolSearchByDate, Query: "q", StartDate: "2025-13-01", EndDate: "2025-01-01"}, func(t *testing.T, p tavilyParams) {
			assert.Empty(t, p.StartDate, "invalid dates downgrade to a basic search")
			assert.Equal(t, "basic", p.SearchDepth)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.req.Tool, func(t *testing.T) {
			f := &fakeTavily{body: `{"results": []}`}
			tv := newTestTavily(t, f)
			_, err := tv.Call(context.Background(), tt.req)
			require.NoError(t, err)
			tt.check(t, f.last())
		})
	}
}

func TestTavily_Errors(t *testing.T) {
	f := &fakeTavily{status: http.StatusUnauthorized, body: `{"detail": "bad key"}`}
	tv := newTestTavily(t, f)

	_, err := tv.Call(context.Background(), types.SearchRequest{Tool: types.ToolBasicSearch, Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")

	_, err = tv.Call(context.Background(), types.SearchRequest{Tool: "search_everything", Query: "q"})
	assert.True(t, errors.Is(err, ErrUnknownTool))

	_, err = tv.Call(context.Background(), types.SearchRequest{Query: "   "})
	assert.Error(t, err)

	noKey := NewTavily(types.SearchConfig{BaseURL: "http://127.0.0.1:0"})
	_, err = noKey.Call(context.Background(), types.SearchRequest{Query: "q"})
	assert.ErrorContains(t, err, "API key")
}

func TestTavily_RetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results": [{"title": "ok", "url": "https://ok.example", "score": 1}]}`))
	}))
	defer srv.Close()

	tv := NewTavily(types.SearchConfig{APIKey: "k", BaseURL: srv.URL})
	resp, err := tv.Call(context.Background(), types.SearchRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

// --- Normalize and helpers ---

func TestNormalize(t *testing.T) {
	req, downgraded, err := Normalize(types.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.False(t, downgraded)
	assert.Equal(t, types.ToolBasicSearch, req.Tool)

	req, downgraded, err = Normalize(types.SearchRequest{Tool: types.ToolSearchByDate, Query: "q", StartDate: "2025-01-01"})
	require.NoError(t, err)
	assert.True(t, downgraded)
	assert.Equal(t, types.ToolBasicSearch, req.Tool)
}

func TestValidDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2025-01-31", true},
		{"2025-02-30", false},
		{"2025-1-3", false},
		{"", false},
		{"2025-01-31T00:00:00Z", false},
	}
	for _, tt := range tests {
		if got := ValidDate(tt.in); got != tt.want {
			t.Errorf("ValidDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDeduplicateByTitleWithoutURL(t *testing.T) {
	results := []types.SearchResult{
		{Title: "Same Story!", Score: 0.1},
		{Title: "same story", Score: 0.7, PublishedDate: "2025-01-01"},
		{Title: "", URL: ""},
	}
	deduped, removed := deduplicate(results)
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(deduped) != 2 {
		t.Fatalf("len = %d, want 2", len(deduped))
	}
	if deduped[0].Score != 0.7 || deduped[0].PublishedDate != "2025-01-01" {
		t.Errorf("merge lost fields: %+v", deduped[0])
	}
}

func TestFinishCapsResults(t *testing.T) {
	results := []types.SearchResult{
		{URL: "https://a", Score: 0.1},
		{URL: "https://b", Score: 0.3},
		{URL: "https://c", Score: 0.2},
	}
	got, _ := finish(results, 2, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "https://b", got[0].URL)
	assert.Equal(t, "https://c", got[1].URL)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "新闻报...", truncate("新闻报道内容很长", 6))
}

// --- formatting ---

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(Response{Tool: types.ToolBasicSearch}, &buf)
	assert.Contains(t, buf.String(), "No results found.")

	buf.Reset()
	FormatTable(Response{
		Tool:        types.ToolLastWeek,
		DupsRemoved: 2,
		Results:     []types.SearchResult{{Title: "A headline", URL: "https://a", Score: 0.5, PublishedDate: "2025-03-01T10:00:00Z"}},
	}, &buf)
	out := buf.String()
	assert.Contains(t, out, "A headline")
	assert.Contains(t, out, "2025-03-01 ")
	assert.Contains(t, out, "1 results via search_news_last_week (2 duplicates removed)")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(Response{Tool: "t", Query: "q&a", Results: []types.SearchResult{{URL: "https://a"}}}, &buf))
	assert.Contains(t, buf.String(), `"q&a"`)

	var back Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "https://a", back.Results[0].URL)
}

func TestFormatForPrompt(t *testing.T) {
	assert.Equal(t, "(no search results)", FormatForPrompt(nil, 10))

	got := FormatForPrompt([]types.SearchResult{
		{Title: "One", URL: "https://one", Content: strings.Repeat("x", 50), PublishedDate: "2025-01-01"},
		{Title: "Two", URL: "https://two", Content: "body"},
	}, 10)
	assert.Contains(t, got, "[1] One\nURL: https://one\nPublished: 2025-01-01\nxxxxxxx...")
	assert.Contains(t, got, "[2] Two\nURL: https://two\nbody")
}
