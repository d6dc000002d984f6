// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/internal/tasks"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// queryResult is the result of a background research job.
type queryResult struct {
	ReportMD   string `json:"report_md"`
	Length     int    `json:"length"`
	OutputPath string `json:"output_path,omitempty"`
	DraftPath  string `json:"draft_path,omitempty"`
	StatePath  string `json:"state_path,omitempty"`
}

var toolDescriptions = map[string]string{
	types.ToolBasicSearch:  "General news search; fast, accepts max_results.",
	types.ToolDeepSearch:   "Advanced news search with a synthesized answer.",
	types.ToolLast24Hours:  "News from the last 24 hours.",
	types.ToolLastWeek:     "News from the last week.",
	types.ToolImages:       "Images related to a news topic.",
	types.ToolSearchByDate: "News within a date range; needs start_date and end_date (YYYY-MM-DD).",
}

func (s *Server) handleQueryRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(body.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is empty")
		return
	}
	if s.research == nil {
		writeError(w, http.StatusServiceUnavailable, "research engine not configured")
		return
	}
	s.prune(s.queries)
	snap := s.queries.Submit(query, s.queryWorker(query))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": snap})
}

// queryWorker runs one research job: 10 when started, then the engine's
// own milestones (30, 80, 90, 100).
func (s *Server) queryWorker(query string) tasks.Worker {
	return func(ctx context.Context, p *tasks.Progress) (any, error) {
		p.Set(10)
		res, err := s.research.Research(ctx, query, p.Set)
		if err != nil {
			return nil, err
		}
		return queryResult{
			ReportMD:   res.Report,
			Length:     len([]rune(res.Report)),
			OutputPath: res.Artifacts.ReportPath,
			DraftPath:  res.Artifacts.DraftPath,
			StatePath:  res.Artifacts.StatePath,
		}, nil
	}
}

// handleQueryResult returns the research narrative as Markdown.
func (s *Server) handleQueryResult(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.completed(w, s.queries, r.PathValue("id"))
	if !ok {
		return
	}
	res, _ := snap.Result.(queryResult)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.ReportMD))
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	type tool struct {
		Name string `json:"name"`
		Desc string `json:"desc"`
	}
	out := make([]tool, 0, len(types.SearchTools))
	for _, name := range types.SearchTools {
		out = append(out, tool{Name: name, Desc: toolDescriptions[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tools": out})
}

// handleTool runs one search tool directly.
func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Tool) == "" || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "tool and query are required")
		return
	}
	if s.search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	resp, err := s.search.Call(r.Context(), req)
	switch {
	case errors.Is(err, search.ErrUnknownTool):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Warn().Err(err).Str("tool", req.Tool).Msg("tool call failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tool":    resp.Tool,
		"answer":  resp.Answer,
		"count":   len(resp.Results),
		"results": resp.Results,
		"images":  resp.Images,
	})
}
