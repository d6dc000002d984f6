// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the orchestration pipeline, the background
// research and report jobs, the search tools and report downloads over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/internal/pipeline"
	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/internal/tasks"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	defaultAddr           = ":8080"
	defaultRequestTimeout = 20 * time.Minute
	shutdownGrace         = 15 * time.Second
	maxBodyBytes          = 1 << 20
)

// Turner runs one orchestration turn.
type Turner interface {
	Run(ctx context.Context, req types.TurnRequest) types.TurnResponse
}

// Deps are the collaborators a Server exposes. Nil members disable the
// endpoints that need them.
type Deps struct {
	Config   *types.PipelineConfig
	Pipeline Turner
	Research pipeline.Researcher
	Report   pipeline.Reporter
	Catalog  *report.Catalog
	Search   search.Tool
	Models   []string
}

// Server is the HTTP entry point.
type Server struct {
	cfg      *types.PipelineConfig
	turns    Turner
	research pipeline.Researcher
	report   pipeline.Reporter
	catalog  *report.Catalog
	search   search.Tool
	models   []string

	queries *tasks.Registry
	reports *tasks.Registry
	roots   []string

	mux *http.ServeMux
	log zerolog.Logger
}

// New builds a Server and registers its routes.
func New(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = &types.PipelineConfig{}
	}
	s := &Server{
		cfg:      cfg,
		turns:    d.Pipeline,
		research: d.Research,
		report:   d.Report,
		catalog:  d.Catalog,
		search:   d.Search,
		models:   d.Models,
		queries:  tasks.New(tasks.KindQuery),
		reports:  tasks.New(tasks.KindReport),
		roots:    downloadRoots(cfg),
		mux:      http.NewServeMux(),
		log:      logx.With("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	s.mux.HandleFunc("POST /api/query/run", s.handleQueryRun)
	s.mux.HandleFunc("GET /api/query/progress/{id}", s.handleProgress(s.queries))
	s.mux.HandleFunc("GET /api/query/result/{id}", s.handleQueryResult)
	s.mux.HandleFunc("GET /api/query/result/{id}/json", s.handleResultJSON(s.queries))
	s.mux.HandleFunc("POST /api/query/cancel/{id}", s.handleCancel(s.queries))
	s.mux.HandleFunc("GET /api/query/tools", s.handleTools)
	s.mux.HandleFunc("POST /api/query/tool", s.handleTool)

	s.mux.HandleFunc("POST /api/report/generate", s.handleReportGenerate)
	s.mux.HandleFunc("GET /api/report/progress/{id}", s.handleProgress(s.reports))
	s.mux.HandleFunc("GET /api/report/result/{id}", s.handleReportResult)
	s.mux.HandleFunc("GET /api/report/result/{id}/json", s.handleResultJSON(s.reports))
	s.mux.HandleFunc("POST /api/report/cancel/{id}", s.handleCancel(s.reports))
	s.mux.HandleFunc("GET /api/report/templates", s.handleTemplates)
	s.mux.HandleFunc("GET /api/report/download", s.handleDownload)

	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on the configured address until ctx ends, then shuts the
// listener down and cancels background jobs.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = defaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(sctx)
		s.Close(sctx)
		s.log.Info().Msg("server stopped")
		return err
	})
	return g.Wait()
}

// prune drops finished jobs older than the configured retention.
func (s *Server) prune(r *tasks.Registry) {
	keep := s.cfg.Server.TaskRetention
	if keep <= 0 {
		return
	}
	if n := r.Prune(time.Now().Add(-keep)); n > 0 {
		s.log.Debug().Str("kind", r.Kind()).Int("pruned", n).Msg("dropped finished jobs")
	}
}

// Close cancels background jobs and waits for their workers.
func (s *Server) Close(ctx context.Context) {
	for _, r := range []*tasks.Registry{s.queries, s.reports} {
		if err := r.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Str("kind", r.Kind()).Msg("background jobs still running at shutdown")
		}
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.TurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.turns == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	timeout := s.cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	writeJSON(w, http.StatusOK, s.turns.Run(ctx, req))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"initialized": s.turns != nil,
		"tasks": map[string]int{
			tasks.KindQuery:  s.queries.Len(),
			tasks.KindReport: s.reports.Len(),
		},
		"output_dir": map[string]string{
			tasks.KindQuery:  s.cfg.Research.OutputDir,
			tasks.KindReport: s.cfg.Report.OutputDir,
		},
		"model":          s.models,
		"tavily_enabled": s.search != nil && s.cfg.Search.APIKey != "",
		"memory_backend": s.cfg.Memory.Backend,
	})
}

// handleProgress reports a job snapshot. Unknown ids are 404.
func (s *Server) handleProgress(reg *tasks.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := reg.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		snap.Result = nil
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": snap})
	}
}

func (s *Server) handleResultJSON(reg *tasks.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.completed(w, reg, r.PathValue("id"))
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": snap})
	}
}

// completed fetches a finished job or writes the 404/400 response.
func (s *Server) completed(w http.ResponseWriter, reg *tasks.Registry, id string) (types.TaskSnapshot, bool) {
	_, snap, err := reg.Result(id)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return snap, false
	case err != nil:
		snap.Result = nil
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error(), "task": snap})
		return snap, false
	}
	return snap, true
}

func (s *Server) handleCancel(reg *tasks.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := reg.Cancel(r.PathValue("id"))
		switch {
		case errors.Is(err, tasks.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, tasks.ErrFinished):
			snap.Result = nil
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error(), "task": snap})
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "task cancelled", "task": snap})
		}
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
