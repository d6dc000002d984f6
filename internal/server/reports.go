// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/internal/tasks"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const defaultReportQuery = "Comprehensive report"

type generateRequest struct {
	Query          string `json:"query"`
	CustomTemplate string `json:"custom_template"`
	OutputFormat   string `json:"output_format"`
	Text           string `json:"text"`
	DraftPath      string `json:"draft_path"`
	StatePath      string `json:"state_path"`
}

func (s *Server) handleReportGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := types.OutputFormat(strings.ToLower(strings.TrimSpace(body.OutputFormat)))
	switch format {
	case "", types.OutputHTML, types.OutputDOCX, types.OutputPDF:
	default:
		writeError(w, http.StatusBadRequest, "unsupported output_format: "+body.OutputFormat)
		return
	}
	if s.report == nil {
		writeError(w, http.StatusServiceUnavailable, "report engine not configured")
		return
	}

	req := report.Request{
		Query:        strings.TrimSpace(body.Query),
		TemplateHint: strings.TrimSuffix(strings.TrimSpace(body.CustomTemplate), ".md"),
		Format:       format,
		Sources:      report.Sources{Draft: body.Text},
		Artifacts:    types.ArtifactHandle{DraftPath: body.DraftPath, StatePath: body.StatePath},
	}
	if strings.TrimSpace(body.Text) == "" && req.Artifacts.Empty() {
		if h, err := research.LatestArtifacts(s.cfg.Research.OutputDir); err == nil {
			req.Artifacts = h
		} else {
			s.log.Debug().Err(err).Msg("no research artifacts for report job")
		}
	}
	if req.Query == "" && req.Artifacts.Empty() && strings.TrimSpace(body.Text) == "" {
		req.Query = defaultReportQuery
	}

	s.prune(s.reports)
	snap := s.reports.Submit(req.Query, s.reportWorker(req))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": snap})
}

// reportWorker runs one report job: 10 when started, then the engine's
// milestones (40, 90, 100).
func (s *Server) reportWorker(req report.Request) tasks.Worker {
	return func(ctx context.Context, p *tasks.Progress) (any, error) {
		p.Set(10)
		res, err := s.report.Generate(ctx, req, p.Set)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// handleReportResult serves the finished document.
func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.completed(w, s.reports, r.PathValue("id"))
	if !ok {
		return
	}
	res, _ := snap.Result.(report.Result)
	if res.Path == "" {
		writeError(w, http.StatusNotFound, "report has no output file")
		return
	}
	if _, err := os.Stat(res.Path); err != nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}
	serveFile(w, r, res.Path, true)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	type item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Size        int    `json:"size"`
	}
	catalog := s.catalog
	if catalog == nil {
		catalog = report.BuiltinCatalog()
	}
	var items []item
	for _, t := range catalog.Templates() {
		items = append(items, item{Name: t.Name, Description: t.Description, Size: len(t.Content)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"templates":    items,
		"template_dir": s.cfg.Report.TemplateDir,
	})
}
