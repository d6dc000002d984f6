// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var (
	ErrForbiddenPath = errors.New("path is outside the allowed output directories")
	ErrNotFound      = errors.New("file not found")
	ErrBadFormat     = errors.New("format must be one of auto, html, pdf, docx, md")
)

const (
	defaultResearchDir = "reports/query_engine"
	defaultReportDir   = "reports/final"
)

var downloadFormats = map[string]string{
	"auto": "",
	"html": ".html",
	"pdf":  ".pdf",
	"docx": ".docx",
	"md":   ".md",
}

// downloadRoots lists the directories the download endpoint may serve.
func downloadRoots(cfg *types.PipelineConfig) []string {
	candidates := []string{
		firstNonBlank(cfg.Research.OutputDir, defaultResearchDir),
		firstNonBlank(cfg.Report.OutputDir, defaultReportDir),
	}
	candidates = append(candidates, cfg.Server.DownloadRoots...)

	seen := make(map[string]bool)
	var roots []string
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		abs, err := canonical(c)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}
	return roots
}

// canonical makes path absolute and resolves symlinks when it exists.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// resolveDownload maps a requested path and format to a file under one
// of roots. A non-auto format swaps the extension; when the swapped file
// is missing or resolves outside roots the original file is served.
func resolveDownload(roots []string, path, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "auto"
	}
	ext, ok := downloadFormats[format]
	if !ok {
		return "", ErrBadFormat
	}
	if strings.TrimSpace(path) == "" {
		return "", ErrNotFound
	}

	target, err := canonical(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if !within(roots, target) {
		return "", ErrForbiddenPath
	}

	if ext != "" && !strings.EqualFold(filepath.Ext(target), ext) {
		swapped, err := canonical(strings.TrimSuffix(target, filepath.Ext(target)) + ext)
		if err == nil && within(roots, swapped) && isFile(swapped) {
			return swapped, nil
		}
	}
	if !isFile(target) {
		return "", ErrNotFound
	}
	return target, nil
}

func within(roots []string, target string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, target)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel) {
			return true
		}
	}
	return false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, err := resolveDownload(s.roots, q.Get("path"), q.Get("format"))
	switch {
	case errors.Is(err, ErrBadFormat):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, ErrForbiddenPath):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inline, _ := strconv.ParseBool(q.Get("inline"))
	serveFile(w, r, path, !inline)
}

// serveFile streams path with a content type taken from its extension.
func serveFile(w http.ResponseWriter, r *http.Request, path string, attachment bool) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if strings.EqualFold(filepath.Ext(name), ".md") {
		ctype = "text/markdown; charset=utf-8"
	}
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
