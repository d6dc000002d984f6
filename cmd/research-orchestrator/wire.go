// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/research-orchestrator/internal/intent"
	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/memory"
	"github.com/pdiddy/research-orchestrator/internal/pipeline"
	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/internal/research"
	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// app holds the engines built once per process.
type app struct {
	cfg      *types.PipelineConfig
	client   *llm.Client
	memory   *memory.Gateway
	search   *search.Tavily
	research *research.Engine
	report   *report.Engine
	pipeline *pipeline.Pipeline
}

// buildApp resolves the LLM client and constructs every engine. A missing
// provider credential or an unreachable memory backend degrades the app
// instead of failing it.
func buildApp(ctx context.Context, cfg *types.PipelineConfig, w io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	var inv llm.Invoker
	client, err := llm.Resolve(ctx, cfg.LLM, loadedSecrets)
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		logx.Warn().Msg("no LLM provider has a credential; chat is disabled and engines fall back to local output")
	case err != nil:
		return nil, fmt.Errorf("resolving LLM client: %w", err)
	default:
		a.client = client
		inv = client
	}

	store, err := openMemoryStore(ctx, cfg)
	if err != nil {
		logx.Warn().Err(err).Str("backend", string(cfg.Memory.Backend)).Msg("memory disabled")
		store = nil
	}
	a.memory = memory.NewGateway(store, cfg.Memory)

	var tool search.Tool
	if cfg.Search.APIKey != "" {
		a.search = search.NewTavily(cfg.Search)
		tool = a.search
	} else {
		logx.Warn().Msg("no Tavily API key; research and search tools are disabled")
	}

	a.report = report.New(inv, cfg, w)
	reg := pipeline.EngineRegistry{
		Config: cfg,
		LLM:    inv,
		Intent: intent.New(inv, cfg),
		Report: a.report,
	}
	if inv != nil && tool != nil {
		a.research = research.New(inv, tool, cfg, w)
		reg.Research = a.research
	}
	if a.memory.Enabled() {
		reg.Memory = a.memory
	}
	a.pipeline = pipeline.New(reg, w)
	return a, nil
}

// Close releases the memory backend.
func (a *app) Close() error {
	if a.memory == nil || !a.memory.Enabled() {
		return nil
	}
	return a.memory.Store().Close()
}

// models lists the resolved providers for status output.
func (a *app) models() []string {
	if a.client == nil {
		return nil
	}
	return a.client.Model()
}

// openMemoryStore opens the configured backend. It returns a nil Store for
// the none backend.
func openMemoryStore(ctx context.Context, cfg *types.PipelineConfig) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case types.MemorySQLite:
		s, err := memory.NewSQLiteStore(cfg.Memory.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case types.MemoryRedis:
		rc, err := memory.LoadRedisConfig()
		if err != nil {
			return nil, err
		}
		rdb, err := rc.New(ctx)
		if err != nil {
			return nil, err
		}
		return memory.NewRedisStore(rdb, rc), nil
	}
	return nil, nil
}

// loadApp reads the configuration and builds the app in one step.
func loadApp(ctx context.Context, w io.Writer, adjust func(*types.PipelineConfig)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return buildApp(ctx, cfg, w)
}
