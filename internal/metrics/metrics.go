// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics registers the Prometheus collectors shared by the pipeline
// stages and exposes them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_llm_calls_total",
			Help: "LLM provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	FallbackRoutes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_llm_fallbacks_total",
			Help: "LLM invocations that left the primary provider, by route",
		},
		[]string{"route"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_orchestrator_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600, 1200},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_stage_failures_total",
			Help: "Pipeline stage failures folded into the reply",
		},
		[]string{"stage"},
	)

	Branches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_branches_total",
			Help: "Turns by pipeline branch",
		},
		[]string{"branch"},
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_search_calls_total",
			Help: "Search tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ReportFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_report_fallbacks_total",
			Help: "Report generations that used a local fallback document",
		},
		[]string{"reason"},
	)

	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_memory_operations_total",
			Help: "Memory gateway operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_orchestrator_tasks_total",
			Help: "Async tasks by kind and final status",
		},
		[]string{"kind", "status"},
	)

	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_orchestrator_active_tasks",
			Help: "Number of async tasks currently pending or running",
		},
	)
)

// Outcome labels.
const (
	OK    = "ok"
	Error = "error"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
