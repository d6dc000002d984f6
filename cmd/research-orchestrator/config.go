// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// setDefaults registers every configuration key with its default value.
// Keys without a default are not visible to environment overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.user_agent", "research-orchestrator/"+version)
	v.SetDefault("llm.preference", []string{"zhipu", "openai", "siliconflow", "gemini", "anthropic"})
	v.SetDefault("llm.general_fallbacks", []string{"openai"})
	v.SetDefault("llm.sensitive_fallbacks", []string{"siliconflow"})
	v.SetDefault("llm.safety_mode", string(types.SafetyLight))
	v.SetDefault("llm.fallback_on_sensitive", true)
	v.SetDefault("llm.safety_prefix", "")
	v.SetDefault("llm.retry.max_attempts", 4)
	v.SetDefault("llm.retry.base_delay", time.Second)
	v.SetDefault("llm.retry.max_delay", 20*time.Second)
	v.SetDefault("llm.retry.jitter", 0.35)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("intent.timezone", "Asia/Shanghai")
	v.SetDefault("intent.locale", "zh-CN")
	v.SetDefault("intent.temperature", 0.1)

	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.user_agent", "research-orchestrator/"+version)
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "")
	v.SetDefault("search.max_content_length", 4000)

	v.SetDefault("research.output_dir", "reports/query_engine")
	v.SetDefault("research.max_reflections", 2)
	v.SetDefault("research.max_results", 10)
	v.SetDefault("research.quick", false)
	v.SetDefault("research.quick_tool", types.ToolLast24Hours)
	v.SetDefault("research.quick_max_paragraphs", 2)
	v.SetDefault("research.quick_max_results", 5)
	v.SetDefault("research.save_final_markdown", false)

	v.SetDefault("report.output_dir", "reports/final")
	v.SetDefault("report.template_dir", "")
	v.SetDefault("report.timeout", 900*time.Second)
	v.SetDefault("report.output_format", string(types.OutputHTML))
	v.SetDefault("report.font_paths", []string{})
	v.SetDefault("report.force_local", false)
	v.SetDefault("report.author", "Auto Researcher")

	v.SetDefault("memory.backend", string(types.MemorySQLite))
	v.SetDefault("memory.dir", "data/memory")
	v.SetDefault("memory.timeout", 5*time.Second)
	v.SetDefault("memory.max_results", 5)
	v.SetDefault("memory.profile", "default")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 20*time.Minute)
	v.SetDefault("server.download_roots", []string{})
	v.SetDefault("server.task_retention", time.Duration(0))
}

// loadConfig decodes the merged viper settings and fills credentials
// that live in .secrets/ rather than in the config file.
func loadConfig() (*types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.Search.APIKey == "" && loadedSecrets != nil {
		cfg.Search.APIKey = loadedSecrets.APIKey("tavily")
	}
	switch cfg.Memory.Backend {
	case types.MemoryNone, types.MemorySQLite, types.MemoryRedis:
	default:
		return nil, fmt.Errorf("unknown memory backend %q (want none, sqlite or redis)", cfg.Memory.Backend)
	}
	return &cfg, nil
}
