// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-orchestrator/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig controls the retry wrapper placed around a single provider call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first (default 4).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the first backoff delay; it doubles each attempt (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps the exponential delay before jitter is added (default 20s).
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// Jitter is the maximum random fraction of the delay added on top (default 0.35).
	Jitter float64 `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
}

// ProviderKind selects the wire protocol used to reach a provider.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
)

// ProviderConfig describes one chat-completion provider.
type ProviderConfig struct {
	// Kind is the wire protocol: openai (any OpenAI-compatible API), anthropic, or gemini.
	Kind ProviderKind `json:"kind" yaml:"kind" mapstructure:"kind"`

	// BaseURL overrides the default endpoint for the kind.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the credential. Usually loaded from .secrets/<name>-api-key.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`
}

// SafetyMode controls when the safety-framing prefix is applied.
type SafetyMode string

const (
	// SafetyOff never prefixes prompts.
	SafetyOff SafetyMode = "off"
	// SafetyLight prefixes only after a content-policy rejection.
	SafetyLight SafetyMode = "light"
	// SafetyStrict always prefixes prompts.
	SafetyStrict SafetyMode = "strict"
)

// LLMConfig holds settings for the provider-fallback LLM client.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Preference is the ordered list of provider names tried when resolving
	// the primary provider. The first one with a credential wins.
	Preference []string `json:"preference" yaml:"preference" mapstructure:"preference"`

	// Providers maps provider names to their settings.
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" mapstructure:"providers"`

	// GeneralFallbacks are tried in order after a non-safety failure.
	GeneralFallbacks []string `json:"general_fallbacks" yaml:"general_fallbacks" mapstructure:"general_fallbacks"`

	// SensitiveFallbacks are tried in order after a content-policy rejection.
	SensitiveFallbacks []string `json:"sensitive_fallbacks" yaml:"sensitive_fallbacks" mapstructure:"sensitive_fallbacks"`

	// SafetyMode is off, light, or strict (default light).
	SafetyMode SafetyMode `json:"safety_mode" yaml:"safety_mode" mapstructure:"safety_mode"`

	// FallbackOnSensitive enables the safety-block route (default true).
	FallbackOnSensitive bool `json:"fallback_on_sensitive" yaml:"fallback_on_sensitive" mapstructure:"fallback_on_sensitive"`

	// SafetyPrefix overrides the built-in safety-framing text.
	SafetyPrefix string `json:"safety_prefix,omitempty" yaml:"safety_prefix,omitempty" mapstructure:"safety_prefix"`

	// Retry controls the per-provider retry wrapper.
	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// MaxTokens is the default completion budget (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the default sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// IntentConfig holds settings for the intent parser.
type IntentConfig struct {
	// Timezone is reported to the model as part of the routing context (default Asia/Shanghai).
	Timezone string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`

	// Locale is reported to the model as part of the routing context (default zh-CN).
	Locale string `json:"locale" yaml:"locale" mapstructure:"locale"`

	// Temperature for the routing call (default 0.1).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// SearchConfig holds settings for the web search capability.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey is the Tavily API key.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`

	// BaseURL overrides the Tavily endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxContentLength truncates each result's content (default 4000 runes).
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length" mapstructure:"max_content_length"`
}

// ResearchConfig holds settings for the research engine.
type ResearchConfig struct {
	// OutputDir receives state, draft, handoff and optional report files
	// (default reports/query_engine).
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// MaxReflections is the number of reflection passes per paragraph (default 2).
	MaxReflections int `json:"max_reflections" yaml:"max_reflections" mapstructure:"max_reflections"`

	// MaxResults caps the results kept per search (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Quick enables quick mode: first few paragraphs, no reflection, fixed tool.
	Quick bool `json:"quick" yaml:"quick" mapstructure:"quick"`

	// QuickTool is the search tool used in quick mode (default search_news_last_24_hours).
	QuickTool string `json:"quick_tool" yaml:"quick_tool" mapstructure:"quick_tool"`

	// QuickMaxParagraphs is the number of paragraphs processed in quick mode (default 2).
	QuickMaxParagraphs int `json:"quick_max_paragraphs" yaml:"quick_max_paragraphs" mapstructure:"quick_max_paragraphs"`

	// QuickMaxResults caps the results kept per search in quick mode (default 5).
	QuickMaxResults int `json:"quick_max_results" yaml:"quick_max_results" mapstructure:"quick_max_results"`

	// SaveFinalMarkdown also writes report_<slug>_<ts>.md.
	SaveFinalMarkdown bool `json:"save_final_markdown" yaml:"save_final_markdown" mapstructure:"save_final_markdown"`
}

// ReportConfig holds settings for the report engine.
type ReportConfig struct {
	// OutputDir receives rendered reports and report state files (default reports/final).
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// TemplateDir holds Markdown templates. Empty uses the built-in catalog.
	TemplateDir string `json:"template_dir,omitempty" yaml:"template_dir,omitempty" mapstructure:"template_dir"`

	// Timeout is the hard wall-clock budget for HTML generation (default 900s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// OutputFormat is the default output: html, docx, or pdf (default html).
	OutputFormat OutputFormat `json:"output_format" yaml:"output_format" mapstructure:"output_format"`

	// FontPaths lists TTF files tried first by the PDF writer.
	FontPaths []string `json:"font_paths,omitempty" yaml:"font_paths,omitempty" mapstructure:"font_paths"`

	// ForceLocal skips the LLM and renders the material locally.
	ForceLocal bool `json:"force_local" yaml:"force_local" mapstructure:"force_local"`

	// Author is written into document metadata (default "Auto Researcher").
	Author string `json:"author" yaml:"author" mapstructure:"author"`
}

// MemoryBackend selects the long-term memory store.
type MemoryBackend string

const (
	MemoryNone   MemoryBackend = "none"
	MemorySQLite MemoryBackend = "sqlite"
	MemoryRedis  MemoryBackend = "redis"
)

// MemoryConfig holds settings for the memory gateway.
type MemoryConfig struct {
	// Backend is none, sqlite, or redis (default sqlite).
	Backend MemoryBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir holds the SQLite database (default data/memory).
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Timeout bounds each memory read and write (default 5s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxResults is the number of remembered turns folded into the context (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Profile namespaces memory entries (default "default").
	Profile string `json:"profile" yaml:"profile" mapstructure:"profile"`
}

// ServerConfig holds settings for the HTTP entry point.
type ServerConfig struct {
	// Addr is the listen address (default :8080).
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// RequestTimeout bounds a synchronous /api/chat turn (default 20m).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	// DownloadRoots extends the allow-list used by the download endpoint.
	DownloadRoots []string `json:"download_roots,omitempty" yaml:"download_roots,omitempty" mapstructure:"download_roots"`

	// TaskRetention drops finished jobs older than this when a new job is
	// submitted. Zero keeps every job until it is cancelled.
	TaskRetention time.Duration `json:"task_retention" yaml:"task_retention" mapstructure:"task_retention"`
}

// PipelineConfig groups all component configurations. It is built once at
// start-up and passed by pointer to the components that need it.
type PipelineConfig struct {
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Intent   IntentConfig   `json:"intent" yaml:"intent" mapstructure:"intent"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	Research ResearchConfig `json:"research" yaml:"research" mapstructure:"research"`
	Report   ReportConfig   `json:"report" yaml:"report" mapstructure:"report"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory" mapstructure:"memory"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
}
