// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-orchestrator/internal/secrets"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	viper.SetEnvPrefix("RESEARCH_ORCHESTRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"zhipu", "openai", "siliconflow", "gemini", "anthropic"}, cfg.LLM.Preference)
	assert.Equal(t, types.SafetyLight, cfg.LLM.SafetyMode)
	assert.True(t, cfg.LLM.FallbackOnSensitive)
	assert.Equal(t, 4, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.LLM.Retry.MaxDelay)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "reports/query_engine", cfg.Research.OutputDir)
	assert.Equal(t, "reports/final", cfg.Report.OutputDir)
	assert.Equal(t, 900*time.Second, cfg.Report.Timeout)
	assert.Equal(t, types.OutputHTML, cfg.Report.OutputFormat)
	assert.Equal(t, types.MemorySQLite, cfg.Memory.Backend)
	assert.Equal(t, 5*time.Second, cfg.Memory.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20*time.Minute, cfg.Server.RequestTimeout)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("RESEARCH_ORCHESTRATOR_MEMORY_BACKEND", "none")
	t.Setenv("RESEARCH_ORCHESTRATOR_REPORT_OUTPUT_FORMAT", "pdf")
	t.Setenv("RESEARCH_ORCHESTRATOR_MEMORY_TIMEOUT", "2s")
	resetViper(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, types.MemoryNone, cfg.Memory.Backend)
	assert.Equal(t, types.OutputPDF, cfg.Report.OutputFormat)
	assert.Equal(t, 2*time.Second, cfg.Memory.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "research-orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
research:
  quick: true
  max_reflections: 1
report:
  author: Desk
server:
  download_roots: [/srv/exports]
`), 0o644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Research.Quick)
	assert.Equal(t, 1, cfg.Research.MaxReflections)
	assert.Equal(t, "Desk", cfg.Report.Author)
	assert.Equal(t, []string{"/srv/exports"}, cfg.Server.DownloadRoots)
	assert.Equal(t, 10, cfg.Research.MaxResults, "unset keys keep defaults")
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("RESEARCH_ORCHESTRATOR_MEMORY_BACKEND", "postgres")
	resetViper(t)

	_, err := loadConfig()
	assert.ErrorContains(t, err, "unknown memory backend")
}

func TestTavilyKeyFromSecrets(t *testing.T) {
	resetViper(t)
	prev := loadedSecrets
	loadedSecrets = secrets.Secrets{"tavily-api-key": "tvly-test"}
	t.Cleanup(func() { loadedSecrets = prev })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "tvly-test", cfg.Search.APIKey)
}

func TestBuildAppWithoutCredentials(t *testing.T) {
	resetViper(t)
	prev := loadedSecrets
	loadedSecrets = secrets.Secrets{}
	t.Cleanup(func() { loadedSecrets = prev })
	for _, env := range []string{"ZHIPU_API_KEY", "OPENAI_API_KEY", "SILICONFLOW_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY", "TAVILY_API_KEY"} {
		t.Setenv(env, "")
	}

	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Memory.Backend = types.MemoryNone
	cfg.Report.OutputDir = t.TempDir()

	a, err := buildApp(t.Context(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.client)
	assert.Nil(t, a.research)
	assert.Nil(t, a.search)
	assert.NotNil(t, a.report)
	assert.False(t, a.memory.Enabled())

	resp := a.pipeline.Run(t.Context(), types.TurnRequest{Text: "hello"})
	assert.NotEmpty(t, resp.Result)
}

func TestOpenMemoryStoreSQLite(t *testing.T) {
	cfg := &types.PipelineConfig{}
	cfg.Memory.Backend = types.MemorySQLite
	cfg.Memory.Dir = t.TempDir()

	store, err := openMemoryStore(t.Context(), cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())

	cfg.Memory.Backend = types.MemoryNone
	store, err = openMemoryStore(t.Context(), cfg)
	require.NoError(t, err)
	assert.Nil(t, store)
}
