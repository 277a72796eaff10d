package config_test

import (
	"testing"

	"taxauditrag/internal/infra/config"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := config.Load()
	assert.Equal(t, "http://localhost:11434", cfg.LLMBaseURL)
	assert.Equal(t, "gemma3:12b", cfg.LLMModel)
	assert.Equal(t, 150, cfg.Retrieval.Findings.TopKLex)
	assert.Equal(t, 60, cfg.Retrieval.Findings.RRFK)
	assert.Equal(t, 4000, cfg.Retrieval.Context.TokenBudget)
	assert.True(t, cfg.Retrieval.Context.MergeAdjacent)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LLM_MODEL", "qwen2.5:14b")
	t.Setenv("FINDINGS_RRF_K", "30")
	t.Setenv("CONTEXT_MERGE_ADJACENT", "false")

	cfg := config.Load()
	assert.Equal(t, "qwen2.5:14b", cfg.LLMModel)
	assert.Equal(t, 30, cfg.Retrieval.Findings.RRFK)
	assert.False(t, cfg.Retrieval.Context.MergeAdjacent)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("FINDINGS_RRF_K", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 60, cfg.Retrieval.Findings.RRFK)
}
