// Package config loads the env-var configuration surface from
// spec.md §6, grounded on the teacher's internal/infra/config
// (typed-fallback env helpers, flat struct, Load()).
package config

import (
	"os"
	"strconv"

	"taxauditrag/internal/usecase"
)

// Config is the full runtime configuration surface.
type Config struct {
	LLMBaseURL string
	LLMModel   string

	LexicalURL  string
	LexicalUser string
	LexicalPass string

	VectorPath string

	Retrieval usecase.RetrievalConfig

	HTTPAddr string
}

// Load reads the environment, falling back to spec.md §6's documented
// defaults for any unset key.
func Load() Config {
	retrieval := usecase.DefaultRetrievalConfig()

	retrieval.Findings.TopKLex = getEnvInt("FINDINGS_TOP_K_LEX", retrieval.Findings.TopKLex)
	retrieval.Findings.TopKVec = getEnvInt("FINDINGS_TOP_K_VEC", retrieval.Findings.TopKVec)
	retrieval.Findings.RRFK = getEnvInt("FINDINGS_RRF_K", retrieval.Findings.RRFK)
	retrieval.Findings.FinalTopN = getEnvInt("FINDINGS_FINAL_TOP_N", retrieval.Findings.FinalTopN)

	retrieval.Chunks.TopKLex = getEnvInt("CHUNKS_TOP_K_LEX", retrieval.Chunks.TopKLex)
	retrieval.Chunks.TopKVec = getEnvInt("CHUNKS_TOP_K_VEC", retrieval.Chunks.TopKVec)

	retrieval.Block.TopKChunks = getEnvInt("BLOCK_TOP_K_CHUNKS", retrieval.Block.TopKChunks)
	retrieval.Block.IntersectionMin = getEnvInt("BLOCK_INTERSECTION_MIN", retrieval.Block.IntersectionMin)
	retrieval.Block.FinalTopN = getEnvInt("BLOCK_FINAL_TOP_N", retrieval.Block.FinalTopN)
	retrieval.Block.MaxBlocksPerDoc = getEnvInt("MAX_BLOCKS_PER_DOC", retrieval.Block.MaxBlocksPerDoc)

	retrieval.VectorScoreThreshold = getEnvFloat64("VECTOR_SCORE_THRESHOLD", retrieval.VectorScoreThreshold)
	retrieval.VectorScoreThresholdMulti = getEnvFloat64("VECTOR_SCORE_THRESHOLD_MULTI", retrieval.VectorScoreThresholdMulti)
	retrieval.ConfidenceThreshold = getEnvFloat64("CONFIDENCE_THRESHOLD", retrieval.ConfidenceThreshold)

	retrieval.Context.TokenBudget = getEnvInt("CONTEXT_TOKEN_BUDGET", retrieval.Context.TokenBudget)
	retrieval.Context.MergeAdjacent = getEnvBool("CONTEXT_MERGE_ADJACENT", retrieval.Context.MergeAdjacent)

	retrieval.Section.Findings = getEnvFloat64("SECTION_WEIGHT_FINDINGS", retrieval.Section.Findings)
	retrieval.Section.Technique = getEnvFloat64("SECTION_WEIGHT_TECHNIQUE", retrieval.Section.Technique)

	return Config{
		LLMBaseURL:  getEnvString("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:    getEnvString("LLM_MODEL", "gemma3:12b"),
		LexicalURL:  getEnvString("LEXICAL_URL", "http://localhost:9200"),
		LexicalUser: getEnvString("LEXICAL_USER", "elastic"),
		LexicalPass: os.Getenv("LEXICAL_PASS"),
		VectorPath:  getEnvString("VECTOR_PATH", "./vector_storage"),
		Retrieval:   retrieval,
		HTTPAddr:    getEnvString("HTTP_ADDR", ":8080"),
	}
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat64(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
