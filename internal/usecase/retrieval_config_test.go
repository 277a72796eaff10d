package usecase_test

import (
	"testing"

	"taxauditrag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetrievalConfig_Valid(t *testing.T) {
	cfg := usecase.DefaultRetrievalConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 150, cfg.Findings.TopKLex)
	assert.Equal(t, 60, cfg.Findings.RRFK)
	assert.Equal(t, 30, cfg.Findings.FinalTopN)
	assert.Equal(t, 300, cfg.Chunks.TopKLex)
	assert.Equal(t, 0.35, cfg.VectorScoreThreshold)
	assert.Equal(t, 0.65, cfg.VectorScoreThresholdMulti)
	assert.Equal(t, 2, cfg.Block.IntersectionMin)
	assert.Equal(t, 2, cfg.Block.MaxBlocksPerDoc)
	assert.Equal(t, 4000, cfg.Context.TokenBudget)
}

func TestRetrievalConfig_RejectsInvalidRRFK(t *testing.T) {
	cfg := usecase.DefaultRetrievalConfig()
	cfg.Findings.RRFK = 0
	assert.Error(t, cfg.Validate())
}

func TestRetrievalConfig_RejectsOutOfRangeThreshold(t *testing.T) {
	cfg := usecase.DefaultRetrievalConfig()
	cfg.VectorScoreThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestBlockPromotionConfig_RejectsZeroMaxBlocksPerDoc(t *testing.T) {
	cfg := usecase.DefaultRetrievalConfig()
	cfg.Block.MaxBlocksPerDoc = 0
	assert.Error(t, cfg.Validate())
}
