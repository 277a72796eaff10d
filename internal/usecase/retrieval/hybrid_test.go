package retrieval_test

import (
	"testing"

	"taxauditrag/internal/domain"
	"taxauditrag/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
)

func TestFuse_CombinesRanksFromBothLists(t *testing.T) {
	lex := []domain.LexicalHit{{ID: "a", Score: 10}, {ID: "b", Score: 8}}
	vec := []domain.VectorHit{{ID: "b", Score: 0.9}, {ID: "c", Score: 0.8}}

	fused := retrieval.Fuse(lex, vec, 60)

	byID := map[string]retrieval.FusedHit{}
	for _, f := range fused {
		byID[f.ID] = f
	}

	assert.InDelta(t, 1.0/61.0, byID["a"].RRFScore, 1e-9, "lexical-only item gets only its lexical contribution")
	assert.InDelta(t, 1.0/62.0+1.0/61.0, byID["b"].RRFScore, 1e-9, "item in both lists sums both contributions")
	assert.InDelta(t, 1.0/62.0, byID["c"].RRFScore, 1e-9, "vector-only item gets only its vector contribution")
}

func TestFuse_Monotone_AddingItemDoesNotLowerOthers(t *testing.T) {
	lex := []domain.LexicalHit{{ID: "a", Score: 10}, {ID: "b", Score: 8}}
	vec := []domain.VectorHit{}

	before := retrieval.Fuse(lex, vec, 60)
	var beforeScoreA float64
	for _, f := range before {
		if f.ID == "a" {
			beforeScoreA = f.RRFScore
		}
	}

	vec2 := []domain.VectorHit{{ID: "a", Score: 0.5}}
	after := retrieval.Fuse(lex, vec2, 60)
	var afterScoreA float64
	for _, f := range after {
		if f.ID == "a" {
			afterScoreA = f.RRFScore
		}
	}

	assert.GreaterOrEqual(t, afterScoreA, beforeScoreA)
}

func TestFuse_DegenerateWhenOneRankingEmpty(t *testing.T) {
	lex := []domain.LexicalHit{{ID: "a", Score: 10}, {ID: "b", Score: 5}}
	fused := retrieval.Fuse(lex, nil, 60)
	assert.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}

func TestFuse_TieBreak_HigherOriginalScoreThenID(t *testing.T) {
	// "z" and "a" each rank first in a different list, so their RRF
	// contributions (and original scores) are equal; the tie resolves
	// lexically by id.
	lex := []domain.LexicalHit{{ID: "z", Score: 5}}
	vec := []domain.VectorHit{{ID: "a", Score: 5}}
	fused := retrieval.Fuse(lex, vec, 60)
	assert.Equal(t, "a", fused[0].ID)
}

func TestFuse_EmptyBothRankings(t *testing.T) {
	fused := retrieval.Fuse(nil, nil, 60)
	assert.Empty(t, fused)
}

func TestCutoffByTopScoreRatio_DropsBelowHalfOfTop(t *testing.T) {
	hits := []retrieval.FusedHit{
		{ID: "a", RRFScore: 1.0},
		{ID: "b", RRFScore: 0.6},
		{ID: "c", RRFScore: 0.4},
	}
	kept := retrieval.CutoffByTopScoreRatio(hits, 0.5)
	assert.Len(t, kept, 2)
}
