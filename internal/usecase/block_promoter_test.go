package usecase_test

import (
	"testing"

	"taxauditrag/internal/domain"
	"taxauditrag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkHit(findingID, section domain.Section, docID, text string, order int, score float64) domain.ChunkHit {
	return domain.ChunkHit{
		Chunk: domain.Chunk{
			ChunkID:      docID + "-" + string(section) + "-" + text[:1],
			FindingID:    string(findingID),
			DocID:        docID,
			Section:      section,
			SectionOrder: order,
			ChunkOrder:   1,
			Text:         text,
		},
		ScoreCombined: score,
	}
}

func TestBlockPromoter_IntersectionPreferredWhenEnoughCoverage(t *testing.T) {
	groups := map[domain.Section][]domain.ChunkHit{
		domain.SectionInvestigationFindings:  {chunkHit("f1", domain.SectionInvestigationFindings, "d1", "매출누락 사실관계", 1, 0.9)},
		domain.SectionInvestigationTechnique: {chunkHit("f1", domain.SectionInvestigationTechnique, "d1", "조사기법 내용", 2, 0.8)},
	}
	groups[domain.SectionInvestigationFindings] = append(groups[domain.SectionInvestigationFindings],
		chunkHit("f2", domain.SectionInvestigationFindings, "d2", "매출누락 제조업", 1, 0.7))
	groups[domain.SectionInvestigationTechnique] = append(groups[domain.SectionInvestigationTechnique],
		chunkHit("f2", domain.SectionInvestigationTechnique, "d2", "조사기법", 2, 0.6))

	findings := map[string]domain.FindingHit{
		"f1": {Finding: domain.Finding{FindingID: "f1", DocID: "d1", Item: "item1"}},
		"f2": {Finding: domain.Finding{FindingID: "f2", DocID: "d2", Item: "item2"}},
	}

	bp := usecase.NewBlockPromoter(usecase.BlockPromotionConfig{TopKChunks: 3, IntersectionMin: 2, FinalTopN: 3, MaxBlocksPerDoc: 2}, usecase.SectionWeightConfig{Findings: 0.5, Technique: 0.5})
	result := bp.Promote(groups, []domain.Section{domain.SectionInvestigationFindings, domain.SectionInvestigationTechnique}, findings, nil)

	require.Len(t, result.BlockRanking, 2)
}

func TestBlockPromoter_KeywordFilter_FullPartialNone(t *testing.T) {
	groups := map[domain.Section][]domain.ChunkHit{
		domain.SectionInvestigationFindings: {
			chunkHit("f1", domain.SectionInvestigationFindings, "d1", "부가가치세 매출누락 확인", 1, 0.9),
			chunkHit("f2", domain.SectionInvestigationFindings, "d2", "부가가치세 관련 내용만", 1, 0.8),
			chunkHit("f3", domain.SectionInvestigationFindings, "d3", "무관한 내용", 1, 0.7),
		},
	}
	findings := map[string]domain.FindingHit{
		"f1": {Finding: domain.Finding{FindingID: "f1", DocID: "d1"}},
		"f2": {Finding: domain.Finding{FindingID: "f2", DocID: "d2"}},
		"f3": {Finding: domain.Finding{FindingID: "f3", DocID: "d3"}},
	}

	bp := usecase.NewBlockPromoter(usecase.BlockPromotionConfig{TopKChunks: 3, IntersectionMin: 2, FinalTopN: 3, MaxBlocksPerDoc: 2}, usecase.SectionWeightConfig{Findings: 0.5, Technique: 0.5})
	result := bp.Promote(groups, []domain.Section{domain.SectionInvestigationFindings}, findings, []string{"부가가치세", "매출누락"})

	require.Len(t, result.BlockRanking, 1, "only f1 has the block-level keyword")
	assert.Equal(t, "f1", result.BlockRanking[0].FindingID)
	require.Len(t, result.ExcludedBlocks, 1, "f2 has only the document-level keyword")
	assert.Equal(t, "f2", result.ExcludedBlocks[0].FindingID)
	assert.Equal(t, 1, result.KeywordBlockCounts["매출누락"])
}

func TestBlockPromoter_Blend_MissingSectionScoresZero(t *testing.T) {
	groups := map[domain.Section][]domain.ChunkHit{
		// f1 covers both required sections; f2 only covers findings, so its
		// technique contribution must be 0 under the blend.
		domain.SectionInvestigationFindings: {
			chunkHit("f1", domain.SectionInvestigationFindings, "d1", "매출누락 사실관계", 1, 0.6),
			chunkHit("f2", domain.SectionInvestigationFindings, "d2", "매출누락 제조업", 1, 1.0),
		},
		domain.SectionInvestigationTechnique: {
			chunkHit("f1", domain.SectionInvestigationTechnique, "d1", "조사기법 내용", 2, 0.6),
		},
	}
	findings := map[string]domain.FindingHit{
		"f1": {Finding: domain.Finding{FindingID: "f1", DocID: "d1"}},
		"f2": {Finding: domain.Finding{FindingID: "f2", DocID: "d2"}},
	}

	// IntersectionMin of 3 can never be met by 2 blocks, forcing the blend path.
	bp := usecase.NewBlockPromoter(usecase.BlockPromotionConfig{TopKChunks: 3, IntersectionMin: 3, FinalTopN: 2, MaxBlocksPerDoc: 2},
		usecase.SectionWeightConfig{Findings: 0.5, Technique: 0.5})
	result := bp.Promote(groups, []domain.Section{domain.SectionInvestigationFindings, domain.SectionInvestigationTechnique}, findings, nil)

	require.Len(t, result.BlockRanking, 2)
	scores := map[string]float64{}
	for _, b := range result.BlockRanking {
		scores[b.FindingID] = b.Score
	}
	// f1: 0.5*0.6 + 0.5*0.6 = 0.6. f2: 0.5*1.0 + 0.5*0 (no technique chunks) = 0.5.
	assert.InDelta(t, 0.6, scores["f1"], 0.0001)
	assert.InDelta(t, 0.5, scores["f2"], 0.0001)
}

func TestBlockPromoter_DiversityConstraint_MaxPerDoc(t *testing.T) {
	groups := map[domain.Section][]domain.ChunkHit{
		domain.SectionInvestigationFindings: {
			chunkHit("f1", domain.SectionInvestigationFindings, "d1", "a", 1, 0.9),
			chunkHit("f2", domain.SectionInvestigationFindings, "d1", "b", 1, 0.8),
			chunkHit("f3", domain.SectionInvestigationFindings, "d1", "c", 1, 0.7),
		},
	}
	findings := map[string]domain.FindingHit{
		"f1": {Finding: domain.Finding{FindingID: "f1", DocID: "d1"}},
		"f2": {Finding: domain.Finding{FindingID: "f2", DocID: "d1"}},
		"f3": {Finding: domain.Finding{FindingID: "f3", DocID: "d1"}},
	}

	bp := usecase.NewBlockPromoter(usecase.BlockPromotionConfig{TopKChunks: 3, IntersectionMin: 2, FinalTopN: 3, MaxBlocksPerDoc: 2}, usecase.SectionWeightConfig{Findings: 0.5, Technique: 0.5})
	result := bp.Promote(groups, []domain.Section{domain.SectionInvestigationFindings}, findings, nil)

	assert.LessOrEqual(t, len(result.BlockRanking), 2)
}
