package usecase_test

import (
	"testing"

	"taxauditrag/internal/domain"
	"taxauditrag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func block(findingID, docID string, chunks domain.SectionChunks) domain.RankedBlock {
	sections := map[domain.Section]struct{}{}
	for s := range chunks {
		sections[s] = struct{}{}
	}
	return domain.RankedBlock{FindingID: findingID, DocID: docID, Item: "item", Code: "10000", Chunks: chunks, SourceSections: sections}
}

func TestContextPacker_RendersCitationTags(t *testing.T) {
	cp := usecase.NewContextPacker(usecase.ContextPackingConfig{TokenBudget: 4000, MergeAdjacent: true}, nil)
	blk := block("f1", "d1", domain.SectionChunks{
		domain.SectionInvestigationTechnique: {{
			Chunk: domain.Chunk{ChunkID: "c1", DocID: "d1", FindingID: "f1", Page: intPtr(3), StartLine: intPtr(10), EndLine: intPtr(20), Text: "조사기법 설명"},
		}},
	})

	ctx := cp.Pack([]domain.RankedBlock{blk})
	assert.Contains(t, ctx.PackedText, "[d1:3:10-20]")
	require.Len(t, ctx.Citations, 1)
	assert.Equal(t, "d1", ctx.Citations[0].DocID)
}

func TestContextPacker_PresentationOrderFixed(t *testing.T) {
	cp := usecase.NewContextPacker(usecase.ContextPackingConfig{TokenBudget: 4000, MergeAdjacent: false}, nil)
	blk := block("f1", "d1", domain.SectionChunks{
		domain.SectionInvestigationFindings: {{Chunk: domain.Chunk{DocID: "d1", FindingID: "f1", Text: "finding-text"}}},
		domain.SectionTaxationLogic:         {{Chunk: domain.Chunk{DocID: "d1", FindingID: "f1", Text: "tax-logic-text"}}},
	})

	ctx := cp.Pack([]domain.RankedBlock{blk})
	taxIdx := indexOf(ctx.PackedText, "tax-logic-text")
	findingIdx := indexOf(ctx.PackedText, "finding-text")
	assert.True(t, taxIdx < findingIdx, "taxation-logic must render before investigation-findings")
}

func TestContextPacker_StopsAtTokenBudget(t *testing.T) {
	cp := usecase.NewContextPacker(usecase.ContextPackingConfig{TokenBudget: 1, MergeAdjacent: false}, nil)
	blk := block("f1", "d1", domain.SectionChunks{
		domain.SectionInvestigationFindings: {{Chunk: domain.Chunk{DocID: "d1", FindingID: "f1", Text: "매우 긴 텍스트 내용입니다 여러 단어로 구성됩니다"}}},
	})

	ctx := cp.Pack([]domain.RankedBlock{blk})
	assert.Empty(t, ctx.PackedText)
}

func TestContextPacker_MergesAdjacentChunks(t *testing.T) {
	cp := usecase.NewContextPacker(usecase.ContextPackingConfig{TokenBudget: 4000, MergeAdjacent: true}, nil)
	blk := block("f1", "d1", domain.SectionChunks{
		domain.SectionInvestigationFindings: {
			{Chunk: domain.Chunk{DocID: "d1", FindingID: "f1", SectionOrder: 1, ChunkOrder: 1, Text: "첫번째"}},
			{Chunk: domain.Chunk{DocID: "d1", FindingID: "f1", SectionOrder: 1, ChunkOrder: 2, Text: "두번째"}},
		},
	})

	ctx := cp.Pack([]domain.RankedBlock{blk})
	assert.Contains(t, ctx.PackedText, "첫번째\n두번째")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
