package usecase

import (
	"sort"
	"strings"

	"taxauditrag/internal/domain"
)

// BlockPromoter aggregates chunks back to findings, forms section-
// intersection or blended rankings, and applies block-level keyword
// filters (spec.md §4.8).
type BlockPromoter struct {
	cfg            BlockPromotionConfig
	sectionWeights SectionWeightConfig
}

// NewBlockPromoter constructs a BlockPromoter. sectionWeights supplies
// the 0.5/0.5 (by default) blend weights used in the union/blend path.
func NewBlockPromoter(cfg BlockPromotionConfig, sectionWeights SectionWeightConfig) *BlockPromoter {
	return &BlockPromoter{cfg: cfg, sectionWeights: sectionWeights}
}

// BlockPromotionResult is §4.8's output.
type BlockPromotionResult struct {
	BlockRanking       []domain.RankedBlock
	ExcludedBlocks     []domain.RankedBlock
	KeywordBlockCounts map[string]int
}

// Promote runs grouping, intersection/blend selection, the block-level
// keyword filter and the per-doc diversity constraint. mustHave is the
// full expansion keyword list; the filter activates only when
// len(mustHave) >= 2, using mustHave[0] as the document-level keyword
// and mustHave[1:] as the block-level keywords.
func (bp *BlockPromoter) Promote(chunkGroups map[domain.Section][]domain.ChunkHit, requiredSections []domain.Section, findings map[string]domain.FindingHit, mustHave []string) BlockPromotionResult {
	blocksByFinding := bp.group(chunkGroups)

	candidates := bp.selectCandidates(blocksByFinding, requiredSections)

	var kept []domain.RankedBlock
	var excluded []domain.RankedBlock
	keywordCounts := map[string]int{}

	filterActive := len(mustHave) >= 2
	var docKeyword string
	var blockKeywords []string
	if filterActive {
		docKeyword = mustHave[0]
		blockKeywords = mustHave[1:]
	}

	for _, block := range candidates {
		bp.fillMeta(&block, findings)
		if filterActive {
			class := classifyBlock(block, docKeyword, blockKeywords, keywordCounts)
			switch class {
			case matchFull:
				block.MatchedKeywords = matchedKeywords(block, blockKeywords)
				kept = append(kept, block)
			case matchPartial:
				excluded = append(excluded, block)
			case matchNone:
				// dropped entirely
			}
		} else {
			kept = append(kept, block)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	kept = applyDiversity(kept, bp.maxPerDoc())

	if bp.cfg.FinalTopN > 0 && len(kept) > bp.cfg.FinalTopN {
		kept = kept[:bp.cfg.FinalTopN]
	}

	return BlockPromotionResult{
		BlockRanking:       kept,
		ExcludedBlocks:     excluded,
		KeywordBlockCounts: keywordCounts,
	}
}

func (bp *BlockPromoter) maxPerDoc() int {
	if bp.cfg.MaxBlocksPerDoc <= 0 {
		return 2
	}
	return bp.cfg.MaxBlocksPerDoc
}

// group partitions chunks by finding_id within each section, keeping up
// to TopKChunks top-scored chunks per present section.
func (bp *BlockPromoter) group(chunkGroups map[domain.Section][]domain.ChunkHit) map[string]domain.RankedBlock {
	blocks := map[string]domain.RankedBlock{}

	for section, chunks := range chunkGroups {
		byFinding := map[string][]domain.ChunkHit{}
		for _, c := range chunks {
			byFinding[c.FindingID] = append(byFinding[c.FindingID], c)
		}
		for findingID, cs := range byFinding {
			sort.Slice(cs, func(i, j int) bool { return cs[i].ScoreCombined > cs[j].ScoreCombined })
			top := cs
			if len(top) > bp.cfg.TopKChunks {
				top = top[:bp.cfg.TopKChunks]
			}
			sort.Slice(top, func(i, j int) bool {
				if top[i].SectionOrder != top[j].SectionOrder {
					return top[i].SectionOrder < top[j].SectionOrder
				}
				return top[i].ChunkOrder < top[j].ChunkOrder
			})

			block, ok := blocks[findingID]
			if !ok {
				block = domain.RankedBlock{
					FindingID:      findingID,
					Chunks:         domain.SectionChunks{},
					SourceSections: map[domain.Section]struct{}{},
				}
			}
			block.Chunks[section] = top
			block.SourceSections[section] = struct{}{}
			blocks[findingID] = block
		}
	}

	for id, block := range blocks {
		block.Score = bp.blockScore(block)
		blocks[id] = block
	}
	return blocks
}

// blockScore is the mean score_combined of the block's top chunks across
// all included sections (spec.md §4.8's general definition, used as-is
// for the intersection candidate set; the blend path overrides it with
// blendedScore).
func (bp *BlockPromoter) blockScore(block domain.RankedBlock) float64 {
	var sum float64
	var count int
	for _, chunks := range block.Chunks {
		for _, c := range chunks {
			sum += c.ScoreCombined
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// selectCandidates implements the intersection-vs-blend rule. The
// intersection path keeps each block's flat mean score_combined (set in
// group); the blend path recomputes score as the weighted average of
// the block's per-section scores, substituting 0 for sections the
// block has no chunks in.
func (bp *BlockPromoter) selectCandidates(blocks map[string]domain.RankedBlock, requiredSections []domain.Section) []domain.RankedBlock {
	intersection := make([]domain.RankedBlock, 0)
	for _, block := range blocks {
		if coversAll(block, requiredSections) {
			intersection = append(intersection, block)
		}
	}
	if len(intersection) >= bp.cfg.IntersectionMin {
		return intersection
	}

	blended := make([]domain.RankedBlock, 0, len(blocks))
	for _, block := range blocks {
		block.Score = bp.blendedScore(block, requiredSections)
		blended = append(blended, block)
	}
	return blended
}

func coversAll(block domain.RankedBlock, requiredSections []domain.Section) bool {
	for _, s := range requiredSections {
		if _, ok := block.SourceSections[s]; !ok {
			return false
		}
	}
	return true
}

// blendedScore is the 0.5/0.5 (by default) blend from spec.md §4.8:
// a finding's score is the weighted average of its per-section block
// scores, with sections absent from the block contributing 0.
func (bp *BlockPromoter) blendedScore(block domain.RankedBlock, requiredSections []domain.Section) float64 {
	var score float64
	for _, section := range requiredSections {
		score += bp.weightFor(section) * bp.sectionScore(block, section)
	}
	return score
}

// sectionScore is the mean score_combined of a block's chunks within a
// single section, or 0 if the block has no chunks there.
func (bp *BlockPromoter) sectionScore(block domain.RankedBlock, section domain.Section) float64 {
	chunks := block.Chunks[section]
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.ScoreCombined
	}
	return sum / float64(len(chunks))
}

func (bp *BlockPromoter) weightFor(section domain.Section) float64 {
	switch section {
	case domain.SectionInvestigationFindings:
		return bp.sectionWeights.Findings
	case domain.SectionInvestigationTechnique:
		return bp.sectionWeights.Technique
	default:
		return 0
	}
}

func (bp *BlockPromoter) fillMeta(block *domain.RankedBlock, findings map[string]domain.FindingHit) {
	if f, ok := findings[block.FindingID]; ok {
		block.DocID = f.DocID
		block.Item = f.Item
		block.ItemDetail = f.ItemDetail
		block.Code = f.Code
	}
}

type matchClass int

const (
	matchNone matchClass = iota
	matchPartial
	matchFull
)

// classifyBlock classifies a candidate block against the document-level
// keyword and must_have[1:] per spec.md §4.8, incrementing keywordCounts
// for every block-level keyword found.
func classifyBlock(block domain.RankedBlock, docKeyword string, blockKeywords []string, keywordCounts map[string]int) matchClass {
	text := concatText(block)

	hasBlockKeyword := false
	for _, kw := range blockKeywords {
		if strings.Contains(text, kw) {
			keywordCounts[kw]++
			hasBlockKeyword = true
		}
	}
	if hasBlockKeyword {
		return matchFull
	}
	if docKeyword != "" && strings.Contains(text, docKeyword) {
		return matchPartial
	}
	return matchNone
}

func matchedKeywords(block domain.RankedBlock, blockKeywords []string) []string {
	text := concatText(block)
	var matched []string
	for _, kw := range blockKeywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func concatText(block domain.RankedBlock) string {
	var b strings.Builder
	for _, chunks := range block.Chunks {
		for _, c := range chunks {
			b.WriteString(c.Text)
			b.WriteString(" ")
		}
	}
	return b.String()
}

// applyDiversity keeps at most maxPerDoc blocks per doc_id, preserving
// the incoming (score-sorted) order.
func applyDiversity(blocks []domain.RankedBlock, maxPerDoc int) []domain.RankedBlock {
	counts := map[string]int{}
	out := make([]domain.RankedBlock, 0, len(blocks))
	for _, b := range blocks {
		if counts[b.DocID] >= maxPerDoc {
			continue
		}
		counts[b.DocID]++
		out = append(out, b)
	}
	return out
}
