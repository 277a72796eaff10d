package usecase

import (
	"fmt"
	"strings"

	"taxauditrag/internal/domain"
)

// TokenEstimator estimates the token cost of a string for context-budget
// accounting. Pluggable per spec.md §9 Open Question (a): the source's
// tokenization is approximate, so implementations should not hard-code one.
type TokenEstimator interface {
	Estimate(text string) int
}

// WhitespaceTokenEstimator implements the source's heuristic: whitespace
// token count times 1.3.
type WhitespaceTokenEstimator struct{}

// Estimate counts whitespace-separated tokens and scales by 1.3.
func (WhitespaceTokenEstimator) Estimate(text string) int {
	count := len(strings.Fields(text))
	return int(float64(count) * 1.3)
}

// ContextPacker renders ranked blocks into a bounded-length prompt
// context with citations (spec.md §4.9).
type ContextPacker struct {
	cfg       ContextPackingConfig
	estimator TokenEstimator
}

// NewContextPacker constructs a ContextPacker. A nil estimator defaults
// to WhitespaceTokenEstimator.
func NewContextPacker(cfg ContextPackingConfig, estimator TokenEstimator) *ContextPacker {
	if estimator == nil {
		estimator = WhitespaceTokenEstimator{}
	}
	return &ContextPacker{cfg: cfg, estimator: estimator}
}

// Pack renders blocks in rank order until the token budget is exhausted.
func (cp *ContextPacker) Pack(blocks []domain.RankedBlock) domain.Context {
	var body strings.Builder
	var citations []domain.Citation
	budgetUsed := 0

	for _, block := range blocks {
		header := cp.renderHeader(block)
		headerTokens := cp.estimator.Estimate(header)
		if budgetUsed+headerTokens > cp.cfg.TokenBudget {
			break
		}

		var blockBody strings.Builder
		blockBody.WriteString(header)
		blockTokens := headerTokens
		truncated := false

		for _, section := range domain.PresentationOrder {
			chunks := block.Chunks[section]
			if len(chunks) == 0 {
				continue
			}
			rendered, cites, tokens, fits := cp.renderSection(chunks, cp.cfg.TokenBudget-budgetUsed-blockTokens, cp.cfg.MergeAdjacent)
			if rendered == "" {
				truncated = true
				break
			}
			blockBody.WriteString(rendered)
			blockTokens += tokens
			citations = append(citations, cites...)
			if !fits {
				truncated = true
				break
			}
		}

		if blockTokens == headerTokens {
			continue
		}

		body.WriteString(blockBody.String())
		budgetUsed += blockTokens
		if truncated {
			break
		}
	}

	return domain.Context{PackedText: body.String(), Citations: citations}
}

func (cp *ContextPacker) renderHeader(block domain.RankedBlock) string {
	var sections []string
	for _, s := range domain.PresentationOrder {
		if _, ok := block.SourceSections[s]; ok {
			sections = append(sections, string(s))
		}
	}
	return fmt.Sprintf("\n### %s / %s — %s (%s)\nSections: %s\n", block.DocID, block.FindingID, block.Item, block.Code, strings.Join(sections, ", "))
}

// renderSection concatenates chunks in (section_order, chunk_order)
// ascending order, merging adjacent chunks when configured, stopping at
// the remaining budget.
func (cp *ContextPacker) renderSection(chunks []domain.ChunkHit, remainingBudget int, mergeAdjacent bool) (string, []domain.Citation, int, bool) {
	var b strings.Builder
	var citations []domain.Citation
	tokens := 0

	for i := 0; i < len(chunks); i++ {
		c := chunks[i]
		text := c.Text
		if mergeAdjacent {
			for i+1 < len(chunks) && isAdjacent(chunks[i], chunks[i+1]) {
				i++
				text += "\n" + chunks[i].Text
			}
		}
		citation := domain.Citation{DocID: c.DocID, FindingID: c.FindingID, Page: c.Page, LineStart: c.StartLine, LineEnd: c.EndLine}
		rendered := text + " " + citation.Tag() + "\n"
		renderedTokens := cp.estimator.Estimate(rendered)

		if tokens+renderedTokens > remainingBudget {
			return b.String(), citations, tokens, false
		}
		b.WriteString(rendered)
		citations = append(citations, citation)
		tokens += renderedTokens
	}
	return b.String(), citations, tokens, true
}

func isAdjacent(a, b domain.ChunkHit) bool {
	return a.SectionOrder == b.SectionOrder && b.ChunkOrder == a.ChunkOrder+1
}
