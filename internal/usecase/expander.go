package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"taxauditrag/internal/domain"
)

const (
	defaultBoost = 1.5
	mustHaveBoost = 3.0
	minBoost      = 1.0
	maxBoost      = 3.0
)

type llmExpansionResponse struct {
	MustHave     []string           `json:"must_have"`
	ShouldHave   []string           `json:"should_have"`
	RelatedTerms []string           `json:"related_terms"`
	BoostWeights map[string]float64 `json:"boost_weights"`
}

// Expander runs only for case_lookup intent, producing must_have/
// should_have/related_terms keyword sets and boost weights (spec.md §4.3).
// Grounded on Aman-CERP's QueryExpander and the teacher's
// QueryExpanderClient wire shape.
type Expander struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

// NewExpander constructs an Expander.
func NewExpander(llm domain.LLMClient, logger *slog.Logger) *Expander {
	return &Expander{llm: llm, logger: logger}
}

// Expand produces the Expansion for a normalized query and its slots.
func (e *Expander) Expand(ctx context.Context, normalized string, slots domain.Slots) domain.Expansion {
	if e.llm != nil {
		if exp, ok := e.expandViaLLM(ctx, normalized, slots); ok {
			return exp
		}
	}
	return e.fallback(slots)
}

func (e *Expander) expandViaLLM(ctx context.Context, normalized string, slots domain.Slots) (domain.Expansion, bool) {
	prompt := e.buildPrompt(normalized, slots)
	e.logger.Info("expander_llm_started")
	raw, err := e.llm.Generate(ctx, prompt, true)
	if err != nil {
		e.logger.Warn("expander_llm_failed", slog.Any("error", err))
		return domain.Expansion{}, false
	}

	var resp llmExpansionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		e.logger.Warn("expander_llm_format_error", slog.Any("error", err))
		return domain.Expansion{}, false
	}
	e.logger.Info("expander_llm_completed")

	return e.postProcess(resp.MustHave, resp.ShouldHave, resp.RelatedTerms, resp.BoostWeights, false), true
}

func (e *Expander) buildPrompt(normalized string, slots domain.Slots) string {
	var b strings.Builder
	b.WriteString("Produce JSON {must_have, should_have, related_terms, boost_weights} for query: ")
	b.WriteString(normalized)
	if len(slots.IndustrySub) > 0 {
		b.WriteString("\nindustry_sub: " + strings.Join(setKeys(slots.IndustrySub), ","))
	}
	if len(slots.DomainTags) > 0 {
		b.WriteString("\ndomain_tags: " + strings.Join(setKeys(slots.DomainTags), ","))
	}
	b.WriteString("\nvocabulary: " + strings.Join(IndustryGazetteer, ",") + "; " + strings.Join(DomainTagGazetteer, ","))
	return b.String()
}

// fallback implements spec.md §4.3's on-failure behavior:
// must_have = domain_tags[:1], should_have = domain_tags[1:].
func (e *Expander) fallback(slots domain.Slots) domain.Expansion {
	tags := setKeys(slots.DomainTags)
	var mustHave, shouldHave []string
	if len(tags) > 0 {
		mustHave = tags[:1]
		shouldHave = append([]string(nil), tags[1:]...)
	}
	exp := e.postProcess(mustHave, shouldHave, nil, nil, true)
	return exp
}

// postProcess dedups preserving order, clamps boosts to [1.0,3.0]
// defaulting to 1.5, and ensures every must_have entry has a weight
// (defaulting to 3.0).
func (e *Expander) postProcess(mustHave, shouldHave, relatedTerms []string, boosts map[string]float64, usedFallback bool) domain.Expansion {
	mustHave = dedupPreserveOrder(mustHave)
	shouldHave = dedupPreserveOrder(shouldHave)
	relatedTerms = dedupPreserveOrder(relatedTerms)

	weights := map[string]float64{}
	for k, v := range boosts {
		weights[k] = clampBoost(v)
	}
	for _, kw := range mustHave {
		if _, ok := weights[kw]; !ok {
			weights[kw] = mustHaveBoost
		}
	}
	for _, kw := range shouldHave {
		if _, ok := weights[kw]; !ok {
			weights[kw] = defaultBoost
		}
	}
	for _, kw := range relatedTerms {
		if _, ok := weights[kw]; !ok {
			weights[kw] = defaultBoost
		}
	}

	return domain.Expansion{
		MustHave:     mustHave,
		ShouldHave:   shouldHave,
		RelatedTerms: relatedTerms,
		BoostWeights: weights,
		UsedFallback: usedFallback,
	}
}

func clampBoost(v float64) float64 {
	if v <= 0 {
		return defaultBoost
	}
	if v < minBoost {
		return minBoost
	}
	if v > maxBoost {
		return maxBoost
	}
	return v
}

func dedupPreserveOrder(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func setKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
