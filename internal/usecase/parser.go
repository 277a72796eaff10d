package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"taxauditrag/internal/domain"
)

// explainMarkers are the definitional-intent cues from spec.md §4.2.
var explainMarkers = []string{"what is", "explain", "의미"}

// IndustryGazetteer and DomainTagGazetteer are the controlled vocabularies
// used both to prompt the LLM and to drive the rule-based fallback.
var IndustryGazetteer = []string{"제조업", "도소매업", "건설업", "서비스업", "부동산업"}
var DomainTagGazetteer = []string{"매출누락", "가공세금계산서", "허위경비", "명의위장", "자료상"}

var codeRe = regexp.MustCompile(`\b\d{5}\b`)
var quotedOrCapitalizedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'|\b([A-Z][A-Za-z]{2,})\b`)

// llmSlotResponse is the JSON envelope requested from the LLM.
type llmSlotResponse struct {
	IndustrySub []string            `json:"industry_sub"`
	DomainTags  []string            `json:"domain_tags"`
	Code        []string            `json:"code"`
	Entities    []string            `json:"entities"`
	SectionHints map[string][]string `json:"section_hints"`
}

// Parser classifies intent and extracts slots, grounded on Aman-CERP's
// HybridClassifier LLM-first/rule-fallback pattern.
type Parser struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

// NewParser constructs a Parser.
func NewParser(llm domain.LLMClient, logger *slog.Logger) *Parser {
	return &Parser{llm: llm, logger: logger}
}

// ClassifyIntent applies the definitional-marker rule set.
func (p *Parser) ClassifyIntent(normalized string) domain.Intent {
	lower := strings.ToLower(normalized)
	for _, marker := range explainMarkers {
		if strings.Contains(lower, marker) {
			return domain.IntentExplain
		}
	}
	return domain.IntentCaseLookup
}

// Parse runs intent classification and slot extraction, computing the
// confidence score per spec.md §4.2. It never returns an error: on LLM
// failure or malformed JSON it falls back to the rule-based extractor
// and caps confidence at 0.5.
func (p *Parser) Parse(ctx context.Context, normalized string) (domain.Intent, domain.Slots) {
	intent := p.ClassifyIntent(normalized)

	slots, llmOK, llmPopulated := p.extractViaLLM(ctx, normalized)
	if !llmOK {
		slots = p.extractViaRules(normalized)
		slots.UsedFallback = true
	}

	slots.Confidence = p.confidence(slots, llmOK, llmPopulated)
	return intent, slots
}

func (p *Parser) extractViaLLM(ctx context.Context, normalized string) (domain.Slots, bool, bool) {
	slots := domain.NewSlots()
	if p.llm == nil {
		return slots, false, false
	}

	prompt := p.buildSlotPrompt(normalized)
	p.logger.Info("parser_llm_started", slog.String("stage", "slot_extraction"))
	raw, err := p.llm.Generate(ctx, prompt, true)
	if err != nil {
		p.logger.Warn("parser_llm_failed", slog.Any("error", err))
		return slots, false, false
	}

	var resp llmSlotResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		p.logger.Warn("parser_llm_format_error", slog.Any("error", err))
		return slots, false, false
	}

	populated := false
	for _, v := range resp.IndustrySub {
		slots.IndustrySub[v] = struct{}{}
		populated = true
	}
	for _, v := range resp.DomainTags {
		slots.DomainTags[v] = struct{}{}
		populated = true
	}
	for _, v := range resp.Code {
		slots.Code[v] = struct{}{}
		populated = true
	}
	for _, v := range resp.Entities {
		slots.Entities[v] = struct{}{}
		populated = true
	}
	for section, hints := range resp.SectionHints {
		slots.SectionHints[domain.Section(section)] = hints
	}
	slots.WellFormedLLM = true
	p.logger.Info("parser_llm_completed")
	return slots, true, populated
}

func (p *Parser) buildSlotPrompt(normalized string) string {
	var b strings.Builder
	b.WriteString("Extract slots as JSON with keys industry_sub, domain_tags, code, entities, section_hints.\n")
	b.WriteString("industry_sub vocabulary: " + strings.Join(IndustryGazetteer, ", ") + "\n")
	b.WriteString("domain_tags vocabulary: " + strings.Join(DomainTagGazetteer, ", ") + "\n")
	b.WriteString("Query: " + normalized)
	return b.String()
}

// extractViaRules is the rule-based fallback: code regex, gazetteer
// lookup, capitalized/quoted spans for entities.
func (p *Parser) extractViaRules(normalized string) domain.Slots {
	slots := domain.NewSlots()

	for _, code := range codeRe.FindAllString(normalized, -1) {
		slots.Code[code] = struct{}{}
	}
	for _, industry := range IndustryGazetteer {
		if strings.Contains(normalized, industry) {
			slots.IndustrySub[industry] = struct{}{}
		}
	}
	for _, tag := range DomainTagGazetteer {
		if strings.Contains(normalized, tag) {
			slots.DomainTags[tag] = struct{}{}
		}
	}
	for _, match := range quotedOrCapitalizedRe.FindAllStringSubmatch(normalized, -1) {
		for _, g := range match[1:] {
			if g != "" {
				slots.Entities[g] = struct{}{}
			}
		}
	}
	slots.FreeText = normalized
	return slots
}

// confidence computes the weighted-sum score from spec.md §4.2, clipped
// to [0,1].
func (p *Parser) confidence(slots domain.Slots, llmOK, llmPopulated bool) float64 {
	score := 0.0
	if llmOK && llmPopulated {
		score += 0.3
	}
	if len(slots.Code) > 0 || len(slots.IndustrySub) > 0 {
		score += 0.2
	}
	if len(slots.DomainTags) > 0 {
		score += 0.2
	}
	if slots.WellFormedLLM {
		score += 0.3
	}
	if slots.UsedFallback {
		score -= 0.2
	}

	if score < 0 {
		score = 0
	}
	if slots.UsedFallback && score > 0.5 {
		score = 0.5
	}
	if score > 1 {
		score = 1
	}
	return score
}
