package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"taxauditrag/internal/domain"
)

const composerTemperature = 0.1

// llmComposerResponse is the JSON envelope requested from the LLM,
// grounded on the teacher's AnswerWithRAGUsecase response shape.
type llmComposerResponse struct {
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason"`
}

// Composer invokes the LLM with the packed context and renders the final
// answer, grounded directly on the teacher's AnswerWithRAGUsecase
// (strategy preamble, card-per-block body, citation footer, deterministic
// fallback on LLM error).
type Composer struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

// NewComposer constructs a Composer.
func NewComposer(llm domain.LLMClient, logger *slog.Logger) *Composer {
	return &Composer{llm: llm, logger: logger}
}

// ComposerInput bundles everything Compose needs.
type ComposerInput struct {
	Question           string
	PackedContext       domain.Context
	Blocks              []domain.RankedBlock
	ExcludedBlocks      []domain.RankedBlock
	MustHave            []string
	KeywordBlockCounts  map[string]int
}

// Compose renders the final markdown answer. On LLM failure it falls
// back to a deterministic per-block listing and leaves errKind set.
func (c *Composer) Compose(ctx context.Context, in ComposerInput) (answer string, errKind domain.ErrorKind) {
	var body string
	llmFailed := false

	if c.llm != nil {
		prompt := c.buildPrompt(in)
		c.logger.Info("composer_llm_started")
		raw, err := c.llm.Generate(ctx, prompt, true)
		if err != nil {
			c.logger.Warn("composer_llm_failed", slog.Any("error", err))
			llmFailed = true
		} else {
			var resp llmComposerResponse
			if jerr := json.Unmarshal([]byte(raw), &resp); jerr != nil || resp.Answer == "" {
				c.logger.Warn("composer_llm_format_error")
				llmFailed = true
			} else {
				body = resp.Answer
				c.logger.Info("composer_llm_completed")
			}
		}
	} else {
		llmFailed = true
	}

	if llmFailed {
		body = c.deterministicFallback(in.Blocks)
		errKind = domain.ErrorKindLLMUnavailable
	}

	var out strings.Builder
	if len(in.MustHave) >= 2 {
		out.WriteString(c.strategyPreamble(in.MustHave, in.KeywordBlockCounts))
	}
	out.WriteString(body)
	out.WriteString("\n\n## References\n")
	for _, cite := range in.PackedContext.Citations {
		out.WriteString("- " + cite.Tag() + "\n")
	}
	if len(in.ExcludedBlocks) > 0 {
		out.WriteString("\n## Additional\n")
		for _, b := range in.ExcludedBlocks {
			out.WriteString(fmt.Sprintf("- %s / %s — %s\n", b.DocID, b.FindingID, b.Item))
		}
	}

	return out.String(), errKind
}

func (c *Composer) buildPrompt(in ComposerInput) string {
	var b strings.Builder
	b.WriteString("Question: " + in.Question + "\n\n")
	b.WriteString("Context:\n" + in.PackedContext.PackedText + "\n\n")
	b.WriteString("Instructions: cover every block above; produce card-per-block markdown; ")
	b.WriteString("cite sources using the given citation tags; do not introduce content absent from the context. ")
	b.WriteString(fmt.Sprintf("temperature=%.1f", composerTemperature))
	return b.String()
}

// deterministicFallback emits a block listing without narrative.
func (c *Composer) deterministicFallback(blocks []domain.RankedBlock) string {
	var b strings.Builder
	for i, blk := range blocks {
		b.WriteString(fmt.Sprintf("## Block %d\n%s / %s — %s (%s)\n", i+1, blk.DocID, blk.FindingID, blk.Item, blk.Code))
		for _, section := range domain.PresentationOrder {
			for _, ch := range blk.Chunks[section] {
				cite := domain.Citation{DocID: ch.DocID, FindingID: ch.FindingID, Page: ch.Page, LineStart: ch.StartLine, LineEnd: ch.EndLine}
				b.WriteString(ch.Text + " " + cite.Tag() + "\n")
			}
		}
	}
	return b.String()
}

// strategyPreamble names the document-level and block-level keywords
// and their match counts, rendered only when |must_have| >= 2.
func (c *Composer) strategyPreamble(mustHave []string, counts map[string]int) string {
	doc := mustHave[0]
	block := mustHave[1:]
	var b strings.Builder
	b.WriteString(fmt.Sprintf("> 검색 전략: 문서 필터 키워드 `%s`", doc))
	if len(block) > 0 {
		b.WriteString(", 블록 필터 키워드: ")
		parts := make([]string, 0, len(block))
		for _, kw := range block {
			parts = append(parts, fmt.Sprintf("%s(%d건)", kw, counts[kw]))
		}
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString("\n\n")
	return b.String()
}
