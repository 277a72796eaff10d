package usecase

import (
	"context"
	"log/slog"
	"time"

	"taxauditrag/internal/domain"
	"taxauditrag/internal/usecase/retrieval"
)

// DefaultQueryDeadline is the per-query deadline from spec.md §5.
const DefaultQueryDeadline = 90 * time.Second

// Pipeline wires every stage into the run_query(text) -> string callable
// contract from spec.md §6.
type Pipeline struct {
	normalizer      *Normalizer
	parser          *Parser
	expander        *Expander
	router          *Router
	findingRetriever *retrieval.FindingRetriever
	chunkRetriever   *retrieval.ChunkRetriever
	blockPromoter    *BlockPromoter
	contextPacker    *ContextPacker
	composer         *Composer
	validator        *OutputValidator

	queryDeadline time.Duration
	logger        *slog.Logger
}

// PipelineConfig bundles the collaborators a Pipeline needs.
type PipelineConfig struct {
	Normalizer       *Normalizer
	Parser           *Parser
	Expander         *Expander
	Router           *Router
	FindingRetriever *retrieval.FindingRetriever
	ChunkRetriever   *retrieval.ChunkRetriever
	BlockPromoter    *BlockPromoter
	ContextPacker    *ContextPacker
	Composer         *Composer
	Validator        *OutputValidator
	QueryDeadline    time.Duration
	Logger           *slog.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	deadline := cfg.QueryDeadline
	if deadline <= 0 {
		deadline = DefaultQueryDeadline
	}
	return &Pipeline{
		normalizer:       cfg.Normalizer,
		parser:           cfg.Parser,
		expander:         cfg.Expander,
		router:           cfg.Router,
		findingRetriever: cfg.FindingRetriever,
		chunkRetriever:   cfg.ChunkRetriever,
		blockPromoter:    cfg.BlockPromoter,
		contextPacker:    cfg.ContextPacker,
		composer:         cfg.Composer,
		validator:        cfg.Validator,
		queryDeadline:    deadline,
		logger:           cfg.Logger,
	}
}

// RunQuery implements the single callable contract from spec.md §6.
func (p *Pipeline) RunQuery(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, p.queryDeadline)
	defer cancel()

	qc := domain.NewQueryContext(text, time.Now())

	qc.NormalizedText = p.normalizer.Normalize(qc.RawText)

	qc.Intent, qc.Slots = p.parser.Parse(ctx, qc.NormalizedText)

	if qc.Intent == domain.IntentCaseLookup {
		qc.Expansion = p.expander.Expand(ctx, qc.NormalizedText, qc.Slots)
	}

	qc.Route = p.router.Route(qc.Intent, qc.Slots, qc.Expansion)

	switch qc.Route {
	case domain.RouteClarify:
		return p.router.ClarifyMessage(qc.Slots, qc.Expansion)
	case domain.RouteExplain:
		return p.runExplain(ctx, qc)
	default:
		return p.runSearch(ctx, qc)
	}
}

func (p *Pipeline) runExplain(ctx context.Context, qc *domain.QueryContext) string {
	answer, errKind := p.composer.Compose(ctx, ComposerInput{
		Question: qc.RawText,
	})
	qc.Answer = answer
	qc.ErrorKind = errKind
	return p.validator.Validate(qc.Answer, qc.ErrorKind, qc.BlockRanking, qc.Expansion.MustHave)
}

func (p *Pipeline) runSearch(ctx context.Context, qc *domain.QueryContext) string {
	if ctx.Err() != nil {
		return p.validator.Validate("", domain.ErrorKindTimeout, nil, qc.Expansion.MustHave)
	}

	findingResult, err := p.findingRetriever.Retrieve(ctx,
		qc.Expansion.MustHave, qc.Expansion.ShouldHave, qc.Expansion.RelatedTerms, qc.Expansion.BoostWeights,
		slotFilter(qc.Slots), nil, qc.NormalizedText)
	if err != nil {
		p.logger.Warn("finding_retrieval_failed", slog.Any("error", err))
		return p.validator.Validate("", domain.ErrorKindBothRetrievalStoresUnavailable, nil, qc.Expansion.MustHave)
	}
	qc.FindingHits = findingResult.Hits

	findingsByID := make(map[string]domain.FindingHit, len(qc.FindingHits))
	findingIDs := make([]string, 0, len(qc.FindingHits))
	for _, f := range qc.FindingHits {
		findingsByID[f.FindingID] = f
		findingIDs = append(findingIDs, f.FindingID)
	}

	requiredSections := requiredSectionsFor(qc.Slots)
	chunkGroups, err := p.chunkRetriever.Retrieve(ctx, requiredSections, qc.NormalizedText, findingIDs, findingResult.TargetDocIDs, slotFilter(qc.Slots), nil)
	if err != nil {
		p.logger.Warn("chunk_retrieval_failed", slog.Any("error", err))
	}
	qc.ChunkGroups = chunkGroups

	promotion := p.blockPromoter.Promote(qc.ChunkGroups, requiredSections, findingsByID, qc.Expansion.MustHave)
	qc.BlockRanking = promotion.BlockRanking
	qc.ExcludedBlocks = promotion.ExcludedBlocks
	qc.KeywordBlockCounts = promotion.KeywordBlockCounts

	qc.PackedContext = p.contextPacker.Pack(qc.BlockRanking)

	answer, errKind := p.composer.Compose(ctx, ComposerInput{
		Question:           qc.RawText,
		PackedContext:      qc.PackedContext,
		Blocks:             qc.BlockRanking,
		ExcludedBlocks:     qc.ExcludedBlocks,
		MustHave:           qc.Expansion.MustHave,
		KeywordBlockCounts: qc.KeywordBlockCounts,
	})
	qc.Answer = answer
	qc.ErrorKind = errKind

	return p.validator.Validate(qc.Answer, qc.ErrorKind, qc.BlockRanking, qc.Expansion.MustHave)
}

func requiredSectionsFor(slots domain.Slots) []domain.Section {
	if len(slots.SectionHints) == 0 {
		return domain.RequiredSections
	}
	sections := make([]domain.Section, 0, len(slots.SectionHints))
	for s := range slots.SectionHints {
		sections = append(sections, s)
	}
	return sections
}

func slotFilter(slots domain.Slots) domain.LexicalFilter {
	filter := domain.LexicalFilter{}
	if len(slots.Code) > 0 {
		filter["code"] = setKeys(slots.Code)
	}
	if len(slots.IndustrySub) > 0 {
		filter["industry_sub"] = setKeys(slots.IndustrySub)
	}
	if len(slots.DomainTags) > 0 {
		filter["domain_tags"] = setKeys(slots.DomainTags)
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
