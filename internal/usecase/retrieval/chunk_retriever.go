package retrieval

import (
	"context"
	"log/slog"
	"sync"

	"taxauditrag/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	chunksIndex      = "chunks"
	chunksCollection = "chunks_vectors"
)

// ChunkRetrieverConfig mirrors usecase.RetrievalConfig's chunks section.
type ChunkRetrieverConfig struct {
	TopKLex   int
	TopKVec   int
	RRFK      int
	TopN      int
}

// ChunkRetriever runs spec.md §4.7: one concurrent hybrid search per
// required section, restricted to stage-1 finding IDs.
type ChunkRetriever struct {
	hybrid  *HybridSearcher
	lexical domain.LexicalClient
	cfg     ChunkRetrieverConfig
	logger  *slog.Logger
}

// NewChunkRetriever constructs a ChunkRetriever.
func NewChunkRetriever(hybrid *HybridSearcher, lexical domain.LexicalClient, cfg ChunkRetrieverConfig, logger *slog.Logger) *ChunkRetriever {
	return &ChunkRetriever{hybrid: hybrid, lexical: lexical, cfg: cfg, logger: logger}
}

// Retrieve runs one hybrid search per section in sections, concurrently.
func (cr *ChunkRetriever) Retrieve(ctx context.Context, sections []domain.Section, freeText string, findingIDs []string, targetDocIDs map[string]struct{}, filter domain.LexicalFilter, vecFilter domain.VectorFilter) (map[domain.Section][]domain.ChunkHit, error) {
	results := make(map[domain.Section][]domain.ChunkHit, len(sections))
	var mu lockableSectionMap
	mu.init()

	g, gctx := errgroup.WithContext(ctx)
	for _, section := range sections {
		section := section
		g.Go(func() error {
			hits, err := cr.retrieveSection(gctx, section, freeText, findingIDs, targetDocIDs, filter, vecFilter)
			if err != nil {
				cr.logger.Warn("chunk_retriever_section_failed", slog.String("section", string(section)), slog.Any("error", err))
				return nil
			}
			mu.set(section, hits)
			return nil
		})
	}
	_ = g.Wait()

	for _, section := range sections {
		results[section] = mu.get(section)
	}
	return results, nil
}

func (cr *ChunkRetriever) retrieveSection(ctx context.Context, section domain.Section, freeText string, findingIDs []string, targetDocIDs map[string]struct{}, filter domain.LexicalFilter, vecFilter domain.VectorFilter) ([]domain.ChunkHit, error) {
	lexFilter := cloneFilter(filter)
	if lexFilter == nil {
		lexFilter = domain.LexicalFilter{}
	}
	lexFilter["section"] = []string{string(section)}
	if len(findingIDs) > 0 {
		lexFilter["finding_id"] = findingIDs
	}
	if targetDocIDs != nil {
		lexFilter["doc_id"] = sortedDocIDs(targetDocIDs)
	}

	query := domain.LexicalQuery{
		Must: []domain.LexicalClause{
			{Keyword: freeText, Fields: []string{"text^2", "text_norm^1", "item^0.5"}},
		},
		Filter: lexFilter,
	}

	vFilter := cloneVectorFilter(vecFilter)
	if vFilter == nil {
		vFilter = domain.VectorFilter{}
	}
	vFilter["section"] = []string{string(section)}
	if len(findingIDs) > 0 {
		vFilter["finding_id"] = findingIDs
	}

	fused, err := cr.hybrid.Search(ctx, HybridSearchInput{
		Index:      chunksIndex,
		Collection: chunksCollection,
		Query:      query,
		Filter:     vFilter,
		QueryText:  freeText,
		TopKLex:    cr.cfg.TopKLex,
		TopKVec:    cr.cfg.TopKVec,
		RRFK:       cr.cfg.RRFK,
		TopN:       cr.cfg.TopN,
	})
	if err != nil {
		return nil, err
	}

	return cr.toChunkHits(ctx, section, fused), nil
}

// toChunkHits converts fused hits to ChunkHit, fetching text on demand
// from the lexical store when the vector payload lacks it, and dropping
// chunks where neither source has text.
func (cr *ChunkRetriever) toChunkHits(ctx context.Context, section domain.Section, fused []FusedHit) []domain.ChunkHit {
	hits := make([]domain.ChunkHit, 0, len(fused))
	for _, f := range fused {
		ch := domain.ChunkHit{ScoreCombined: f.RRFScore}
		ch.Section = section
		ch.ChunkID = f.ID

		var text string
		var hasText bool
		if f.LexicalHit != nil {
			ch.FindingID, _ = f.LexicalHit.Source["finding_id"].(string)
			ch.DocID, _ = f.LexicalHit.Source["doc_id"].(string)
			if t, ok := f.LexicalHit.Source["text"].(string); ok && t != "" {
				text = t
				hasText = true
			}
			ch.SectionOrder = intField(f.LexicalHit.Source, "section_order")
			ch.ChunkOrder = intField(f.LexicalHit.Source, "chunk_order")
		}
		if f.VectorHit != nil {
			if ch.FindingID == "" {
				ch.FindingID, _ = f.VectorHit.Payload["finding_id"].(string)
			}
			if ch.DocID == "" {
				ch.DocID, _ = f.VectorHit.Payload["doc_id"].(string)
			}
			if !hasText {
				if t, ok := f.VectorHit.Payload["text"].(string); ok && t != "" {
					text = t
					hasText = true
				}
			}
		}

		if !hasText {
			fetched, ok := cr.fetchTextByID(ctx, f.ID)
			if !ok {
				cr.logger.Info("chunk_text_unavailable_dropping", slog.String("chunk_id", f.ID))
				continue
			}
			text = fetched
		}

		ch.Text = text
		hits = append(hits, ch)
	}
	return hits
}

func (cr *ChunkRetriever) fetchTextByID(ctx context.Context, chunkID string) (string, bool) {
	doc, err := cr.lexical.Get(ctx, chunksIndex, chunkID)
	if err != nil || doc == nil {
		return "", false
	}
	text, ok := doc["text"].(string)
	return text, ok && text != ""
}

func intField(source map[string]any, key string) int {
	switch v := source[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cloneVectorFilter(f domain.VectorFilter) domain.VectorFilter {
	if f == nil {
		return nil
	}
	out := make(domain.VectorFilter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type lockableSectionMap struct {
	mu sync.Mutex
	m  map[domain.Section][]domain.ChunkHit
}

func (l *lockableSectionMap) init() { l.m = map[domain.Section][]domain.ChunkHit{} }

func (l *lockableSectionMap) set(key domain.Section, v []domain.ChunkHit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[key] = v
}

func (l *lockableSectionMap) get(key domain.Section) []domain.ChunkHit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m[key]
}
