// Package retrieval implements the hybrid lexical+vector search primitive
// (spec.md §4.5) and the two retrieval stages built on top of it (§4.6,
// §4.7). RRF fusion is grounded on Aman-CERP-amanmcp's
// internal/search.RRFFusion, adapted to this spec's tie-break rule (no
// "in both lists" tier) and its "missing source contributes 0" semantics
// instead of Aman-CERP's missing-rank penalty.
package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"taxauditrag/internal/cache"
	"taxauditrag/internal/domain"

	"golang.org/x/sync/errgroup"
)

// DefaultRRFK is the spec.md §4.5 default RRF smoothing constant.
const DefaultRRFK = 60

// FusedHit is one item surviving RRF fusion.
type FusedHit struct {
	ID          string
	RRFScore    float64
	BestScore   float64
	LexicalHit  *domain.LexicalHit
	VectorHit   *domain.VectorHit
}

// HybridSearchInput parameterizes one invocation of the §4.5 primitive.
type HybridSearchInput struct {
	Index          string
	Collection     string
	Query          domain.LexicalQuery
	Filter         domain.VectorFilter
	QueryText      string
	TopKLex        int
	TopKVec        int
	RRFK           int
	TopN           int
	ScoreThreshold float64
	SkipVector     bool
}

// HybridSearcher runs the §4.5 primitive: concurrent lexical+vector
// sub-search, RRF fusion, and top-n truncation.
type HybridSearcher struct {
	lexical  domain.LexicalClient
	vector   domain.VectorClient
	embedder domain.Embedder
	embCache domain.EmbeddingCache
	logger   *slog.Logger
}

// NewHybridSearcher constructs a HybridSearcher.
func NewHybridSearcher(lexical domain.LexicalClient, vector domain.VectorClient, embedder domain.Embedder, embCache domain.EmbeddingCache, logger *slog.Logger) *HybridSearcher {
	return &HybridSearcher{lexical: lexical, vector: vector, embedder: embedder, embCache: embCache, logger: logger}
}

// Search runs the lexical and (unless skipped) vector sub-searches
// concurrently, then fuses by RRF.
func (h *HybridSearcher) Search(ctx context.Context, in HybridSearchInput) ([]FusedHit, error) {
	var lexHits []domain.LexicalHit
	var vecHits []domain.VectorHit

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := h.lexical.Search(gctx, in.Index, in.Query, in.TopKLex)
		if err != nil {
			h.logger.Warn("lexical_search_failed", slog.String("index", in.Index), slog.Any("error", err))
			return nil
		}
		lexHits = hits
		return nil
	})

	if !in.SkipVector && h.vector != nil && h.embedder != nil {
		g.Go(func() error {
			vec, err := h.embedQuery(gctx, in.QueryText)
			if err != nil {
				h.logger.Warn("embed_query_failed", slog.Any("error", err))
				return nil
			}
			hits, err := h.vector.Search(gctx, in.Collection, vec, in.Filter, in.TopKVec, in.ScoreThreshold)
			if err != nil {
				h.logger.Warn("vector_search_failed", slog.String("collection", in.Collection), slog.Any("error", err))
				return nil
			}
			vecHits = hits
			return nil
		})
	}

	_ = g.Wait()

	fused := Fuse(lexHits, vecHits, in.RRFK)
	if in.TopN > 0 && len(fused) > in.TopN {
		fused = fused[:in.TopN]
	}
	return fused, nil
}

func (h *HybridSearcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := cache.HashQuery(query)
	if h.embCache != nil {
		if v, ok := h.embCache.Get(key); ok {
			return v, nil
		}
	}
	vecs, err := h.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	if h.embCache != nil {
		h.embCache.Add(key, vecs[0])
	}
	return vecs[0], nil
}

// Fuse combines lexical and vector rankings by Reciprocal Rank Fusion
// per spec.md §4.5: rrf_score = Σ 1/(k+rank), omitted terms contribute 0;
// ties break by the higher original score, then lexically by id.
func Fuse(lex []domain.LexicalHit, vec []domain.VectorHit, k int) []FusedHit {
	if k <= 0 {
		k = DefaultRRFK
	}
	byID := make(map[string]*FusedHit, len(lex)+len(vec))

	for rank, hit := range lex {
		h := hit
		fh := getOrCreate(byID, hit.ID)
		fh.LexicalHit = &h
		fh.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, hit := range vec {
		h := hit
		fh := getOrCreate(byID, hit.ID)
		fh.VectorHit = &h
		fh.RRFScore += 1.0 / float64(k+rank+1)
	}

	out := make([]FusedHit, 0, len(byID))
	for _, fh := range byID {
		fh.BestScore = bestScore(fh)
		out = append(out, *fh)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func getOrCreate(m map[string]*FusedHit, id string) *FusedHit {
	if fh, ok := m[id]; ok {
		return fh
	}
	fh := &FusedHit{ID: id}
	m[id] = fh
	return fh
}

func bestScore(fh *FusedHit) float64 {
	best := 0.0
	if fh.LexicalHit != nil && fh.LexicalHit.Score > best {
		best = fh.LexicalHit.Score
	}
	if fh.VectorHit != nil && fh.VectorHit.Score > best {
		best = fh.VectorHit.Score
	}
	return best
}

// CutoffByTopScoreRatio drops hits whose RRFScore is below
// ratio*topScore, per spec.md §4.6's "rrf_score < 0.5 × top_score" rule.
func CutoffByTopScoreRatio(hits []FusedHit, ratio float64) []FusedHit {
	if len(hits) == 0 {
		return hits
	}
	top := hits[0].RRFScore
	threshold := ratio * top
	kept := hits[:0]
	for _, h := range hits {
		if h.RRFScore >= threshold {
			kept = append(kept, h)
		}
	}
	return kept
}
