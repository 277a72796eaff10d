package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"taxauditrag/internal/cache"
	"taxauditrag/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	findingsIndex       = "findings"
	findingsCollection  = "findings_vectors"
	docSetPrefilterSize = 50
	topDocsForFreq      = 5
)

// FindingRetrieverConfig mirrors usecase.RetrievalConfig's findings
// section, duplicated here to avoid an import cycle between usecase and
// usecase/retrieval.
type FindingRetrieverConfig struct {
	TopKLex                   int
	TopKVec                   int
	RRFK                      int
	FinalTopN                 int
	VectorScoreThreshold      float64
	VectorScoreThresholdMulti float64
}

// FindingRetriever runs spec.md §4.6: document-set prefilter, keyword-
// frequency aggregation, hybrid search, score cutoff.
type FindingRetriever struct {
	hybrid    *HybridSearcher
	lexical   domain.LexicalClient
	freqCache domain.KeywordFreqCache
	cfg       FindingRetrieverConfig
	logger    *slog.Logger
}

// NewFindingRetriever constructs a FindingRetriever.
func NewFindingRetriever(hybrid *HybridSearcher, lexical domain.LexicalClient, freqCache domain.KeywordFreqCache, cfg FindingRetrieverConfig, logger *slog.Logger) *FindingRetriever {
	return &FindingRetriever{hybrid: hybrid, lexical: lexical, freqCache: freqCache, cfg: cfg, logger: logger}
}

// FindingRetrieverResult is stage-1's output.
type FindingRetrieverResult struct {
	Hits          []domain.FindingHit
	TargetDocIDs  map[string]struct{}
	KeywordFreq   map[string]int
}

// Retrieve runs the full stage-1 pipeline.
func (fr *FindingRetriever) Retrieve(ctx context.Context, mustHave, shouldHave, relatedTerms []string, boosts map[string]float64, filter domain.LexicalFilter, vecFilter domain.VectorFilter, queryText string) (FindingRetrieverResult, error) {
	result := FindingRetrieverResult{}

	var docSets map[string]map[string]struct{}
	var primaryScores map[string]float64
	if len(mustHave) >= 1 {
		var err error
		docSets, primaryScores, err = fr.prefilterDocSets(ctx, mustHave, filter)
		if err != nil {
			fr.logger.Warn("doc_prefilter_failed", slog.Any("error", err))
		}
	}

	targetDocIDs := fr.resolveTargetDocSet(mustHave, docSets)
	result.TargetDocIDs = targetDocIDs

	if len(mustHave) >= 1 {
		freq, err := fr.keywordFrequency(ctx, targetDocIDs, primaryScores, mustHave)
		if err != nil {
			fr.logger.Warn("keyword_freq_aggregation_failed", slog.Any("error", err))
		}
		result.KeywordFreq = freq
	}

	query := buildFindingLexicalQuery(mustHave, shouldHave, relatedTerms, boosts, filter, targetDocIDs)

	scoreThreshold := fr.cfg.VectorScoreThreshold
	if len(mustHave) >= 2 {
		scoreThreshold = fr.cfg.VectorScoreThresholdMulti
	}
	skipVector := len(mustHave) < 2

	fused, err := fr.hybrid.Search(ctx, HybridSearchInput{
		Index:          findingsIndex,
		Collection:     findingsCollection,
		Query:          query,
		Filter:         vecFilter,
		QueryText:      queryText,
		TopKLex:        fr.cfg.TopKLex,
		TopKVec:        fr.cfg.TopKVec,
		RRFK:           fr.cfg.RRFK,
		TopN:           0,
		ScoreThreshold: scoreThreshold,
		SkipVector:     skipVector,
	})
	if err != nil {
		return result, err
	}

	if targetDocIDs != nil && len(fused) > 0 {
		fused = CutoffByTopScoreRatio(fused, 0.5)
	}

	if fr.cfg.FinalTopN > 0 && len(fused) > fr.cfg.FinalTopN {
		fused = fused[:fr.cfg.FinalTopN]
	}

	result.Hits = toFindingHits(fused)
	return result, nil
}

// prefilterDocSets issues one concurrent lexical lookup per must_have
// keyword, restricted to the finding fields listed in spec.md §4.6. It
// also returns, for the primary (mustHave[0]) keyword only, each
// matched doc_id's best BM25-like score — spec.md §4.6 ranks the
// top-5-documents-for-frequency by that score, not alphabetically.
func (fr *FindingRetriever) prefilterDocSets(ctx context.Context, mustHave []string, filter domain.LexicalFilter) (map[string]map[string]struct{}, map[string]float64, error) {
	sets := make(map[string]map[string]struct{}, len(mustHave))
	var mu lockableMap
	mu.init()
	var scoreMu sync.Mutex
	primaryScores := map[string]float64{}

	primary := mustHave[0]
	g, gctx := errgroup.WithContext(ctx)
	for _, kw := range mustHave {
		kw := kw
		g.Go(func() error {
			query := domain.LexicalQuery{
				Must: []domain.LexicalClause{
					{Keyword: kw, Fields: []string{"item^2", "reason_kw_norm^1.5", "item_detail^1"}},
				},
				Filter: filter,
			}
			hits, err := fr.lexical.Search(gctx, findingsIndex, query, docSetPrefilterSize)
			if err != nil {
				fr.logger.Warn("doc_prefilter_keyword_failed", slog.String("keyword", kw), slog.Any("error", err))
				return nil
			}
			set := make(map[string]struct{}, len(hits))
			for _, h := range hits {
				docID, ok := h.Source["doc_id"].(string)
				if !ok {
					continue
				}
				set[docID] = struct{}{}
				if kw == primary {
					scoreMu.Lock()
					if h.Score > primaryScores[docID] {
						primaryScores[docID] = h.Score
					}
					scoreMu.Unlock()
				}
			}
			mu.set(kw, set)
			return nil
		})
	}
	_ = g.Wait()

	for _, kw := range mustHave {
		sets[kw] = mu.get(kw)
	}
	return sets, primaryScores, nil
}

// resolveTargetDocSet implements the intersection/union/single-keyword
// rule from spec.md §4.6.
func (fr *FindingRetriever) resolveTargetDocSet(mustHave []string, docSets map[string]map[string]struct{}) map[string]struct{} {
	if len(mustHave) == 0 || docSets == nil {
		return nil
	}
	if len(mustHave) == 1 {
		return docSets[mustHave[0]]
	}

	intersection := intersectAll(mustHave, docSets)
	if len(intersection) > 0 {
		return intersection
	}

	fr.logger.Info("finding_retriever_target_doc_ids_empty", slog.String("reason", "intersection_empty_relaxing_to_union"))
	union := unionAll(mustHave, docSets)
	if len(union) == 0 {
		fr.logger.Warn("finding_retriever_target_doc_ids_empty", slog.String("reason", "union_also_empty"))
	}
	return union
}

func intersectAll(keywords []string, sets map[string]map[string]struct{}) map[string]struct{} {
	if len(keywords) == 0 {
		return map[string]struct{}{}
	}
	result := map[string]struct{}{}
	for id := range sets[keywords[0]] {
		inAll := true
		for _, kw := range keywords[1:] {
			if _, ok := sets[kw][id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			result[id] = struct{}{}
		}
	}
	return result
}

func unionAll(keywords []string, sets map[string]map[string]struct{}) map[string]struct{} {
	result := map[string]struct{}{}
	for _, kw := range keywords {
		for id := range sets[kw] {
			result[id] = struct{}{}
		}
	}
	return result
}

// keywordFrequency aggregates keyword frequencies over the top-5
// documents (by primary-keyword score) via a single grouped query,
// memoized in the process-wide keyword-frequency cache.
func (fr *FindingRetriever) keywordFrequency(ctx context.Context, targetDocIDs map[string]struct{}, primaryScores map[string]float64, mustHave []string) (map[string]int, error) {
	docs := topDocIDsByScore(targetDocIDs, primaryScores, topDocsForFreq)

	cacheKey := cache.HashDocsKeywords(docs, mustHave)
	if fr.freqCache != nil {
		if freq, ok := fr.freqCache.Get(cacheKey); ok {
			return freq, nil
		}
	}

	clauses := make(map[string]domain.LexicalClause, len(mustHave))
	for _, kw := range mustHave {
		clauses[kw] = domain.LexicalClause{Keyword: kw, Fields: []string{"item", "reason_kw_norm", "item_detail"}}
	}
	filter := domain.LexicalFilter{}
	if len(docs) > 0 {
		filter["doc_id"] = docs
	}

	freq, err := fr.lexical.Aggregate(ctx, findingsIndex, clauses, filter)
	if err != nil {
		return nil, err
	}
	if fr.freqCache != nil {
		fr.freqCache.Add(cacheKey, freq)
	}
	return freq, nil
}

// sortedDocIDs returns every doc_id in a set, alphabetically ordered,
// for deterministic filter construction (no truncation).
func sortedDocIDs(set map[string]struct{}) []string {
	if set == nil {
		return nil
	}
	docs := make([]string, 0, len(set))
	for id := range set {
		docs = append(docs, id)
	}
	sort.Strings(docs)
	return docs
}

// topDocIDsByScore returns up to n doc_ids from set, ranked by their
// score in scores (descending), falling back to alphabetical order for
// unscored or tied documents, per spec.md §4.6 ("top-5 documents by the
// primary keyword's scores").
func topDocIDsByScore(set map[string]struct{}, scores map[string]float64, n int) []string {
	if set == nil {
		return nil
	}
	docs := make([]string, 0, len(set))
	for id := range set {
		docs = append(docs, id)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] < docs[j]
	})
	if len(docs) > n {
		docs = docs[:n]
	}
	return docs
}

func buildFindingLexicalQuery(mustHave, shouldHave, relatedTerms []string, boosts map[string]float64, filter domain.LexicalFilter, targetDocIDs map[string]struct{}) domain.LexicalQuery {
	q := domain.LexicalQuery{Filter: cloneFilter(filter)}
	for _, kw := range mustHave {
		q.Must = append(q.Must, domain.LexicalClause{Keyword: kw, Fields: []string{"item^2", "reason_kw_norm^1.5", "item_detail^1"}, Boost: boosts[kw]})
	}
	for _, kw := range shouldHave {
		q.Should = append(q.Should, domain.LexicalClause{Keyword: kw, Fields: []string{"item^2", "reason_kw_norm^1.5", "item_detail^1"}, Boost: boosts[kw] / 2})
	}
	for _, kw := range relatedTerms {
		q.Should = append(q.Should, domain.LexicalClause{Keyword: kw, Fields: []string{"item^2", "reason_kw_norm^1.5", "item_detail^1"}, Boost: boosts[kw]})
	}
	if targetDocIDs != nil {
		if q.Filter == nil {
			q.Filter = domain.LexicalFilter{}
		}
		q.Filter["doc_id"] = sortedDocIDs(targetDocIDs)
	}
	return q
}

func cloneFilter(f domain.LexicalFilter) domain.LexicalFilter {
	if f == nil {
		return nil
	}
	out := make(domain.LexicalFilter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toFindingHits(fused []FusedHit) []domain.FindingHit {
	hits := make([]domain.FindingHit, 0, len(fused))
	for _, f := range fused {
		fh := domain.FindingHit{ScoreCombined: f.RRFScore}
		if f.LexicalHit != nil {
			fh.ScoreBM25 = f.LexicalHit.Score
			fh.FindingID, _ = f.LexicalHit.Source["finding_id"].(string)
			fh.DocID, _ = f.LexicalHit.Source["doc_id"].(string)
			fh.Item, _ = f.LexicalHit.Source["item"].(string)
			fh.ItemDetail, _ = f.LexicalHit.Source["item_detail"].(string)
			fh.Code, _ = f.LexicalHit.Source["code"].(string)
		}
		if f.VectorHit != nil {
			fh.ScoreVector = f.VectorHit.Score
			if fh.FindingID == "" {
				fh.FindingID, _ = f.VectorHit.Payload["finding_id"].(string)
			}
			if fh.DocID == "" {
				fh.DocID, _ = f.VectorHit.Payload["doc_id"].(string)
			}
		}
		if fh.FindingID == "" {
			fh.FindingID = f.ID
		}
		hits = append(hits, fh)
	}
	return hits
}

// lockableMap is a tiny mutex-guarded map used for the concurrent
// per-keyword doc-set prefilter fan-out.
type lockableMap struct {
	mu sync.Mutex
	m  map[string]map[string]struct{}
}

func (l *lockableMap) init() { l.m = map[string]map[string]struct{}{} }

func (l *lockableMap) set(key string, v map[string]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[key] = v
}

func (l *lockableMap) get(key string) map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m[key]
}
