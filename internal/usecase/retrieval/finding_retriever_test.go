package retrieval_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"taxauditrag/internal/domain"
	"taxauditrag/internal/usecase/retrieval"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindingRetriever_SingleKeyword_SkipsVectorSearch(t *testing.T) {
	lex := new(mockLexicalClient)
	vec := new(mockVectorClient)

	lex.On("Search", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return([]domain.LexicalHit{
			{ID: "f1", Score: 9.0, Source: map[string]any{"doc_id": "d1", "finding_id": "f1", "item": "매출누락"}},
		}, nil)
	lex.On("Aggregate", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return(map[string]int{"부가가치세": 2}, nil)

	hybrid := retrieval.NewHybridSearcher(lex, vec, nil, nil, testLogger())
	fr := retrieval.NewFindingRetriever(hybrid, lex, nil, retrieval.FindingRetrieverConfig{
		TopKLex: 150, TopKVec: 150, RRFK: 60, FinalTopN: 30,
		VectorScoreThreshold: 0.35, VectorScoreThresholdMulti: 0.65,
	}, testLogger())

	result, err := fr.Retrieve(context.Background(), []string{"부가가치세"}, nil, nil, map[string]float64{"부가가치세": 3.0}, nil, nil, "부가가치세")
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	vec.AssertNotCalled(t, "Search")
}

func TestFindingRetriever_MultiKeyword_Intersection(t *testing.T) {
	lex := new(mockLexicalClient)
	vec := new(mockVectorClient)
	emb := new(mockEmbedder)

	lex.On("Search", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return([]domain.LexicalHit{
			{ID: "f1", Score: 9.0, Source: map[string]any{"doc_id": "d1", "finding_id": "f1", "item": "제조업 매출누락"}},
		}, nil)
	lex.On("Aggregate", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return(map[string]int{"제조업": 3, "매출누락": 2}, nil)
	emb.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.1, 0.2}}, nil)
	vec.On("Search", mock.Anything, "findings_vectors", mock.Anything, mock.Anything, mock.Anything, 0.65).
		Return([]domain.VectorHit{{ID: "f1", Score: 0.9, Payload: map[string]any{"doc_id": "d1", "finding_id": "f1"}}}, nil)

	hybrid := retrieval.NewHybridSearcher(lex, vec, emb, nil, testLogger())
	fr := retrieval.NewFindingRetriever(hybrid, lex, nil, retrieval.FindingRetrieverConfig{
		TopKLex: 150, TopKVec: 150, RRFK: 60, FinalTopN: 30,
		VectorScoreThreshold: 0.35, VectorScoreThresholdMulti: 0.65,
	}, testLogger())

	result, err := fr.Retrieve(context.Background(), []string{"제조업", "매출누락"}, nil, nil, map[string]float64{"제조업": 3.0, "매출누락": 3.0}, nil, nil, "제조업 매출누락")
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, "f1", result.Hits[0].FindingID)
}

func TestFindingRetriever_KeywordFrequency_UsesTopScoringDocs(t *testing.T) {
	lex := new(mockLexicalClient)
	vec := new(mockVectorClient)

	// Six docs match the primary keyword "매출누락"; doc scores are
	// deliberately out of alphabetical order so an alphabetical
	// truncation would pick the wrong five.
	lex.On("Search", mock.Anything, "findings", mock.MatchedBy(func(q domain.LexicalQuery) bool {
		return len(q.Must) == 1 && q.Must[0].Keyword == "매출누락"
	}), mock.Anything).Return([]domain.LexicalHit{
		{ID: "f-a", Score: 1.0, Source: map[string]any{"doc_id": "doc-a"}},
		{ID: "f-b", Score: 6.0, Source: map[string]any{"doc_id": "doc-b"}},
		{ID: "f-c", Score: 5.0, Source: map[string]any{"doc_id": "doc-c"}},
		{ID: "f-d", Score: 4.0, Source: map[string]any{"doc_id": "doc-d"}},
		{ID: "f-e", Score: 3.0, Source: map[string]any{"doc_id": "doc-e"}},
		{ID: "f-f", Score: 2.0, Source: map[string]any{"doc_id": "doc-f"}},
	}, nil)

	lex.On("Aggregate", mock.Anything, "findings", mock.Anything, mock.MatchedBy(func(f domain.LexicalFilter) bool {
		docs := append([]string(nil), f["doc_id"]...)
		sort.Strings(docs)
		expected := []string{"doc-b", "doc-c", "doc-d", "doc-e", "doc-f"}
		if len(docs) != len(expected) {
			return false
		}
		for i := range docs {
			if docs[i] != expected[i] {
				return false
			}
		}
		return true
	})).Return(map[string]int{"매출누락": 6}, nil)

	hybrid := retrieval.NewHybridSearcher(lex, vec, nil, nil, testLogger())
	fr := retrieval.NewFindingRetriever(hybrid, lex, nil, retrieval.FindingRetrieverConfig{
		TopKLex: 150, TopKVec: 150, RRFK: 60, FinalTopN: 30,
		VectorScoreThreshold: 0.35, VectorScoreThresholdMulti: 0.65,
	}, testLogger())

	_, err := fr.Retrieve(context.Background(), []string{"매출누락"}, nil, nil, map[string]float64{"매출누락": 3.0}, nil, nil, "매출누락")
	require.NoError(t, err)
	lex.AssertExpectations(t)
}

func TestFindingRetriever_EmptyIntersection_RelaxesToUnion(t *testing.T) {
	lex := new(mockLexicalClient)
	vec := new(mockVectorClient)
	emb := new(mockEmbedder)

	callCount := 0
	lex.On("Search", mock.Anything, "findings", mock.MatchedBy(func(q domain.LexicalQuery) bool {
		return len(q.Must) == 1
	}), mock.Anything).Run(func(args mock.Arguments) {
		callCount++
	}).Return([]domain.LexicalHit{}, nil).Maybe()

	lex.On("Search", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return([]domain.LexicalHit{}, nil)
	lex.On("Aggregate", mock.Anything, "findings", mock.Anything, mock.Anything).
		Return(map[string]int{}, nil)
	emb.On("Encode", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	vec.On("Search", mock.Anything, "findings_vectors", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.VectorHit{}, nil)

	hybrid := retrieval.NewHybridSearcher(lex, vec, emb, nil, testLogger())
	fr := retrieval.NewFindingRetriever(hybrid, lex, nil, retrieval.FindingRetrieverConfig{
		TopKLex: 150, TopKVec: 150, RRFK: 60, FinalTopN: 30,
		VectorScoreThreshold: 0.35, VectorScoreThresholdMulti: 0.65,
	}, testLogger())

	result, err := fr.Retrieve(context.Background(), []string{"존재안함1", "존재안함2"}, nil, nil, nil, nil, nil, "존재안함1 존재안함2")
	require.NoError(t, err)
	require.Empty(t, result.Hits)
	require.NotNil(t, result.TargetDocIDs)
}
