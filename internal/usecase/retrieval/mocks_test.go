package retrieval_test

import (
	"context"

	"taxauditrag/internal/domain"

	"github.com/stretchr/testify/mock"
)

type mockLexicalClient struct {
	mock.Mock
}

func (m *mockLexicalClient) Search(ctx context.Context, index string, query domain.LexicalQuery, size int) ([]domain.LexicalHit, error) {
	args := m.Called(ctx, index, query, size)
	hits, _ := args.Get(0).([]domain.LexicalHit)
	return hits, args.Error(1)
}

func (m *mockLexicalClient) Aggregate(ctx context.Context, index string, keywordClauses map[string]domain.LexicalClause, filter domain.LexicalFilter) (map[string]int, error) {
	args := m.Called(ctx, index, keywordClauses, filter)
	freq, _ := args.Get(0).(map[string]int)
	return freq, args.Error(1)
}

func (m *mockLexicalClient) Get(ctx context.Context, index, id string) (map[string]any, error) {
	args := m.Called(ctx, index, id)
	v, _ := args.Get(0).(map[string]any)
	return v, args.Error(1)
}

type mockVectorClient struct {
	mock.Mock
}

func (m *mockVectorClient) Search(ctx context.Context, collection string, queryVector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.VectorHit, error) {
	args := m.Called(ctx, collection, queryVector, filter, limit, scoreThreshold)
	hits, _ := args.Get(0).([]domain.VectorHit)
	return hits, args.Error(1)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	v, _ := args.Get(0).([][]float32)
	return v, args.Error(1)
}
