package cache_test

import (
	"testing"

	"taxauditrag/internal/cache"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingCache_AddGet(t *testing.T) {
	c := cache.NewEmbeddingCache(2)
	key := cache.HashQuery("제조업 매출누락")

	_, ok := c.Get(key)
	assert.False(t, ok, "miss before add")

	vec := []float32{0.1, 0.2, 0.3}
	c.Add(key, vec)

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestEmbeddingCache_EvictsLRU(t *testing.T) {
	c := cache.NewEmbeddingCache(1)
	c.Add("a", []float32{1})
	c.Add("b", []float32{2})

	_, ok := c.Get("a")
	assert.False(t, ok, "a should have been evicted once capacity exceeded")

	got, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, []float32{2}, got)
}

func TestHashQuery_Stable(t *testing.T) {
	assert.Equal(t, cache.HashQuery("부가가치세"), cache.HashQuery("부가가치세"))
	assert.NotEqual(t, cache.HashQuery("부가가치세"), cache.HashQuery("소득세"))
}

func TestKeywordFreqCache_AddGet(t *testing.T) {
	c := cache.NewKeywordFreqCache(10)
	key := cache.HashDocsKeywords([]string{"doc-2", "doc-1"}, []string{"매출누락", "제조업"})

	_, ok := c.Get(key)
	assert.False(t, ok)

	freq := map[string]int{"제조업": 3, "매출누락": 5}
	c.Add(key, freq)

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, freq, got)
}

func TestHashDocsKeywords_OrderIndependent(t *testing.T) {
	a := cache.HashDocsKeywords([]string{"doc-1", "doc-2"}, []string{"x", "y"})
	b := cache.HashDocsKeywords([]string{"doc-2", "doc-1"}, []string{"y", "x"})
	assert.Equal(t, a, b)
}
