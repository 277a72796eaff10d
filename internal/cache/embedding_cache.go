// Package cache holds the two process-wide mutable structures the
// pipeline shares across queries (spec.md §5): an embedding cache and a
// keyword-frequency cache. Both are LRU-bounded and safe for concurrent
// use, following the memoization pattern in
// Aman-CERP-amanmcp's internal/search.HybridClassifier.
package cache

import (
	"crypto/md5" //nolint:gosec // content-addressing, not a security boundary
	"encoding/hex"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the spec.md §5 LRU capacity for embeddings.
const DefaultEmbeddingCacheSize = 100

// EmbeddingCache memoizes query -> dense-vector lookups, keyed by an MD5
// hash of the query string.
type EmbeddingCache struct {
	cache *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates an embedding cache with the given capacity.
// A non-positive size falls back to DefaultEmbeddingCacheSize.
func NewEmbeddingCache(size int) *EmbeddingCache {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &EmbeddingCache{cache: c}
}

// HashQuery computes the cache key for a query string.
func HashQuery(query string) string {
	sum := md5.Sum([]byte(query)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for a query, if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	return c.cache.Get(key)
}

// Add installs an embedding into the cache.
func (c *EmbeddingCache) Add(key string, vector []float32) {
	c.cache.Add(key, vector)
}

// DefaultKeywordFreqCacheSize is the spec.md §5 LRU capacity for
// keyword-frequency aggregations.
const DefaultKeywordFreqCacheSize = 1000

// KeywordFreqCache memoizes (doc set, keyword set) -> frequency-map
// aggregations (spec.md §4.6).
type KeywordFreqCache struct {
	cache *lru.Cache[string, map[string]int]
}

// NewKeywordFreqCache creates a keyword-frequency cache with the given
// capacity. A non-positive size falls back to DefaultKeywordFreqCacheSize.
func NewKeywordFreqCache(size int) *KeywordFreqCache {
	if size <= 0 {
		size = DefaultKeywordFreqCacheSize
	}
	c, _ := lru.New[string, map[string]int](size)
	return &KeywordFreqCache{cache: c}
}

// HashDocsKeywords computes the cache key for a (docIDs, keywords) pair:
// sorted doc_ids | sorted keywords, per spec.md §5.
func HashDocsKeywords(docIDs, keywords []string) string {
	sortedDocs := append([]string(nil), docIDs...)
	sort.Strings(sortedDocs)
	sortedKeywords := append([]string(nil), keywords...)
	sort.Strings(sortedKeywords)
	return strings.Join(sortedDocs, ",") + "|" + strings.Join(sortedKeywords, ",")
}

// Get returns the cached frequency map for a key, if present.
func (c *KeywordFreqCache) Get(key string) (map[string]int, bool) {
	return c.cache.Get(key)
}

// Add installs a frequency map into the cache.
func (c *KeywordFreqCache) Add(key string, freq map[string]int) {
	c.cache.Add(key, freq)
}
