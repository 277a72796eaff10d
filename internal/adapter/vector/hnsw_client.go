// Package vector adapts coder/hnsw collections ("findings_vectors",
// "chunks_vectors") to the domain.VectorClient port, grounded on
// Aman-CERP-amanmcp's internal/store.HNSWStore (string<->uint64 id
// mapping, cosine-normalized graph, lazy deletion). hnsw has no native
// payload filter, so filtering here is a post-search pass over
// payload-store hits, over-fetching candidates before applying it.
package vector

import (
	"context"
	"fmt"
	"math"
	"sync"

	"taxauditrag/internal/domain"

	"github.com/coder/hnsw"
)

const overFetchMultiplier = 4

// collection is one named HNSW graph plus its payload store.
type collection struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	payload map[string]map[string]any
	nextKey uint64
}

// HNSWClient implements domain.VectorClient over one or more named
// collections, all dim 1024 cosine per spec.md §6.
type HNSWClient struct {
	mu          sync.RWMutex
	collections map[string]*collection
	dimensions  int
}

var _ domain.VectorClient = (*HNSWClient)(nil)

// NewHNSWClient constructs an HNSWClient with the named collections
// pre-registered.
func NewHNSWClient(dimensions int, names ...string) *HNSWClient {
	c := &HNSWClient{collections: make(map[string]*collection, len(names)), dimensions: dimensions}
	for _, name := range names {
		c.collections[name] = newCollection()
	}
	return c
}

func newCollection() *collection {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &collection{
		graph:   g,
		idMap:   map[string]uint64{},
		keyMap:  map[uint64]string{},
		payload: map[string]map[string]any{},
	}
}

// Upsert inserts or replaces vectors with payloads in the named
// collection, using the lazy-deletion pattern for updates.
func (c *HNSWClient) Upsert(ctx context.Context, collectionName string, ids []string, vectors [][]float32, payloads []map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.collections[collectionName]
	if !ok {
		return fmt.Errorf("vector: unknown collection %q", collectionName)
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("vector: ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	for i, id := range ids {
		if existingKey, exists := col.idMap[id]; exists {
			delete(col.keyMap, existingKey)
			delete(col.idMap, id)
		}
		key := col.nextKey
		col.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalize(vec)

		col.graph.Add(hnsw.MakeNode(key, vec))
		col.idMap[id] = key
		col.keyMap[key] = id
		if i < len(payloads) {
			col.payload[id] = payloads[i]
		}
	}
	return nil
}

// Search finds up to limit nearest neighbors matching filter, above
// scoreThreshold, per spec.md §6's vector backend contract.
func (c *HNSWClient) Search(ctx context.Context, collectionName string, queryVector []float32, filter domain.VectorFilter, limit int, scoreThreshold float64) ([]domain.VectorHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	col, ok := c.collections[collectionName]
	if !ok {
		return nil, fmt.Errorf("vector: unknown collection %q", collectionName)
	}
	if col.graph.Len() == 0 {
		return []domain.VectorHit{}, nil
	}

	q := make([]float32, len(queryVector))
	copy(q, queryVector)
	normalize(q)

	fetchK := limit * overFetchMultiplier
	if fetchK < limit {
		fetchK = limit
	}
	nodes := col.graph.Search(q, fetchK)

	hits := make([]domain.VectorHit, 0, limit)
	for _, node := range nodes {
		id, ok := col.keyMap[node.Key]
		if !ok {
			continue
		}
		payload := col.payload[id]
		if !matchesFilter(payload, filter) {
			continue
		}
		distance := col.graph.Distance(q, node.Value)
		score := 1 - distance/2
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, domain.VectorHit{ID: id, Score: score, Payload: payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func matchesFilter(payload map[string]any, filter domain.VectorFilter) bool {
	for field, allowed := range filter {
		v, ok := payload[field].(string)
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
