// Package lexical adapts a Bleve index pair ("findings", "chunks") to
// the domain.LexicalClient port, grounded on Aman-CERP-amanmcp's
// internal/store.BleveBM25Index (match-query construction, batch
// indexing, in-memory/on-disk open).
package lexical

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"taxauditrag/internal/domain"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Document is one record stored in a Bleve index, carrying its source
// fields alongside the searchable text.
type Document struct {
	ID     string
	Fields map[string]any
}

// BleveClient implements domain.LexicalClient over one or more named
// Bleve indices (here, "findings" and "chunks").
type BleveClient struct {
	mu      sync.RWMutex
	indices map[string]bleve.Index
}

var _ domain.LexicalClient = (*BleveClient)(nil)

// NewBleveClient opens (or creates, if path is empty, in-memory) the
// named indices.
func NewBleveClient(paths map[string]string) (*BleveClient, error) {
	indices := make(map[string]bleve.Index, len(paths))
	for name, path := range paths {
		m := buildIndexMapping()
		var idx bleve.Index
		var err error
		if path == "" {
			idx, err = bleve.NewMemOnly(m)
		} else {
			idx, err = bleve.Open(path)
			if err == bleve.ErrorIndexPathDoesNotExist {
				idx, err = bleve.New(path, m)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("lexical: open index %q: %w", name, err)
		}
		indices[name] = idx
	}
	return &BleveClient{indices: indices}, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	return bleve.NewIndexMapping()
}

// IndexDocuments batch-inserts documents into the named index.
func (c *BleveClient) IndexDocuments(ctx context.Context, index string, docs []Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.indices[index]
	if !ok {
		return fmt.Errorf("lexical: unknown index %q", index)
	}
	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, d.Fields); err != nil {
			return fmt.Errorf("lexical: batch index %s: %w", d.ID, err)
		}
	}
	return idx.Batch(batch)
}

// Search runs a bool query (must/should/filter) built from the given
// LexicalQuery, per spec.md §6's contract.
func (c *BleveClient) Search(ctx context.Context, index string, query domain.LexicalQuery, size int) ([]domain.LexicalHit, error) {
	c.mu.RLock()
	idx, ok := c.indices[index]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lexical: unknown index %q", index)
	}

	bq := bleve.NewBooleanQuery()
	for _, clause := range query.Must {
		bq.AddMust(clauseQuery(clause))
	}
	for _, clause := range query.Should {
		bq.AddShould(clauseQuery(clause))
	}
	for field, values := range query.Filter {
		bq.AddMust(filterQuery(field, values))
	}
	if len(query.Must) == 0 && len(query.Should) == 0 && len(query.Filter) == 0 {
		bq.AddMust(bleve.NewMatchAllQuery())
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = size
	req.Fields = []string{"*"}

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}

	hits := make([]domain.LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, domain.LexicalHit{ID: hit.ID, Score: hit.Score, Source: hit.Fields})
	}
	return hits, nil
}

// Aggregate runs one grouped query per keyword clause, counting matching
// documents under the given structural filter, satisfying spec.md
// §4.6's "single aggregation request" requirement at the client-call
// level (one call to Aggregate issues all per-keyword counts together).
func (c *BleveClient) Aggregate(ctx context.Context, index string, keywordClauses map[string]domain.LexicalClause, filter domain.LexicalFilter) (map[string]int, error) {
	c.mu.RLock()
	idx, ok := c.indices[index]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lexical: unknown index %q", index)
	}

	freq := make(map[string]int, len(keywordClauses))
	keys := make([]string, 0, len(keywordClauses))
	for k := range keywordClauses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, kw := range keys {
		clause := keywordClauses[kw]
		bq := bleve.NewBooleanQuery()
		bq.AddMust(clauseQuery(clause))
		for field, values := range filter {
			bq.AddMust(filterQuery(field, values))
		}
		req := bleve.NewSearchRequest(bq)
		req.Size = 0
		result, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("lexical: aggregate %q: %w", kw, err)
		}
		freq[kw] = int(result.Total)
	}
	return freq, nil
}

// Get fetches a single document by id.
func (c *BleveClient) Get(ctx context.Context, index, id string) (map[string]any, error) {
	c.mu.RLock()
	idx, ok := c.indices[index]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lexical: unknown index %q", index)
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{"*"}
	req.Size = 1
	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: get %s: %w", id, err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	return result.Hits[0].Fields, nil
}

// Close releases the underlying index handles.
func (c *BleveClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, idx := range c.indices {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func clauseQuery(clause domain.LexicalClause) bleve.Query {
	if len(clause.Fields) == 0 {
		q := bleve.NewMatchQuery(clause.Keyword)
		if clause.Boost > 0 {
			q.SetBoost(clause.Boost)
		}
		return q
	}
	disjunct := bleve.NewDisjunctionQuery()
	for _, field := range clause.Fields {
		q := bleve.NewMatchQuery(clause.Keyword)
		q.SetField(field)
		if clause.Boost > 0 {
			q.SetBoost(clause.Boost)
		}
		disjunct.AddQuery(q)
	}
	return disjunct
}

func filterQuery(field string, values []string) bleve.Query {
	if len(values) == 1 {
		q := bleve.NewMatchQuery(values[0])
		q.SetField(field)
		return q
	}
	disjunct := bleve.NewDisjunctionQuery()
	for _, v := range values {
		q := bleve.NewMatchQuery(v)
		q.SetField(field)
		disjunct.AddQuery(q)
	}
	return disjunct
}
