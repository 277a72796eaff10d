package domain

import "context"

// LexicalFilter is a structural AND-filter applied alongside a lexical
// query: field -> allowed values (set membership) or a single value.
type LexicalFilter map[string][]string

// LexicalClause is one weighted multi_match-style clause.
type LexicalClause struct {
	Keyword string
	Fields  []string
	Boost   float64
}

// LexicalQuery is the bool-query shape from spec.md §6: must/should
// clauses plus a structural filter.
type LexicalQuery struct {
	Must   []LexicalClause
	Should []LexicalClause
	Filter LexicalFilter
}

// LexicalHit is a single lexical search result.
type LexicalHit struct {
	ID      string
	Score   float64
	Source  map[string]any
}

// LexicalClient is the contract spec.md §6 describes for the "findings"
// and "chunks" indices: search, grouped aggregation, and get-by-id.
type LexicalClient interface {
	Search(ctx context.Context, index string, query LexicalQuery, size int) ([]LexicalHit, error)
	// Aggregate counts the documents matching each named keyword clause
	// under filter and returns every count from one call. The number of
	// backend queries behind that call is up to the implementation:
	// BleveClient issues one query per keyword clause.
	Aggregate(ctx context.Context, index string, keywordClauses map[string]LexicalClause, filter LexicalFilter) (map[string]int, error)
	Get(ctx context.Context, index string, id string) (map[string]any, error)
}

// VectorFilter is an equality/set-membership filter on payload fields.
type VectorFilter map[string][]string

// VectorHit is a single vector search result.
type VectorHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorClient is the contract spec.md §6 describes for the
// "findings_vectors" and "chunks_vectors" collections.
type VectorClient interface {
	Search(ctx context.Context, collection string, queryVector []float32, filter VectorFilter, limit int, scoreThreshold float64) ([]VectorHit, error)
}

// Embedder computes dense embeddings for query text.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMClient is the contract spec.md §6 describes for the Ollama-style
// generate endpoint.
type LLMClient interface {
	// Generate issues a single completion call. jsonMode requests
	// format:"json" on the wire.
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// EmbeddingCache is the process-wide LRU cache over (query -> embedding),
// spec.md §5.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Add(key string, vector []float32)
}

// KeywordFreqCache is the process-wide LRU cache over
// (docs,keywords -> freq map), spec.md §5.
type KeywordFreqCache interface {
	Get(key string) (map[string]int, bool)
	Add(key string, freq map[string]int)
}
