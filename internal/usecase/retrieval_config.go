package usecase

import "fmt"

// HybridSearchConfig tunes one invocation shape of the §4.5 hybrid
// retrieval primitive (a finding search or a per-section chunk search).
type HybridSearchConfig struct {
	TopKLex        int
	TopKVec        int
	RRFK           int
	FinalTopN      int
	ScoreThreshold float64
}

// Validate checks the invariants the hybrid primitive depends on.
func (c HybridSearchConfig) Validate() error {
	if c.TopKLex <= 0 || c.TopKVec <= 0 {
		return fmt.Errorf("retrieval config: top_k_lex and top_k_vec must be > 0")
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("retrieval config: rrf_k must be > 0")
	}
	if c.FinalTopN <= 0 {
		return fmt.Errorf("retrieval config: final_top_n must be > 0")
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval config: score_threshold must be in [0,1]")
	}
	return nil
}

// BlockPromotionConfig tunes §4.8.
type BlockPromotionConfig struct {
	TopKChunks        int
	IntersectionMin   int
	FinalTopN         int
	MaxBlocksPerDoc   int
}

func (c BlockPromotionConfig) Validate() error {
	if c.TopKChunks <= 0 {
		return fmt.Errorf("retrieval config: block_top_k_chunks must be > 0")
	}
	if c.IntersectionMin <= 0 {
		return fmt.Errorf("retrieval config: block_intersection_min must be > 0")
	}
	if c.FinalTopN <= 0 {
		return fmt.Errorf("retrieval config: block_final_top_n must be > 0")
	}
	if c.MaxBlocksPerDoc <= 0 {
		return fmt.Errorf("retrieval config: max_blocks_per_doc must be > 0")
	}
	return nil
}

// ContextPackingConfig tunes §4.9.
type ContextPackingConfig struct {
	TokenBudget    int
	MergeAdjacent  bool
}

func (c ContextPackingConfig) Validate() error {
	if c.TokenBudget <= 0 {
		return fmt.Errorf("retrieval config: context_token_budget must be > 0")
	}
	return nil
}

// SectionWeightConfig tunes the blend weights used in §4.8's union mode.
type SectionWeightConfig struct {
	Findings  float64
	Technique float64
}

func (c SectionWeightConfig) Validate() error {
	if c.Findings < 0 || c.Technique < 0 {
		return fmt.Errorf("retrieval config: section weights must be >= 0")
	}
	return nil
}

// RetrievalConfig is the full tuning contract from spec.md §6.
type RetrievalConfig struct {
	Findings HybridSearchConfig
	Chunks   HybridSearchConfig

	VectorScoreThreshold      float64
	VectorScoreThresholdMulti float64

	ConfidenceThreshold float64

	Block   BlockPromotionConfig
	Context ContextPackingConfig
	Section SectionWeightConfig
}

// Validate runs every sub-config's Validate.
func (c RetrievalConfig) Validate() error {
	if err := c.Findings.Validate(); err != nil {
		return fmt.Errorf("findings: %w", err)
	}
	if err := c.Chunks.Validate(); err != nil {
		return fmt.Errorf("chunks: %w", err)
	}
	if c.VectorScoreThreshold < 0 || c.VectorScoreThreshold > 1 {
		return fmt.Errorf("vector_score_threshold must be in [0,1]")
	}
	if c.VectorScoreThresholdMulti < 0 || c.VectorScoreThresholdMulti > 1 {
		return fmt.Errorf("vector_score_threshold_multi must be in [0,1]")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1]")
	}
	if err := c.Block.Validate(); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	if err := c.Section.Validate(); err != nil {
		return fmt.Errorf("section: %w", err)
	}
	return nil
}

// DefaultRetrievalConfig returns spec.md §6's documented defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Findings: HybridSearchConfig{
			TopKLex:        150,
			TopKVec:        150,
			RRFK:           60,
			FinalTopN:      30,
			ScoreThreshold: 0.35,
		},
		Chunks: HybridSearchConfig{
			TopKLex:        300,
			TopKVec:        300,
			RRFK:           60,
			FinalTopN:      300,
			ScoreThreshold: 0.35,
		},
		VectorScoreThreshold:      0.35,
		VectorScoreThresholdMulti: 0.65,
		ConfidenceThreshold:       0.4,
		Block: BlockPromotionConfig{
			TopKChunks:      3,
			IntersectionMin: 2,
			FinalTopN:       3,
			MaxBlocksPerDoc: 2,
		},
		Context: ContextPackingConfig{
			TokenBudget:   4000,
			MergeAdjacent: true,
		},
		Section: SectionWeightConfig{
			Findings:  0.5,
			Technique: 0.5,
		},
	}
}
