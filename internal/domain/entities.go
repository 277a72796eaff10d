// Package domain holds the core entities and ports of the query pipeline.
// Nothing here performs I/O; adapters in internal/adapter implement the ports.
package domain

import "time"

// Section is the rhetorical category of a chunk.
type Section string

const (
	SectionInvestigationFindings Section = "investigation-findings"
	SectionInvestigationTechnique Section = "investigation-technique"
	SectionTaxationLogic          Section = "taxation-logic"
	SectionEvidenceAndRisk        Section = "evidence-and-risk"
)

// RequiredSections is the default section set the chunk retriever runs
// over when a query carries no section hints.
var RequiredSections = []Section{SectionInvestigationFindings, SectionInvestigationTechnique}

// PresentationOrder is the fixed section order used by the context packer.
var PresentationOrder = []Section{
	SectionInvestigationTechnique,
	SectionTaxationLogic,
	SectionEvidenceAndRisk,
	SectionInvestigationFindings,
}

// Finding is a coarse audit item. External, read-only to the core.
type Finding struct {
	FindingID   string
	DocID       string
	Item        string
	ItemDetail  string
	Code        string
	IndustrySub string
	DomainTags  []string
}

// Chunk is a passage within a finding. External, read-only to the core.
type Chunk struct {
	ChunkID      string
	FindingID    string
	DocID        string
	Section      Section
	SectionOrder int
	ChunkOrder   int
	Page         *int
	StartLine    *int
	EndLine      *int
	Text         string
}

// FindingHit is a stage-1 retrieval result.
type FindingHit struct {
	Finding
	ScoreBM25     float64
	ScoreVector   float64
	ScoreCombined float64
}

// ChunkHit is a stage-2 retrieval result.
type ChunkHit struct {
	Chunk
	ScoreCombined float64
}

// Citation identifies the source location a chunk was drawn from.
type Citation struct {
	DocID     string
	FindingID string
	Page      *int
	LineStart *int
	LineEnd   *int
}

// Tag renders the citation as the inline "[doc_id:page:start-end]" marker.
func (c Citation) Tag() string {
	page := "-"
	if c.Page != nil {
		page = itoa(*c.Page)
	}
	lines := "-"
	if c.LineStart != nil && c.LineEnd != nil {
		lines = itoa(*c.LineStart) + "-" + itoa(*c.LineEnd)
	}
	return "[" + c.DocID + ":" + page + ":" + lines + "]"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SectionChunks groups a block's chunks by section, already sorted by
// (SectionOrder, ChunkOrder) per spec.md §4.9.
type SectionChunks map[Section][]ChunkHit

// RankedBlock is a finding together with its chosen top chunks, treated
// as one presentation unit.
type RankedBlock struct {
	FindingID       string
	DocID           string
	Item            string
	ItemDetail      string
	Code            string
	Score           float64
	Chunks          SectionChunks
	SourceSections  map[Section]struct{}
	MatchedKeywords []string
}

// Context is the packed, citation-annotated prompt context handed to the
// composer.
type Context struct {
	PackedText string
	Citations  []Citation
}

// Slots are the structured fields the parser extracts from a query.
type Slots struct {
	IndustrySub   map[string]struct{}
	DomainTags    map[string]struct{}
	Code          map[string]struct{}
	Entities      map[string]struct{}
	SectionHints  map[Section][]string
	FreeText      string
	Confidence    float64
	UsedFallback  bool
	WellFormedLLM bool
}

// NewSlots returns a Slots value with all sets initialized.
func NewSlots() Slots {
	return Slots{
		IndustrySub:  map[string]struct{}{},
		DomainTags:   map[string]struct{}{},
		Code:         map[string]struct{}{},
		Entities:     map[string]struct{}{},
		SectionHints: map[Section][]string{},
	}
}

// MetaFiltersEmpty reports whether industry_sub, domain_tags and code are all empty,
// per the router's clarify condition (spec.md §4.4).
func (s Slots) MetaFiltersEmpty() bool {
	return len(s.IndustrySub) == 0 && len(s.DomainTags) == 0 && len(s.Code) == 0
}

// Expansion is the keyword expansion produced for case_lookup queries.
type Expansion struct {
	MustHave     []string
	ShouldHave   []string
	RelatedTerms []string
	BoostWeights map[string]float64
	UsedFallback bool
}

// DocumentKeyword returns must_have[0], the document-level keyword, or ""
// if must_have is empty.
func (e Expansion) DocumentKeyword() string {
	if len(e.MustHave) == 0 {
		return ""
	}
	return e.MustHave[0]
}

// BlockKeywords returns must_have[1:], the block-level filter keywords.
func (e Expansion) BlockKeywords() []string {
	if len(e.MustHave) <= 1 {
		return nil
	}
	return append([]string(nil), e.MustHave[1:]...)
}

// Intent is the classified query intent.
type Intent string

const (
	IntentCaseLookup Intent = "case_lookup"
	IntentExplain    Intent = "explain"
)

// Route is the router's dispatch decision.
type Route string

const (
	RouteClarify Route = "clarify"
	RouteSearch  Route = "search"
	RouteExplain Route = "explain"
)

// ErrorKind names a recovered failure mode (spec.md §7). It is not a Go
// error type; QueryContext.Error carries the human-readable message and
// QueryContext.ErrorKind records which taxonomy entry fired, for logging/tests.
type ErrorKind string

const (
	ErrorKindNone                         ErrorKind = ""
	ErrorKindNormalizerFailure             ErrorKind = "normalizer_failure"
	ErrorKindLLMUnavailable                ErrorKind = "llm_unavailable"
	ErrorKindLLMFormatError                ErrorKind = "llm_format_error"
	ErrorKindLexicalUnavailable            ErrorKind = "lexical_unavailable"
	ErrorKindVectorUnavailable             ErrorKind = "vector_unavailable"
	ErrorKindBothRetrievalStoresUnavailable ErrorKind = "both_retrieval_stores_unavailable"
	ErrorKindEmptyResults                  ErrorKind = "empty_results"
	ErrorKindTimeout                       ErrorKind = "timeout"
	ErrorKindInternalError                 ErrorKind = "internal_error"
)

// QueryContext is the single mutable value threaded through the pipeline.
// Each stage reads the fields written by prior stages and writes only its
// own fields (spec.md §3).
type QueryContext struct {
	RawText       string
	NormalizedText string

	Intent Intent
	Slots  Slots

	Expansion Expansion

	Route Route

	FindingHits []FindingHit

	ChunkGroups map[Section][]ChunkHit

	BlockRanking       []RankedBlock
	ExcludedBlocks     []RankedBlock
	KeywordBlockCounts map[string]int

	PackedContext Context

	Answer    string
	ErrorKind ErrorKind
	Error     string

	RequestedAt time.Time
}

// NewQueryContext creates a QueryContext for a fresh request.
func NewQueryContext(raw string, now time.Time) *QueryContext {
	return &QueryContext{
		RawText:            raw,
		Slots:              NewSlots(),
		ChunkGroups:        map[Section][]ChunkHit{},
		KeywordBlockCounts: map[string]int{},
		RequestedAt:        now,
	}
}
