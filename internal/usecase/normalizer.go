package usecase

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// Normalizer cleans raw user text into a canonical form (spec.md §4.1).
// It never fails: any internal error is logged and the original input is
// returned. No library in the retrieval pack offers Korean PII masking or
// domain abbreviation expansion, so this stage is regexp/stdlib only —
// see DESIGN.md for the justification.
type Normalizer struct {
	abbreviations map[string]string
	stopwords     map[string]struct{}
	logger        *slog.Logger

	idNumberRe string
	phoneRe    string
	cardRe     string
}

var (
	defaultIDNumberRe = regexp.MustCompile(`\b\d{6}-\d{7}\b`)
	defaultPhoneRe    = regexp.MustCompile(`\b0\d{1,2}-?\d{3,4}-?\d{4}\b`)
	defaultCardRe     = regexp.MustCompile(`\b\d{4}-?\d{4}-?\d{4}-?\d{4}\b`)
	whitespaceRe      = regexp.MustCompile(`[\s\p{Zs}]+`)
)

const redactionPlaceholder = "[REDACTED]"

// DefaultAbbreviations is the fixed expansion dictionary from spec.md §4.1.
// Keys are lowercase because expandAbbreviations runs after lowerASCII in
// the Normalize pipeline.
var DefaultAbbreviations = map[string]string{
	"vat": "부가가치세",
	"pit": "종합소득세",
	"cit": "법인세",
	"nts": "국세청",
}

// DefaultStopwords are grammatical particles and domain-generic nouns
// removed in normalization step (5).
var DefaultStopwords = map[string]struct{}{
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "에": {}, "의": {},
	"case":   {},
	"finding": {},
	"사례":     {},
	"건":      {},
}

// NewNormalizer constructs a Normalizer with the default dictionaries.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		abbreviations: DefaultAbbreviations,
		stopwords:     DefaultStopwords,
		logger:        logger,
	}
}

// Normalize applies the five ordered operations from spec.md §4.1. It
// never returns an error; on any internal failure it logs and returns
// the original input.
func (n *Normalizer) Normalize(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("normalizer_failure", slog.Any("panic", r))
			out = raw
		}
	}()

	text := n.redact(raw)
	text = n.collapseWhitespace(text)
	text = n.lowerASCII(text)
	text = n.expandAbbreviations(text)
	text = n.removeStopwords(text)
	return text
}

func (n *Normalizer) redact(text string) string {
	text = defaultIDNumberRe.ReplaceAllString(text, redactionPlaceholder)
	text = defaultPhoneRe.ReplaceAllString(text, redactionPlaceholder)
	text = defaultCardRe.ReplaceAllString(text, redactionPlaceholder)
	return text
}

func (n *Normalizer) collapseWhitespace(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// lowerASCII lowercases ASCII runes, leaving CJK characters unchanged.
func (n *Normalizer) lowerASCII(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < unicode.MaxASCII {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (n *Normalizer) expandAbbreviations(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if expanded, ok := n.abbreviations[tok]; ok {
			tokens[i] = expanded
		}
	}
	return strings.Join(tokens, " ")
}

func (n *Normalizer) removeStopwords(text string) string {
	tokens := strings.Fields(text)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
