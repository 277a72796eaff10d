package usecase_test

import (
	"log/slog"
	"io"
	"testing"

	"taxauditrag/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizer_RedactsIDLikePatterns(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	got := n.Normalize("주민번호 123456-1234567 확인 요망")
	assert.Contains(t, got, "[REDACTED]")
	assert.NotContains(t, got, "123456-1234567")
}

func TestNormalizer_CollapsesWhitespace(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	got := n.Normalize("제조업   매출누락    조사기법")
	assert.Equal(t, "제조업 매출누락 조사기법", got)
}

func TestNormalizer_LowercasesASCIIOnly(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	got := n.Normalize("VAT 관련 사례")
	assert.Equal(t, "부가가치세 관련", got)
}

func TestNormalizer_ExpandsAbbreviations(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	got := n.Normalize("PIT 조사기법")
	assert.Contains(t, got, "종합소득세")
}

func TestNormalizer_RemovesStopwords(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	got := n.Normalize("매출누락 사례 조사기법")
	assert.NotContains(t, got, "사례")
}

func TestNormalizer_NeverFails_EmptyInput(t *testing.T) {
	n := usecase.NewNormalizer(testLogger())
	assert.Equal(t, "", n.Normalize(""))
}
