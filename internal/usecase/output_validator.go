package usecase

import (
	"regexp"
	"strings"

	"taxauditrag/internal/domain"
)

var citationTagRe = regexp.MustCompile(`\[[^\[\]]+:[^\[\]:]*:[^\[\]]*\]`)

const missingCitationWarning = "\n\n> ⚠️ 일부 내용에 인용 표기가 누락되었을 수 있습니다.\n"

// OutputValidator runs the final sanity checks from spec.md §4.11,
// grounded directly on the teacher's OutputValidator.
type OutputValidator struct{}

// NewOutputValidator constructs an OutputValidator.
func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

// Validate inspects the assembled answer and applies the documented
// fallback messages.
func (v *OutputValidator) Validate(answer string, errKind domain.ErrorKind, blocks []domain.RankedBlock, mustHave []string) string {
	switch errKind {
	case domain.ErrorKindTimeout:
		return "요청 처리 시간이 초과되었습니다. 다시 시도해 주세요."
	case domain.ErrorKindBothRetrievalStoresUnavailable:
		return "현재 검색 서비스를 이용할 수 없습니다. 잠시 후 다시 시도해 주세요."
	}

	if len(blocks) == 0 {
		return v.noMatchingCasesMessage(mustHave)
	}

	if !citationTagRe.MatchString(answer) {
		return answer + missingCitationWarning
	}

	return answer
}

func (v *OutputValidator) noMatchingCasesMessage(mustHave []string) string {
	var b strings.Builder
	b.WriteString("조건에 맞는 사례를 찾지 못했습니다.")
	if len(mustHave) > 0 {
		b.WriteString(" 시도한 키워드: " + strings.Join(mustHave, ", "))
	}
	return b.String()
}
