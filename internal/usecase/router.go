package usecase

import "taxauditrag/internal/domain"

// Router is the pure decision function from spec.md §4.4.
type Router struct {
	confidenceThreshold float64
}

// NewRouter constructs a Router with the configured clarify threshold.
func NewRouter(confidenceThreshold float64) *Router {
	return &Router{confidenceThreshold: confidenceThreshold}
}

// Route decides between clarify, search and explain. must_have is only
// ever populated for case_lookup (the expander does not run for
// explain), so the empty-must_have clarify trigger only applies to the
// case_lookup branch.
func (r *Router) Route(intent domain.Intent, slots domain.Slots, expansion domain.Expansion) domain.Route {
	if slots.Confidence < r.confidenceThreshold || slots.MetaFiltersEmpty() {
		return domain.RouteClarify
	}
	if intent == domain.IntentCaseLookup {
		if len(expansion.MustHave) == 0 {
			return domain.RouteClarify
		}
		return domain.RouteSearch
	}
	return domain.RouteExplain
}

// ClarifyMessage renders the templated clarification question naming the
// missing slot categories.
func (r *Router) ClarifyMessage(slots domain.Slots, expansion domain.Expansion) string {
	var missing []string
	if len(slots.IndustrySub) == 0 {
		missing = append(missing, "업종(industry_sub)")
	}
	if len(slots.DomainTags) == 0 {
		missing = append(missing, "유형(domain_tags)")
	}
	if len(slots.Code) == 0 {
		missing = append(missing, "세목코드(code)")
	}
	if len(expansion.MustHave) == 0 {
		missing = append(missing, "검색 키워드(must_have)")
	}

	msg := "질문을 더 구체적으로 말씀해 주세요. 다음 정보가 필요합니다: "
	for i, m := range missing {
		if i > 0 {
			msg += ", "
		}
		msg += m
	}
	return msg
}
