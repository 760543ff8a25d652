package understanding

import (
	"strings"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// Per-mode expansion budgets (spec.md §4.1).
const (
	ExpansionQA         = 3
	ExpansionPolicy     = 8
	ExpansionDeepthink  = 10
	ExpansionBrainstorm = 10
)

// domainClusters maps a detected entity kind or dominant keyword to the
// policy-domain terms that co-occur with it in the source collections. Unlike
// the teacher's code-vocabulary synonym table, this bridges citizen phrasing
// to the administrative vocabulary actually used in statutes, orders, and
// scheme descriptions.
var domainClusters = map[string][]string{
	retrieval.EntitySection:    {"clause", "provision", "subsection", "sub-section"},
	retrieval.EntityGONumber:   {"government order", "GO", "notification", "memo"},
	retrieval.EntityActName:    {"statute", "legislation", "enactment", "rules"},
	retrieval.EntityCaseNumber: {"writ petition", "judgment", "order", "ruling"},
	retrieval.EntityDepartment: {"department", "directorate", "secretariat", "circular"},
	retrieval.EntityScheme:     {"scheme", "yojana", "benefit", "eligibility", "beneficiary"},
	retrieval.EntityYear:       {"financial year", "fiscal year", "budget year"},

	"scheme":     {"eligibility", "beneficiary", "application", "subsidy"},
	"policy":     {"guideline", "framework", "circular", "implementation"},
	"tax":        {"exemption", "levy", "assessment", "rebate"},
	"land":       {"survey number", "revenue record", "patta", "registration"},
	"pension":    {"gratuity", "retirement", "benefit", "arrears"},
	"transfer":   {"posting", "promotion", "seniority", "cadre"},
	"recruitment": {"notification", "eligibility", "examination", "selection"},
	"reservation": {"quota", "category", "eligibility criteria"},
	"budget":     {"allocation", "expenditure", "grant", "financial year"},
	"compliance": {"guideline", "mandatory", "audit", "inspection"},
	"amendment":  {"amended", "supersedes", "notification", "revised"},
	"health":     {"hospital", "scheme", "insurance", "welfare"},
	"education":  {"school", "scholarship", "admission", "curriculum"},
	"agriculture": {"farmer", "crop", "subsidy", "irrigation"},
	"irrigation": {"canal", "water", "project", "command area"},
	"revenue":    {"survey", "assessment", "land records", "mutation"},
}

// expansionBudget returns K, the maximum domain keywords appended per
// rewrite for mode.
func expansionBudget(mode retrieval.Mode) int {
	switch mode {
	case retrieval.ModeQA:
		return ExpansionQA
	case retrieval.ModeDeepthink:
		return ExpansionDeepthink
	case retrieval.ModeBrainstorm:
		return ExpansionBrainstorm
	default:
		return ExpansionPolicy
	}
}

// Expand appends up to K domain keywords to rewrite, drawn from clusters
// keyed by entities and the query's dominant keywords. It never drops or
// reorders rewrite's own tokens, so the rewrite's core entities survive
// unchanged — it only appends.
func Expand(rewrite string, mode retrieval.Mode, entities map[string][]string, keywords []string) string {
	budget := expansionBudget(mode)
	if budget <= 0 {
		return rewrite
	}

	present := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(rewrite)) {
		present[strings.Trim(tok, ".,?!;:()")] = true
	}

	var additions []string
	seen := make(map[string]bool)
	addFrom := func(terms []string) {
		for _, t := range terms {
			if len(additions) >= budget {
				return
			}
			lt := strings.ToLower(t)
			if seen[lt] || present[lt] {
				continue
			}
			seen[lt] = true
			additions = append(additions, t)
		}
	}

	// Entity-keyed clusters first — they're the most specific signal.
	for kind := range entities {
		if len(additions) >= budget {
			break
		}
		addFrom(domainClusters[kind])
	}

	// Then dominant keywords, in the order the interpreter emitted them.
	for _, kw := range keywords {
		if len(additions) >= budget {
			break
		}
		if cluster, ok := domainClusters[kw]; ok {
			addFrom(cluster)
		}
	}

	if len(additions) == 0 {
		return rewrite
	}
	return rewrite + " " + strings.Join(additions, " ")
}

// ExpandAll expands every rewrite independently and returns the expanded
// set in the same order — used by the engine once all rewrites are known,
// though per spec.md's concurrency contract each rewrite may also be
// expanded individually as soon as it is produced.
func ExpandAll(rewrites []string, mode retrieval.Mode, entities map[string][]string, keywords []string) []string {
	out := make([]string, len(rewrites))
	for i, r := range rewrites {
		out[i] = Expand(r, mode, entities, keywords)
	}
	return out
}
