package rerank

import (
	"strings"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// categoryClusters assigns a coarse semantic category to a candidate from
// its text, independent of its vertical — two chunks from the same vertical
// (e.g. two GO orders) can land in different categories, which is what lets
// MMR diversify beyond mere vertical spread.
var categoryClusters = map[string][]string{
	"tax":         {"tax", "exemption", "levy", "assessment", "rebate"},
	"land":        {"land", "survey number", "revenue record", "patta", "mutation"},
	"pension":     {"pension", "gratuity", "retirement", "arrears"},
	"transfer":    {"transfer", "posting", "promotion", "seniority", "cadre"},
	"recruitment": {"recruitment", "notification", "examination", "selection"},
	"reservation": {"reservation", "quota", "category", "eligibility criteria"},
	"budget":      {"budget", "allocation", "expenditure", "grant"},
	"health":      {"hospital", "health", "insurance", "medical"},
	"education":   {"school", "scholarship", "admission", "curriculum"},
	"agriculture": {"farmer", "crop", "subsidy", "irrigation"},
	"scheme":      {"scheme", "yojana", "beneficiary"},
}

// PredictCategories is a pure function of the top-N passages' text and
// metadata, predicting a single category tag per candidate (spec.md §4.5
// stage 1). It is computed once per Rerank call and the result is reused by
// every later stage that needs it — mmr.go's similarity function in
// particular.
func PredictCategories(candidates []*retrieval.Evidence) map[string]string {
	out := make(map[string]string, len(candidates))
	for _, ev := range candidates {
		out[ev.ChunkID] = predictOne(ev)
	}
	return out
}

func predictOne(ev *retrieval.Evidence) string {
	text := strings.ToLower(ev.Text)
	best, bestHits := "general", 0
	for category, terms := range categoryClusters {
		hits := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = category, hits
		}
	}
	return best
}
