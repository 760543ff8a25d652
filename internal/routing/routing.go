// Package routing builds a deterministic retrieval.Plan from a
// QueryInterpretation (spec.md §4.2). BuildPlan is a pure function: same
// interpretation and override always produce the same plan.
package routing

import (
	"strings"
	"time"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// planTemplate holds the mode-keyed constants from spec.md §4.2's table.
type planTemplate struct {
	rewrites        int
	hops            int
	topKPerVertical int
	topKTotal       int
	rerankTopM      int
	useMMR          bool
	diversityWeight float64
	timeout         time.Duration
}

var planTemplates = map[retrieval.Mode]planTemplate{
	retrieval.ModeQA:         {rewrites: 2, hops: 1, topKPerVertical: 20, topKTotal: 40, rerankTopM: 10, useMMR: false, diversityWeight: 0.0, timeout: 2 * time.Second},
	retrieval.ModePolicy:     {rewrites: 3, hops: 2, topKPerVertical: 30, topKTotal: 60, rerankTopM: 25, useMMR: false, diversityWeight: 0.3, timeout: 8 * time.Second},
	retrieval.ModeFramework:  {rewrites: 5, hops: 2, topKPerVertical: 40, topKTotal: 100, rerankTopM: 30, useMMR: false, diversityWeight: 0.3, timeout: 10 * time.Second},
	retrieval.ModeDeepthink:  {rewrites: 5, hops: 2, topKPerVertical: 50, topKTotal: 120, rerankTopM: 30, useMMR: false, diversityWeight: 0.3, timeout: 10 * time.Second},
	retrieval.ModeCompliance: {rewrites: 2, hops: 1, topKPerVertical: 15, topKTotal: 30, rerankTopM: 15, useMMR: false, diversityWeight: 0.2, timeout: 3 * time.Second},
	retrieval.ModeBrainstorm: {rewrites: 5, hops: 2, topKPerVertical: 40, topKTotal: 100, rerankTopM: 30, useMMR: true, diversityWeight: 0.5, timeout: 8 * time.Second},
}

// collectionNames maps a vertical to its exact backing collection name.
// Recorded on the plan so the index client never has to re-derive it.
var collectionNames = map[retrieval.Vertical]string{
	retrieval.VerticalLegal:    "legal_corpus",
	retrieval.VerticalGO:       "go_orders",
	retrieval.VerticalJudicial: "judicial_rulings",
	retrieval.VerticalData:     "statistical_reports",
	retrieval.VerticalSchemes:  "scheme_descriptions",
	retrieval.VerticalInternet: "internet",
}

// verticalPriority fixes a stable ordering for vertical selection and
// truncation so BuildPlan stays deterministic regardless of map iteration.
var verticalPriority = []retrieval.Vertical{
	retrieval.VerticalLegal,
	retrieval.VerticalGO,
	retrieval.VerticalJudicial,
	retrieval.VerticalData,
	retrieval.VerticalSchemes,
}

var metricWords = []string{"percent", "percentage", "statistics", "data", "number of", "rate", "ratio", "survey", "census"}
var schemeWords = []string{"scheme", "yojana", "benefit", "beneficiary", "eligibility"}

var departmentTokens = []string{
	"revenue", "education", "health", "finance", "agriculture",
	"irrigation", "home", "transport", "panchayat raj", "municipal administration",
}

// Override lets a caller force routing decisions that take precedence over
// the interpreter's own classification (e.g. "force deep_think").
type Override struct {
	Mode        *retrieval.Mode
	UseInternet *bool
}

// BuildPlan derives a retrieval.Plan from interp and an optional override.
// Pure: given the same inputs (including normalizedQuery, used only for the
// "recent"+"go" forced-filter rule), it always returns the same plan.
func BuildPlan(interp retrieval.QueryInterpretation, normalizedQuery string, override *Override) retrieval.Plan {
	mode := interp.Mode
	if override != nil && override.Mode != nil {
		mode = *override.Mode
	}

	tmpl, ok := planTemplates[mode]
	if !ok {
		tmpl = planTemplates[retrieval.ModePolicy]
	}

	rewrites := tmpl.rewrites
	if mode == retrieval.ModeQA && interp.Scope == retrieval.ScopeNarrow {
		rewrites = 1
	}

	verticals := selectVerticals(mode, interp.Entities, interp.Keywords)
	collections := make([]string, 0, len(verticals))
	for _, v := range verticals {
		collections = append(collections, collectionNames[v])
	}

	useInternet := interp.NeedsInternet || mode == retrieval.ModeBrainstorm
	if override != nil && override.UseInternet != nil {
		useInternet = *override.UseInternet
	}

	plan := retrieval.Plan{
		Mode:            mode,
		Rewrites:        rewrites,
		Hops:            tmpl.hops,
		TopKPerVertical: tmpl.topKPerVertical,
		TopKTotal:       tmpl.topKTotal,
		RerankTopM:      tmpl.rerankTopM,
		UseMMR:          tmpl.useMMR,
		DiversityWeight: tmpl.diversityWeight,
		Timeout:         tmpl.timeout,
		Verticals:       verticals,
		UseInternet:     useInternet,
		Collections:     collections,
		ForcedFilter:    forcedFilters(normalizedQuery, interp.Entities),
	}
	return plan
}

// selectVerticals applies spec.md §4.2's entity-kind and mode rules, in a
// fixed priority order so the result is deterministic.
func selectVerticals(mode retrieval.Mode, entities map[string][]string, keywords []string) []retrieval.Vertical {
	if mode == retrieval.ModeDeepthink || mode == retrieval.ModeFramework {
		return append([]retrieval.Vertical{}, verticalPriority...)
	}

	if mode == retrieval.ModeBrainstorm {
		return []retrieval.Vertical{retrieval.VerticalSchemes, retrieval.VerticalData}
	}

	selected := make(map[retrieval.Vertical]bool)
	if _, ok := entities[retrieval.EntitySection]; ok {
		selected[retrieval.VerticalLegal] = true
	}
	if _, ok := entities[retrieval.EntityActName]; ok {
		selected[retrieval.VerticalLegal] = true
	}
	if _, ok := entities[retrieval.EntityGONumber]; ok {
		selected[retrieval.VerticalGO] = true
	}
	if _, ok := entities[retrieval.EntityCaseNumber]; ok {
		selected[retrieval.VerticalJudicial] = true
	}
	if containsAny(keywords, metricWords) {
		selected[retrieval.VerticalData] = true
	}
	if containsAny(keywords, schemeWords) {
		selected[retrieval.VerticalSchemes] = true
	}
	if _, ok := entities[retrieval.EntityScheme]; ok {
		selected[retrieval.VerticalSchemes] = true
	}

	var out []retrieval.Vertical
	for _, v := range verticalPriority {
		if selected[v] {
			out = append(out, v)
		}
	}

	// No entity/keyword signal at all: default to legal+go, the two most
	// common verticals for a policy question.
	if len(out) == 0 {
		out = []retrieval.Vertical{retrieval.VerticalLegal, retrieval.VerticalGO}
	}

	if mode == retrieval.ModeQA && len(out) > 2 {
		out = out[:2]
	}

	return out
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n || strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

// forcedFilters implements spec.md §4.2's "recent" + "go" rule and pins a
// detected department token onto the same filter.
func forcedFilters(normalizedQuery string, entities map[string][]string) []retrieval.Filter {
	words := strings.Fields(normalizedQuery)
	hasRecent, hasGO := false, false
	for _, w := range words {
		w = strings.Trim(w, ".,?!;:()")
		if w == "recent" {
			hasRecent = true
		}
		if w == "go" {
			hasGO = true
		}
	}
	if !hasRecent || !hasGO {
		return nil
	}

	cutoff := time.Now().AddDate(0, -18, 0).UTC().Format(time.RFC3339)
	filter := retrieval.Filter{Key: "date_issued_ts", GTE: &cutoff}
	filters := []retrieval.Filter{filter}

	if depts, ok := entities[retrieval.EntityDepartment]; ok && len(depts) > 0 {
		dept := depts[0]
		filters = append(filters, retrieval.Filter{Key: "department", Match: &dept})
	} else if dept, ok := firstDepartmentToken(normalizedQuery); ok {
		filters = append(filters, retrieval.Filter{Key: "department", Match: &dept})
	}

	return filters
}

func firstDepartmentToken(normalizedQuery string) (string, bool) {
	for _, d := range departmentTokens {
		if strings.Contains(normalizedQuery, d) {
			return d, true
		}
	}
	return "", false
}
