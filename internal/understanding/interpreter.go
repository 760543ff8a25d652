package understanding

import (
	"regexp"
	"strings"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// Mode-detection keyword sets (spec.md §4.1).
var (
	deepthinkKeywords = []string{"analyze", "comprehensive", "framework", "deep", "policy analysis"}
	brainstormKeywords = []string{"idea", "innovative", "creative", "best practices", "global"}

	qaLeadingWords = regexp.MustCompile(`(?i)^(what is|define|which)\b`)
	qaCitationPattern = regexp.MustCompile(`(?i)\bsection\s+\d+|\bgo\s+\d+|\bw\.?p\.?\s*no\.?\s*\d+`)
)

// entityPattern pairs an entity kind with the regex that recognizes it; the
// regex's last capture group holds the normalized value, without the label.
type entityPattern struct {
	kind    string
	pattern *regexp.Regexp
}

var entityPatterns = []entityPattern{
	{retrieval.EntitySection, regexp.MustCompile(`(?i)\bsection\s+(\d+[a-z]?(?:\([0-9a-z]+\))*)`)},
	{retrieval.EntityGONumber, regexp.MustCompile(`(?i)\bg\.?o\.?\s*(?:ms\.?|rt\.?)?\s*no\.?\s*(\d+)`)},
	{retrieval.EntityYear, regexp.MustCompile(`\b((?:19|20)\d{2})\b`)},
	{retrieval.EntityCaseNumber, regexp.MustCompile(`(?i)\bw\.?p\.?\s*no\.?\s*(\d+(?:/\d+)?)`)},
	{retrieval.EntityActName, regexp.MustCompile(`(?i)\b([a-z][a-z\s]{2,40}\bact(?:,?\s+\d{4})?)\b`)},
	{retrieval.EntityDepartment, regexp.MustCompile(`(?i)\b(revenue|education|health|finance|agriculture|irrigation|home|transport|panchayat raj|municipal administration)\s+department\b`)},
	{retrieval.EntityScheme, regexp.MustCompile(`(?i)\b([a-z][a-z\s]{2,40}\byojana|[a-z][a-z\s]{2,40}\bscheme)\b`)},
}

// metricWords and schemeWords feed the router's vertical-selection rule
// (spec.md §4.2) via Keywords, alongside dominant noun phrases.
var metricWords = []string{"percent", "percentage", "statistics", "data", "number of", "rate", "ratio", "survey", "census"}

// Interpret runs the rule-based classifier over a normalized query and
// produces its QueryInterpretation. Deterministic, pure.
func Interpret(normalizedQuery string) retrieval.QueryInterpretation {
	words := strings.Fields(normalizedQuery)
	wordCount := len(words)

	keywordHits := 0
	mode, hits := classifyMode(normalizedQuery, wordCount)
	keywordHits = hits

	entities := extractEntities(normalizedQuery)

	scope := scopeForMode(mode, entities)
	confidence := 0.6 + 0.05*float64(keywordHits)
	if confidence > 1.0 {
		confidence = 1.0
	}

	needsInternet := strings.Contains(normalizedQuery, "latest") ||
		strings.Contains(normalizedQuery, "current") ||
		strings.Contains(normalizedQuery, "news")

	return retrieval.QueryInterpretation{
		Mode:          mode,
		Scope:         scope,
		Entities:      entities,
		Keywords:      extractKeywords(normalizedQuery, words),
		TemporalRange: nil,
		NeedsInternet: needsInternet,
		Confidence:    confidence,
	}
}

// classifyMode applies the mode keyword/length heuristics in priority order
// and returns the number of distinguishing keyword hits it found, used to
// compute confidence.
func classifyMode(query string, wordCount int) (retrieval.Mode, int) {
	if wordCount <= 6 || qaCitationPattern.MatchString(query) || qaLeadingWords.MatchString(query) {
		return retrieval.ModeQA, 1
	}

	if hits := countMatches(query, deepthinkKeywords); wordCount >= 12 && hits > 0 {
		return retrieval.ModeDeepthink, hits
	}

	if hits := countMatches(query, brainstormKeywords); hits > 0 {
		return retrieval.ModeBrainstorm, hits
	}

	return retrieval.ModePolicy, 0
}

func countMatches(query string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			n++
		}
	}
	return n
}

// scopeForMode derives the answer-breadth scope from the mode and how many
// entity kinds were pinned down — a citation-anchored qa query is narrow, a
// broad deepthink/brainstorm sweep without entities is broad.
func scopeForMode(mode retrieval.Mode, entities map[string][]string) retrieval.Scope {
	switch mode {
	case retrieval.ModeQA:
		if len(entities) > 0 {
			return retrieval.ScopeNarrow
		}
		return retrieval.ScopeMedium
	case retrieval.ModeDeepthink, retrieval.ModeBrainstorm, retrieval.ModeFramework:
		return retrieval.ScopeBroad
	default:
		return retrieval.ScopeMedium
	}
}

// extractEntities scans normalizedQuery for every recognized entity kind and
// returns their normalized values, deduplicated per kind.
func extractEntities(query string) map[string][]string {
	entities := make(map[string][]string)
	for _, ep := range entityPatterns {
		matches := ep.pattern.FindAllStringSubmatch(query, -1)
		if len(matches) == 0 {
			continue
		}
		seen := make(map[string]bool)
		var values []string
		for _, m := range matches {
			val := strings.TrimSpace(m[len(m)-1])
			if val == "" || seen[val] {
				continue
			}
			seen[val] = true
			values = append(values, val)
		}
		if len(values) > 0 {
			entities[ep.kind] = values
		}
	}
	return entities
}

// extractKeywords returns the query's non-stopword tokens in order, plus any
// recognized metric words — this ordered list both feeds the expander's
// cluster lookup and the router's data-vertical selection rule.
func extractKeywords(query string, words []string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, ".,?!;:()")
		if w == "" || isInterpreterStopWord(w) || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	for _, mw := range metricWords {
		if strings.Contains(query, mw) && !seen[mw] {
			seen[mw] = true
			keywords = append(keywords, mw)
		}
	}
	return keywords
}

var interpreterStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "by": true, "and": true, "or": true,
	"this": true, "that": true, "these": true, "those": true, "as": true,
	"at": true, "from": true, "it": true, "its": true, "which": true,
	"who": true, "whom": true, "may": true, "such": true, "shall": true,
}

func isInterpreterStopWord(w string) bool {
	return interpreterStopWords[w]
}
