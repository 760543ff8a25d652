// Package understanding implements the query-understanding stage: pure
// normalization, rule-based interpretation, LLM-backed rewriting with a
// rule-based fallback, and domain keyword expansion (spec.md §4.1).
package understanding

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// citationGuardPatterns match the same citation forms clauseindex.ExtractCitations
// recognizes. The normalizer lower-cases everything else but keeps these
// spans verbatim (digits and punctuation survive case-folding anyway, but a
// future citation form might not) so downstream citation matching never sees
// a normalization artifact.
var citationGuardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsection\s+\d+[a-z]?(\([0-9a-z]+\))*`),
	regexp.MustCompile(`(?i)\bsec\.?\s+\d+[a-z]?`),
	regexp.MustCompile(`(?i)\barticle\s+\d+[a-z]?`),
	regexp.MustCompile(`(?i)\bg\.?o\.?\s*ms\.?\s*no\.?\s*\d+`),
	regexp.MustCompile(`(?i)\bg\.?o\.?\s*(?:rt\.?)?\s*(?:no\.?)?\s*\d+`),
	regexp.MustCompile(`(?i)\brule\s+\d+[a-z]?`),
	regexp.MustCompile(`(?i)\bw\.?p\.?\s*no\.?\s*\d+`),
}

// Normalize lower-cases the query, collapses whitespace, strips control
// characters, and folds unicode to canonical composed form (NFC) — except
// for spans that match a legal-citation pattern, which are preserved
// verbatim (only whitespace around them is collapsed). Deterministic, pure.
func Normalize(query string) string {
	query = norm.NFC.String(query)
	query = stripControl(query)

	guarded := guardCitations(query)

	var b strings.Builder
	lastWasSpace := false
	for _, seg := range guarded {
		if seg.verbatim {
			if b.Len() > 0 && !lastWasSpace {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(seg.text))
			lastWasSpace = false
			continue
		}
		for _, r := range seg.text {
			if unicode.IsSpace(r) {
				if !lastWasSpace && b.Len() > 0 {
					b.WriteByte(' ')
					lastWasSpace = true
				}
				continue
			}
			b.WriteRune(unicode.ToLower(r))
			lastWasSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

type segment struct {
	text     string
	verbatim bool
}

// guardCitations splits query into alternating non-citation/citation
// segments so Normalize can case-fold the former while preserving the latter.
func guardCitations(query string) []segment {
	type span struct{ start, end int }
	var spans []span
	for _, pat := range citationGuardPatterns {
		for _, loc := range pat.FindAllStringIndex(query, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return []segment{{text: query}}
	}

	// Sort and merge overlapping spans so two patterns matching the same
	// text don't produce duplicate verbatim segments.
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].start < spans[i].start {
				spans[i], spans[j] = spans[j], spans[i]
			}
		}
	}
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var segs []segment
	pos := 0
	for _, s := range merged {
		if s.start > pos {
			segs = append(segs, segment{text: query[pos:s.start]})
		}
		segs = append(segs, segment{text: query[s.start:s.end], verbatim: true})
		pos = s.end
	}
	if pos < len(query) {
		segs = append(segs, segment{text: query[pos:]})
	}
	return segs
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		if r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}
