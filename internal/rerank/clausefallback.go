package rerank

import (
	"context"
	"regexp"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// citationPattern mirrors clauseindex's own citation detection; duplicated
// rather than imported since the fast-path only needs a cheap yes/no check,
// not full citation extraction.
var citationPattern = regexp.MustCompile(`(?i)\bsection\s+\d+|\bg\.?o\.?\s*(ms\.?|rt\.?)?\s*no\.?\s*\d+|\barticle\s+\d+`)

// ClauseIndex is the subset of clauseindex.Index stage 6 needs.
type ClauseIndex interface {
	LookupAll(ctx context.Context, text string) ([]string, error)
}

// NeedsClauseFallback reports whether spec.md §4.5 stage 6 should run:
// fewer than 3 results survived reranking and the query looks like a legal
// citation.
func NeedsClauseFallback(resultCount int, normalizedQuery string) bool {
	return resultCount < 3 && citationPattern.MatchString(normalizedQuery)
}

// ApplyClauseFallback merges direct clause-indexer hits on top of results,
// hydrating them via client and skipping chunk IDs already present.
func ApplyClauseFallback(ctx context.Context, index ClauseIndex, client ExpansionClient, vertical retrieval.Vertical, normalizedQuery string, results []*retrieval.Evidence) ([]*retrieval.Evidence, error) {
	present := make(map[string]bool, len(results))
	for _, ev := range results {
		present[ev.ChunkID] = true
	}

	ids, err := index.LookupAll(ctx, normalizedQuery)
	if err != nil || len(ids) == 0 {
		return results, err
	}

	var toFetch []string
	for _, id := range ids {
		if !present[id] {
			toFetch = append(toFetch, id)
		}
	}
	if len(toFetch) == 0 {
		return results, nil
	}

	hits, err := client.GetByIDs(ctx, vertical, toFetch)
	if err != nil {
		return results, err
	}
	return append(hits, results...), nil
}
