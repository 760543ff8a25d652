// Package indexclient is the retrieval core's sole dependency on durable
// storage. It exposes exactly the four read operations spec.md §6 allows —
// knn, bm25, fetch_by_filter, get_by_ids — and nothing an ingestion
// pipeline would need, since offline ingestion is out of scope.
package indexclient

import (
	"context"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// ScoredID is a chunk identifier with a similarity or relevance score,
// as returned by the dense and sparse legs of the hybrid executor before
// full Evidence is hydrated via GetByIDs.
type ScoredID struct {
	ChunkID string
	Score   float64
}

// Client is the storage-layer contract consumed by the hybrid executor.
// Every method is scoped to a single vertical (collection); the executor
// fans out across verticals itself.
type Client interface {
	// KNN returns the topK nearest chunks to vector by cosine similarity,
	// restricted to chunks matching filters.
	KNN(ctx context.Context, vertical retrieval.Vertical, vector []float32, topK int, filters []retrieval.Filter) ([]ScoredID, error)

	// BM25 returns the topK chunks ranked by BM25 relevance to query,
	// restricted to chunks matching filters.
	BM25(ctx context.Context, vertical retrieval.Vertical, query string, topK int, filters []retrieval.Filter) ([]ScoredID, error)

	// FetchByFilter returns up to limit chunk IDs matching filters with no
	// ranking.
	FetchByFilter(ctx context.Context, vertical retrieval.Vertical, filters []retrieval.Filter, limit int) ([]string, error)

	// GetByIDs hydrates chunk IDs into full Evidence records (text +
	// metadata), preserving input order where an ID is found; missing IDs
	// are silently dropped, never erroring, since sources can be deleted
	// between a ranking pass and hydration.
	GetByIDs(ctx context.Context, vertical retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error)

	// Close releases any held connections.
	Close() error
}

// matchesFilters reports whether ev's metadata satisfies every filter.
// Used by LocalClient's KNN, BM25 and FetchByFilter and by QdrantClient's
// BM25, where payload filtering happens after a broader scan.
func matchesFilters(ev *retrieval.Evidence, filters []retrieval.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(ev, f) {
			return false
		}
	}
	return true
}

func matchesFilter(ev *retrieval.Evidence, f retrieval.Filter) bool {
	val, ok := fieldValue(ev, f.Key)
	if !ok {
		return false
	}
	if f.Match != nil {
		return val == *f.Match
	}
	if f.GTE != nil && val < *f.GTE {
		return false
	}
	if f.LTE != nil && val > *f.LTE {
		return false
	}
	return true
}

// fieldValue projects the subset of EvidenceMetadata fields that plans
// express forced filters over (spec.md §6's filter contract).
func fieldValue(ev *retrieval.Evidence, key string) (string, bool) {
	switch key {
	case "section_type":
		return ev.Metadata.SectionType, true
	case "go_number":
		return ev.Metadata.GONumber, true
	case "department":
		return ev.Metadata.Department, true
	case "doc_id":
		return ev.DocID, true
	default:
		v, ok := ev.Metadata.Extras[key]
		return v, ok
	}
}
