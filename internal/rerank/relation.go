package rerank

import (
	"context"
	"math"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// relationBonuses implements spec.md §4.5 stage 3(a)'s fixed per-relation-
// kind bonus.
var relationBonuses = map[retrieval.RelationKind]float64{
	retrieval.RelationAmends:     0.25,
	retrieval.RelationSupersedes: 0.20,
	retrieval.RelationImplements: 0.15,
	retrieval.RelationCites:      0.10,
}

// neighborLookupLimit and expansionDecay bound stage 3(c)'s entity
// expansion: up to 5 neighbors per top-20 candidate, added back at a
// decayed fraction of the originating candidate's score.
const (
	neighborLookupLimit = 5
	topCandidatesForExpansion = 20
	expansionDecay = 0.5
)

// ExpansionClient is the storage dependency stage 3(c) needs to hydrate
// relation neighbors. A narrowed view of indexclient.Client so this package
// never imports indexclient.
type ExpansionClient interface {
	GetByIDs(ctx context.Context, vertical retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error)
}

// ScoreRelations implements stage 3(a): for each candidate whose relations
// reference an entity value present in the query's extracted entities, adds
// relationBonuses[kind] once per matching relation. Returns a per-chunk
// score delta.
func ScoreRelations(candidates []*retrieval.Evidence, queryEntities map[string][]string) map[string]float64 {
	queryValues := flattenEntityValues(queryEntities)
	deltas := make(map[string]float64)
	for _, ev := range candidates {
		var total float64
		for _, rel := range ev.Metadata.Relations {
			if queryValues[rel.ToID] || queryValues[rel.FromID] {
				total += relationBonuses[rel.Kind]
			}
		}
		if total > 0 {
			deltas[ev.ChunkID] = total
		}
	}
	return deltas
}

// MatchEntities implements stage 3(b): a cosine-similarity bonus over the
// bag-of-entity-strings of the query and each candidate's metadata entities.
func MatchEntities(candidates []*retrieval.Evidence, queryEntities map[string][]string) map[string]float64 {
	queryValues := flattenEntityValues(queryEntities)
	if len(queryValues) == 0 {
		return nil
	}
	deltas := make(map[string]float64)
	for _, ev := range candidates {
		if len(ev.Metadata.Entities) == 0 {
			continue
		}
		sim := entityCosine(queryValues, ev.Metadata.Entities)
		if sim > 0 {
			deltas[ev.ChunkID] = sim * 0.2
		}
	}
	return deltas
}

func entityCosine(queryValues map[string]bool, candidateEntities []string) float64 {
	overlap := 0
	for _, e := range candidateEntities {
		if queryValues[e] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / math.Sqrt(float64(len(queryValues))*float64(len(candidateEntities)))
}

// ExpandEntities implements stage 3(c): for each of the top 20 candidates,
// follows up to 5 amends/supersedes neighbor edges via a single filter
// lookup (GetByIDs, never a collection scroll) and returns them as new
// candidates at expansionDecay of the originating candidate's score.
func ExpandEntities(ctx context.Context, client ExpansionClient, candidates []*retrieval.Evidence) []*retrieval.Evidence {
	top := candidates
	if len(top) > topCandidatesForExpansion {
		top = top[:topCandidatesForExpansion]
	}

	var expanded []*retrieval.Evidence
	for _, ev := range top {
		var neighborIDs []string
		for _, rel := range ev.Metadata.Relations {
			if rel.Kind != retrieval.RelationAmends && rel.Kind != retrieval.RelationSupersedes {
				continue
			}
			neighborIDs = append(neighborIDs, rel.ToID)
			if len(neighborIDs) >= neighborLookupLimit {
				break
			}
		}
		if len(neighborIDs) == 0 {
			continue
		}
		neighbors, err := client.GetByIDs(ctx, ev.Vertical, neighborIDs)
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			n.Score = ev.Score * expansionDecay
			expanded = append(expanded, n)
		}
	}
	return expanded
}

func flattenEntityValues(entities map[string][]string) map[string]bool {
	out := make(map[string]bool)
	for _, values := range entities {
		for _, v := range values {
			out[v] = true
		}
	}
	return out
}
