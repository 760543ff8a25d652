package retrieval

import "sort"

// ProcessorOptions configures the result processor's supersession behavior.
type ProcessorOptions struct {
	// IncludeSuperseded, when false, drops superseded results entirely
	// instead of appending them below the actives (spec.md §4.4 default
	// is true: never drop outright unless the caller opts out).
	IncludeSuperseded bool
}

// DefaultProcessorOptions matches spec.md §4.4's default of keeping
// superseded results, just ranked below every active one.
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{IncludeSuperseded: true}
}

// Process runs the result-processor stage of spec.md §4.4 over a merged
// candidate pool: dedup by chunk_id (already folded by the executor, but
// re-asserted here since callers may merge pools from multiple sources),
// adaptive score normalization, supersession partitioning, and the
// top_k_total*2 budget cap for the reranker.
func Process(candidates []*Evidence, plan Plan, opts ProcessorOptions) []*Evidence {
	deduped := dedup(candidates)
	normalizeScoresInPlace(deduped)

	active, superseded := partitionSupersession(deduped)
	sortByScoreDesc(active)
	sortByScoreDesc(superseded)

	var ordered []*Evidence
	if opts.IncludeSuperseded {
		ordered = make([]*Evidence, 0, len(active)+len(superseded))
		ordered = append(ordered, active...)
		ordered = append(ordered, superseded...)
	} else {
		ordered = active
	}

	budget := plan.TopKTotal * 2
	if budget > 0 && len(ordered) > budget {
		ordered = ordered[:budget]
	}
	return ordered
}

// dedup groups by ChunkID, keeps the instance with the highest current
// score, and merges RawScores by max-per-key across the discarded copies.
func dedup(candidates []*Evidence) []*Evidence {
	byID := make(map[string]*Evidence, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, ev := range candidates {
		if existing, ok := byID[ev.ChunkID]; ok {
			mergeRawScores(existing, ev)
			if ev.Score > existing.Score {
				existing.Score, existing.Vertical, existing.Text = ev.Score, ev.Vertical, ev.Text
			}
			continue
		}
		byID[ev.ChunkID] = ev
		order = append(order, ev.ChunkID)
	}
	out := make([]*Evidence, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// partitionSupersession splits deduped into active and superseded sets by
// each candidate's Metadata.IsSuperseded flag, preserving relative order
// within each; it reads the flag and does not set it.
func partitionSupersession(candidates []*Evidence) (active, superseded []*Evidence) {
	for _, ev := range candidates {
		if ev.Metadata.IsSuperseded {
			superseded = append(superseded, ev)
			continue
		}
		active = append(active, ev)
	}
	return active, superseded
}

func sortByScoreDesc(evidence []*Evidence) {
	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Score > evidence[j].Score
	})
}
