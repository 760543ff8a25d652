package engine

import (
	"time"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// MaxQueryLength is the InvalidQuery cutoff (spec.md §7): a query longer
// than this is rejected rather than processed.
const MaxQueryLength = 2000

// DefaultHardMargin is added to plan.Timeout to derive the query-level
// hard deadline (spec.md §4.8): any stage still running past
// plan.Timeout+HardMargin is cancelled and the engine returns whatever it
// has committed so far, marked partial.
const DefaultHardMargin = 2 * time.Second

// DefaultInternetTopN is how many internet results the fetcher leg
// requests per query when plan.UseInternet is set.
const DefaultInternetTopN = 5

// DefaultCacheSize bounds the query-result LRU (entries, not bytes).
const DefaultCacheSize = 1024

// Config holds the engine-level knobs from spec.md §6's configuration
// surface that aren't already owned by a stage's own Config type (routing's
// per-mode table, the coordinator's top-M, the executor's RRF constant and
// section boosts all live where they're used).
type Config struct {
	// EnableInternet is the master switch; false overrides any per-query
	// or per-plan request to use the internet leg.
	EnableInternet bool

	// IncludeSuperseded controls the result processor's default (spec.md
	// §4.4 default: true, ranked below every active result).
	IncludeSuperseded bool

	// ForceFilter is an opaque filter merged into every collection query
	// regardless of plan, e.g. a tenant or jurisdiction scope imposed by
	// the deployment rather than the query itself.
	ForceFilter []retrieval.Filter

	CacheSize    int
	HardMargin   time.Duration
	InternetTopN int
}

// DefaultConfig returns the engine's defaults.
func DefaultConfig() Config {
	return Config{
		EnableInternet:    true,
		IncludeSuperseded: true,
		CacheSize:         DefaultCacheSize,
		HardMargin:        DefaultHardMargin,
		InternetTopN:      DefaultInternetTopN,
	}
}
