// Package retrieval holds the core data model shared by every stage of the
// retrieval pipeline — interpretation, plan, evidence, and the final
// output envelope — plus the hybrid executor and result processor that
// produce Evidence from a Plan.
package retrieval

import "time"

// Mode is the query-handling mode derived by the interpreter and used to
// drive routing, worker-pool sizing, and reranking behavior.
type Mode string

const (
	ModeQA         Mode = "qa"
	ModePolicy     Mode = "policy"
	ModeFramework  Mode = "framework"
	ModeCompliance Mode = "compliance"
	ModeDeepthink  Mode = "deepthink"
	ModeBrainstorm Mode = "brainstorm"
)

// Scope is the breadth of a query's expected answer.
type Scope string

const (
	ScopeNarrow Scope = "narrow"
	ScopeMedium Scope = "medium"
	ScopeBroad  Scope = "broad"
)

// Entity kinds recognized by the interpreter.
const (
	EntitySection    = "section"
	EntityGONumber   = "go_number"
	EntityYear       = "year"
	EntityCaseNumber = "case_number"
	EntityActName    = "act_name"
	EntityDepartment = "department"
	EntityScheme     = "scheme"
)

// Vertical identifies a document collection searched by the hybrid executor.
type Vertical string

const (
	VerticalLegal     Vertical = "legal"
	VerticalGO        Vertical = "go"
	VerticalJudicial  Vertical = "judicial"
	VerticalData      Vertical = "data"
	VerticalSchemes   Vertical = "schemes"
	VerticalInternet  Vertical = "internet"
)

// TemporalRange bounds a query to a date window, e.g. "recent" GOs.
type TemporalRange struct {
	From *time.Time
	To   *time.Time
}

// QueryInterpretation is the immutable output of the interpreter stage.
// Created per-query, never persisted.
type QueryInterpretation struct {
	Mode          Mode
	Scope         Scope
	Entities      map[string][]string // entity kind -> normalized values
	Keywords      []string
	TemporalRange *TemporalRange
	NeedsInternet bool
	Confidence    float64
}

// Filter is a forced constraint merged into every collection query for a
// plan, shaped after the index-client filter contract (spec §6):
// {must: [{key, match:{value}} | {key, range:{gte, lte}}]}.
type Filter struct {
	Key   string
	Match *string
	GTE   *string
	LTE   *string
}

// Plan is the deterministic, immutable execution plan derived from a
// QueryInterpretation (and optional mode override) by the router.
type Plan struct {
	Mode            Mode
	Rewrites        int
	Hops            int
	TopKPerVertical int
	TopKTotal       int
	RerankTopM      int
	UseMMR          bool
	DiversityWeight float64
	Timeout         time.Duration

	Verticals    []Vertical
	UseInternet  bool
	Collections  []string
	ForcedFilter []Filter
}

// Evidence is a single ranked passage returned to the caller. Mutated only
// by appending to RawScores or via explicit score updates once created.
type Evidence struct {
	ChunkID  string
	DocID    string
	Vertical Vertical
	Text     string
	Score    float64

	// RawScores preserves per-stage contributions: dense, sparse, rrf and
	// section_boost from the hybrid executor, and rerank (the score held
	// before cross-encoder rescoring) from the rerank coordinator. No
	// relation or mmr entries are written.
	RawScores map[string]float64

	Metadata EvidenceMetadata
}

// EvidenceMetadata carries the strongly-typed known fields from the source
// payload plus an Extras bag for anything else — the tagged-variant
// replacement for the dynamic dict-typed payloads of the source system
// (see SPEC_FULL.md §9 / spec.md design notes).
type EvidenceMetadata struct {
	SectionType   string // e.g. "orders", "preamble", "annexure"
	SectionNumber string
	GONumber      string
	DateIssuedTS  *time.Time
	Year          int
	Department    string
	Entities      []string
	Relations     []Relation

	IsSuperseded bool
	SupersededBy string

	SourceURL string // set for vertical == internet

	Extras map[string]string
}

// RelationKind enumerates the non-owning edge kinds between documents,
// replacing the source's cyclic document references (spec §9).
type RelationKind string

const (
	RelationAmends     RelationKind = "amends"
	RelationSupersedes RelationKind = "supersedes"
	RelationImplements RelationKind = "implements"
	RelationCites      RelationKind = "cites"
)

// Relation is a non-owning (from_id, to_id, kind) edge. Fetched by ID, never
// recursively traversed.
type Relation struct {
	FromID string
	ToID   string
	Kind   RelationKind
}

// StageTimings records per-stage wall time for diagnostics.
type StageTimings struct {
	Understanding time.Duration
	Retrieval     time.Duration
	Aggregation   time.Duration
	Reranking     time.Duration
	Total         time.Duration
}

// TraceStep is one entry in the processing trace surfaced on RetrievalOutput.
type TraceStep struct {
	Name    string
	Detail  string
	AtStage string
}

// RetrievalOutput is the single return value of the engine's retrieve
// operation. Immutable, not persisted.
type RetrievalOutput struct {
	OriginalQuery   string
	NormalizedQuery string

	Interpretation QueryInterpretation
	Plan           Plan
	Rewrites       []string
	Verticals      []Vertical

	Results []*Evidence

	TotalCandidates int
	FinalCount      int

	Stage    StageTimings
	CacheHit bool
	Partial  bool

	Steps []TraceStep
}
