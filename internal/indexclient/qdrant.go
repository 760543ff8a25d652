package indexclient

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/store"
)

// collectionName maps a vertical onto a Qdrant collection. Verticals are
// provisioned out of band (offline ingestion is out of scope); this client
// only ever reads.
func collectionName(vertical retrieval.Vertical) string {
	return "policyqa_" + string(vertical)
}

// QdrantClient implements Client against a Qdrant gRPC endpoint for dense
// KNN search, paired with an in-process Bleve index per vertical for the
// sparse (BM25) leg — the common production split, since Qdrant's own
// sparse-vector support needs a separately maintained sparse encoder that
// is out of scope here.
type QdrantClient struct {
	conn   *grpc.ClientConn
	points pb.PointsClient

	mu  sync.RWMutex
	bm25 map[retrieval.Vertical]*store.BleveBM25Index
}

// NewQdrantClient dials address (e.g. "localhost:6334") and prepares a
// local BM25 index per vertical.
func NewQdrantClient(address string, verticals []retrieval.Vertical) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	c := &QdrantClient{
		conn:   conn,
		points: pb.NewPointsClient(conn),
		bm25:   make(map[retrieval.Vertical]*store.BleveBM25Index, len(verticals)),
	}

	for _, v := range verticals {
		idx, err := store.NewBleveBM25Index("", store.DefaultBM25Config())
		if err != nil {
			return nil, fmt.Errorf("create bm25 index for %s: %w", v, err)
		}
		c.bm25[v] = idx
	}

	return c, nil
}

// SeedBM25 indexes text for the sparse leg of a vertical. Like
// LocalClient.Seed, this is fixture/bootstrap plumbing, not part of the
// Client interface — production sparse-index population happens through
// the same offline job that provisions the Qdrant collection.
func (c *QdrantClient) SeedBM25(ctx context.Context, vertical retrieval.Vertical, chunkID, text string) error {
	c.mu.RLock()
	idx, ok := c.bm25[vertical]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown vertical %q", vertical)
	}
	return idx.Index(ctx, []*store.Document{{ID: chunkID, Content: text}})
}

// KNN implements Client.
func (c *QdrantClient) KNN(ctx context.Context, vertical retrieval.Vertical, vector []float32, topK int, filters []retrieval.Filter) ([]ScoredID, error) {
	req := &pb.SearchPoints{
		CollectionName: collectionName(vertical),
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filters) > 0 {
		req.Filter = toQdrantFilter(filters)
	}

	resp, err := c.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]ScoredID, 0, len(resp.Result))
	for _, hit := range resp.Result {
		results = append(results, ScoredID{ChunkID: pointID(hit.Id), Score: float64(hit.Score)})
	}
	return results, nil
}

// BM25 implements Client via the paired local Bleve index.
func (c *QdrantClient) BM25(ctx context.Context, vertical retrieval.Vertical, query string, topK int, filters []retrieval.Filter) ([]ScoredID, error) {
	c.mu.RLock()
	idx, ok := c.bm25[vertical]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown vertical %q", vertical)
	}

	raw, err := idx.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	if len(filters) == 0 {
		results := make([]ScoredID, 0, len(raw))
		for _, r := range raw {
			results = append(results, ScoredID{ChunkID: r.DocID, Score: r.Score})
		}
		return results, nil
	}

	// Filters reference payload fields qdrant owns; hydrate to apply them.
	candidateIDs := make([]string, len(raw))
	for i, r := range raw {
		candidateIDs[i] = r.DocID
	}
	evidence, err := c.GetByIDs(ctx, vertical, candidateIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*retrieval.Evidence, len(evidence))
	for _, ev := range evidence {
		byID[ev.ChunkID] = ev
	}

	results := make([]ScoredID, 0, len(raw))
	for _, r := range raw {
		if ev, ok := byID[r.DocID]; ok && matchesFilters(ev, filters) {
			results = append(results, ScoredID{ChunkID: r.DocID, Score: r.Score})
		}
	}
	return results, nil
}

// FetchByFilter implements Client using Qdrant's scroll API.
func (c *QdrantClient) FetchByFilter(ctx context.Context, vertical retrieval.Vertical, filters []retrieval.Filter, limit int) ([]string, error) {
	req := &pb.ScrollPoints{
		CollectionName: collectionName(vertical),
		Limit:          ptrUint32(uint32(limit)),
	}
	if len(filters) > 0 {
		req.Filter = toQdrantFilter(filters)
	}

	resp, err := c.points.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}

	ids := make([]string, 0, len(resp.Result))
	for _, p := range resp.Result {
		ids = append(ids, pointID(p.Id))
	}
	return ids, nil
}

// GetByIDs implements Client using Qdrant's point retrieve API.
func (c *QdrantClient) GetByIDs(ctx context.Context, vertical retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}

	resp, err := c.points.Get(ctx, &pb.GetPoints{
		CollectionName: collectionName(vertical),
		Ids:            pointIDs,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get: %w", err)
	}

	results := make([]*retrieval.Evidence, 0, len(resp.Result))
	for _, p := range resp.Result {
		results = append(results, evidenceFromPayload(vertical, pointID(p.Id), p.Payload))
	}
	return results, nil
}

// Close closes the gRPC connection.
func (c *QdrantClient) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, idx := range c.bm25 {
		_ = idx.Close()
	}
	return c.conn.Close()
}

var _ Client = (*QdrantClient)(nil)

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	return id.GetUuid()
}

func ptrUint32(v uint32) *uint32 { return &v }

// toQdrantFilter translates the plan's forced filters (spec.md §6's
// {must: [{key, match|range}]} contract) into Qdrant's condition tree.
func toQdrantFilter(filters []retrieval.Filter) *pb.Filter {
	conditions := make([]*pb.Condition, 0, len(filters))
	for _, f := range filters {
		fc := &pb.FieldCondition{Key: f.Key}
		switch {
		case f.Match != nil:
			fc.Match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: *f.Match}}
		case f.GTE != nil || f.LTE != nil:
			r := &pb.Range{}
			if f.GTE != nil {
				if v, err := parseRangeValue(*f.GTE); err == nil {
					r.Gte = &v
				}
			}
			if f.LTE != nil {
				if v, err := parseRangeValue(*f.LTE); err == nil {
					r.Lte = &v
				}
			}
			fc.Range = r
		default:
			continue
		}
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: fc},
		})
	}
	return &pb.Filter{Must: conditions}
}

func parseRangeValue(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}

// evidenceFromPayload reconstructs Evidence from a Qdrant point payload.
// Only the fields the plan's filters and the reranker need are extracted;
// anything else lands in Extras.
func evidenceFromPayload(vertical retrieval.Vertical, chunkID string, payload map[string]*pb.Value) *retrieval.Evidence {
	ev := &retrieval.Evidence{
		ChunkID:  chunkID,
		Vertical: vertical,
		Metadata: retrieval.EvidenceMetadata{Extras: make(map[string]string)},
	}

	for k, v := range payload {
		s := payloadString(v)
		switch k {
		case "text":
			ev.Text = s
		case "doc_id":
			ev.DocID = s
		case "section_type":
			ev.Metadata.SectionType = s
		case "go_number":
			ev.Metadata.GONumber = s
		case "department":
			ev.Metadata.Department = s
		default:
			ev.Metadata.Extras[k] = s
		}
	}
	return ev
}

func payloadString(v *pb.Value) string {
	if v == nil {
		return ""
	}
	switch k := v.Kind.(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return fmt.Sprintf("%d", k.IntegerValue)
	case *pb.Value_DoubleValue:
		return fmt.Sprintf("%g", k.DoubleValue)
	case *pb.Value_BoolValue:
		return fmt.Sprintf("%t", k.BoolValue)
	default:
		return ""
	}
}
