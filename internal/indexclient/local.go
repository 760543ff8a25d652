package indexclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/store"
)

// LocalClient is an in-process Client backed by one coder/hnsw graph and
// one Bleve BM25 index per vertical, with chunk payloads held in memory.
// It is the reference implementation: no network hop, used for tests and
// for single-binary deployments that don't warrant a standalone vector DB.
type LocalClient struct {
	mu          sync.RWMutex
	collections map[retrieval.Vertical]*localCollection
	dims        int
}

type localCollection struct {
	mu      sync.RWMutex
	vectors *store.HNSWStore
	bm25    *store.BleveBM25Index
	docs    map[string]*retrieval.Evidence
}

// NewLocalClient creates an empty local client for the given verticals.
// dims must equal embed.Dimensions; every Seed call validates against it.
func NewLocalClient(verticals []retrieval.Vertical, dims int) (*LocalClient, error) {
	c := &LocalClient{
		collections: make(map[retrieval.Vertical]*localCollection, len(verticals)),
		dims:        dims,
	}

	for _, v := range verticals {
		vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
		if err != nil {
			return nil, fmt.Errorf("create vector store for %s: %w", v, err)
		}
		bm25, err := store.NewBleveBM25Index("", store.DefaultBM25Config())
		if err != nil {
			return nil, fmt.Errorf("create bm25 index for %s: %w", v, err)
		}
		c.collections[v] = &localCollection{
			vectors: vectors,
			bm25:    bm25,
			docs:    make(map[string]*retrieval.Evidence),
		}
	}

	return c, nil
}

// Seed inserts evidence into a vertical's vector and BM25 indexes. Not part
// of the Client interface — it exists only so tests and fixture loaders can
// populate a LocalClient, since offline ingestion is out of scope for the
// retrieval core itself.
func (c *LocalClient) Seed(ctx context.Context, vertical retrieval.Vertical, ev *retrieval.Evidence, vector []float32) error {
	coll, err := c.collection(vertical)
	if err != nil {
		return err
	}

	if len(vector) > 0 {
		if err := coll.vectors.Add(ctx, []string{ev.ChunkID}, [][]float32{vector}); err != nil {
			return err
		}
	}
	if err := coll.bm25.Index(ctx, []*store.Document{{ID: ev.ChunkID, Content: ev.Text}}); err != nil {
		return err
	}

	coll.mu.Lock()
	coll.docs[ev.ChunkID] = ev
	coll.mu.Unlock()
	return nil
}

func (c *LocalClient) collection(vertical retrieval.Vertical) (*localCollection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coll, ok := c.collections[vertical]
	if !ok {
		return nil, fmt.Errorf("unknown vertical %q", vertical)
	}
	return coll, nil
}

// KNN implements Client.
func (c *LocalClient) KNN(ctx context.Context, vertical retrieval.Vertical, vector []float32, topK int, filters []retrieval.Filter) ([]ScoredID, error) {
	coll, err := c.collection(vertical)
	if err != nil {
		return nil, err
	}

	// Over-fetch, then filter in process: the in-memory HNSW graph carries
	// no payload index, so filtering happens after the ANN pass.
	raw, err := coll.vectors.Search(ctx, vector, topK*4+topK)
	if err != nil {
		return nil, err
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()

	results := make([]ScoredID, 0, topK)
	for _, r := range raw {
		if ev, ok := coll.docs[r.ID]; ok && matchesFilters(ev, filters) {
			results = append(results, ScoredID{ChunkID: r.ID, Score: float64(r.Score)})
			if len(results) >= topK {
				break
			}
		}
	}
	return results, nil
}

// BM25 implements Client.
func (c *LocalClient) BM25(ctx context.Context, vertical retrieval.Vertical, query string, topK int, filters []retrieval.Filter) ([]ScoredID, error) {
	coll, err := c.collection(vertical)
	if err != nil {
		return nil, err
	}

	raw, err := coll.bm25.Search(ctx, query, topK*4+topK)
	if err != nil {
		return nil, err
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()

	results := make([]ScoredID, 0, topK)
	for _, r := range raw {
		if ev, ok := coll.docs[r.DocID]; ok && matchesFilters(ev, filters) {
			results = append(results, ScoredID{ChunkID: r.DocID, Score: r.Score})
			if len(results) >= topK {
				break
			}
		}
	}
	return results, nil
}

// FetchByFilter implements Client.
func (c *LocalClient) FetchByFilter(ctx context.Context, vertical retrieval.Vertical, filters []retrieval.Filter, limit int) ([]string, error) {
	coll, err := c.collection(vertical)
	if err != nil {
		return nil, err
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()

	ids := make([]string, 0, limit)
	for id, ev := range coll.docs {
		if matchesFilters(ev, filters) {
			ids = append(ids, id)
			if len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// GetByIDs implements Client.
func (c *LocalClient) GetByIDs(ctx context.Context, vertical retrieval.Vertical, ids []string) ([]*retrieval.Evidence, error) {
	coll, err := c.collection(vertical)
	if err != nil {
		return nil, err
	}

	coll.mu.RLock()
	defer coll.mu.RUnlock()

	results := make([]*retrieval.Evidence, 0, len(ids))
	for _, id := range ids {
		if ev, ok := coll.docs[id]; ok {
			results = append(results, ev)
		}
	}
	return results, nil
}

// Close releases all per-vertical indexes.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, coll := range c.collections {
		_ = coll.bm25.Close()
		_ = coll.vectors.Close()
	}
	return nil
}

var _ Client = (*LocalClient)(nil)
