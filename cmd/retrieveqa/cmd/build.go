package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nithin8919/policyretrieval/internal/clauseindex"
	"github.com/nithin8919/policyretrieval/internal/config"
	"github.com/nithin8919/policyretrieval/internal/embed"
	"github.com/nithin8919/policyretrieval/internal/engine"
	"github.com/nithin8919/policyretrieval/internal/indexclient"
	"github.com/nithin8919/policyretrieval/internal/internet"
	"github.com/nithin8919/policyretrieval/internal/rerank"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/telemetry"
	"github.com/nithin8919/policyretrieval/internal/understanding"
)

// collectionVerticals is every vertical an index backend holds documents
// for. Internet results never come from the index client — they come from
// the internet leg — so it is excluded here.
var collectionVerticals = []retrieval.Vertical{
	retrieval.VerticalLegal,
	retrieval.VerticalGO,
	retrieval.VerticalJudicial,
	retrieval.VerticalData,
	retrieval.VerticalSchemes,
}

// builtEngine bundles an Engine with the resources New doesn't take
// ownership of, so the caller can close everything in the right order.
type builtEngine struct {
	engine *engine.Engine
	index  indexclient.Client
}

func (b *builtEngine) Close() {
	b.engine.Close()
	if b.index != nil {
		_ = b.index.Close()
	}
}

// buildEngine wires an Engine from cfg the way a long-lived retrieveqa
// deployment would: index client per cfg.Index.Backend, embedder per
// cfg.Embedding.Provider, LLM rewriter, cross-encoder (HTTP if an endpoint
// is configured, otherwise a no-op passthrough), and the internet leg if
// enabled.
func buildEngine(ctx context.Context, cfg *config.Config) (*builtEngine, error) {
	index, err := buildIndexClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build index client: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embedding.Provider), cfg.Embedding.Model)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	var internetClient *internet.Client
	if cfg.Internet.Enabled && cfg.Internet.Host != "" {
		internetClient = internet.NewClient(internet.Config{
			Host:       cfg.Internet.Host,
			APIKey:     cfg.Internet.APIKey,
			TopN:       cfg.Internet.TopN,
			MaxRetries: cfg.Internet.MaxRetries,
		})
	}

	guards := engine.NewGuards(index, embedder, internetClient)

	crossEncoder, err := buildCrossEncoder(ctx, cfg)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("build cross-encoder: %w", err)
	}

	coordinator, err := rerank.NewCoordinator(crossEncoder, guards.Embedder, cfg.CrossEncoder.PoolSize)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("build rerank coordinator: %w", err)
	}

	rewriter := understanding.NewRewriter(cfg.Rewriter.APIKey, cfg.Rewriter.Model)

	var opts []engine.Option
	opts = append(opts, engine.WithConfig(engine.Config{
		EnableInternet:    cfg.Internet.Enabled,
		IncludeSuperseded: cfg.Engine.IncludeSuperseded,
		CacheSize:         cfg.Engine.CacheSize,
		HardMargin:        engine.DefaultHardMargin,
		InternetTopN:      cfg.Internet.TopN,
	}))

	if cfg.ClauseIndex.Enabled {
		clauseIdx, err := clauseindex.Open(cfg.ClauseIndex.Path)
		if err != nil {
			coordinator.Close()
			_ = index.Close()
			return nil, fmt.Errorf("open clause index: %w", err)
		}
		opts = append(opts, engine.WithClauseIndex(clauseIdx))
	}

	if cfg.Engine.EnableMetrics {
		opts = append(opts, engine.WithMetrics(telemetry.NewQueryMetrics(nil)))
	}

	e, err := engine.New(guards, rewriter, coordinator, opts...)
	if err != nil {
		coordinator.Close()
		_ = index.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &builtEngine{engine: e, index: index}, nil
}

func buildIndexClient(cfg *config.Config) (indexclient.Client, error) {
	switch cfg.Index.Backend {
	case config.IndexBackendQdrant:
		client, err := indexclient.NewQdrantClient(cfg.Index.QdrantHost, collectionVerticals)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		local, err := indexclient.NewLocalClient(collectionVerticals, embed.Dimensions)
		if err != nil {
			return nil, err
		}
		if cfg.Index.LocalSeedPath != "" {
			if err := seedLocalClient(local, cfg.Index.LocalSeedPath); err != nil {
				return nil, fmt.Errorf("seed local index: %w", err)
			}
		}
		return local, nil
	}
}

func buildCrossEncoder(ctx context.Context, cfg *config.Config) (rerank.CrossEncoder, error) {
	if cfg.CrossEncoder.Endpoint == "" {
		return rerank.NoOpCrossEncoder{}, nil
	}
	inner, err := rerank.NewHTTPCrossEncoder(ctx, rerank.HTTPCrossEncoderConfig{
		Endpoint: cfg.CrossEncoder.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return rerank.NewGuardedCrossEncoder(inner), nil
}

// seedFixture is the on-disk shape for LocalSeedPath: a flat JSON array of
// evidence documents, embedded and inserted at startup. Offline ingestion
// pipelines are out of scope for the retrieval core itself, so this is the
// only way to populate the local backend outside of tests.
type seedFixture struct {
	ChunkID  string                     `json:"chunk_id"`
	DocID    string                     `json:"doc_id"`
	Vertical retrieval.Vertical         `json:"vertical"`
	Text     string                     `json:"text"`
	Metadata retrieval.EvidenceMetadata `json:"metadata"`
}

func seedLocalClient(local *indexclient.LocalClient, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fixtures []seedFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	embedder := embed.NewStaticEmbedder768()
	ctx := context.Background()
	for _, f := range fixtures {
		vec, err := embedder.Embed(ctx, f.Text)
		if err != nil {
			return fmt.Errorf("embed seed chunk %s: %w", f.ChunkID, err)
		}
		ev := &retrieval.Evidence{
			ChunkID:  f.ChunkID,
			DocID:    f.DocID,
			Vertical: f.Vertical,
			Text:     f.Text,
			Metadata: f.Metadata,
		}
		if err := local.Seed(ctx, f.Vertical, ev, vec); err != nil {
			return fmt.Errorf("seed chunk %s: %w", f.ChunkID, err)
		}
	}
	return nil
}
