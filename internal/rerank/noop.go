package rerank

import "context"

// NoOpCrossEncoder returns passages in their original order with decreasing
// scores. Used when no cross-encoder model is configured, mirroring the
// teacher's NoOpReranker fallback.
type NoOpCrossEncoder struct{}

// Score assigns decreasing scores 1.0, 0.99, 0.98, ... preserving input order.
func (NoOpCrossEncoder) Score(_ context.Context, _ string, passages []string) ([]CrossEncoderResult, error) {
	out := make([]CrossEncoderResult, len(passages))
	for i := range passages {
		out[i] = CrossEncoderResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	return out, nil
}

var _ CrossEncoder = NoOpCrossEncoder{}
