package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockCrossEncoderServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewHTTPCrossEncoder_FailsHealthCheckOnUnreachable(t *testing.T) {
	_, err := NewHTTPCrossEncoder(context.Background(), HTTPCrossEncoderConfig{Endpoint: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNewHTTPCrossEncoder_SkipsHealthCheck(t *testing.T) {
	e, err := NewHTTPCrossEncoder(context.Background(), HTTPCrossEncoderConfig{
		Endpoint:        "http://127.0.0.1:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestHTTPCrossEncoder_ScoreParsesResults(t *testing.T) {
	srv := mockCrossEncoderServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(httpRerankResponse{
			Results: []struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{
				{Index: 1, Score: 0.9},
				{Index: 0, Score: 0.4},
			},
		})
	})

	e, err := NewHTTPCrossEncoder(context.Background(), HTTPCrossEncoderConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	results, err := e.Score(context.Background(), "query", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 0.9, results[0].Score)
}

func TestHTTPCrossEncoder_ScoreEmptyPassagesIsNoOp(t *testing.T) {
	e, err := NewHTTPCrossEncoder(context.Background(), HTTPCrossEncoderConfig{SkipHealthCheck: true})
	require.NoError(t, err)

	results, err := e.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHTTPCrossEncoder_ScoreErrorsOnServerFailure(t *testing.T) {
	srv := mockCrossEncoderServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	e, err := NewHTTPCrossEncoder(context.Background(), HTTPCrossEncoderConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = e.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}
