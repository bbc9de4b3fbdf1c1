package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
)

type openaiWireEmbedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openaiWireResponse struct {
	Object string                `json:"object"`
	Data   []openaiWireEmbedding `json:"data"`
	Model  string                `json:"model"`
}

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testProvider(domain.ProviderTypeOpenAI)
	cfg.Endpoint = srv.URL + "/v1"

	client, err := New(cfg, Options{RetryBaseDelay: 1})
	require.NoError(t, err)
	return client, srv
}

func TestOpenAI_ReordersIndexTaggedResults(t *testing.T) {
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		// Deliberately out of order; the client must re-sort by index.
		json.NewEncoder(w).Encode(openaiWireResponse{
			Object: "list",
			Data: []openaiWireEmbedding{
				{Object: "embedding", Index: 1, Embedding: []float32{4, 5, 6}},
				{Object: "embedding", Index: 0, Embedding: []float32{1, 2, 3}},
			},
			Model: "test-model",
		})
	})

	vectors, err := client.Embed(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 2, 3}, vectors[0])
	assert.Equal(t, []float32{4, 5, 6}, vectors[1])
}

func TestOpenAI_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		json.NewEncoder(w).Encode(openaiWireResponse{
			Object: "list",
			Data:   []openaiWireEmbedding{{Object: "embedding", Index: 0, Embedding: []float32{1, 2, 3}}},
			Model:  "test-model",
		})
	})

	vectors, err := client.Embed(context.Background(), []string{"hello"})

	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAI_BadCredentialsNotRetried(t *testing.T) {
	var calls int32
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	})

	_, err := client.Embed(context.Background(), []string{"hello"})

	assert.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAI_CountMismatch(t *testing.T) {
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiWireResponse{
			Object: "list",
			Data:   []openaiWireEmbedding{{Object: "embedding", Index: 0, Embedding: []float32{1, 2, 3}}},
			Model:  "test-model",
		})
	})

	_, err := client.Embed(context.Background(), []string{"a", "b"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "1 embeddings for 2 inputs")
}

func TestOpenAI_DimensionMismatch(t *testing.T) {
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiWireResponse{
			Object: "list",
			Data:   []openaiWireEmbedding{{Object: "embedding", Index: 0, Embedding: []float32{1, 2}}},
			Model:  "test-model",
		})
	})

	_, err := client.Embed(context.Background(), []string{"a"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestOpenAI_EmptyInput(t *testing.T) {
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	vectors, err := client.Embed(context.Background(), nil)

	assert.NoError(t, err)
	assert.Nil(t, vectors)
}
