package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/colloquyhq/retrieval/internal/domain"
)

const defaultCohereEndpoint = "https://api.cohere.com"

// cohereClient speaks the Cohere v2 batch embed API. Vectors arrive in input
// order but wrapped in a nested envelope keyed by embedding type.
type cohereClient struct {
	cfg            *domain.EmbeddingProvider
	http           *http.Client
	endpoint       string
	maxRetries     int
	retryBaseDelay time.Duration
}

type cohereEmbedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message"`
}

func newCohereClient(cfg *domain.EmbeddingProvider, opts Options) (*cohereClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("cohere embedding provider requires an api key", nil)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultCohereEndpoint
	}

	return &cohereClient{
		cfg:            cfg,
		http:           opts.HTTPClient,
		endpoint:       endpoint,
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
	}, nil
}

func (c *cohereClient) Provider() *domain.EmbeddingProvider {
	return c.cfg
}

func (c *cohereClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, c.cfg.Model)
	}

	var vectors [][]float32
	err := retryRateLimited(ctx, func() error {
		var callErr error
		vectors, callErr = c.embedOnce(ctx, input)
		return callErr
	}, c.maxRetries, c.retryBaseDelay)
	if err != nil {
		return nil, err
	}

	if err := checkDimensions(c.cfg, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *cohereClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{
		Model:          c.cfg.Model,
		Texts:          texts,
		InputType:      "search_document",
		EmbeddingTypes: []string{"float"},
	})
	if err != nil {
		return nil, domain.NewAPIError("cohere request encoding failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v2/embed", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAPIError("cohere request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewAPIError("cohere request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAPIError("cohere response read failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus("cohere", resp.StatusCode, string(raw))
	}

	var parsed cohereEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewAPIError("cohere response decoding failed", err)
	}
	if len(parsed.Embeddings.Float) != len(texts) {
		return nil, domain.NewAPIError(fmt.Sprintf(
			"cohere returned %d embeddings for %d inputs", len(parsed.Embeddings.Float), len(texts)), nil)
	}

	return parsed.Embeddings.Float, nil
}
