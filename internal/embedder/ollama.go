package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// ollamaClient speaks the Ollama embeddings API, which has no batch support:
// one request per text, fanned out through a bounded pool. Results are
// written by input index so ordering is preserved regardless of completion
// order.
type ollamaClient struct {
	cfg            *domain.EmbeddingProvider
	http           *http.Client
	pool           *ants.Pool
	maxRetries     int
	retryBaseDelay time.Duration
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error"`
}

func newOllamaClient(cfg *domain.EmbeddingProvider, opts Options) (*ollamaClient, error) {
	if cfg.Endpoint == "" {
		return nil, domain.NewConfigurationError("ollama embedding provider requires an endpoint", nil)
	}

	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, domain.NewConfigurationError("ollama worker pool creation failed", err)
	}

	return &ollamaClient{
		cfg:            cfg,
		http:           opts.HTTPClient,
		pool:           pool,
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
	}, nil
}

func (c *ollamaClient) Provider() *domain.EmbeddingProvider {
	return c.cfg
}

func (c *ollamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup

	for i, text := range texts {
		i, text := i, text
		wg.Add(1)
		submitErr := c.pool.Submit(func() {
			defer wg.Done()
			errs[i] = retryRateLimited(ctx, func() error {
				vec, err := c.embedOne(ctx, truncate(text, c.cfg.Model))
				if err != nil {
					return err
				}
				vectors[i] = vec
				return nil
			}, c.maxRetries, c.retryBaseDelay)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = domain.NewAPIError("ollama worker submit failed", submitErr)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := checkDimensions(c.cfg, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *ollamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, domain.NewAPIError("ollama request encoding failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAPIError("ollama request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewAPIError("ollama request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAPIError("ollama response read failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus("ollama", resp.StatusCode, string(raw))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewAPIError("ollama response decoding failed", err)
	}
	if parsed.Error != "" {
		return nil, domain.NewAPIError("ollama reported: "+parsed.Error, nil)
	}

	return parsed.Embedding, nil
}
