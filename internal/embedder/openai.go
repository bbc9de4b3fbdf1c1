package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// openaiClient speaks the OpenAI batch embeddings API. Results come back
// index-tagged and are re-sorted explicitly; the API does not promise order.
type openaiClient struct {
	cfg            *domain.EmbeddingProvider
	api            *openai.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

func newOpenAIClient(cfg *domain.EmbeddingProvider, opts Options) (*openaiClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("openai embedding provider requires an api key", nil)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	clientCfg.HTTPClient = opts.HTTPClient

	return &openaiClient{
		cfg:            cfg,
		api:            openai.NewClientWithConfig(clientCfg),
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
	}, nil
}

func (c *openaiClient) Provider() *domain.EmbeddingProvider {
	return c.cfg
}

func (c *openaiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, c.cfg.Model)
	}

	var resp openai.EmbeddingResponse
	err := retryRateLimited(ctx, func() error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: input,
			Model: openai.EmbeddingModel(c.cfg.Model),
		})
		if callErr != nil {
			return classifyOpenAIError(callErr)
		}
		return nil
	}, c.maxRetries, c.retryBaseDelay)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(input) {
		return nil, domain.NewAPIError(fmt.Sprintf(
			"openai returned %d embeddings for %d inputs", len(resp.Data), len(input)), nil)
	}

	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, domain.NewAPIError(fmt.Sprintf(
				"openai embedding indexes are not contiguous at %d", i), nil)
		}
		vectors[i] = d.Embedding
	}

	if err := checkDimensions(c.cfg, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return domain.NewAPIError("openai request failed", err)
}
