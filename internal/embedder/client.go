// Package embedder is the sole translation boundary between the retrieval
// core and embedding backends. Each provider type has its own adapter for its
// own wire shape; nothing outside this package sees a backend request or
// response.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/colloquyhq/retrieval/internal/domain"
)

const (
	// charsPerToken mirrors the chunker's estimate; input caps are token
	// caps, enforced here in characters.
	charsPerToken = 4

	defaultMaxInputTokens = 8192
	truncationMarker      = " [truncated]"

	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultCallTimeout    = 30 * time.Second
	defaultPoolSize       = 4
)

// modelInputTokens caps input length per known model. Unknown models get the
// default cap.
var modelInputTokens = map[string]int{
	"text-embedding-3-small": 8191,
	"text-embedding-3-large": 8191,
	"text-embedding-ada-002": 8191,
	"embed-english-v3.0":     512,
	"embed-multilingual-v3.0": 512,
	"nomic-embed-text":       8192,
	"mxbai-embed-large":      512,
}

// Client generates embeddings for batches of text. Implementations preserve
// input order and are safe for concurrent use.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Provider() *domain.EmbeddingProvider
}

// Options tunes adapter behavior; zero values take defaults.
type Options struct {
	HTTPClient     *http.Client
	MaxRetries     int
	RetryBaseDelay time.Duration
	PoolSize       int // concurrency for providers without batch support
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultCallTimeout}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}
	if o.PoolSize <= 0 {
		o.PoolSize = defaultPoolSize
	}
	return o
}

// New builds the adapter for cfg's provider type. An unrecognized type is a
// ConfigurationError at construction, not a runtime surprise later.
func New(cfg *domain.EmbeddingProvider, opts Options) (Client, error) {
	if cfg == nil {
		return nil, domain.NewConfigurationError("embedding provider config is nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch cfg.Type {
	case domain.ProviderTypeOpenAI:
		return newOpenAIClient(cfg, opts)
	case domain.ProviderTypeCohere:
		return newCohereClient(cfg, opts)
	case domain.ProviderTypeOllama:
		return newOllamaClient(cfg, opts)
	default:
		return nil, domain.NewConfigurationError(
			fmt.Sprintf("unrecognized embedding provider type %q", cfg.Type), nil)
	}
}

// truncate caps text at the model's input limit, appending a marker so the
// cut is visible in stored chunks and logs.
func truncate(text, model string) string {
	cap := modelInputTokens[model]
	if cap <= 0 {
		cap = defaultMaxInputTokens
	}
	maxChars := cap * charsPerToken

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	keep := maxChars - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRight(string(runes[:keep]), " ") + truncationMarker
}

// classifyStatus maps a non-2xx backend response onto the provider error
// taxonomy.
func classifyStatus(provider string, status int, body string) error {
	detail := strings.TrimSpace(body)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	msg := fmt.Sprintf("%s returned status %d: %s", provider, status, detail)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return domain.NewConfigurationError(msg, nil)
	case status == http.StatusTooManyRequests:
		return domain.NewRateLimitError(msg, nil)
	default:
		return domain.NewAPIError(msg, nil)
	}
}

// checkDimensions verifies every vector matches the provider's declared
// dimensionality.
func checkDimensions(cfg *domain.EmbeddingProvider, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != cfg.Dimensions {
			return domain.NewAPIError(fmt.Sprintf(
				"embedding %d has %d dimensions, provider %s declares %d",
				i, len(v), cfg.ID, cfg.Dimensions), nil)
		}
	}
	return nil
}
