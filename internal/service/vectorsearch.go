package service

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/embedder"
	"github.com/colloquyhq/retrieval/internal/telemetry"
)

const (
	defaultSimilarityThreshold = 0.55

	candidateMultiplier = 4
	minCandidates       = 20
	maxCandidates       = 200
)

// VectorChunkRepository defines the repository interface for nearest-neighbor
// chunk lookups.
type VectorChunkRepository interface {
	NearestChunks(ctx context.Context, embedding []float32, providerID string, limit int) ([]*domain.ChunkMatch, error)
}

// ProviderRepositoryInterface defines the repository interface for provider
// configuration reads.
type ProviderRepositoryInterface interface {
	ListEmbeddingProviders(ctx context.Context) ([]*domain.EmbeddingProvider, error)
	ListLLMProviders(ctx context.Context) ([]*domain.LLMProvider, error)
}

// EmbedderFactory builds an embedding client for a provider config.
type EmbedderFactory func(cfg *domain.EmbeddingProvider) (embedder.Client, error)

// VectorSearchInput represents input for a semantic search pass.
type VectorSearchInput struct {
	Query     string
	SpaceID   string
	Types     []domain.DocumentType
	Limit     int
	Threshold *float64
}

// VectorMatch is the best chunk for one parent document.
type VectorMatch struct {
	Ref            domain.DocumentRef
	ChunkID        string
	ChunkIndex     int
	Content        string
	Similarity     float64
	SpaceID        string
	SpaceSlug      string
	Slug           string
	Title          string
	AuthorID       string
	AuthorName     string
	Tags           []string
	VoteScore      int
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// VectorSearchService embeds queries and searches the chunk store.
type VectorSearchService struct {
	chunks    VectorChunkRepository
	providers ProviderRepositoryInterface
	factory   EmbedderFactory

	mu      sync.Mutex
	clients map[string]embedder.Client
}

// NewVectorSearchService creates a new VectorSearchService instance.
func NewVectorSearchService(
	chunks VectorChunkRepository,
	providers ProviderRepositoryInterface,
	factory EmbedderFactory,
) *VectorSearchService {
	return &VectorSearchService{
		chunks:    chunks,
		providers: providers,
		factory:   factory,
		clients:   make(map[string]embedder.Client),
	}
}

// Search runs one semantic pass. Provider trouble degrades to an empty result
// so callers can fall back to the keyword engine; it is logged and captured,
// never propagated.
func (s *VectorSearchService) Search(ctx context.Context, input VectorSearchInput) ([]*VectorMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "VectorSearchService.Search", telemetry.SpanAttributes{
		SpaceID:   input.SpaceID,
		Operation: "vector_search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return []*VectorMatch{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	cfg, client, err := s.currentClient(ctx)
	if err != nil {
		return s.degrade(ctx, "vector search: no usable provider", err)
	}
	if client == nil {
		return []*VectorMatch{}, nil
	}

	vectors, err := client.Embed(ctx, []string{query})
	if err != nil {
		return s.degrade(ctx, "vector search: query embedding failed", err)
	}
	if len(vectors) != 1 {
		return []*VectorMatch{}, nil
	}

	candidateLimit := limit * candidateMultiplier
	if candidateLimit < minCandidates {
		candidateLimit = minCandidates
	}
	if candidateLimit > maxCandidates {
		candidateLimit = maxCandidates
	}

	matches, err := s.chunks.NearestChunks(ctx, vectors[0], cfg.ID, candidateLimit)
	if err != nil {
		return s.degrade(ctx, "vector search: chunk lookup failed", err)
	}

	threshold := defaultSimilarityThreshold
	if cfg.SimilarityThreshold > 0 {
		threshold = cfg.SimilarityThreshold
	}
	if input.Threshold != nil {
		threshold = *input.Threshold
	}

	grouped := groupBestPerParent(matches, threshold)

	if input.SpaceID != "" {
		filtered := grouped[:0]
		for _, m := range grouped {
			if m.SpaceID == input.SpaceID {
				filtered = append(filtered, m)
			}
		}
		grouped = filtered
	}
	if len(input.Types) > 0 {
		filtered := grouped[:0]
		for _, m := range grouped {
			if typeAllowed(m.Ref.Type, input.Types) {
				filtered = append(filtered, m)
			}
		}
		grouped = filtered
	}

	return grouped, nil
}

func typeAllowed(t domain.DocumentType, allowed []domain.DocumentType) bool {
	for _, a := range allowed {
		if t == a {
			return true
		}
	}
	return false
}

func (s *VectorSearchService) degrade(ctx context.Context, msg string, err error) ([]*VectorMatch, error) {
	log.Printf("%s: %v", msg, err)
	telemetry.CaptureError(ctx, err)
	return []*VectorMatch{}, nil
}

// currentClient resolves the active embedding provider and a cached client
// for it. A nil client with nil error means no provider is configured.
func (s *VectorSearchService) currentClient(ctx context.Context) (*domain.EmbeddingProvider, embedder.Client, error) {
	list, err := s.providers.ListEmbeddingProviders(ctx)
	if err != nil {
		return nil, nil, err
	}
	cfg := domain.PickEmbeddingProvider(list)
	if cfg == nil {
		return nil, nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[cfg.ID]; ok {
		return cfg, client, nil
	}

	client, err := s.factory(cfg)
	if err != nil {
		return nil, nil, err
	}
	s.clients[cfg.ID] = client
	return cfg, client, nil
}

// groupBestPerParent keeps the highest-similarity chunk per parent document,
// preserving first-seen order, and drops matches under the threshold.
func groupBestPerParent(matches []*domain.ChunkMatch, threshold float64) []*VectorMatch {
	best := make(map[string]*domain.ChunkMatch, len(matches))
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Similarity() < threshold {
			continue
		}
		key := m.Parent.String()
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = m
		} else if m.Similarity() > existing.Similarity() {
			best[key] = m
		}
	}

	out := make([]*VectorMatch, 0, len(best))
	for _, key := range order {
		m := best[key]
		out = append(out, &VectorMatch{
			Ref:            m.Parent,
			ChunkID:        m.ChunkID,
			ChunkIndex:     m.ChunkIndex,
			Content:        m.Content,
			Similarity:     m.Similarity(),
			SpaceID:        m.SpaceID,
			SpaceSlug:      m.SpaceSlug,
			Slug:           m.Slug,
			Title:          m.Title,
			AuthorID:       m.AuthorID,
			AuthorName:     m.AuthorName,
			Tags:           m.Tags,
			VoteScore:      m.VoteScore,
			LastActivityAt: m.LastActivityAt,
			UpdatedAt:      m.UpdatedAt,
		})
	}
	return out
}
