package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// ProviderRepository reads provider configuration records. CRUD over these
// rows belongs to the admin surface; this core only selects.
type ProviderRepository struct {
	db dbtx
}

func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{db: pool}
}

func (r *ProviderRepository) ListEmbeddingProviders(ctx context.Context) ([]*domain.EmbeddingProvider, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, provider_type, model, dimensions, chunk_size_tokens, chunk_overlap,
		        similarity_threshold, api_key, endpoint, enabled, created_at, updated_at
		 FROM embedding_providers
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EmbeddingProvider
	for rows.Next() {
		var p domain.EmbeddingProvider
		var apiKey, endpoint *string
		if err := rows.Scan(&p.ID, &p.Type, &p.Model, &p.Dimensions, &p.ChunkSizeTokens,
			&p.ChunkOverlap, &p.SimilarityThreshold, &apiKey, &endpoint, &p.Enabled,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if apiKey != nil {
			p.APIKey = *apiKey
		}
		if endpoint != nil {
			p.Endpoint = *endpoint
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *ProviderRepository) ListLLMProviders(ctx context.Context) ([]*domain.LLMProvider, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, provider_type, model, api_key, endpoint, temperature, max_tokens,
		        enabled, is_default, created_at, updated_at
		 FROM llm_providers
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LLMProvider
	for rows.Next() {
		var p domain.LLMProvider
		var apiKey, endpoint *string
		if err := rows.Scan(&p.ID, &p.Type, &p.Model, &apiKey, &endpoint,
			&p.Temperature, &p.MaxTokens, &p.Enabled, &p.IsDefault,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if apiKey != nil {
			p.APIKey = *apiKey
		}
		if endpoint != nil {
			p.Endpoint = *endpoint
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
