package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// ChunkRepository handles persistence of embedded document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes the current generation for a document and inserts the
// new one. Callers run this inside a transaction so no partial overlap is
// ever observable.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, parent domain.DocumentRef, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE doc_type = $1 AND doc_id = $2`,
		parent.Type, parent.ID,
	)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, doc_type, doc_id, chunk_index, content, token_count, embedding,
				 provider_id, embedded_at, source_type, source_id, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID,
			parent.Type,
			parent.ID,
			c.ChunkIndex,
			c.Content,
			c.TokenCount,
			pgvector.NewVector(c.Embedding),
			c.ProviderID,
			c.EmbeddedAt,
			c.SourceType,
			c.SourceID,
			c.Position,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *ChunkRepository) DeleteByParent(ctx context.Context, parent domain.DocumentRef) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE doc_type = $1 AND doc_id = $2`,
		parent.Type, parent.ID,
	)
	return err
}

// NearestChunks returns the closest chunks for one provider's vector space by
// ascending cosine distance, joined with the parent snapshot.
func (r *ChunkRepository) NearestChunks(ctx context.Context, embedding []float32, providerID string, limit int) ([]*domain.ChunkMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.doc_type, c.doc_id, c.chunk_index, c.content,
		        c.embedding <=> $1 AS distance,
		        d.space_id, d.space_slug, d.slug, d.title, d.author_id, d.author_name,
		        d.tags, d.vote_score, d.last_activity_at, d.updated_at
		 FROM document_chunks c
		 JOIN documents d ON d.doc_type = c.doc_type AND d.doc_id = c.doc_id
		 WHERE c.provider_id = $2 AND c.embedding IS NOT NULL
		 ORDER BY c.embedding <=> $1 ASC
		 LIMIT $3`,
		pgvector.NewVector(embedding), providerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunkMatches(rows, true)
}

// SearchChunksLexical is the substring fallback over chunk content used by
// answer synthesis when no semantic signal is available. Distance is zero so
// every match counts as fully similar.
func (r *ChunkRepository) SearchChunksLexical(ctx context.Context, query, spaceID string, limit int) ([]*domain.ChunkMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	args := []any{query, limit}
	where := "c.content ILIKE '%' || $1 || '%'"
	if spaceID != "" {
		args = append(args, spaceID)
		where += " AND d.space_id = $3"
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.doc_type, c.doc_id, c.chunk_index, c.content,
		        d.space_id, d.space_slug, d.slug, d.title, d.author_id, d.author_name,
		        d.tags, d.vote_score, d.last_activity_at, d.updated_at
		 FROM document_chunks c
		 JOIN documents d ON d.doc_type = c.doc_type AND d.doc_id = c.doc_id
		 WHERE `+where+`
		 ORDER BY d.last_activity_at DESC, c.chunk_index ASC
		 LIMIT $2`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunkMatches(rows, false)
}

func scanChunkMatches(rows pgx.Rows, withDistance bool) ([]*domain.ChunkMatch, error) {
	var out []*domain.ChunkMatch
	for rows.Next() {
		var m domain.ChunkMatch
		var err error
		if withDistance {
			err = rows.Scan(&m.ChunkID, &m.Parent.Type, &m.Parent.ID, &m.ChunkIndex,
				&m.Content, &m.Distance, &m.SpaceID, &m.SpaceSlug, &m.Slug,
				&m.Title, &m.AuthorID, &m.AuthorName, &m.Tags, &m.VoteScore,
				&m.LastActivityAt, &m.UpdatedAt)
		} else {
			err = rows.Scan(&m.ChunkID, &m.Parent.Type, &m.Parent.ID, &m.ChunkIndex,
				&m.Content, &m.SpaceID, &m.SpaceSlug, &m.Slug,
				&m.Title, &m.AuthorID, &m.AuthorName, &m.Tags, &m.VoteScore,
				&m.LastActivityAt, &m.UpdatedAt)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
