//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
)

const testProviderID = "prov-embed-1"

func seedEmbeddingProviderRow(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO embedding_providers (id, provider_type, model, dimensions, enabled)
		 VALUES ($1, 'openai', 'text-embedding-3-small', 1536, TRUE)`,
		testProviderID)
	require.NoError(t, err)
}

// basisVector returns a 1536-dim unit vector along one axis, which makes
// cosine distances between test chunks exact.
func basisVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

// blendVector mixes the first two axes; cosine similarity against axis 0 is
// w0 / sqrt(w0^2 + w1^2).
func blendVector(w0, w1 float32) []float32 {
	v := make([]float32, 1536)
	v[0], v[1] = w0, w1
	return v
}

func testChunk(parent domain.DocumentRef, index int, content string, embedding []float32) domain.Chunk {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Chunk{
		ID:         uuid.NewString(),
		Parent:     parent,
		ChunkIndex: index,
		Content:    content,
		TokenCount: len(content) / 4,
		Embedding:  embedding,
		ProviderID: testProviderID,
		EmbeddedAt: &now,
		SourceType: string(parent.Type),
		SourceID:   parent.ID,
		Position:   domain.ChunkPositionOnly,
		CreatedAt:  now,
	}
}

func countChunks(ctx context.Context, t *testing.T, pool *pgxpool.Pool, parent domain.DocumentRef) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE doc_type = $1 AND doc_id = $2`,
		parent.Type, parent.ID).Scan(&n))
	return n
}

func TestChunkRepository_ReplaceChunks(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	doc := testDocument(domain.DocumentTypeQuestion, "q-1", "title", "body")
	require.NoError(t, docRepo.Upsert(ctx, doc))

	first := []domain.Chunk{
		testChunk(doc.Ref, 0, "first generation chunk 0", basisVector(0)),
		testChunk(doc.Ref, 1, "first generation chunk 1", basisVector(1)),
		testChunk(doc.Ref, 2, "first generation chunk 2", basisVector(2)),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.Ref, first))
	assert.Equal(t, 3, countChunks(ctx, t, pool, doc.Ref))

	// The next generation fully replaces the previous one.
	second := []domain.Chunk{
		testChunk(doc.Ref, 0, "second generation chunk 0", basisVector(3)),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.Ref, second))
	assert.Equal(t, 1, countChunks(ctx, t, pool, doc.Ref))

	var content, position, sourceType string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT content, position, source_type FROM document_chunks WHERE doc_type = $1 AND doc_id = $2`,
		doc.Ref.Type, doc.Ref.ID).Scan(&content, &position, &sourceType))
	assert.Equal(t, "second generation chunk 0", content)
	assert.Equal(t, string(domain.ChunkPositionOnly), position)
	assert.Equal(t, "question", sourceType)
}

func TestChunkRepository_ReplaceChunks_NilClears(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	doc := testDocument(domain.DocumentTypeQuestion, "q-1", "title", "body")
	require.NoError(t, docRepo.Upsert(ctx, doc))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.Ref,
		[]domain.Chunk{testChunk(doc.Ref, 0, "content", basisVector(0))}))

	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.Ref, nil))
	assert.Zero(t, countChunks(ctx, t, pool, doc.Ref))
}

func TestChunkRepository_DeleteByParent(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	keep := testDocument(domain.DocumentTypeQuestion, "q-keep", "title", "body")
	drop := testDocument(domain.DocumentTypeQuestion, "q-drop", "title", "body")
	require.NoError(t, docRepo.Upsert(ctx, keep))
	require.NoError(t, docRepo.Upsert(ctx, drop))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, keep.Ref,
		[]domain.Chunk{testChunk(keep.Ref, 0, "keep", basisVector(0))}))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, drop.Ref,
		[]domain.Chunk{testChunk(drop.Ref, 0, "drop", basisVector(1))}))

	require.NoError(t, chunkRepo.DeleteByParent(ctx, drop.Ref))
	assert.Zero(t, countChunks(ctx, t, pool, drop.Ref))
	assert.Equal(t, 1, countChunks(ctx, t, pool, keep.Ref))
}

func TestChunkRepository_NearestChunks(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	exact := testDocument(domain.DocumentTypeQuestion, "q-exact", "exact match", "body")
	near := testDocument(domain.DocumentTypeQuestion, "q-near", "near match", "body")
	far := testDocument(domain.DocumentTypeQuestion, "q-far", "far match", "body")
	for _, doc := range []*domain.Document{exact, near, far} {
		require.NoError(t, docRepo.Upsert(ctx, doc))
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, exact.Ref,
		[]domain.Chunk{testChunk(exact.Ref, 0, "exact", basisVector(0))}))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, near.Ref,
		[]domain.Chunk{testChunk(near.Ref, 0, "near", blendVector(1, 1))}))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, far.Ref,
		[]domain.Chunk{testChunk(far.Ref, 0, "far", basisVector(1))}))

	matches, err := chunkRepo.NearestChunks(ctx, basisVector(0), testProviderID, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "q-exact", matches[0].Parent.ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-6)
	assert.Equal(t, "q-near", matches[1].Parent.ID)
	assert.InDelta(t, 0.2929, matches[1].Distance, 1e-3)
	assert.Equal(t, "q-far", matches[2].Parent.ID)
	assert.InDelta(t, 1.0, matches[2].Distance, 1e-6)

	// Parent snapshot columns come along for filtering and display.
	assert.Equal(t, "exact match", matches[0].Title)
	assert.Equal(t, "space-1", matches[0].SpaceID)
	assert.Equal(t, "Test User", matches[0].AuthorName)
	assert.Equal(t, []string{"go"}, matches[0].Tags)
	assert.Zero(t, matches[0].VoteScore)
	assert.False(t, matches[0].LastActivityAt.IsZero())
}

func TestChunkRepository_NearestChunks_FiltersByProvider(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	doc := testDocument(domain.DocumentTypeQuestion, "q-1", "title", "body")
	require.NoError(t, docRepo.Upsert(ctx, doc))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.Ref,
		[]domain.Chunk{testChunk(doc.Ref, 0, "content", basisVector(0))}))

	matches, err := chunkRepo.NearestChunks(ctx, basisVector(0), "other-provider", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChunkRepository_SearchChunksLexical(t *testing.T) {
	ctx, pool := setupRepoTest(t)
	seedEmbeddingProviderRow(ctx, t, pool)
	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewChunkRepository(pool)

	inSpace := testDocument(domain.DocumentTypeQuestion, "q-1", "title one", "body")
	otherSpace := testDocument(domain.DocumentTypeQuestion, "q-2", "title two", "body")
	otherSpace.SpaceID = "space-2"
	require.NoError(t, docRepo.Upsert(ctx, inSpace))
	require.NoError(t, docRepo.Upsert(ctx, otherSpace))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, inSpace.Ref,
		[]domain.Chunk{testChunk(inSpace.Ref, 0, "the kubelet evicts pods", basisVector(0))}))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, otherSpace.Ref,
		[]domain.Chunk{testChunk(otherSpace.Ref, 0, "the kubelet evicts pods elsewhere", basisVector(1))}))

	matches, err := chunkRepo.SearchChunksLexical(ctx, "kubelet evicts", "", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	// Substring matches count as fully similar.
	assert.InDelta(t, 1.0, matches[0].Similarity(), 1e-9)

	matches, err = chunkRepo.SearchChunksLexical(ctx, "kubelet evicts", "space-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "q-1", matches[0].Parent.ID)
}
