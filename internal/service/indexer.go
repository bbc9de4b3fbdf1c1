package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colloquyhq/retrieval/internal/chunker"
	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/telemetry"
)

// IndexDocumentRepository defines the repository interface for document
// snapshot persistence.
type IndexDocumentRepository interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByRef(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error)
	Delete(ctx context.Context, ref domain.DocumentRef) error
}

// IndexChunkRepository defines the repository interface for chunk generations.
type IndexChunkRepository interface {
	ReplaceChunks(ctx context.Context, parent domain.DocumentRef, chunks []domain.Chunk) error
	DeleteByParent(ctx context.Context, parent domain.DocumentRef) error
}

// IndexJobRepositoryInterface defines the repository interface for queueing
// index jobs.
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
}

// AttachmentTextFetcher loads pre-extracted attachment text by storage key.
type AttachmentTextFetcher interface {
	FetchText(ctx context.Context, key string) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Indexer maintains the chunk store for document snapshots.
type Indexer struct {
	docs        IndexDocumentRepository
	providers   ProviderRepositoryInterface
	factory     EmbedderFactory
	txRunner    TxRunner
	attachments AttachmentTextFetcher
	uuidGen     UUIDGenerator
	locks       *keyedMutex
}

// NewIndexer creates a new Indexer instance. attachments may be nil when no
// object store is configured.
func NewIndexer(
	docs IndexDocumentRepository,
	providers ProviderRepositoryInterface,
	factory EmbedderFactory,
	txRunner TxRunner,
	attachments AttachmentTextFetcher,
) *Indexer {
	return &Indexer{
		docs:        docs,
		providers:   providers,
		factory:     factory,
		txRunner:    txRunner,
		attachments: attachments,
		uuidGen:     &DefaultUUIDGenerator{},
		locks:       newKeyedMutex(),
	}
}

// RecordChange upserts the document snapshot from a change signal and queues
// an index job, both in one transaction.
func (s *Indexer) RecordChange(ctx context.Context, signal *domain.ChangeSignal) (*domain.IndexJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.RecordChange", telemetry.SpanAttributes{
		SpaceID:   signal.SpaceID,
		Document:  signal.Ref.String(),
		Operation: "record_change",
	})
	defer span.End()

	if err := domain.ValidateChangeSignal(signal); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid change signal", err)
	}

	now := time.Now().UTC()
	doc := domain.NewDocumentFromSignal(*signal, now)
	job := domain.NewIndexJob(s.uuidGen.NewString(), signal.Ref, now)

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Upsert(ctx, doc); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Reindex rebuilds the chunk generation for one document: assemble text,
// chunk, embed, and swap generations transactionally. Concurrent calls for
// the same document serialize; different documents proceed in parallel.
// Returns the new chunk count.
func (s *Indexer) Reindex(ctx context.Context, ref domain.DocumentRef) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.Reindex", telemetry.SpanAttributes{
		Document:  ref.String(),
		Operation: "reindex",
	})
	defer span.End()

	unlock := s.locks.lock(ref.String())
	defer unlock()

	doc, err := s.docs.GetByRef(ctx, ref)
	if err != nil {
		return 0, err
	}

	list, err := s.providers.ListEmbeddingProviders(ctx)
	if err != nil {
		return 0, err
	}
	cfg := domain.PickEmbeddingProvider(list)
	if cfg == nil {
		return 0, domain.ErrNoProvider
	}

	text := s.assembleText(ctx, doc)
	if strings.TrimSpace(text) == "" {
		err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			return repos.Chunks().ReplaceChunks(ctx, ref, nil)
		})
		return 0, err
	}

	chunkCfg := chunker.DefaultConfig()
	if cfg.ChunkSizeTokens > 0 {
		chunkCfg.ChunkSizeTokens = cfg.ChunkSizeTokens
	}
	if cfg.ChunkOverlap > 0 {
		chunkCfg.Overlap = cfg.ChunkOverlap
	}
	pieces := chunker.Split(text, chunkCfg)
	if len(pieces) == 0 {
		err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			return repos.Chunks().ReplaceChunks(ctx, ref, nil)
		})
		return 0, err
	}

	client, err := s.factory(cfg)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	vectors, err := client.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", ref, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embedding count mismatch for %s: %d chunks, %d vectors", ref, len(pieces), len(vectors))
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:         s.uuidGen.NewString(),
			Parent:     ref,
			ChunkIndex: p.Index,
			Content:    p.Content,
			TokenCount: p.TokenCount,
			Embedding:  vectors[i],
			ProviderID: cfg.ID,
			EmbeddedAt: &now,
			SourceType: string(ref.Type),
			SourceID:   ref.ID,
			Position:   p.Position,
			CreatedAt:  now,
		}
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		return repos.Chunks().ReplaceChunks(ctx, ref, chunks)
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Delete removes the snapshot and its chunks in one transaction.
func (s *Indexer) Delete(ctx context.Context, ref domain.DocumentRef) error {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.Delete", telemetry.SpanAttributes{
		Document:  ref.String(),
		Operation: "delete",
	})
	defer span.End()

	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().DeleteByParent(ctx, ref); err != nil {
			return err
		}
		return repos.Documents().Delete(ctx, ref)
	})
}

// assembleText builds the indexing input: title, body, accepted answer text
// for questions, then attachment text when a key is present.
func (s *Indexer) assembleText(ctx context.Context, doc *domain.Document) string {
	parts := make([]string, 0, 4)
	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if doc.Body != "" {
		parts = append(parts, doc.Body)
	}
	if doc.Ref.Type == domain.DocumentTypeQuestion && doc.AnswerText != "" {
		parts = append(parts, doc.AnswerText)
	}
	if doc.AttachmentTextKey != "" && s.attachments != nil {
		text, err := s.attachments.FetchText(ctx, doc.AttachmentTextKey)
		if err != nil {
			// The document still indexes without its attachment.
			telemetry.CaptureError(ctx, err)
		} else if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// keyedMutex serializes work per key with refcounted entries so idle keys
// do not accumulate.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
