package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/colloquyhq/retrieval/internal/config"
	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/embedder"
	"github.com/colloquyhq/retrieval/internal/repository"
	"github.com/colloquyhq/retrieval/internal/service"
	"github.com/colloquyhq/retrieval/internal/storage"
)

// ReindexCmd returns the reindex command. A single document reindexes
// synchronously; --all enqueues a job per snapshot for the worker.
func ReindexCmd() *cobra.Command {
	var (
		docType string
		docID   string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild document chunks",
		Long:  "Rebuild the chunk store for one document (--type and --id) or queue every document (--all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if docType != "" || docID != "" {
					return fmt.Errorf("--all cannot be combined with --type/--id")
				}
				return runReindexAll(cmd.Context())
			}
			if docType == "" || docID == "" {
				return fmt.Errorf("either --all or both --type and --id are required")
			}
			ref := domain.DocumentRef{Type: domain.DocumentType(docType), ID: docID}
			if err := domain.ValidateDocumentRef(ref); err != nil {
				return err
			}
			return runReindexOne(cmd.Context(), ref)
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type (question, answer, article)")
	cmd.Flags().StringVar(&docID, "id", "", "Document ID")
	cmd.Flags().BoolVar(&all, "all", false, "Queue a reindex job for every document")

	return cmd
}

func runReindexOne(ctx context.Context, ref domain.DocumentRef) error {
	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	indexer, err := buildIndexer(ctx, cfg, pool)
	if err != nil {
		return err
	}

	count, err := indexer.Reindex(ctx, ref)
	if err != nil {
		return fmt.Errorf("reindex %s failed: %w", ref, err)
	}
	log.Printf("reindexed %s: %d chunks", ref, count)
	return nil
}

func runReindexAll(ctx context.Context) error {
	_, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	docRepo := repository.NewDocumentRepository(pool)
	jobRepo := repository.NewIndexJobRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}

	refs, err := docRepo.ListRefs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	now := time.Now().UTC()
	for _, ref := range refs {
		job := domain.NewIndexJob(uuidGen.NewString(), ref, now)
		if err := jobRepo.Create(ctx, job); err != nil {
			return fmt.Errorf("failed to queue job for %s: %w", ref, err)
		}
	}

	log.Printf("queued %d reindex jobs", len(refs))
	return nil
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return cfg, pool, nil
}

func buildIndexer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*service.Indexer, error) {
	docRepo := repository.NewDocumentRepository(pool)
	providerRepo := repository.NewProviderRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var attachments service.AttachmentTextFetcher
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		attachments = s3Client
	}

	factory := func(p *domain.EmbeddingProvider) (embedder.Client, error) {
		return embedder.New(p, embedder.Options{
			HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
		})
	}

	return service.NewIndexer(docRepo, providerRepo, factory, txRunner, attachments), nil
}
