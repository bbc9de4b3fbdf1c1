package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/colloquyhq/retrieval/internal/domain"
)

const (
	// MaxRetries is the maximum number of attempts for a failed index job
	MaxRetries = 3

	// defaultConcurrency bounds how many documents embed at once; each job
	// holds an embedding API call open for its duration.
	defaultConcurrency = 4
)

// IndexJobRepository defines the interface for index job persistence
type IndexJobRepository interface {
	// ClaimPending retrieves and claims pending index jobs
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)

	// UpdateStatus updates the status of an index job
	UpdateStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// Reindexer rebuilds the chunk generation for one document.
type Reindexer interface {
	Reindex(ctx context.Context, ref domain.DocumentRef) (int, error)
}

// IndexWorker processes index jobs. Jobs run concurrently on a bounded pool;
// one document's failure never aborts the rest of the batch.
type IndexWorker struct {
	repo      IndexJobRepository
	reindexer Reindexer
	batchSize int
	pool      *ants.Pool
}

// NewIndexWorker creates a new IndexWorker instance
func NewIndexWorker(repo IndexJobRepository, reindexer Reindexer) (*IndexWorker, error) {
	pool, err := ants.NewPool(defaultConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &IndexWorker{
		repo:      repo,
		reindexer: reindexer,
		batchSize: 100,
		pool:      pool,
	}, nil
}

// Close releases the worker pool.
func (w *IndexWorker) Close() {
	w.pool.Release()
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("processing %d pending index jobs", len(jobs))

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		submitErr := w.pool.Submit(func() {
			defer wg.Done()
			if err := w.processJob(ctx, job); err != nil {
				log.Printf("error processing job %s: %v", job.ID, err)
			}
		})
		if submitErr != nil {
			wg.Done()
			log.Printf("error submitting job %s: %v", job.ID, submitErr)
		}
	}
	wg.Wait()

	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	log.Printf("processing job %s for document %s", job.ID, job.Ref)

	count, err := w.reindexer.Reindex(ctx, job.Ref)
	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("job %s completed: %d chunks for %s", job.ID, count, job.Ref)
	return nil
}

// handleJobFailure requeues a failed job until the retry ceiling, then marks
// it failed with the last error.
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, jobErr error) error {
	log.Printf("job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
