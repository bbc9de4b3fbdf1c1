package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// SpaceRepository persists space records mirrored from the forum app.
type SpaceRepository struct {
	db dbtx
}

func NewSpaceRepository(pool *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{db: pool}
}

func (r *SpaceRepository) GetByID(ctx context.Context, id string) (*domain.Space, error) {
	var s domain.Space
	err := r.db.QueryRow(ctx,
		`SELECT id, slug, name, answer_chunk_limit FROM spaces WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Slug, &s.Name, &s.AnswerChunkLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSpaceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SpaceRepository) Upsert(ctx context.Context, s *domain.Space) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO spaces (id, slug, name, answer_chunk_limit, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			answer_chunk_limit = EXCLUDED.answer_chunk_limit,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.Slug, s.Name, s.AnswerChunkLimit, time.Now().UTC(),
	)
	return err
}
