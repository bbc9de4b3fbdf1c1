package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/service"
)

// DocumentRepository persists document snapshots and implements the lexical
// search engine over them (Postgres FTS, title weighted highest).
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Upsert writes the snapshot, keeping created_at on conflict.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents
			(doc_type, doc_id, space_id, space_slug, slug, title, body, answer_text,
			 author_id, author_name, tags, vote_score, attachment_text_key,
			 last_activity_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (doc_type, doc_id) DO UPDATE SET
			space_id = EXCLUDED.space_id,
			space_slug = EXCLUDED.space_slug,
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			answer_text = EXCLUDED.answer_text,
			author_id = EXCLUDED.author_id,
			author_name = EXCLUDED.author_name,
			tags = EXCLUDED.tags,
			vote_score = EXCLUDED.vote_score,
			attachment_text_key = EXCLUDED.attachment_text_key,
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = EXCLUDED.updated_at`,
		doc.Ref.Type, doc.Ref.ID, doc.SpaceID, doc.SpaceSlug, doc.Slug, doc.Title,
		doc.Body, doc.AnswerText, doc.AuthorID, doc.AuthorName, doc.Tags,
		doc.VoteScore, nullableString(doc.AttachmentTextKey), doc.LastActivityAt,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByRef(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	var doc domain.Document
	var attachmentKey *string
	err := r.db.QueryRow(ctx,
		`SELECT doc_type, doc_id, space_id, space_slug, slug, title, body, answer_text,
		        author_id, author_name, tags, vote_score, attachment_text_key,
		        last_activity_at, created_at, updated_at
		 FROM documents WHERE doc_type = $1 AND doc_id = $2`,
		ref.Type, ref.ID,
	).Scan(&doc.Ref.Type, &doc.Ref.ID, &doc.SpaceID, &doc.SpaceSlug, &doc.Slug,
		&doc.Title, &doc.Body, &doc.AnswerText, &doc.AuthorID, &doc.AuthorName,
		&doc.Tags, &doc.VoteScore, &attachmentKey, &doc.LastActivityAt,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if attachmentKey != nil {
		doc.AttachmentTextKey = *attachmentKey
	}
	return &doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, ref domain.DocumentRef) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE doc_type = $1 AND doc_id = $2`,
		ref.Type, ref.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ListRefs returns every snapshot ref, for bulk reindexing.
func (r *DocumentRepository) ListRefs(ctx context.Context) ([]domain.DocumentRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT doc_type, doc_id FROM documents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.DocumentRef
	for rows.Next() {
		var ref domain.DocumentRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SearchKeyword runs the weighted FTS query. A blank query degrades to a
// filtered listing; relevance sort then falls back to recency.
func (r *DocumentRepository) SearchKeyword(ctx context.Context, q service.KeywordQuery) ([]*domain.SearchHit, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	rankExpr := "0::float4"
	where := "1=1"
	if q.Query != "" {
		p := arg(q.Query)
		rankExpr = fmt.Sprintf("ts_rank(search_vector, websearch_to_tsquery('english', %s))", p)
		where += fmt.Sprintf(" AND search_vector @@ websearch_to_tsquery('english', %s)", p)
	}
	if q.Filters.SpaceID != "" {
		where += fmt.Sprintf(" AND space_id = %s", arg(q.Filters.SpaceID))
	}
	if q.Filters.AuthorID != "" {
		where += fmt.Sprintf(" AND author_id = %s", arg(q.Filters.AuthorID))
	}
	if len(q.Filters.Tags) > 0 {
		where += fmt.Sprintf(" AND tags && %s", arg(q.Filters.Tags))
	}

	var order string
	switch q.Sort {
	case domain.SortNewest:
		order = "created_at DESC"
	case domain.SortOldest:
		order = "created_at ASC"
	case domain.SortVotes:
		order = "vote_score DESC, updated_at DESC"
	case domain.SortActivity:
		order = "last_activity_at DESC"
	default:
		if q.Query != "" {
			order = "rank DESC, updated_at DESC"
		} else {
			order = "updated_at DESC"
		}
	}

	query := fmt.Sprintf(
		`SELECT doc_type, doc_id, space_id, space_slug, slug, title, LEFT(body, 400),
		        author_id, author_name, tags, vote_score, last_activity_at, updated_at,
		        %s AS rank, COUNT(*) OVER() AS total
		 FROM documents
		 WHERE %s
		 ORDER BY %s
		 LIMIT %s OFFSET %s`,
		rankExpr, where, order, arg(limit), arg(offset),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hits []*domain.SearchHit
	total := 0
	for rows.Next() {
		var h domain.SearchHit
		var rank float32
		if err := rows.Scan(&h.Ref.Type, &h.Ref.ID, &h.SpaceID, &h.SpaceSlug,
			&h.Slug, &h.Title, &h.Snippet, &h.AuthorID, &h.AuthorName, &h.Tags,
			&h.VoteScore, &h.LastActivityAt, &h.UpdatedAt, &rank, &total); err != nil {
			return nil, 0, err
		}
		h.Score = float64(rank)
		hits = append(hits, &h)
	}
	return hits, total, rows.Err()
}

// Suggest returns typeahead entries by title match, prefix matches first.
func (r *DocumentRepository) Suggest(ctx context.Context, query, spaceID string, limit int) ([]*domain.Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}

	args := []any{query, limit}
	where := "title ILIKE '%' || $1 || '%'"
	if spaceID != "" {
		args = append(args, spaceID)
		where += " AND space_id = $3"
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT doc_type, doc_id, title, slug, space_slug
		 FROM documents
		 WHERE %s
		 ORDER BY (title ILIKE $1 || '%%') DESC, last_activity_at DESC
		 LIMIT $2`, where),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Suggestion
	for rows.Next() {
		var s domain.Suggestion
		if err := rows.Scan(&s.Ref.Type, &s.Ref.ID, &s.Title, &s.Slug, &s.SpaceSlug); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
