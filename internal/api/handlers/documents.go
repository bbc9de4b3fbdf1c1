package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colloquyhq/retrieval/internal/api"
	"github.com/colloquyhq/retrieval/internal/domain"
)

// IndexerService is the slice of the indexer the document endpoints need.
type IndexerService interface {
	RecordChange(ctx context.Context, signal *domain.ChangeSignal) (*domain.IndexJob, error)
	Reindex(ctx context.Context, ref domain.DocumentRef) (int, error)
	Delete(ctx context.Context, ref domain.DocumentRef) error
}

// DocumentHandler receives change signals and document lifecycle requests
// from the forum application.
type DocumentHandler struct {
	indexer IndexerService
}

func NewDocumentHandler(indexer IndexerService) *DocumentHandler {
	return &DocumentHandler{indexer: indexer}
}

type ChangeSignalRequest struct {
	Type              string   `json:"type"`
	ID                string   `json:"id"`
	SpaceID           string   `json:"space_id"`
	SpaceSlug         string   `json:"space_slug,omitempty"`
	Slug              string   `json:"slug,omitempty"`
	Title             string   `json:"title"`
	Body              string   `json:"body"`
	AnswerText        string   `json:"answer_text,omitempty"`
	AuthorID          string   `json:"author_id,omitempty"`
	AuthorName        string   `json:"author_name,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	VoteScore         int      `json:"vote_score,omitempty"`
	AttachmentTextKey string   `json:"attachment_text_key,omitempty"`
	LastActivityAt    string   `json:"last_activity_at,omitempty"`
	ChangeKind        string   `json:"change_kind,omitempty"`
}

type ChangeSignalResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
}

type ReindexResponse struct {
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// Changed handles POST /documents/changed.
func (h *DocumentHandler) Changed(w http.ResponseWriter, r *http.Request) {
	var req ChangeSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signal := &domain.ChangeSignal{
		Ref:               domain.DocumentRef{Type: domain.DocumentType(req.Type), ID: req.ID},
		SpaceID:           req.SpaceID,
		SpaceSlug:         req.SpaceSlug,
		Slug:              req.Slug,
		Title:             req.Title,
		Body:              req.Body,
		AnswerText:        req.AnswerText,
		AuthorID:          req.AuthorID,
		AuthorName:        req.AuthorName,
		Tags:              req.Tags,
		VoteScore:         req.VoteScore,
		AttachmentTextKey: req.AttachmentTextKey,
		Kind:              domain.ChangeKind(req.ChangeKind),
	}
	if req.LastActivityAt != "" {
		t, err := time.Parse(time.RFC3339, req.LastActivityAt)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid last_activity_at")
			return
		}
		signal.LastActivityAt = t
	}

	job, err := h.indexer.RecordChange(r.Context(), signal)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, ChangeSignalResponse{Queued: true, JobID: job.ID})
}

// Reindex handles POST /documents/{type}/{id}/reindex synchronously.
func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromURL(w, r)
	if !ok {
		return
	}

	count, err := h.indexer.Reindex(r.Context(), ref)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			api.HandleError(w, err)
			return
		}
		status := api.DomainErrorToHTTP(err)
		api.JSON(w, status, api.SuccessResponse{Data: ReindexResponse{
			Success: false,
			Error:   err.Error(),
		}})
		return
	}

	api.Success(w, http.StatusOK, ReindexResponse{Success: true, ChunkCount: count})
}

// Delete handles DELETE /documents/{type}/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromURL(w, r)
	if !ok {
		return
	}

	if err := h.indexer.Delete(r.Context(), ref); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"deleted": true})
}

func refFromURL(w http.ResponseWriter, r *http.Request) (domain.DocumentRef, bool) {
	ref := domain.DocumentRef{
		Type: domain.DocumentType(chi.URLParam(r, "type")),
		ID:   chi.URLParam(r, "id"),
	}
	if err := domain.ValidateDocumentRef(ref); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return domain.DocumentRef{}, false
	}
	return ref, true
}
