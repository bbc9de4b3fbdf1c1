package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/colloquyhq/retrieval/internal/api"
	"github.com/colloquyhq/retrieval/internal/service"
)

// AnswerProvider is the slice of the answer service the HTTP layer needs.
type AnswerProvider interface {
	Answer(ctx context.Context, input service.AnswerInput) (*service.AnswerResult, error)
}

// AnswerHandler serves grounded answer synthesis requests.
type AnswerHandler struct {
	answers AnswerProvider
}

func NewAnswerHandler(answers AnswerProvider) *AnswerHandler {
	return &AnswerHandler{answers: answers}
}

type AnswerRequest struct {
	Query      string `json:"query"`
	SpaceID    string `json:"space_id,omitempty"`
	ChunkLimit int    `json:"chunk_limit,omitempty"`
}

type AnswerSourceResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	DocID     string `json:"doc_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Slug      string `json:"slug,omitempty"`
	SpaceSlug string `json:"space_slug,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
}

type AnswerResponse struct {
	Answer            *string                `json:"answer"`
	Sources           []AnswerSourceResponse `json:"sources"`
	ChunksUsed        int                    `json:"chunks_used"`
	FromKnowledgeBase bool                   `json:"from_knowledge_base"`
	Model             string                 `json:"model,omitempty"`
}

// Answer handles POST /answer.
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.answers.Answer(r.Context(), service.AnswerInput{
		Query:      req.Query,
		SpaceID:    req.SpaceID,
		ChunkLimit: req.ChunkLimit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := AnswerResponse{
		Sources:           make([]AnswerSourceResponse, 0, len(result.Sources)),
		ChunksUsed:        result.ChunksUsed,
		FromKnowledgeBase: result.FromKnowledgeBase,
		Model:             result.Model,
	}
	if result.Answer != "" {
		answer := result.Answer
		resp.Answer = &answer
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, AnswerSourceResponse{
			ID:        src.ID,
			Type:      string(src.Ref.Type),
			DocID:     src.Ref.ID,
			Title:     src.Title,
			Slug:      src.Slug,
			SpaceSlug: src.SpaceSlug,
			Excerpt:   src.Excerpt,
		})
	}

	api.Success(w, http.StatusOK, resp)
}
