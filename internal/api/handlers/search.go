package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/colloquyhq/retrieval/internal/api"
	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/pagination"
	"github.com/colloquyhq/retrieval/internal/service"
)

// SearchProvider is the slice of the search orchestrator the HTTP layer needs.
type SearchProvider interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
	Suggest(ctx context.Context, query, spaceID string) ([]*domain.Suggestion, error)
}

// SearchHandler serves search and typeahead requests.
type SearchHandler struct {
	search SearchProvider
}

func NewSearchHandler(search SearchProvider) *SearchHandler {
	return &SearchHandler{search: search}
}

type SearchRequest struct {
	Query   string              `json:"query"`
	Filters SearchFilterRequest `json:"filters"`
	Sort    string              `json:"sort,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Cursor  string              `json:"cursor,omitempty"`
}

type SearchFilterRequest struct {
	SpaceID  string   `json:"space_id,omitempty"`
	AuthorID string   `json:"author_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type SearchHitResponse struct {
	Type           string   `json:"type"`
	ID             string   `json:"id"`
	SpaceID        string   `json:"space_id,omitempty"`
	SpaceSlug      string   `json:"space_slug,omitempty"`
	Slug           string   `json:"slug,omitempty"`
	Title          string   `json:"title"`
	Snippet        string   `json:"snippet,omitempty"`
	AuthorID       string   `json:"author_id,omitempty"`
	AuthorName     string   `json:"author_name,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	VoteScore      int      `json:"vote_score"`
	Score          float64  `json:"score"`
	LastActivityAt string   `json:"last_activity_at,omitempty"`
}

type SearchResponse struct {
	Hits    []SearchHitResponse `json:"hits"`
	Total   int                 `json:"total"`
	Mode    string              `json:"mode"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

type SuggestionResponse struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug,omitempty"`
	SpaceSlug string `json:"space_slug,omitempty"`
}

// Search handles POST /search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	offset := 0
	if req.Cursor != "" {
		cur, err := pagination.Decode(req.Cursor)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		if cur != nil {
			if cur.Query != req.Query {
				api.Error(w, http.StatusBadRequest, "cursor does not match query")
				return
			}
			offset = cur.Offset
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	out, err := h.search.Search(r.Context(), service.SearchInput{
		Query: req.Query,
		Filters: service.SearchFilters{
			SpaceID:  req.Filters.SpaceID,
			AuthorID: req.Filters.AuthorID,
			Tags:     req.Filters.Tags,
		},
		Sort:   domain.NormalizeSort(req.Sort),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{
		Hits:    make([]SearchHitResponse, 0, len(out.Hits)),
		Total:   out.Total,
		Mode:    string(out.Mode),
		HasMore: out.HasMore,
	}
	for _, hit := range out.Hits {
		resp.Hits = append(resp.Hits, hitResponse(hit))
	}
	if out.HasMore {
		resp.Cursor = pagination.Encode(offset+len(out.Hits), req.Query)
	}

	api.Success(w, http.StatusOK, resp)
}

// Suggest handles GET /suggest?q=&space_id=.
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	spaceID := r.URL.Query().Get("space_id")

	suggestions, err := h.search.Suggest(r.Context(), query, spaceID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		resp = append(resp, SuggestionResponse{
			Type:      string(s.Ref.Type),
			ID:        s.Ref.ID,
			Title:     s.Title,
			Slug:      s.Slug,
			SpaceSlug: s.SpaceSlug,
		})
	}

	api.Success(w, http.StatusOK, resp)
}

func hitResponse(hit *domain.SearchHit) SearchHitResponse {
	resp := SearchHitResponse{
		Type:       string(hit.Ref.Type),
		ID:         hit.Ref.ID,
		SpaceID:    hit.SpaceID,
		SpaceSlug:  hit.SpaceSlug,
		Slug:       hit.Slug,
		Title:      hit.Title,
		Snippet:    hit.Snippet,
		AuthorID:   hit.AuthorID,
		AuthorName: hit.AuthorName,
		Tags:       hit.Tags,
		VoteScore:  hit.VoteScore,
		Score:      hit.Score,
	}
	if !hit.LastActivityAt.IsZero() {
		resp.LastActivityAt = hit.LastActivityAt.UTC().Format(time.RFC3339)
	}
	return resp
}
