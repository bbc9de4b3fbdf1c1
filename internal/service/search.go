package service

import (
	"context"
	"log"
	"strings"

	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/telemetry"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	suggestLimit       = 5
	snippetMaxChars    = 220
)

// SearchFilters narrows a search to a space, author, or tag set.
type SearchFilters struct {
	SpaceID  string
	AuthorID string
	Tags     []string
}

// KeywordQuery is the repository-level query for the lexical engine.
type KeywordQuery struct {
	Query   string
	Filters SearchFilters
	Sort    domain.SearchSort
	Limit   int
	Offset  int
}

// KeywordSearchRepository defines the repository interface for the lexical
// engine and typeahead.
type KeywordSearchRepository interface {
	SearchKeyword(ctx context.Context, q KeywordQuery) ([]*domain.SearchHit, int, error)
	Suggest(ctx context.Context, query, spaceID string, limit int) ([]*domain.Suggestion, error)
}

// VectorSearcher defines the semantic pass consumed by the orchestrator.
type VectorSearcher interface {
	Search(ctx context.Context, input VectorSearchInput) ([]*VectorMatch, error)
}

// SearchInput represents input for the search operation.
type SearchInput struct {
	Query   string
	Filters SearchFilters
	Sort    domain.SearchSort
	Limit   int
	Offset  int
}

// SearchOutput represents output from the search operation.
type SearchOutput struct {
	Hits    []*domain.SearchHit
	Total   int
	Mode    domain.SearchMode
	HasMore bool
}

// SearchService orchestrates the semantic and lexical engines behind one
// result envelope.
type SearchService struct {
	keyword KeywordSearchRepository
	vector  VectorSearcher
}

// NewSearchService creates a new SearchService instance.
func NewSearchService(keyword KeywordSearchRepository, vector VectorSearcher) *SearchService {
	return &SearchService{keyword: keyword, vector: vector}
}

// Search tries the semantic engine first for relevance-sorted queries and
// falls back to the lexical engine when it yields nothing. A blank query with
// no filters returns an empty result; a blank query with filters browses via
// the lexical engine.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		SpaceID:   input.Filters.SpaceID,
		Operation: "search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	sort := input.Sort
	if sort == "" {
		sort = domain.SortRelevance
	}

	if query == "" && !hasFilters(input.Filters) {
		return &SearchOutput{Hits: []*domain.SearchHit{}, Mode: domain.SearchModeNone}, nil
	}

	if query != "" && sort == domain.SortRelevance && s.vector != nil {
		matches, err := s.vector.Search(ctx, VectorSearchInput{
			Query:   query,
			SpaceID: input.Filters.SpaceID,
			Limit:   offset + limit,
		})
		if err == nil && len(matches) > 0 {
			return vectorOutput(matches, input.Filters, offset, limit), nil
		}
	}

	hits, total, err := s.keyword.SearchKeyword(ctx, KeywordQuery{
		Query:   query,
		Filters: input.Filters,
		Sort:    sort,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		// Engine trouble is reported through the mode, never thrown to the
		// caller.
		log.Printf("search: keyword engine failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return &SearchOutput{Hits: []*domain.SearchHit{}, Mode: domain.SearchModeError}, nil
	}

	return &SearchOutput{
		Hits:    hits,
		Total:   total,
		Mode:    domain.SearchModeKeyword,
		HasMore: total > offset+limit,
	}, nil
}

// Suggest returns up to five typeahead entries for a query prefix.
func (s *SearchService) Suggest(ctx context.Context, query, spaceID string) ([]*domain.Suggestion, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Suggest", telemetry.SpanAttributes{
		SpaceID:   spaceID,
		Operation: "suggest",
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.Suggestion{}, nil
	}
	return s.keyword.Suggest(ctx, query, spaceID, suggestLimit)
}

func hasFilters(f SearchFilters) bool {
	return f.SpaceID != "" || f.AuthorID != "" || len(f.Tags) > 0
}

func vectorOutput(matches []*VectorMatch, filters SearchFilters, offset, limit int) *SearchOutput {
	filtered := matches
	if filters.AuthorID != "" || len(filters.Tags) > 0 {
		filtered = make([]*VectorMatch, 0, len(matches))
		for _, m := range matches {
			if filters.AuthorID != "" && m.AuthorID != filters.AuthorID {
				continue
			}
			if len(filters.Tags) > 0 && !tagsOverlap(m.Tags, filters.Tags) {
				continue
			}
			filtered = append(filtered, m)
		}
	}

	total := len(filtered)
	page := filtered
	if offset >= len(page) {
		page = nil
	} else {
		page = page[offset:]
	}
	if len(page) > limit {
		page = page[:limit]
	}

	hits := make([]*domain.SearchHit, 0, len(page))
	for _, m := range page {
		hits = append(hits, &domain.SearchHit{
			Ref:            m.Ref,
			SpaceID:        m.SpaceID,
			SpaceSlug:      m.SpaceSlug,
			Slug:           m.Slug,
			Title:          m.Title,
			Snippet:        makeSnippet(m.Content),
			AuthorID:       m.AuthorID,
			AuthorName:     m.AuthorName,
			Tags:           m.Tags,
			VoteScore:      m.VoteScore,
			Score:          m.Similarity,
			LastActivityAt: m.LastActivityAt,
			UpdatedAt:      m.UpdatedAt,
		})
	}

	return &SearchOutput{
		Hits:    hits,
		Total:   total,
		Mode:    domain.SearchModeVector,
		HasMore: total > offset+limit,
	}
}

func tagsOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func makeSnippet(content string) string {
	if content == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(content), " ")
	if len(clean) <= snippetMaxChars {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= snippetMaxChars {
		return clean
	}
	return string(runes[:snippetMaxChars-3]) + "..."
}
