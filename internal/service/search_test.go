package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// MockKeywordRepo mocks the lexical engine and typeahead
type MockKeywordRepo struct {
	mock.Mock
}

func (m *MockKeywordRepo) SearchKeyword(ctx context.Context, q KeywordQuery) ([]*domain.SearchHit, int, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.SearchHit), args.Int(1), args.Error(2)
}

func (m *MockKeywordRepo) Suggest(ctx context.Context, query, spaceID string, limit int) ([]*domain.Suggestion, error) {
	args := m.Called(ctx, query, spaceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Suggestion), args.Error(1)
}

// MockVectorSearcher mocks the semantic pass
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) Search(ctx context.Context, input VectorSearchInput) ([]*VectorMatch, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*VectorMatch), args.Error(1)
}

func vectorMatch(docID, authorID string, similarity float64) *VectorMatch {
	return &VectorMatch{
		Ref:        domain.DocumentRef{Type: domain.DocumentTypeQuestion, ID: docID},
		ChunkID:    "chunk-" + docID,
		Content:    "chunk content for " + docID,
		Similarity: similarity,
		SpaceID:    "space-1",
		AuthorID:   authorID,
		AuthorName: "author " + authorID,
		Tags:       []string{"kubernetes"},
		VoteScore:  3,
		UpdatedAt:  time.Now().UTC(),
	}
}

func keywordHit(docID string) *domain.SearchHit {
	return &domain.SearchHit{
		Ref:   domain.DocumentRef{Type: domain.DocumentTypeQuestion, ID: docID},
		Title: "hit " + docID,
	}
}

func TestSearch_BlankQueryNoFilters(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	out, err := svc.Search(context.Background(), SearchInput{Query: "  "})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeNone, out.Mode)
	assert.Empty(t, out.Hits)
	keyword.AssertNotCalled(t, "SearchKeyword")
	vector.AssertNotCalled(t, "Search")
}

func TestSearch_BlankQueryWithFilterBrowsesKeyword(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	keyword.On("SearchKeyword", mock.Anything, mock.MatchedBy(func(q KeywordQuery) bool {
		return q.Query == "" && q.Filters.SpaceID == "space-1" && q.Sort == domain.SortRelevance
	})).Return([]*domain.SearchHit{keywordHit("q-1")}, 1, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Filters: SearchFilters{SpaceID: "space-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeKeyword, out.Mode)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, 1, out.Total)
	assert.False(t, out.HasMore)
	vector.AssertNotCalled(t, "Search")
}

func TestSearch_VectorHitsWin(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	vector.On("Search", mock.Anything, VectorSearchInput{
		Query:   "pod eviction",
		SpaceID: "space-1",
		Limit:   20,
	}).Return([]*VectorMatch{
		vectorMatch("q-1", "u-1", 0.91),
		vectorMatch("q-2", "u-2", 0.72),
	}, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Query:   "pod eviction",
		Filters: SearchFilters{SpaceID: "space-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeVector, out.Mode)
	require.Len(t, out.Hits, 2)
	assert.Equal(t, "q-1", out.Hits[0].Ref.ID)
	assert.InDelta(t, 0.91, out.Hits[0].Score, 1e-9)
	assert.NotEmpty(t, out.Hits[0].Snippet)
	// The snapshot fields survive the semantic path.
	assert.Equal(t, "author u-1", out.Hits[0].AuthorName)
	assert.Equal(t, []string{"kubernetes"}, out.Hits[0].Tags)
	assert.Equal(t, 3, out.Hits[0].VoteScore)
	keyword.AssertNotCalled(t, "SearchKeyword")
}

func TestSearch_KeywordFallbackWhenVectorEmpty(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{}, nil)
	keyword.On("SearchKeyword", mock.Anything, mock.MatchedBy(func(q KeywordQuery) bool {
		return q.Query == "pod eviction" && q.Limit == 20 && q.Offset == 0
	})).Return([]*domain.SearchHit{keywordHit("q-9")}, 1, nil)

	out, err := svc.Search(context.Background(), SearchInput{Query: "pod eviction"})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeKeyword, out.Mode)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "q-9", out.Hits[0].Ref.ID)
}

func TestSearch_KeywordFallbackWhenVectorErrors(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	vector.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("embedding backend down"))
	keyword.On("SearchKeyword", mock.Anything, mock.Anything).
		Return([]*domain.SearchHit{keywordHit("q-9")}, 1, nil)

	out, err := svc.Search(context.Background(), SearchInput{Query: "pod eviction"})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeKeyword, out.Mode)
}

func TestSearch_NonRelevanceSortSkipsVector(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	keyword.On("SearchKeyword", mock.Anything, mock.MatchedBy(func(q KeywordQuery) bool {
		return q.Sort == domain.SortNewest
	})).Return([]*domain.SearchHit{}, 0, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Query: "pod eviction",
		Sort:  domain.SortNewest,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeKeyword, out.Mode)
	vector.AssertNotCalled(t, "Search")
}

func TestSearch_KeywordErrorReportsErrorMode(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{}, nil)
	keyword.On("SearchKeyword", mock.Anything, mock.Anything).
		Return(nil, 0, errors.New("fts query failed"))

	out, err := svc.Search(context.Background(), SearchInput{Query: "pod eviction"})

	// Engine failure is reported through the mode, not as an error.
	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeError, out.Mode)
	assert.Empty(t, out.Hits)
	assert.Zero(t, out.Total)
}

func TestSearch_LimitClamped(t *testing.T) {
	keyword := new(MockKeywordRepo)
	svc := NewSearchService(keyword, nil)

	keyword.On("SearchKeyword", mock.Anything, mock.MatchedBy(func(q KeywordQuery) bool {
		return q.Limit == 50
	})).Return([]*domain.SearchHit{}, 0, nil)

	_, err := svc.Search(context.Background(), SearchInput{Query: "pods", Limit: 500})
	require.NoError(t, err)
	keyword.AssertExpectations(t)
}

func TestSearch_VectorAuthorFilterAndPaging(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	matches := []*VectorMatch{
		vectorMatch("q-1", "u-1", 0.9),
		vectorMatch("q-2", "u-2", 0.8),
		vectorMatch("q-3", "u-1", 0.7),
		vectorMatch("q-4", "u-1", 0.6),
	}
	vector.On("Search", mock.Anything, mock.Anything).Return(matches, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Query:   "pods",
		Filters: SearchFilters{AuthorID: "u-1"},
		Limit:   2,
		Offset:  1,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeVector, out.Mode)
	assert.Equal(t, 3, out.Total)
	require.Len(t, out.Hits, 2)
	assert.Equal(t, "q-3", out.Hits[0].Ref.ID)
	assert.Equal(t, "q-4", out.Hits[1].Ref.ID)
	assert.False(t, out.HasMore)
	keyword.AssertNotCalled(t, "SearchKeyword")
}

func TestSearch_VectorTagFilter(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	tagged := vectorMatch("q-1", "u-1", 0.9)
	tagged.Tags = []string{"kubernetes", "networking"}
	other := vectorMatch("q-2", "u-2", 0.8)
	other.Tags = []string{"storage"}
	untagged := vectorMatch("q-3", "u-3", 0.7)
	untagged.Tags = nil
	vector.On("Search", mock.Anything, mock.Anything).
		Return([]*VectorMatch{tagged, other, untagged}, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Query:   "pods",
		Filters: SearchFilters{Tags: []string{"networking"}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeVector, out.Mode)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "q-1", out.Hits[0].Ref.ID)
	keyword.AssertNotCalled(t, "SearchKeyword")
}

func TestSearch_VectorOffsetPastEnd(t *testing.T) {
	keyword := new(MockKeywordRepo)
	vector := new(MockVectorSearcher)
	svc := NewSearchService(keyword, vector)

	vector.On("Search", mock.Anything, mock.Anything).
		Return([]*VectorMatch{vectorMatch("q-1", "u-1", 0.9)}, nil)

	out, err := svc.Search(context.Background(), SearchInput{
		Query:  "pods",
		Limit:  10,
		Offset: 5,
	})

	require.NoError(t, err)
	assert.Empty(t, out.Hits)
	assert.Equal(t, 1, out.Total)
	assert.False(t, out.HasMore)
}

func TestSuggest_BlankQuery(t *testing.T) {
	keyword := new(MockKeywordRepo)
	svc := NewSearchService(keyword, nil)

	suggestions, err := svc.Suggest(context.Background(), "   ", "")

	require.NoError(t, err)
	assert.Empty(t, suggestions)
	keyword.AssertNotCalled(t, "Suggest")
}

func TestSuggest_PassesFixedLimit(t *testing.T) {
	keyword := new(MockKeywordRepo)
	svc := NewSearchService(keyword, nil)

	keyword.On("Suggest", mock.Anything, "how do", "space-1", 5).
		Return([]*domain.Suggestion{{Title: "How do pods evict"}}, nil)

	suggestions, err := svc.Suggest(context.Background(), " how do ", "space-1")

	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	keyword.AssertExpectations(t)
}

func TestMakeSnippet(t *testing.T) {
	assert.Equal(t, "", makeSnippet(""))
	assert.Equal(t, "one two three", makeSnippet("  one \n two\tthree "))

	long := strings.Repeat("word ", 100)
	snippet := makeSnippet(long)
	assert.Len(t, snippet, snippetMaxChars)
	assert.True(t, strings.HasSuffix(snippet, "..."), fmt.Sprintf("got %q", snippet))

	// Truncation never splits a multi-byte rune.
	wide := strings.Repeat("日本語テキスト ", 60)
	snippet = makeSnippet(wide)
	assert.True(t, utf8.ValidString(snippet), fmt.Sprintf("got %q", snippet))
	assert.Equal(t, snippetMaxChars, utf8.RuneCountInString(snippet))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}
