package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/llm"
)

// MockAnswerChunkRepo mocks the lexical chunk fallback
type MockAnswerChunkRepo struct {
	mock.Mock
}

func (m *MockAnswerChunkRepo) SearchChunksLexical(ctx context.Context, query, spaceID string, limit int) ([]*domain.ChunkMatch, error) {
	args := m.Called(ctx, query, spaceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChunkMatch), args.Error(1)
}

// MockSpaceRepo mocks space reads
type MockSpaceRepo struct {
	mock.Mock
}

func (m *MockSpaceRepo) GetByID(ctx context.Context, id string) (*domain.Space, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Space), args.Error(1)
}

// fakeLLMClient records the prompts it receives and replies with a canned
// completion.
type fakeLLMClient struct {
	cfg    *domain.LLMProvider
	reply  string
	err    error
	system string
	user   string
}

func (c *fakeLLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	c.system = system
	c.user = user
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeLLMClient) Provider() *domain.LLMProvider { return c.cfg }

type answerFixture struct {
	svc       *AnswerService
	vector    *MockVectorSearcher
	chunks    *MockAnswerChunkRepo
	docs      *MockIndexDocRepo
	spaces    *MockSpaceRepo
	providers *MockProviderRepo
	client    *fakeLLMClient
}

func newAnswerFixture(chunkLimit int) *answerFixture {
	f := &answerFixture{
		vector:    new(MockVectorSearcher),
		chunks:    new(MockAnswerChunkRepo),
		docs:      new(MockIndexDocRepo),
		spaces:    new(MockSpaceRepo),
		providers: new(MockProviderRepo),
	}
	f.client = &fakeLLMClient{
		cfg:   &domain.LLMProvider{ID: "llm-1", Model: "gpt-4o-mini", Enabled: true},
		reply: `{"answer": "canned", "sources": []}`,
	}
	factory := func(cfg *domain.LLMProvider) (llm.Client, error) {
		return f.client, nil
	}
	f.svc = NewAnswerService(f.vector, f.chunks, f.docs, f.spaces, f.providers, factory, chunkLimit)
	return f
}

func (f *answerFixture) withLLMProvider() {
	f.providers.On("ListLLMProviders", mock.Anything).
		Return([]*domain.LLMProvider{f.client.cfg}, nil)
}

func answerMatch(docType domain.DocumentType, docID, title string) *VectorMatch {
	return &VectorMatch{
		Ref:       domain.DocumentRef{Type: docType, ID: docID},
		Content:   "chunk content for " + docID,
		Title:     title,
		Slug:      docID + "-slug",
		SpaceSlug: "general",
	}
}

func TestAnswer_NoProviderConfigured(t *testing.T) {
	f := newAnswerFixture(0)
	f.providers.On("ListLLMProviders", mock.Anything).
		Return([]*domain.LLMProvider{}, nil)

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "how do pods evict"})

	require.NoError(t, err)
	assert.Empty(t, result.Answer)
	assert.Empty(t, result.Sources)
	assert.False(t, result.FromKnowledgeBase)
	f.vector.AssertNotCalled(t, "Search")
}

func TestAnswer_ProviderListErrorPropagates(t *testing.T) {
	f := newAnswerFixture(0)
	f.providers.On("ListLLMProviders", mock.Anything).
		Return(nil, errors.New("db down"))

	_, err := f.svc.Answer(context.Background(), AnswerInput{Query: "how do pods evict"})

	assert.Error(t, err)
}

func TestAnswer_CompletionErrorYieldsEmptyResult(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()
	f.client.err = errors.New("model timeout")
	f.vector.On("Search", mock.Anything, mock.Anything).
		Return([]*VectorMatch{answerMatch(domain.DocumentTypeQuestion, "q-1", "t")}, nil)

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "how do pods evict"})

	require.NoError(t, err)
	assert.Empty(t, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Equal(t, "gpt-4o-mini", result.Model)
}

func TestAnswer_BlankQuerySkipsRetrieval(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()
	f.client.reply = `{"answer": "welcome to the forum", "sources": []}`

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "   "})

	require.NoError(t, err)
	assert.Equal(t, "welcome to the forum", result.Answer)
	assert.False(t, result.FromKnowledgeBase)
	assert.Zero(t, result.ChunksUsed)
	f.vector.AssertNotCalled(t, "Search")
	f.chunks.AssertNotCalled(t, "SearchChunksLexical")
}

func TestAnswer_GroundedWithCitations(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	sentMatch := answerMatch(domain.DocumentTypeQuestion, "q-1", "Pod eviction")
	bareMatch := answerMatch(domain.DocumentTypeQuestion, "q-2", "Node pressure")
	f.vector.On("Search", mock.Anything, mock.Anything).
		Return([]*VectorMatch{sentMatch, bareMatch}, nil)

	// One citation per resolution stage: the sent tag, a bare id, a document
	// only storage knows, and an id nothing resolves.
	storedRef := domain.DocumentRef{Type: domain.DocumentTypeArticle, ID: "a-9"}
	f.docs.On("GetByRef", mock.Anything, storedRef).Return(&domain.Document{
		Ref:       storedRef,
		Title:     "Cluster tuning",
		Slug:      "cluster-tuning",
		SpaceSlug: "general",
		Body:      "tuning guidance",
	}, nil)

	f.client.reply = `{"answer": "grounded answer", "sources": [` +
		`{"id": "question:q-1"}, {"id": "q-2"}, {"id": "article:a-9"}, {"id": "mystery-42"}]}`

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "how do pods evict"})

	require.NoError(t, err)
	assert.Equal(t, "grounded answer", result.Answer)
	assert.True(t, result.FromKnowledgeBase)
	assert.Equal(t, 2, result.ChunksUsed)

	require.Len(t, result.Sources, 4)
	assert.Equal(t, "question:q-1", result.Sources[0].ID)
	assert.Equal(t, "Pod eviction", result.Sources[0].Title)
	assert.Equal(t, "question:q-2", result.Sources[1].ID)
	assert.Equal(t, "article:a-9", result.Sources[2].ID)
	assert.Equal(t, "Cluster tuning", result.Sources[2].Title)
	assert.Equal(t, "mystery-42", result.Sources[3].ID)
	assert.Empty(t, result.Sources[3].Title)

	// The prompt carried the context blocks and their tags.
	assert.Contains(t, f.client.user, "[question:q-1]")
	assert.Contains(t, f.client.user, "chunk content for q-2")
}

func TestAnswer_DuplicateCitationsCollapse(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	m := answerMatch(domain.DocumentTypeQuestion, "q-1", "Pod eviction")
	f.vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{m}, nil)
	f.client.reply = `{"answer": "a", "sources": [{"id": "question:q-1"}, {"id": "[question:q-1]"}, {"id": "q-1"}]}`

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict"})

	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "question:q-1", result.Sources[0].ID)
}

func TestAnswer_UnparsableReplyBecomesPlainAnswer(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	m := answerMatch(domain.DocumentTypeQuestion, "q-1", "Pod eviction")
	f.vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{m}, nil)
	f.client.reply = "The kubelet evicts pods when memory runs low."

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict"})

	require.NoError(t, err)
	assert.Equal(t, "The kubelet evicts pods when memory runs low.", result.Answer)
	// No usable citations, so the retrieved parents stand in.
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "question:q-1", result.Sources[0].ID)
}

func TestAnswer_LexicalFallbackWhenVectorEmpty(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	f.vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{}, nil)
	f.chunks.On("SearchChunksLexical", mock.Anything, "evict", "", defaultAnswerChunkLimit).
		Return([]*domain.ChunkMatch{
			chunkMatch(domain.DocumentTypeQuestion, "q-7", "c-1", 0.4),
		}, nil)
	f.client.reply = `{"answer": "a", "sources": [{"id": "question:q-7"}]}`

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict"})

	require.NoError(t, err)
	assert.True(t, result.FromKnowledgeBase)
	assert.Equal(t, 1, result.ChunksUsed)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "question:q-7", result.Sources[0].ID)
}

func TestAnswer_NoContextAnywhere(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	f.vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{}, nil)
	f.chunks.On("SearchChunksLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.ChunkMatch{}, nil)
	f.client.reply = `{"answer": "general knowledge answer", "sources": []}`

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict"})

	require.NoError(t, err)
	assert.Equal(t, "general knowledge answer", result.Answer)
	assert.False(t, result.FromKnowledgeBase)
	assert.Empty(t, result.Sources)
}

func TestAnswer_ChunkLimitFromRequest(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	f.vector.On("Search", mock.Anything, mock.MatchedBy(func(in VectorSearchInput) bool {
		return in.Limit == 3
	})).Return([]*VectorMatch{answerMatch(domain.DocumentTypeQuestion, "q-1", "t")}, nil)

	_, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict", ChunkLimit: 3})

	require.NoError(t, err)
	f.vector.AssertExpectations(t)
	f.spaces.AssertNotCalled(t, "GetByID")
}

func TestAnswer_ChunkLimitFromSpace(t *testing.T) {
	f := newAnswerFixture(0)
	f.withLLMProvider()

	f.spaces.On("GetByID", mock.Anything, "space-1").
		Return(&domain.Space{ID: "space-1", AnswerChunkLimit: 12}, nil)
	f.vector.On("Search", mock.Anything, mock.MatchedBy(func(in VectorSearchInput) bool {
		return in.Limit == 12 && in.SpaceID == "space-1"
	})).Return([]*VectorMatch{answerMatch(domain.DocumentTypeQuestion, "q-1", "t")}, nil)

	_, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict", SpaceID: "space-1"})

	require.NoError(t, err)
	f.vector.AssertExpectations(t)
}

func TestAnswer_RetrievalCappedAtLimit(t *testing.T) {
	f := newAnswerFixture(2)
	f.withLLMProvider()

	f.vector.On("Search", mock.Anything, mock.Anything).Return([]*VectorMatch{
		answerMatch(domain.DocumentTypeQuestion, "q-1", "t1"),
		answerMatch(domain.DocumentTypeQuestion, "q-2", "t2"),
		answerMatch(domain.DocumentTypeQuestion, "q-3", "t3"),
	}, nil)

	result, err := f.svc.Answer(context.Background(), AnswerInput{Query: "evict"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksUsed)
	assert.NotContains(t, f.client.user, "q-3")
}

func TestParseModelAnswer(t *testing.T) {
	parsed := parseModelAnswer("```json\n{\"answer\": \"fenced\", \"sources\": [{\"id\": \"question:q-1\"}]}\n```")
	assert.Equal(t, "fenced", parsed.Answer)
	require.Len(t, parsed.Sources, 1)
	assert.Equal(t, "question:q-1", parsed.Sources[0].ID)

	parsed = parseModelAnswer("Sure, here you go: {\"answer\": \"wrapped\", \"sources\": []} hope that helps")
	assert.Equal(t, "wrapped", parsed.Answer)

	parsed = parseModelAnswer("just prose, no json at all")
	assert.Equal(t, "just prose, no json at all", parsed.Answer)
	assert.Empty(t, parsed.Sources)
}

func TestMakeExcerpt(t *testing.T) {
	assert.Equal(t, "short text", makeExcerpt("  short \n text "))

	long := strings.Repeat("word ", 100)
	excerpt := makeExcerpt(long)
	assert.Len(t, excerpt, answerExcerptMaxChars)
	assert.True(t, strings.HasSuffix(excerpt, "..."))

	// Truncation never splits a multi-byte rune.
	wide := strings.Repeat("長い文章の断片 ", 60)
	excerpt = makeExcerpt(wide)
	assert.True(t, utf8.ValidString(excerpt))
	assert.Equal(t, answerExcerptMaxChars, utf8.RuneCountInString(excerpt))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
}
