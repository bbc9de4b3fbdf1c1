package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// MockIndexer mocks the indexer behind the document endpoints
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) RecordChange(ctx context.Context, signal *domain.ChangeSignal) (*domain.IndexJob, error) {
	args := m.Called(ctx, signal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockIndexer) Reindex(ctx context.Context, ref domain.DocumentRef) (int, error) {
	args := m.Called(ctx, ref)
	return args.Int(0), args.Error(1)
}

func (m *MockIndexer) Delete(ctx context.Context, ref domain.DocumentRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func documentRouter(indexer IndexerService) http.Handler {
	h := NewDocumentHandler(indexer)
	r := chi.NewRouter()
	r.Post("/documents/changed", h.Changed)
	r.Post("/documents/{type}/{id}/reindex", h.Reindex)
	r.Delete("/documents/{type}/{id}", h.Delete)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestDocumentHandler_Changed(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("RecordChange", mock.Anything, mock.MatchedBy(func(sig *domain.ChangeSignal) bool {
		return sig.Ref.Type == domain.DocumentTypeQuestion &&
			sig.Ref.ID == "q-1" &&
			sig.SpaceID == "space-1" &&
			sig.Kind == domain.ChangeKindEdited
	})).Return(&domain.IndexJob{ID: "job-1", Status: domain.IndexJobStatusPending}, nil)

	rec := doJSON(t, router, http.MethodPost, "/documents/changed", ChangeSignalRequest{
		Type:           "question",
		ID:             "q-1",
		SpaceID:        "space-1",
		Title:          "title",
		Body:           "body",
		ChangeKind:     "edited",
		LastActivityAt: "2026-08-30T12:00:00Z",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp ChangeSignalResponse
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Queued)
	assert.Equal(t, "job-1", resp.JobID)
}

func TestDocumentHandler_Changed_BadBody(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	req := httptest.NewRequest(http.MethodPost, "/documents/changed", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	indexer.AssertNotCalled(t, "RecordChange")
}

func TestDocumentHandler_Changed_BadTimestamp(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	rec := doJSON(t, router, http.MethodPost, "/documents/changed", ChangeSignalRequest{
		Type:           "question",
		ID:             "q-1",
		SpaceID:        "space-1",
		Title:          "title",
		LastActivityAt: "yesterday at noon",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	indexer.AssertNotCalled(t, "RecordChange")
}

func TestDocumentHandler_Changed_ValidationError(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("RecordChange", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid change signal"))

	rec := doJSON(t, router, http.MethodPost, "/documents/changed", ChangeSignalRequest{
		Type: "question",
		ID:   "q-1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentHandler_Reindex(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	ref := domain.DocumentRef{Type: domain.DocumentTypeArticle, ID: "a-1"}
	indexer.On("Reindex", mock.Anything, ref).Return(7, nil)

	rec := doJSON(t, router, http.MethodPost, "/documents/article/a-1/reindex", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ReindexResponse
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 7, resp.ChunkCount)
	assert.Empty(t, resp.Error)
}

func TestDocumentHandler_Reindex_InvalidType(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	rec := doJSON(t, router, http.MethodPost, "/documents/comment/c-1/reindex", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	indexer.AssertNotCalled(t, "Reindex")
}

func TestDocumentHandler_Reindex_NotFound(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("Reindex", mock.Anything, mock.Anything).Return(0, domain.ErrDocumentNotFound)

	rec := doJSON(t, router, http.MethodPost, "/documents/question/missing/reindex", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentHandler_Reindex_FailureBody(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("Reindex", mock.Anything, mock.Anything).
		Return(0, errors.New("embedding backend down"))

	rec := doJSON(t, router, http.MethodPost, "/documents/question/q-1/reindex", nil)

	// Failures other than not-found keep the structured body so the caller
	// can show why the rebuild failed.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ReindexResponse
	decodeEnvelope(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "embedding backend down")
}

func TestDocumentHandler_Reindex_NoProvider(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("Reindex", mock.Anything, mock.Anything).Return(0, domain.ErrNoProvider)

	rec := doJSON(t, router, http.MethodPost, "/documents/question/q-1/reindex", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReindexResponse
	decodeEnvelope(t, rec, &resp)
	assert.False(t, resp.Success)
}

func TestDocumentHandler_Delete(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	ref := domain.DocumentRef{Type: domain.DocumentTypeQuestion, ID: "q-1"}
	indexer.On("Delete", mock.Anything, ref).Return(nil)

	rec := doJSON(t, router, http.MethodDelete, "/documents/question/q-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp["deleted"])
}

func TestDocumentHandler_Delete_Error(t *testing.T) {
	indexer := new(MockIndexer)
	router := documentRouter(indexer)

	indexer.On("Delete", mock.Anything, mock.Anything).Return(errors.New("tx failed"))

	rec := doJSON(t, router, http.MethodDelete, "/documents/question/q-1", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
