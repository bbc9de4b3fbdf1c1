package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquyhq/retrieval/internal/domain"
)

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", domain.NewDomainError(domain.ErrCodeValidation, "bad input"), http.StatusBadRequest},
		{"not found", domain.ErrDocumentNotFound, http.StatusNotFound},
		{"unauthorized", domain.NewDomainError(domain.ErrCodeUnauthorized, "nope"), http.StatusUnauthorized},
		{"no provider", domain.ErrNoProvider, http.StatusServiceUnavailable},
		{"api error", domain.NewAPIError("backend failed", nil), http.StatusBadGateway},
		{"configuration", domain.NewConfigurationError("bad key", nil), http.StatusBadGateway},
		{"rate limit", domain.NewRateLimitError("slow down", nil), http.StatusTooManyRequests},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"unknown code", domain.NewDomainError("SOMETHING_ELSE", "m"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestDomainErrorToHTTP_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handling request: %w", domain.ErrDocumentNotFound)
	assert.Equal(t, http.StatusNotFound, DomainErrorToHTTP(wrapped))

	wrappedRateLimit := fmt.Errorf("embed: %w", domain.NewRateLimitError("429", nil))
	assert.Equal(t, http.StatusTooManyRequests, DomainErrorToHTTP(wrappedRateLimit))
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "q-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "q-1", body.Data["id"])
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.ErrDocumentNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "document not found")
}
