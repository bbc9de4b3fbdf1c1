//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquyhq/retrieval/internal/api/handlers"
	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/embedder"
	"github.com/colloquyhq/retrieval/internal/llm"
	"github.com/colloquyhq/retrieval/internal/repository"
	"github.com/colloquyhq/retrieval/internal/server"
	"github.com/colloquyhq/retrieval/internal/service"
	"github.com/colloquyhq/retrieval/internal/storage"
	"github.com/colloquyhq/retrieval/internal/testutil"
)

const (
	serviceToken   = "test-service-token"
	embedModel     = "text-embedding-3-small"
	embedDimension = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	EmbedServer  *httptest.Server
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment: containers, a fake
// embeddings backend, and the HTTP server wired the way serve does it.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-attachments",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	embedServer := newFakeEmbeddingServer()

	seedEmbeddingProvider(ctx, t, pool, embedServer.URL+"/v1")

	serverURL, serverCloser := startServer(t, pool, s3Client)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		EmbedServer:  embedServer,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.EmbedServer != nil {
		e.EmbedServer.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// newFakeEmbeddingServer serves an OpenAI-compatible embeddings endpoint that
// returns deterministic vectors derived from the input text. Identical strings
// get identical vectors, which is enough for exact-query retrieval tests.
func newFakeEmbeddingServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type embeddingData struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
			Object    string    `json:"object"`
		}
		resp := struct {
			Object string          `json:"object"`
			Data   []embeddingData `json:"data"`
			Model  string          `json:"model"`
		}{Object: "list", Model: embedModel}

		for i, text := range req.Input {
			resp.Data = append(resp.Data, embeddingData{
				Index:     i,
				Embedding: deterministicVector(text),
				Object:    "embedding",
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func deterministicVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, embedDimension)
	for i := range vec {
		word := binary.BigEndian.Uint32(sum[(i*4)%28:])
		vec[i] = float32(word%1000)/1000.0 - 0.5
		sum = sha256.Sum256(append(sum[:], byte(i)))
	}
	return vec
}

func seedEmbeddingProvider(ctx context.Context, t *testing.T, pool *pgxpool.Pool, endpoint string) {
	_, err := pool.Exec(ctx,
		`INSERT INTO embedding_providers
			(id, provider_type, model, dimensions, chunk_size_tokens, chunk_overlap,
			 similarity_threshold, api_key, endpoint, enabled)
		 VALUES ('prov-embed-1', 'openai', $1, $2, 0, 0, 0.0, 'test-key', $3, TRUE)`,
		embedModel, embedDimension, endpoint)
	if err != nil {
		t.Fatalf("failed to seed embedding provider: %v", err)
	}
}

func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client) (string, func()) {
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	providerRepo := repository.NewProviderRepository(pool)
	spaceRepo := repository.NewSpaceRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	embedderFactory := func(p *domain.EmbeddingProvider) (embedder.Client, error) {
		return embedder.New(p, embedder.Options{})
	}
	llmFactory := func(p *domain.LLMProvider) (llm.Client, error) {
		return llm.New(p, llm.Options{})
	}

	indexer := service.NewIndexer(docRepo, providerRepo, embedderFactory, txRunner, s3Client)
	vectorSearch := service.NewVectorSearchService(chunkRepo, providerRepo, embedderFactory)
	searchSvc := service.NewSearchService(docRepo, vectorSearch)
	answerSvc := service.NewAnswerService(
		vectorSearch, chunkRepo, docRepo, spaceRepo, providerRepo, llmFactory, 0)

	router := server.NewRouter(server.RouterConfig{
		ServiceToken:    serviceToken,
		DocumentHandler: handlers.NewDocumentHandler(indexer),
		SearchHandler:   handlers.NewSearchHandler(searchSvc),
		AnswerHandler:   handlers.NewAnswerHandler(answerSvc),
	})

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Errorf("server failed: %v", err)
		}
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForHealth(t, url)

	return url, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func waitForHealth(t *testing.T, url string) {
	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server at %s never became healthy", url)
}

// apiResponse mirrors the standard response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (int, *apiResponse) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}

	var parsed apiResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			e.T.Fatalf("failed to parse response %q: %v", string(data), err)
		}
	}
	return resp.StatusCode, &parsed
}

func (e *E2ETestEnv) decodeData(resp *apiResponse, out interface{}) {
	if err := json.Unmarshal(resp.Data, out); err != nil {
		e.T.Fatalf("failed to decode response data: %v", err)
	}
}

// seedSpace inserts a space row directly.
func (e *E2ETestEnv) seedSpace(id, slug, name string, answerChunkLimit int) {
	_, err := e.Pool.Exec(e.Ctx,
		`INSERT INTO spaces (id, slug, name, answer_chunk_limit) VALUES ($1, $2, $3, $4)`,
		id, slug, name, answerChunkLimit)
	if err != nil {
		e.T.Fatalf("failed to seed space: %v", err)
	}
}
