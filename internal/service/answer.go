package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/colloquyhq/retrieval/internal/domain"
	"github.com/colloquyhq/retrieval/internal/llm"
	"github.com/colloquyhq/retrieval/internal/telemetry"
)

const (
	defaultAnswerChunkLimit = 8
	answerExcerptMaxChars   = 300
)

// AnswerChunkRepository defines the lexical fallback over chunk content used
// when the semantic pass yields nothing.
type AnswerChunkRepository interface {
	SearchChunksLexical(ctx context.Context, query, spaceID string, limit int) ([]*domain.ChunkMatch, error)
}

// SpaceRepositoryInterface defines the repository interface for space reads.
type SpaceRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Space, error)
}

// AnswerDocumentRepository resolves cited documents.
type AnswerDocumentRepository interface {
	GetByRef(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error)
}

// LLMFactory builds a chat client for a provider config.
type LLMFactory func(cfg *domain.LLMProvider) (llm.Client, error)

// AnswerInput represents input for answer synthesis.
type AnswerInput struct {
	Query      string
	SpaceID    string
	ChunkLimit int
}

// AnswerSource is one cited document. ID is the citation identifier as
// returned to the caller; for an unresolvable citation it is the literal id
// the model produced and the remaining fields are empty.
type AnswerSource struct {
	ID        string
	Ref       domain.DocumentRef
	Title     string
	Slug      string
	SpaceSlug string
	Excerpt   string
}

// AnswerResult is the synthesized answer with its citations.
type AnswerResult struct {
	Answer            string
	Sources           []*AnswerSource
	ChunksUsed        int
	FromKnowledgeBase bool
	Model             string
}

// AnswerService synthesizes grounded answers over retrieved chunks.
type AnswerService struct {
	vector    VectorSearcher
	chunks    AnswerChunkRepository
	docs      AnswerDocumentRepository
	spaces    SpaceRepositoryInterface
	providers ProviderRepositoryInterface
	factory   LLMFactory

	defaultChunkLimit int
}

// NewAnswerService creates a new AnswerService instance. chunkLimit <= 0
// takes the built-in default.
func NewAnswerService(
	vector VectorSearcher,
	chunks AnswerChunkRepository,
	docs AnswerDocumentRepository,
	spaces SpaceRepositoryInterface,
	providers ProviderRepositoryInterface,
	factory LLMFactory,
	chunkLimit int,
) *AnswerService {
	if chunkLimit <= 0 {
		chunkLimit = defaultAnswerChunkLimit
	}
	return &AnswerService{
		vector:            vector,
		chunks:            chunks,
		docs:              docs,
		spaces:            spaces,
		providers:         providers,
		factory:           factory,
		defaultChunkLimit: chunkLimit,
	}
}

// modelAnswer is the JSON contract requested from the model.
type modelAnswer struct {
	Answer  string `json:"answer"`
	Sources []struct {
		ID string `json:"id"`
	} `json:"sources"`
}

// Answer retrieves context for the query and asks the language model for a
// grounded answer. A missing provider or a model failure produces an
// empty-answer result, never an error, so the forum app can always render
// the page.
func (s *AnswerService) Answer(ctx context.Context, input AnswerInput) (*AnswerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		SpaceID:   input.SpaceID,
		Operation: "answer",
	})
	defer span.End()

	empty := &AnswerResult{Sources: []*AnswerSource{}}

	list, err := s.providers.ListLLMProviders(ctx)
	if err != nil {
		return nil, err
	}
	cfg := domain.PickLLMProvider(list)
	if cfg == nil {
		log.Printf("answer: no enabled llm provider")
		return empty, nil
	}
	empty.Model = cfg.Model

	client, err := s.factory(cfg)
	if err != nil {
		log.Printf("answer: building llm client failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return empty, nil
	}

	// A blank query gets a general-knowledge answer with no retrieval.
	query := strings.TrimSpace(input.Query)
	var matches []*VectorMatch
	if query != "" {
		matches = s.retrieve(ctx, query, input)
	}

	system, user := buildAnswerPrompt(query, matches)
	raw, err := client.Complete(ctx, system, user)
	if err != nil {
		log.Printf("answer: completion failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return empty, nil
	}

	parsed := parseModelAnswer(raw)

	result := &AnswerResult{
		Answer:            parsed.Answer,
		Sources:           []*AnswerSource{},
		ChunksUsed:        len(matches),
		FromKnowledgeBase: len(matches) > 0,
		Model:             cfg.Model,
	}
	if len(matches) > 0 {
		result.Sources = s.resolveSources(ctx, parsed.Sources, matches)
		if len(result.Sources) == 0 {
			result.Sources = fallbackSources(matches)
		}
	}
	return result, nil
}

// retrieve gathers grounding chunks: semantic first, lexical chunk match when
// that yields nothing. Retrieval trouble degrades to no context.
func (s *AnswerService) retrieve(ctx context.Context, query string, input AnswerInput) []*VectorMatch {
	limit := s.chunkLimit(ctx, input)

	matches, err := s.vector.Search(ctx, VectorSearchInput{
		Query:   query,
		SpaceID: input.SpaceID,
		Limit:   limit,
	})
	if err == nil && len(matches) > 0 {
		if len(matches) > limit {
			matches = matches[:limit]
		}
		return matches
	}

	lexical, err := s.chunks.SearchChunksLexical(ctx, query, input.SpaceID, limit)
	if err != nil {
		log.Printf("answer: lexical retrieval failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return nil
	}
	grouped := groupBestPerParent(lexical, 0)
	if len(grouped) > limit {
		grouped = grouped[:limit]
	}
	return grouped
}

// chunkLimit resolves the retrieval size: request override, then the space's
// configured limit, then the service default.
func (s *AnswerService) chunkLimit(ctx context.Context, input AnswerInput) int {
	if input.ChunkLimit > 0 {
		return input.ChunkLimit
	}
	if input.SpaceID != "" && s.spaces != nil {
		space, err := s.spaces.GetByID(ctx, input.SpaceID)
		if err == nil && space != nil && space.AnswerChunkLimit > 0 {
			return space.AnswerChunkLimit
		}
	}
	return s.defaultChunkLimit
}

func buildAnswerPrompt(query string, matches []*VectorMatch) (system, user string) {
	if len(matches) == 0 {
		system = "You answer questions for a discussion forum. " +
			"Respond with a JSON object: {\"answer\": \"...\", \"sources\": []}."
		if query == "" {
			query = "Give a brief helpful greeting for a forum visitor."
		}
		return system, "Question: " + query
	}

	system = "You answer questions for a discussion forum using only the provided context. " +
		"Each context block starts with a source tag like [question:123]. " +
		"Respond with a JSON object: {\"answer\": \"...\", \"sources\": [{\"id\": \"type:id\"}]}. " +
		"Cite only tags that appear in the context. " +
		"If the context does not contain the answer, say so in the answer field and cite nothing."

	var b strings.Builder
	b.WriteString("Context:\n\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "[%s] %s\n\n", m.Ref, m.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return system, b.String()
}

// parseModelAnswer decodes the model's JSON reply, tolerating code fences and
// stray prose around the object. An undecodable reply becomes a plain-text
// answer with no sources.
func parseModelAnswer(raw string) modelAnswer {
	clean := llm.CleanJSON(raw)

	var parsed modelAnswer
	if err := json.Unmarshal([]byte(clean), &parsed); err == nil {
		return parsed
	}

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(clean[start:end+1]), &parsed); err == nil {
			return parsed
		}
	}

	return modelAnswer{Answer: clean}
}

// resolveSources maps model-cited ids back to documents. A cited id resolves
// through, in order: the set of chunks that were actually sent, a storage
// lookup by type:id, then the literal id string. Citations are never
// discarded for being unresolved.
func (s *AnswerService) resolveSources(ctx context.Context, cited []struct {
	ID string `json:"id"`
}, matches []*VectorMatch) []*AnswerSource {
	sent := make(map[string]*VectorMatch, len(matches))
	byBareID := make(map[string]*VectorMatch, len(matches))
	for _, m := range matches {
		if _, ok := sent[m.Ref.String()]; !ok {
			sent[m.Ref.String()] = m
		}
		if _, ok := byBareID[m.Ref.ID]; !ok {
			byBareID[m.Ref.ID] = m
		}
	}

	seen := make(map[string]bool)
	var out []*AnswerSource
	add := func(src *AnswerSource) {
		if !seen[src.ID] {
			seen[src.ID] = true
			out = append(out, src)
		}
	}

	for _, c := range cited {
		id := strings.Trim(strings.TrimSpace(c.ID), "[]")
		if id == "" {
			continue
		}

		if m, ok := sent[id]; ok {
			add(sourceFromMatch(m))
			continue
		}
		if m, ok := byBareID[id]; ok {
			add(sourceFromMatch(m))
			continue
		}

		if ref, err := domain.ParseDocumentRef(id); err == nil {
			if doc, err := s.docs.GetByRef(ctx, ref); err == nil {
				add(&AnswerSource{
					ID:        ref.String(),
					Ref:       ref,
					Title:     doc.Title,
					Slug:      doc.Slug,
					SpaceSlug: doc.SpaceSlug,
					Excerpt:   makeExcerpt(doc.Body),
				})
				continue
			}
		}

		add(&AnswerSource{ID: id})
	}
	return out
}

// fallbackSources lists the distinct parents of the retrieved chunks when the
// model cited nothing usable.
func fallbackSources(matches []*VectorMatch) []*AnswerSource {
	out := make([]*AnswerSource, 0, len(matches))
	for _, m := range matches {
		out = append(out, sourceFromMatch(m))
	}
	return out
}

func sourceFromMatch(m *VectorMatch) *AnswerSource {
	return &AnswerSource{
		ID:        m.Ref.String(),
		Ref:       m.Ref,
		Title:     m.Title,
		Slug:      m.Slug,
		SpaceSlug: m.SpaceSlug,
		Excerpt:   makeExcerpt(m.Content),
	}
}

func makeExcerpt(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if len(clean) <= answerExcerptMaxChars {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= answerExcerptMaxChars {
		return clean
	}
	return string(runes[:answerExcerptMaxChars-3]) + "..."
}
