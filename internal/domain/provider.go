package domain

import "time"

// ProviderType selects an embedding or language-model backend adapter.
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai"
	ProviderTypeCohere ProviderType = "cohere"
	ProviderTypeOllama ProviderType = "ollama"
)

// EmbeddingProvider is the configuration record for an embedding backend.
// Administered outside this core; the core only reads it.
type EmbeddingProvider struct {
	ID                  string
	Type                ProviderType
	Model               string
	Dimensions          int
	ChunkSizeTokens     int
	ChunkOverlap        float64 // fraction of a chunk shared with its successor
	SimilarityThreshold float64 // 0 means fall back to the global default
	APIKey              string
	Endpoint            string
	Enabled             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks the fields every adapter needs before first use.
func (p *EmbeddingProvider) Validate() error {
	if p == nil {
		return NewDomainError(ErrCodeConfiguration, "embedding provider config is nil")
	}
	if p.Model == "" {
		return NewDomainError(ErrCodeConfiguration, "embedding provider model is required")
	}
	if p.Dimensions <= 0 {
		return NewDomainError(ErrCodeConfiguration, "embedding provider dimensions must be positive")
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= 1 {
		return NewDomainError(ErrCodeConfiguration, "embedding provider chunk overlap must be in [0,1)")
	}
	return nil
}

// LLMProvider is the configuration record for a language-model backend.
type LLMProvider struct {
	ID          string
	Type        ProviderType
	Model       string
	APIKey      string
	Endpoint    string
	Temperature float32
	MaxTokens   int
	Enabled     bool
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the fields the chat client needs before first use.
func (p *LLMProvider) Validate() error {
	if p == nil {
		return NewDomainError(ErrCodeConfiguration, "llm provider config is nil")
	}
	if p.Model == "" {
		return NewDomainError(ErrCodeConfiguration, "llm provider model is required")
	}
	return nil
}

// PickEmbeddingProvider selects the usable embedding provider from a
// collection: the first enabled one. Returns nil when none qualifies.
func PickEmbeddingProvider(providers []*EmbeddingProvider) *EmbeddingProvider {
	for _, p := range providers {
		if p != nil && p.Enabled {
			return p
		}
	}
	return nil
}

// PickLLMProvider selects the usable language-model provider: the enabled one
// flagged default, else the first enabled. Returns nil when none qualifies.
func PickLLMProvider(providers []*LLMProvider) *LLMProvider {
	var first *LLMProvider
	for _, p := range providers {
		if p == nil || !p.Enabled {
			continue
		}
		if p.IsDefault {
			return p
		}
		if first == nil {
			first = p
		}
	}
	return first
}
