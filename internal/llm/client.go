// Package llm is the translation boundary to language-model backends used
// for answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/colloquyhq/retrieval/internal/domain"
)

const (
	defaultCallTimeout = 60 * time.Second
	defaultMaxTokens   = 1024
)

// Client produces a chat completion for a system/user prompt pair. JSON mode
// is requested so structured answers can be parsed reliably.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() *domain.LLMProvider
}

// Options tunes client behavior; zero values take defaults.
type Options struct {
	HTTPClient *http.Client
}

// New builds the adapter for cfg's provider type. OpenAI-compatible chat
// endpoints (including self-hosted ones) go through the openai type with an
// endpoint override; anything else is a ConfigurationError.
func New(cfg *domain.LLMProvider, opts Options) (Client, error) {
	if cfg == nil {
		return nil, domain.NewConfigurationError("llm provider config is nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case domain.ProviderTypeOpenAI:
		return newChatClient(cfg, opts)
	default:
		return nil, domain.NewConfigurationError(
			fmt.Sprintf("unrecognized llm provider type %q", cfg.Type), nil)
	}
}

type chatClient struct {
	cfg *domain.LLMProvider
	api *openai.Client
}

func newChatClient(cfg *domain.LLMProvider, opts Options) (*chatClient, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, domain.NewConfigurationError("openai llm provider requires an api key or endpoint", nil)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	if opts.HTTPClient != nil {
		clientCfg.HTTPClient = opts.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: defaultCallTimeout}
	}

	return &chatClient{cfg: cfg, api: openai.NewClientWithConfig(clientCfg)}, nil
}

func (c *chatClient) Provider() *domain.LLMProvider {
	return c.cfg
}

func (c *chatClient) Complete(ctx context.Context, system, user string) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewAPIError("llm returned no choices", nil)
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return domain.NewConfigurationError("llm request rejected: "+apiErr.Message, err)
		case http.StatusTooManyRequests:
			return domain.NewRateLimitError("llm rate limited: "+apiErr.Message, err)
		}
	}
	return domain.NewAPIError("llm request failed", err)
}

// CleanJSON strips markdown code fences some models wrap around JSON-mode
// output.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
