package provider

import (
	"context"
	"time"

	"github.com/hupe1980/chatrelay/core"
)

// CompletionRequest captures the normalized model input for an uncached turn.
// Context, when present, is raw grounding text resent on every call; the
// cached path omits it because the grounding lives provider-side.
type CompletionRequest struct {
	SystemPrompt string
	Context      string
	History      []core.Message
	UserMessage  string
	Settings     core.Settings
}

// Usage captures token usage statistics for a completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CompletionResponse is the final result of a non-streaming completion.
type CompletionResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name            string   `json:"name"`
	Models          []string `json:"supportedModels"`
	SupportsCaching bool     `json:"supportsCaching"`
}

// Completer is the minimal interface required to run uncached turns.
type Completer interface {
	// Complete performs a non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream starts a streaming completion. The producer closes both
	// channels when done; a mid-stream failure is reported as one error on
	// the (buffered) error channel before close. Cancelling ctx makes the
	// producer stop consuming upstream bytes promptly.
	Stream(ctx context.Context, req CompletionRequest) (<-chan string, <-chan error)

	// Available reports whether the provider is configured and reachable.
	Available(ctx context.Context) bool

	// Info returns provider metadata.
	Info() Info
}

// ContextCacher extends Completer with the explicit cached-context resource
// used by session-bound turns. Cache ids address an independently-expiring
// provider-side blob; Validate answering false covers not-found, expired and
// network conditions alike.
type ContextCacher interface {
	Completer

	// CacheText materializes a provider cache from raw grounding text plus
	// system prompt, returning the cache id.
	CacheText(ctx context.Context, text, systemPrompt, model string) (string, error)

	// CacheFile materializes a provider cache from an uploaded document.
	CacheFile(ctx context.Context, content []byte, filename, mimeType, systemPrompt, model string) (string, error)

	// ValidateCache reports whether the cache id still addresses a live
	// provider-side resource. False on any not-found/expired/network
	// condition; never returns an error.
	ValidateCache(ctx context.Context, cacheID string) bool

	// DeleteCache removes the provider-side cache, best-effort.
	DeleteCache(ctx context.Context, cacheID string) bool

	// StreamCached starts a streaming completion against the cached context,
	// sending only the new user message and prior session history. Channel
	// semantics match Stream.
	StreamCached(ctx context.Context, cacheID, userMessage string, history []core.Message, settings core.Settings) (<-chan string, <-chan error)
}
