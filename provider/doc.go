// Package provider defines the capability interfaces the chat layers consume:
// Completer for plain completions and ContextCacher for providers exposing an
// addressable cached-context resource with its own TTL. Streaming follows the
// channel-pair convention: a token channel plus a buffered error channel, both
// closed by the producer, with at most one terminal error sent before close.
//
// Concrete adapters live in sub-packages (gemini, openai, anthropic); only the
// Gemini API offers an explicit cached-content resource, so it is the sole
// ContextCacher. A channel-driven MockProvider supports tests and examples.
package provider
