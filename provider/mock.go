package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/chatrelay/core"
)

// MockProvider is a lightweight in-memory ContextCacher useful for tests and
// examples. Completions are canned per user message; cache ids are sequential
// and individually invalidatable; stream failures can be injected after a
// configurable number of tokens.
type MockProvider struct {
	mu        sync.Mutex
	responses map[string]string
	caches    map[string]bool
	cacheSeq  int
	chunkSize int
	failAfter int
	streamErr error
	cacheErr  error
}

// NewMockProvider constructs a MockProvider with caching enabled.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses: make(map[string]string),
		caches:    make(map[string]bool),
		chunkSize: 8,
		failAfter: -1,
	}
}

// AddResponse registers a deterministic canned completion for a user message.
func (m *MockProvider) AddResponse(userMessage, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[userMessage] = response
}

// FailStreamAfter injects a streaming error after n tokens have been emitted.
// n == 0 fails before the first token.
func (m *MockProvider) FailStreamAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.streamErr = err
}

// FailCaching makes subsequent CacheText/CacheFile calls return err.
func (m *MockProvider) FailCaching(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheErr = err
}

// InvalidateCache marks a cache id as expired provider-side.
func (m *MockProvider) InvalidateCache(cacheID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[cacheID]; ok {
		m.caches[cacheID] = false
	}
}

func (m *MockProvider) response(userMessage string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.responses[userMessage]; ok {
		return r
	}
	return "mock response"
}

// Complete implements Completer.
func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	content := m.response(req.UserMessage)
	return &CompletionResponse{
		ID:        core.NewID(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		Usage:     &Usage{PromptTokens: len(req.UserMessage), CompletionTokens: len(content), TotalTokens: len(req.UserMessage) + len(content)},
	}, nil
}

// Stream implements Completer, emitting the canned response in rune chunks.
func (m *MockProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan string, <-chan error) {
	return m.stream(ctx, req.UserMessage)
}

// StreamCached implements ContextCacher.
func (m *MockProvider) StreamCached(ctx context.Context, cacheID, userMessage string, _ []core.Message, _ core.Settings) (<-chan string, <-chan error) {
	m.mu.Lock()
	valid, known := m.caches[cacheID]
	m.mu.Unlock()
	if !known || !valid {
		tokens := make(chan string)
		errCh := make(chan error, 1)
		errCh <- fmt.Errorf("cache %s not found", cacheID)
		close(tokens)
		close(errCh)
		return tokens, errCh
	}
	return m.stream(ctx, userMessage)
}

func (m *MockProvider) stream(ctx context.Context, userMessage string) (<-chan string, <-chan error) {
	tokens := make(chan string, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	failAfter, streamErr, chunkSize := m.failAfter, m.streamErr, m.chunkSize
	m.mu.Unlock()

	full := []rune(m.response(userMessage))

	go func() {
		defer close(tokens)
		defer close(errCh)
		emitted := 0
		for i := 0; i < len(full); i += chunkSize {
			if failAfter >= 0 && emitted >= failAfter {
				errCh <- streamErr
				return
			}
			end := i + chunkSize
			if end > len(full) {
				end = len(full)
			}
			select {
			case tokens <- string(full[i:end]):
				emitted++
			case <-ctx.Done():
				return
			}
		}
		if failAfter >= 0 && emitted >= failAfter {
			errCh <- streamErr
		}
	}()

	return tokens, errCh
}

// CacheText implements ContextCacher.
func (m *MockProvider) CacheText(_ context.Context, _, _, _ string) (string, error) {
	return m.newCache()
}

// CacheFile implements ContextCacher.
func (m *MockProvider) CacheFile(_ context.Context, _ []byte, _, _, _, _ string) (string, error) {
	return m.newCache()
}

func (m *MockProvider) newCache() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cacheErr != nil {
		return "", m.cacheErr
	}
	m.cacheSeq++
	id := fmt.Sprintf("cachedContents/mock-%d", m.cacheSeq)
	m.caches[id] = true
	return id, nil
}

// ValidateCache implements ContextCacher.
func (m *MockProvider) ValidateCache(_ context.Context, cacheID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caches[cacheID]
}

// DeleteCache implements ContextCacher.
func (m *MockProvider) DeleteCache(_ context.Context, cacheID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.caches[cacheID]
	delete(m.caches, cacheID)
	return ok
}

// Available implements Completer.
func (m *MockProvider) Available(context.Context) bool { return true }

// Info implements Completer.
func (m *MockProvider) Info() Info {
	return Info{Name: "mock", Models: []string{"mock-1"}, SupportsCaching: true}
}
