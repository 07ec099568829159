package testutil

import (
	"time"

	"github.com/hupe1980/chatrelay/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder().Cache("cachedContents/x", time.Hour).Turn("q", "a").Build()
type SessionBuilder struct {
	systemPrompt string
	settings     core.Settings
	context      string
	document     *core.Document
	cacheID      string
	ttl          time.Duration
	turns        [][2]string
	pending      string
}

// NewSessionBuilder creates a new builder with default settings and a text
// context. Use chainable methods then call Build.
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{
		settings: core.DefaultSettings(),
		context:  "test context",
		cacheID:  "cachedContents/test",
		ttl:      core.DefaultSessionTTL,
	}
}

// SystemPrompt sets the system prompt (chainable).
func (b *SessionBuilder) SystemPrompt(p string) *SessionBuilder {
	b.systemPrompt = p
	return b
}

// Settings overrides the generation settings (chainable).
func (b *SessionBuilder) Settings(s core.Settings) *SessionBuilder {
	b.settings = s
	return b
}

// Context sets the retained text context (chainable). Clears any document.
func (b *SessionBuilder) Context(text string) *SessionBuilder {
	b.context = text
	b.document = nil
	return b
}

// Document sets a retained upload as the context source (chainable). Clears
// any text context.
func (b *SessionBuilder) Document(doc *core.Document) *SessionBuilder {
	b.document = doc
	b.context = ""
	return b
}

// Cache sets the cache binding installed on Build (chainable).
func (b *SessionBuilder) Cache(cacheID string, ttl time.Duration) *SessionBuilder {
	b.cacheID = cacheID
	b.ttl = ttl
	return b
}

// Turn appends a completed (user, assistant) pair to the history (chainable).
func (b *SessionBuilder) Turn(user, assistant string) *SessionBuilder {
	b.turns = append(b.turns, [2]string{user, assistant})
	return b
}

// Pending records an unanswered first user message (chainable).
func (b *SessionBuilder) Pending(user string) *SessionBuilder {
	b.pending = user
	return b
}

// Build returns a *core.Session with the configured context source, cache
// binding and history.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.systemPrompt, b.settings)
	if b.document != nil {
		s.Document = b.document
	} else {
		s.OriginalContext = b.context
	}
	s.SetCache(b.cacheID, time.Now().Add(b.ttl))
	for _, turn := range b.turns {
		s.AppendTurn(turn[0], turn[1])
	}
	if b.pending != "" {
		s.AppendPending(b.pending)
	}
	return s
}
