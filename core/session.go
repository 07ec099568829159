package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is the local expiry horizon applied at creation and on
// every successful cache rematerialization. It is intentionally decoupled
// from the provider-side cache TTL; the two resources expire independently
// and are reconciled lazily via the conversation manager's ValidateAndRefresh.
const DefaultSessionTTL = time.Hour

// Conversation roles stored in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry of the conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a Message stamped with the current UTC time.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Document retains an uploaded file verbatim so the provider cache can be
// rebuilt from the original bytes after the remote side expires. Immutable
// after session creation.
type Document struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
	Content     []byte `json:"-"`
}

// Settings captures the generation parameters bound to a session. They are
// fixed at creation; callers may override them per turn without mutating the
// session.
type Settings struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Model       string  `json:"model"`
}

// DefaultSettings returns the baseline generation parameters.
func DefaultSettings() Settings {
	return Settings{Temperature: 0.7, MaxTokens: 1000, Model: "gemini-2.0-flash"}
}

// Session is a server-held conversational container bound to one provider-side
// cached context. It is safe for concurrent access: the cache binding
// (CacheID/ExpiresAt) and the history are guarded by an internal lock so
// concurrent turns on the same id cannot corrupt either.
//
// Contract:
//   - Exactly one of Document / OriginalContext is non-empty.
//   - CacheID is never empty while the session is reachable from a Store.
//   - ExpiresAt is only ever extended by SetCache/ReplaceCache (successful
//     cache materialization), never by a read.
//   - History grows only by AppendTurn pairs, plus at most one pending user
//     message recorded at creation time.
type Session struct {
	ID              string    `json:"id"`
	SystemPrompt    string    `json:"systemPrompt"`
	Settings        Settings  `json:"settings"`
	Document        *Document `json:"document,omitempty"`
	OriginalContext string    `json:"originalContext,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`

	mu        sync.RWMutex
	cacheID   string
	expiresAt time.Time
	history   []Message
}

// NewSession creates a session with a generated id and no cache binding yet.
func NewSession(systemPrompt string, settings Settings) *Session {
	return &Session{
		ID:           NewID(),
		SystemPrompt: systemPrompt,
		Settings:     settings,
		CreatedAt:    time.Now().UTC(),
	}
}

// CacheID returns the current provider cache identifier.
func (s *Session) CacheID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheID
}

// ExpiresAt returns the local expiry horizon.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Expired reports whether the session's local TTL has passed at the given
// instant. A zero expiry means the session never expires locally.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && !s.expiresAt.After(now)
}

// SetCache unconditionally binds a provider cache id and resets the expiry
// horizon. Used at creation where no previous binding exists.
func (s *Session) SetCache(cacheID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheID = cacheID
	s.expiresAt = expiresAt
}

// ReplaceCache swaps the cache binding only if the current id still equals
// old, returning whether the swap happened. Concurrent refreshes for the same
// session race on the provider round trip; the compare-and-swap ensures the
// losing refresh does not clobber the winner's fresh cache id.
func (s *Session) ReplaceCache(old, cacheID string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheID != old {
		return false
	}
	s.cacheID = cacheID
	s.expiresAt = expiresAt
	return true
}

// AppendPending records the initial user message supplied at creation time.
// The matching assistant reply is appended later by the caller via AppendTurn
// once the first completion finishes.
func (s *Session) AppendPending(userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, NewMessage(RoleUser, userText))
}

// CompletePending appends the assistant reply closing the pending first turn.
// It only applies when the history ends in a lone user message; otherwise it
// reports false and leaves the history untouched.
func (s *Session) CompletePending(assistantText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history)%2 == 0 || s.history[len(s.history)-1].Role != RoleUser {
		return false
	}
	s.history = append(s.history, NewMessage(RoleAssistant, assistantText))
	return true
}

// AppendTurn atomically appends a completed (user, assistant) message pair.
// A turn is never partially recorded: readers observe either both messages or
// neither.
func (s *Session) AppendTurn(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		NewMessage(RoleUser, userText),
		NewMessage(RoleAssistant, assistantText),
	)
}

// History returns a defensive copy of the conversation history.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]Message, len(s.history))
	copy(history, s.history)
	return history
}

// MessageCount returns the number of history entries.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// DocumentName returns the retained upload's filename, or "" for text-backed
// sessions.
func (s *Session) DocumentName() string {
	if s.Document == nil {
		return ""
	}
	return s.Document.Filename
}

// Store is a concurrent mapping from session id to Session. Implementations
// must be safe for unbounded concurrent readers and writers without external
// locking by callers. Returned sessions are shared live references; Session
// itself serializes its mutable state.
type Store interface {
	// Put inserts the session, no-op returning false if the id already
	// exists. Ids are generated, not caller-supplied, so collision is not a
	// normal path.
	Put(session *Session) bool

	// Get returns the session for id if present.
	Get(id string) (*Session, bool)

	// Remove deletes and returns the session for id if present.
	Remove(id string) (*Session, bool)

	// ListAll returns a point-in-time snapshot of all stored sessions in no
	// particular order.
	ListAll() []*Session
}

// NewID generates a unique identifier for sessions and streamed messages.
func NewID() string { return uuid.NewString() }
