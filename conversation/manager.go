package conversation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/document"
	"github.com/hupe1980/chatrelay/logging"
	"github.com/hupe1980/chatrelay/provider"
)

// Options configures a Manager.
type Options struct {
	// Logger receives lifecycle and refresh diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// TTL is the local session expiry horizon applied on creation and on
	// every successful cache rematerialization.
	TTL time.Duration

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// Manager owns the session lifecycle. It coordinates the injected store with
// the provider's cached-context resource but never holds a global lock:
// per-session updates rely on the Session's own serialization and the
// compare-and-swap cache replacement.
type Manager struct {
	store  core.Store
	cacher provider.ContextCacher
	logger logging.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager over the given store and caching provider.
func NewManager(store core.Store, cacher provider.ContextCacher, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger: logging.NoOpLogger{},
		TTL:    core.DefaultSessionTTL,
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{store: store, cacher: cacher, logger: opts.Logger, ttl: opts.TTL, now: opts.Clock}
}

// FileUpload carries an uploaded context document into Create.
type FileUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// CreateRequest describes a new session. Exactly one of Context / File must
// be supplied.
type CreateRequest struct {
	Context      string
	File         *FileUpload
	SystemPrompt string
	FirstMessage string
	Settings     core.Settings
}

// Create validates the request, materializes a provider cache from the
// supplied context source and stores the resulting session. The optional
// first message is recorded as a pending user message; its assistant reply is
// appended by the caller once the first completion finishes.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*core.Session, error) {
	hasText := req.Context != ""
	hasFile := req.File != nil
	switch {
	case !hasText && !hasFile:
		return nil, core.Validationf("either context text or file must be provided")
	case hasText && hasFile:
		return nil, core.Validationf("context text and file are mutually exclusive")
	}

	session := core.NewSession(req.SystemPrompt, normalizeSettings(req.Settings))

	var (
		cacheID string
		err     error
	)
	if hasFile {
		doc, verr := document.Validate(req.File.Filename, req.File.ContentType, req.File.Content)
		if verr != nil {
			return nil, verr
		}
		session.Document = doc
		cacheID, err = m.cacher.CacheFile(ctx, doc.Content, doc.Filename, doc.ContentType, req.SystemPrompt, session.Settings.Model)
	} else {
		session.OriginalContext = req.Context
		cacheID, err = m.cacher.CacheText(ctx, req.Context, req.SystemPrompt, session.Settings.Model)
	}
	if err != nil {
		return nil, fmt.Errorf("cache context: %w", err)
	}

	session.SetCache(cacheID, m.now().Add(m.ttl))

	if req.FirstMessage != "" {
		session.AppendPending(req.FirstMessage)
	}

	m.store.Put(session)
	m.logger.Info("Created conversation", "session_id", session.ID, "cache_id", cacheID)

	return session, nil
}

// Get returns the session for id, enforcing passive expiry: an expired
// session is evicted (with a best-effort provider cache delete) and reported
// absent, indistinguishable from one that never existed.
func (m *Manager) Get(ctx context.Context, id string) (*core.Session, bool) {
	session, ok := m.store.Get(id)
	if !ok {
		return nil, false
	}
	if session.Expired(m.now()) {
		m.logger.Info("Conversation has expired", "session_id", id)
		m.Delete(ctx, id)
		return nil, false
	}
	return session, true
}

// ValidateAndRefresh checks the provider-side cache and rebuilds it from the
// session's retained context source when it has vanished. Returns false when
// the rebuild fails; the session keeps its stale cache id so a later call can
// retry. Rebuild failures are logged, never propagated as errors.
func (m *Manager) ValidateAndRefresh(ctx context.Context, id string) (bool, error) {
	session, ok := m.store.Get(id)
	if !ok {
		return false, core.ErrNotFound
	}

	old := session.CacheID()
	if m.cacher.ValidateCache(ctx, old) {
		return true, nil
	}

	m.logger.Info("Cache is invalid, attempting refresh", "session_id", id, "cache_id", old)

	cacheID, err := m.rebuildCache(ctx, session)
	if err != nil {
		m.logger.Error("Failed to refresh cache", "session_id", id, "error", err)
		return false, nil
	}

	if !session.ReplaceCache(old, cacheID, m.now().Add(m.ttl)) {
		// A concurrent refresh won the race and installed a fresh cache; ours
		// is redundant.
		m.cacher.DeleteCache(ctx, cacheID)
		m.logger.Debug("Concurrent refresh already installed a new cache", "session_id", id)
		return true, nil
	}

	m.logger.Info("Successfully refreshed cache", "session_id", id, "cache_id", cacheID)
	return true, nil
}

// rebuildCache rematerializes the provider cache from the retained context
// source only. Conversation history is never part of the cache: it represents
// the original grounding context, nothing else.
func (m *Manager) rebuildCache(ctx context.Context, session *core.Session) (string, error) {
	if session.Document != nil {
		return m.cacher.CacheFile(ctx, session.Document.Content, session.Document.Filename, session.Document.ContentType, session.SystemPrompt, session.Settings.Model)
	}
	return m.cacher.CacheText(ctx, session.OriginalContext, session.SystemPrompt, session.Settings.Model)
}

// AppendTurn atomically records a completed (user, assistant) pair. Racing
// against expiry or deletion is tolerated: the append becomes a logged no-op.
func (m *Manager) AppendTurn(id, userText, assistantText string) {
	session, ok := m.store.Get(id)
	if !ok {
		m.logger.Warn("Attempted to update non-existent conversation", "session_id", id)
		return
	}
	session.AppendTurn(userText, assistantText)
	m.logger.Debug("Updated conversation with new messages", "session_id", id)
}

// CompleteFirstTurn records the assistant reply closing the pending first
// message supplied at creation. A no-op if the session vanished or the
// history is not awaiting a reply.
func (m *Manager) CompleteFirstTurn(id, assistantText string) {
	session, ok := m.store.Get(id)
	if !ok {
		m.logger.Warn("Attempted to update non-existent conversation", "session_id", id)
		return
	}
	if !session.CompletePending(assistantText) {
		m.logger.Warn("No pending first message to complete", "session_id", id)
	}
}

// Delete removes the session and best-effort deletes the provider cache. The
// session record is gone even if the provider-side delete fails; the remote
// cache will simply TTL out.
func (m *Manager) Delete(ctx context.Context, id string) bool {
	session, ok := m.store.Remove(id)
	if !ok {
		return false
	}
	m.cacher.DeleteCache(ctx, session.CacheID())
	m.logger.Info("Deleted conversation", "session_id", id, "cache_id", session.CacheID())
	return true
}

// Sweep removes every session whose expiry has passed and returns the count
// removed. It only touches entries already logically expired and never blocks
// concurrent reads or writes.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	removed := 0
	for _, session := range m.store.ListAll() {
		if session.Expired(now) && m.Delete(ctx, session.ID) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Cleaned up expired conversations", "count", removed)
	}
	return removed
}

// ListItem summarizes one session for display.
type ListItem struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	MessageCount int       `json:"messageCount"`
	DocumentName string    `json:"documentName,omitempty"`
	IsActive     bool      `json:"isActive"`
}

// List returns summaries of all stored sessions, newest first.
func (m *Manager) List() []ListItem {
	now := m.now()
	sessions := m.store.ListAll()
	items := make([]ListItem, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, ListItem{
			ID:           session.ID,
			CreatedAt:    session.CreatedAt,
			ExpiresAt:    session.ExpiresAt(),
			MessageCount: session.MessageCount(),
			DocumentName: session.DocumentName(),
			IsActive:     !session.Expired(now),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}

// Status reports local and provider-side health for one session. CacheValid
// requires a live provider round trip, so this is a read with an external
// side query, not a pure getter.
type Status struct {
	SessionID      string    `json:"sessionId"`
	IsActive       bool      `json:"isActive"`
	CacheValid     bool      `json:"cacheValid"`
	CacheExpiresAt time.Time `json:"cacheExpiresAt"`
	MessageCount   int       `json:"messageCount"`
	DocumentName   string    `json:"documentName,omitempty"`
}

// Status returns the session status or core.ErrNotFound if the id is unknown.
func (m *Manager) Status(ctx context.Context, id string) (*Status, error) {
	session, ok := m.store.Get(id)
	if !ok {
		return nil, core.ErrNotFound
	}
	return &Status{
		SessionID:      id,
		IsActive:       !session.Expired(m.now()),
		CacheValid:     m.cacher.ValidateCache(ctx, session.CacheID()),
		CacheExpiresAt: session.ExpiresAt(),
		MessageCount:   session.MessageCount(),
		DocumentName:   session.DocumentName(),
	}, nil
}

func normalizeSettings(s core.Settings) core.Settings {
	defaults := core.DefaultSettings()
	if s.Model == "" {
		s.Model = defaults.Model
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaults.MaxTokens
	}
	if s.Temperature <= 0 {
		s.Temperature = defaults.Temperature
	}
	return s
}
