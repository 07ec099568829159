package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/provider"
	"github.com/hupe1980/chatrelay/session"
)

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T) (*Manager, *provider.MockProvider, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now().UTC()}
	mock := provider.NewMockProvider()
	manager := NewManager(session.NewInMemoryStore(), mock, func(o *Options) {
		o.Clock = clock.Now
	})
	return manager, mock, clock
}

func TestCreateWithText(t *testing.T) {
	manager, _, clock := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "grounding text"})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.CacheID())
	assert.Equal(t, "grounding text", s.OriginalContext)
	assert.Nil(t, s.Document)
	assert.Equal(t, clock.Now().Add(core.DefaultSessionTTL), s.ExpiresAt())
	assert.Equal(t, 0, s.MessageCount())
}

func TestCreateWithFile(t *testing.T) {
	manager, _, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{
		File: &FileUpload{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("file context")},
	})
	require.NoError(t, err)

	require.NotNil(t, s.Document)
	assert.Equal(t, "notes.txt", s.Document.Filename)
	assert.Empty(t, s.OriginalContext)
}

func TestCreateValidation(t *testing.T) {
	manager, _, _ := newTestManager(t)

	var validationErr *core.ValidationError

	_, err := manager.Create(t.Context(), CreateRequest{})
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr), "no context source")

	_, err = manager.Create(t.Context(), CreateRequest{
		Context: "text",
		File:    &FileUpload{Filename: "f.txt", ContentType: "text/plain", Content: []byte("x")},
	})
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr), "both context sources")
}

func TestCreateCachingFailure(t *testing.T) {
	manager, mock, _ := newTestManager(t)
	mock.FailCaching(errors.New("quota exceeded"))

	_, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	assert.Error(t, err)
	assert.Empty(t, manager.List())
}

func TestCreateRecordsPendingFirstMessage(t *testing.T) {
	manager, _, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text", FirstMessage: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.MessageCount())

	manager.CompleteFirstTurn(s.ID, "hi there")
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
}

func TestGetEvictsExpired(t *testing.T) {
	manager, mock, clock := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)
	cacheID := s.CacheID()

	_, ok := manager.Get(t.Context(), s.ID)
	require.True(t, ok)

	clock.Advance(core.DefaultSessionTTL + time.Second)

	_, ok = manager.Get(t.Context(), s.ID)
	assert.False(t, ok)
	assert.False(t, mock.ValidateCache(t.Context(), cacheID), "provider cache deleted on eviction")
	assert.Empty(t, manager.List())
}

func TestValidateAndRefreshValidCache(t *testing.T) {
	manager, _, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)
	old := s.CacheID()

	valid, err := manager.ValidateAndRefresh(t.Context(), s.ID)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, old, s.CacheID(), "valid cache is kept")
}

func TestValidateAndRefreshRebuilds(t *testing.T) {
	manager, mock, clock := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)
	old := s.CacheID()

	clock.Advance(30 * time.Minute)
	mock.InvalidateCache(old)

	valid, err := manager.ValidateAndRefresh(t.Context(), s.ID)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.NotEqual(t, old, s.CacheID(), "refresh installs a new cache id")
	assert.Equal(t, clock.Now().Add(core.DefaultSessionTTL), s.ExpiresAt(), "expiry extended from refresh time")
}

func TestValidateAndRefreshRebuildFailure(t *testing.T) {
	manager, mock, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)
	old := s.CacheID()

	mock.InvalidateCache(old)
	mock.FailCaching(errors.New("provider down"))

	valid, err := manager.ValidateAndRefresh(t.Context(), s.ID)
	require.NoError(t, err, "rebuild failures are reported, not propagated")
	assert.False(t, valid)
	assert.Equal(t, old, s.CacheID(), "stale cache id kept for a later retry")
}

func TestValidateAndRefreshUnknownID(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.ValidateAndRefresh(t.Context(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAppendTurnOnMissingSessionIsNoOp(t *testing.T) {
	manager, _, _ := newTestManager(t)
	manager.AppendTurn("missing", "q", "a")
}

func TestDelete(t *testing.T) {
	manager, mock, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)
	cacheID := s.CacheID()

	assert.True(t, manager.Delete(t.Context(), s.ID))
	assert.False(t, mock.ValidateCache(t.Context(), cacheID))
	assert.False(t, manager.Delete(t.Context(), s.ID), "delete of missing session reports false")
}

func TestSweep(t *testing.T) {
	manager, _, clock := newTestManager(t)

	for i := 0; i < 3; i++ {
		_, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
		require.NoError(t, err)
	}
	clock.Advance(30 * time.Minute)
	fresh, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)

	removed := manager.Sweep(t.Context())
	assert.Equal(t, 3, removed)

	items := manager.List()
	require.Len(t, items, 1)
	assert.Equal(t, fresh.ID, items[0].ID)

	assert.Equal(t, 0, manager.Sweep(t.Context()), "second sweep finds nothing")
}

func TestListNewestFirst(t *testing.T) {
	manager, _, clock := newTestManager(t)

	first, err := manager.Create(t.Context(), CreateRequest{Context: "a"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	// CreatedAt uses wall time, so order the sessions by forcing distinct stamps.
	second, err := manager.Create(t.Context(), CreateRequest{Context: "b"})
	require.NoError(t, err)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	items := manager.List()
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
}

func TestStatus(t *testing.T) {
	manager, mock, _ := newTestManager(t)

	s, err := manager.Create(t.Context(), CreateRequest{Context: "text"})
	require.NoError(t, err)

	status, err := manager.Status(t.Context(), s.ID)
	require.NoError(t, err)
	assert.True(t, status.IsActive)
	assert.True(t, status.CacheValid)
	assert.Equal(t, s.ID, status.SessionID)

	mock.InvalidateCache(s.CacheID())
	status, err = manager.Status(t.Context(), s.ID)
	require.NoError(t, err)
	assert.False(t, status.CacheValid, "status reflects live provider state")

	_, err = manager.Status(t.Context(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSweeperStartStop(t *testing.T) {
	manager, _, _ := newTestManager(t)

	sweeper := NewSweeper(manager, 10*time.Millisecond, nil)
	sweeper.Start()
	time.Sleep(35 * time.Millisecond)
	sweeper.Stop()
}
