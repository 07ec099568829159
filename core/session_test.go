package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionGeneratesID(t *testing.T) {
	s1 := NewSession("prompt", DefaultSettings())
	s2 := NewSession("prompt", DefaultSettings())

	assert.NotEmpty(t, s1.ID)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Empty(t, s1.CacheID())
}

func TestExpired(t *testing.T) {
	now := time.Now()
	s := NewSession("", DefaultSettings())

	assert.False(t, s.Expired(now), "zero expiry never expires")

	s.SetCache("cachedContents/x", now.Add(time.Hour))
	assert.False(t, s.Expired(now))
	assert.False(t, s.Expired(now.Add(time.Hour-time.Second)))
	assert.True(t, s.Expired(now.Add(time.Hour)))
	assert.True(t, s.Expired(now.Add(2*time.Hour)))
}

func TestReplaceCacheCompareAndSwap(t *testing.T) {
	now := time.Now()
	s := NewSession("", DefaultSettings())
	s.SetCache("old", now)

	ok := s.ReplaceCache("old", "new", now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, "new", s.CacheID())
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt())

	// A second swap from the stale id must lose.
	ok = s.ReplaceCache("old", "other", now.Add(2*time.Hour))
	assert.False(t, ok)
	assert.Equal(t, "new", s.CacheID())
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt())
}

func TestAppendTurnIsAtomicPair(t *testing.T) {
	s := NewSession("", DefaultSettings())

	s.AppendTurn("question", "answer")

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "question", history[0].Content)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, "answer", history[1].Content)
}

func TestHistoryGrowsByEvenIncrements(t *testing.T) {
	s := NewSession("", DefaultSettings())
	for i := 0; i < 5; i++ {
		before := s.MessageCount()
		s.AppendTurn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		assert.Equal(t, before+2, s.MessageCount())
	}
}

func TestCompletePending(t *testing.T) {
	s := NewSession("", DefaultSettings())

	assert.False(t, s.CompletePending("reply"), "nothing pending on empty history")

	s.AppendPending("first message")
	require.True(t, s.CompletePending("reply"))

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first message", history[0].Content)
	assert.Equal(t, "reply", history[1].Content)

	assert.False(t, s.CompletePending("again"), "history no longer ends in a lone user message")
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewSession("", DefaultSettings())
	s.AppendTurn("q", "a")

	history := s.History()
	history[0].Content = "mutated"

	assert.Equal(t, "q", s.History()[0].Content)
}

func TestConcurrentAppendsStayPaired(t *testing.T) {
	s := NewSession("", DefaultSettings())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendTurn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}(i)
	}
	wg.Wait()

	history := s.History()
	require.Len(t, history, 100)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, RoleUser, history[i].Role)
		assert.Equal(t, RoleAssistant, history[i+1].Role)
		// Each pair must be adjacent: "qN" followed by "aN".
		assert.Equal(t, history[i].Content[1:], history[i+1].Content[1:])
	}
}

func TestDocumentName(t *testing.T) {
	s := NewSession("", DefaultSettings())
	assert.Equal(t, "", s.DocumentName())

	s.Document = &Document{Filename: "report.pdf"}
	assert.Equal(t, "report.pdf", s.DocumentName())
}
