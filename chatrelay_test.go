package chatrelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatrelay/conversation"
	"github.com/hupe1980/chatrelay/provider"
)

func TestFacadeLifecycle(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.AddResponse("first", "welcome")
	mock.AddResponse("next", "a full streamed reply")

	relay := New(mock, func(o *Options) {
		o.SweepInterval = 50 * time.Millisecond
	})
	relay.Start()
	defer relay.Stop()

	result, err := relay.Initialize(t.Context(), conversation.CreateRequest{
		Context:      "grounding",
		FirstMessage: "first",
	})
	require.NoError(t, err)
	assert.Equal(t, "welcome", result.Message)

	content, err := relay.StreamSync(t.Context(), result.SessionID, "next")
	require.NoError(t, err)
	assert.Equal(t, "a full streamed reply", content)

	resp, err := relay.Send(t.Context(), result.SessionID, "next")
	require.NoError(t, err)
	assert.Equal(t, "a full streamed reply", resp.Content)

	status, err := relay.Conversations().Status(t.Context(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 6, status.MessageCount)

	assert.True(t, relay.Delete(t.Context(), result.SessionID))
	assert.False(t, relay.Delete(t.Context(), result.SessionID))
}

func TestFacadeSweeperEvictsExpired(t *testing.T) {
	mock := provider.NewMockProvider()

	relay := New(mock, func(o *Options) {
		o.SessionTTL = 30 * time.Millisecond
		o.SweepInterval = 10 * time.Millisecond
	})
	relay.Start()
	defer relay.Stop()

	result, err := relay.Initialize(t.Context(), conversation.CreateRequest{Context: "grounding"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := relay.Conversations().Get(t.Context(), result.SessionID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestFacadeStreamSyncFailure(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.AddResponse("boom", "partial content then failure")

	relay := New(mock, func(o *Options) {
		o.SweepInterval = 0
	})

	result, err := relay.Initialize(t.Context(), conversation.CreateRequest{Context: "grounding"})
	require.NoError(t, err)

	mock.FailStreamAfter(1, assert.AnError)

	_, err = relay.StreamSync(t.Context(), result.SessionID, "boom")
	assert.ErrorIs(t, err, ErrStreamFailed)
}
