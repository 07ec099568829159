package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatrelay/core"
)

// source builds a producer-convention channel pair: tokens closed at the end,
// buffered error channel carrying at most one terminal error.
func source(toks []string, terminal error) (<-chan string, <-chan error) {
	tokens := make(chan string, len(toks))
	errCh := make(chan error, 1)
	for _, t := range toks {
		tokens <- t
	}
	if terminal != nil {
		errCh <- terminal
	}
	close(tokens)
	close(errCh)
	return tokens, errCh
}

func collectAll(t *testing.T, ch <-chan core.StreamChunk) []core.StreamChunk {
	t.Helper()
	var got []core.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	return got
}

func TestRun_NormalCompletion(t *testing.T) {
	tokens, errs := source([]string{"a", "b", "c"}, nil)
	got := collectAll(t, Run(context.Background(), "m1", tokens, errs))

	require.Len(t, got, 4)
	assert.Equal(t, core.StreamChunk{Content: "a", MessageID: "m1"}, got[0])
	assert.Equal(t, core.StreamChunk{Content: "b", MessageID: "m1"}, got[1])
	assert.Equal(t, core.StreamChunk{Content: "c", MessageID: "m1"}, got[2])
	assert.Equal(t, core.StreamChunk{IsComplete: true, MessageID: "m1"}, got[3])
}

func TestRun_EmptyStreamStillTerminates(t *testing.T) {
	tokens, errs := source(nil, nil)
	got := collectAll(t, Run(context.Background(), "m1", tokens, errs))

	require.Len(t, got, 1)
	assert.True(t, got[0].IsComplete)
	assert.Empty(t, got[0].Content)
}

func TestRun_ErrorBeforeFirstToken(t *testing.T) {
	tokens, errs := source(nil, errors.New("boom"))
	got := collectAll(t, Run(context.Background(), "m1", tokens, errs))

	require.Len(t, got, 1)
	assert.True(t, got[0].IsComplete)
	assert.Equal(t, ErrorContent, got[0].Content)
}

func TestRun_MidStreamErrorKeepsDeliveredContent(t *testing.T) {
	tokens, errs := source([]string{"a"}, errors.New("boom"))
	got := collectAll(t, Run(context.Background(), "m1", tokens, errs))

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Content)
	assert.False(t, got[0].IsComplete)
	assert.True(t, got[1].IsComplete)
	assert.Equal(t, ErrorContent, got[1].Content)
}

func TestRun_SkipsEmptyTokens(t *testing.T) {
	tokens, errs := source([]string{"", "x", ""}, nil)
	got := collectAll(t, Run(context.Background(), "m1", tokens, errs))

	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Content)
	assert.True(t, got[1].IsComplete)
}

func TestRun_CancellationClosesWithoutTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tokens := make(chan string) // never closed: upstream stalls
	errs := make(chan error, 1)

	out := Run(ctx, "m1", tokens, errs)
	cancel()

	select {
	case chunk, ok := <-out:
		assert.False(t, ok, "expected closed channel, got %+v", chunk)
	case <-time.After(time.Second):
		t.Fatal("relay did not close after cancellation")
	}
}

func TestRun_CancellationMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tokens := make(chan string)
	errs := make(chan error, 1)

	out := Run(ctx, "m1", tokens, errs)
	tokens <- "a"

	first := <-out
	assert.Equal(t, "a", first.Content)

	cancel()
	for range out { // drain until closed; no terminal chunk is required
	}
}

func TestCollect(t *testing.T) {
	tokens, errs := source([]string{"he", "llo"}, nil)
	content, failed := Collect(Run(context.Background(), "m1", tokens, errs))
	assert.Equal(t, "hello", content)
	assert.False(t, failed)

	tokens, errs = source([]string{"he"}, errors.New("boom"))
	content, failed = Collect(Run(context.Background(), "m1", tokens, errs))
	assert.Equal(t, "he", content)
	assert.True(t, failed)
}
