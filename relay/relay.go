package relay

import (
	"context"

	"github.com/hupe1980/chatrelay/core"
)

// ErrorContent is the fixed human-readable content carried by the terminal
// chunk of a failed stream. Content already delivered before the failure is
// never retracted.
const ErrorContent = "Error: Failed to generate response"

// Run wraps an upstream token source into a chunk stream with these
// guarantees:
//
//  1. Exactly one terminal chunk (IsComplete) is emitted, whether the
//     upstream ends normally, ends empty, or fails mid-stream.
//  2. A failure before the first token yields only the error terminal chunk.
//  3. A failure after n tokens yields all n content chunks, then the error
//     terminal chunk.
//  4. Cancelling ctx stops pulling from upstream at the next suspension
//     point and closes the output without a terminal chunk; the consumer has
//     already disengaged.
//
// The upstream must follow the producer convention: tokens is closed when the
// producer finishes, errs is buffered, carries at most one terminal error and
// is closed afterwards. Cancellation propagates to the producer through ctx,
// which releases the upstream resources on every exit path.
func Run(ctx context.Context, messageID string, tokens <-chan string, errs <-chan error) <-chan core.StreamChunk {
	out := make(chan core.StreamChunk, 16)

	go func() {
		defer close(out)

	drain:
		for {
			select {
			case <-ctx.Done():
				return
			case tok, ok := <-tokens:
				if !ok {
					break drain
				}
				if tok == "" {
					continue
				}
				select {
				case out <- core.StreamChunk{Content: tok, MessageID: messageID}:
				case <-ctx.Done():
					return
				}
			}
		}

		// The producer has finished; a terminal error, if any, is already
		// buffered on errs.
		var failed bool
		select {
		case err, ok := <-errs:
			failed = ok && err != nil
		case <-ctx.Done():
			return
		}

		terminal := core.StreamChunk{IsComplete: true, MessageID: messageID}
		if failed {
			terminal.Content = ErrorContent
		}
		select {
		case out <- terminal:
		case <-ctx.Done():
		}
	}()

	return out
}

// Collect drains a chunk stream to completion, returning the concatenated
// content and whether the stream terminated with an error chunk. Intended for
// non-transport consumers (tests, synchronous turn handlers).
func Collect(chunks <-chan core.StreamChunk) (content string, failed bool) {
	var buf []byte
	for chunk := range chunks {
		if chunk.IsComplete {
			failed = chunk.Content != ""
			continue
		}
		buf = append(buf, chunk.Content...)
	}
	return string(buf), failed
}
