// Package chatrelay provides a high-level façade over the conversation
// manager, chat service and session store. Most applications interact with
// this package by:
//  1. Creating a ChatRelay via New() with a caching provider (optionally
//     overriding the default in-memory store)
//  2. Initializing conversations with a grounding context (text or file)
//  3. Sending or streaming turns against the cached context
//
// The façade delegates lifecycle work to conversation.Manager and turn
// execution to chat.Service while keeping setup concise. Defaults are safe
// for local development and testing; production deployments typically supply
// a structured logger and run the background sweeper.
package chatrelay

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/chatrelay/chat"
	"github.com/hupe1980/chatrelay/conversation"
	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/logging"
	"github.com/hupe1980/chatrelay/provider"
	"github.com/hupe1980/chatrelay/relay"
	"github.com/hupe1980/chatrelay/session"
)

// ErrStreamFailed is returned by StreamSync when the stream ended with an
// error terminal instead of a completed response.
var ErrStreamFailed = errors.New("streaming response failed")

// Options configures the ChatRelay instance.
type Options struct {
	// Store holds live sessions (defaults to the in-memory implementation).
	Store core.Store

	// Completers registers additional providers for the uncached turn path,
	// selectable per request by name.
	Completers []provider.Completer

	// SessionTTL is the local expiry horizon for sessions.
	SessionTTL time.Duration

	// SweepInterval controls the background expiry sweep. Zero disables the
	// sweeper; expired sessions are still evicted lazily on access.
	SweepInterval time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// ChatRelay is the high-level façade aggregating the conversation manager and
// the chat service.
type ChatRelay struct {
	manager *conversation.Manager
	service *chat.Service
	sweeper *conversation.Sweeper
}

// New creates a new ChatRelay over the given caching provider with optional
// overrides. Any unset service is initialized with an in-memory implementation.
func New(cacher provider.ContextCacher, optFns ...func(o *Options)) *ChatRelay {
	opts := Options{
		Store:         session.NewInMemoryStore(),
		SessionTTL:    core.DefaultSessionTTL,
		SweepInterval: conversation.DefaultSweepInterval,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	manager := conversation.NewManager(opts.Store, cacher, func(o *conversation.Options) {
		o.Logger = opts.Logger
		o.TTL = opts.SessionTTL
	})

	service := chat.NewService(manager, cacher, func(o *chat.Options) {
		o.Logger = opts.Logger
		o.Completers = opts.Completers
	})

	relay := &ChatRelay{manager: manager, service: service}
	if opts.SweepInterval > 0 {
		relay.sweeper = conversation.NewSweeper(manager, opts.SweepInterval, opts.Logger)
	}
	return relay
}

// Conversations returns the underlying lifecycle manager.
func (r *ChatRelay) Conversations() *conversation.Manager { return r.manager }

// Service returns the underlying chat service.
func (r *ChatRelay) Service() *chat.Service { return r.service }

// Start launches the background expiry sweeper, if configured.
func (r *ChatRelay) Start() {
	if r.sweeper != nil {
		r.sweeper.Start()
	}
}

// Stop halts the background sweeper and waits for it to finish.
func (r *ChatRelay) Stop() {
	if r.sweeper != nil {
		r.sweeper.Stop()
	}
}

// Initialize creates a conversation with a cached grounding context.
func (r *ChatRelay) Initialize(ctx context.Context, req conversation.CreateRequest) (*chat.InitializeResult, error) {
	return r.service.Initialize(ctx, req)
}

// Send runs a non-streaming turn against an existing conversation.
func (r *ChatRelay) Send(ctx context.Context, sessionID, message string) (*provider.CompletionResponse, error) {
	return r.service.SendSession(ctx, sessionID, message, nil)
}

// Stream runs a streaming turn against an existing conversation, returning
// the relayed chunk stream.
func (r *ChatRelay) Stream(ctx context.Context, sessionID, message string) (<-chan core.StreamChunk, error) {
	return r.service.StreamSession(ctx, sessionID, message, nil)
}

// StreamSync is a synchronous helper that drains the chunk stream and returns
// the accumulated content, or an error if the stream ended with a failure
// terminal.
func (r *ChatRelay) StreamSync(ctx context.Context, sessionID, message string) (string, error) {
	chunks, err := r.Stream(ctx, sessionID, message)
	if err != nil {
		return "", err
	}
	content, failed := relay.Collect(chunks)
	if failed {
		return content, ErrStreamFailed
	}
	return content, nil
}

// Delete removes a conversation and its provider-side cache.
func (r *ChatRelay) Delete(ctx context.Context, sessionID string) bool {
	return r.manager.Delete(ctx, sessionID)
}
