package chat

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/chatrelay/conversation"
	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/logging"
	"github.com/hupe1980/chatrelay/provider"
	"github.com/hupe1980/chatrelay/relay"
)

// Request limit constants applied to every turn.
const (
	MaxSystemPromptLength = 2000
	MaxMessageLength      = 10000
	MaxHistoryCount       = 50
)

// FallbackGreeting is returned when the optional first completion at
// initialization fails; the session itself is kept.
const FallbackGreeting = "I'm ready to help! Please send your first message."

// Request is an uncached turn: no session state involved, the full grounding
// context and history travel with every call.
type Request struct {
	SystemPrompt string         `json:"systemPrompt"`
	Context      string         `json:"context"`
	History      []core.Message `json:"history"`
	Message      string         `json:"message"`
	Settings     core.Settings  `json:"settings"`
	Provider     string         `json:"provider,omitempty"`
}

// InitializeResult reports the outcome of session creation, including the
// reply to the optional first message.
type InitializeResult struct {
	SessionID string    `json:"conversationId"`
	Message   string    `json:"message"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// ProviderStatus describes one registered provider with a live availability
// probe result.
type ProviderStatus struct {
	Name            string   `json:"name"`
	SupportedModels []string `json:"supportedModels"`
	IsAvailable     bool     `json:"isAvailable"`
	Status          string   `json:"status"`
}

// Options configures a Service.
type Options struct {
	// Logger receives turn diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// Completers registers additional providers for the uncached path,
	// selectable per request by name. The caching provider is always
	// registered and is the default.
	Completers []provider.Completer
}

// Service executes uncached and session-bound turns against the registered
// providers.
type Service struct {
	conversations *conversation.Manager
	cacher        provider.ContextCacher
	completers    map[string]provider.Completer
	logger        logging.Logger
}

// NewService creates a Service. The caching provider serves the cached path
// and is the default for uncached turns.
func NewService(conversations *conversation.Manager, cacher provider.ContextCacher, optFns ...func(o *Options)) *Service {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	completers := map[string]provider.Completer{
		strings.ToLower(cacher.Info().Name): cacher,
	}
	for _, c := range opts.Completers {
		completers[strings.ToLower(c.Info().Name)] = c
	}

	return &Service{
		conversations: conversations,
		cacher:        cacher,
		completers:    completers,
		logger:        opts.Logger,
	}
}

// Initialize creates a session with a cached context and, when a first
// message is supplied, runs the first completion. A failed first completion
// keeps the session and returns a canned greeting; the pending user message
// stays recorded for the next turn.
func (s *Service) Initialize(ctx context.Context, req conversation.CreateRequest) (*InitializeResult, error) {
	if len(req.SystemPrompt) > MaxSystemPromptLength {
		return nil, core.Validationf("system prompt too long (%d > %d)", len(req.SystemPrompt), MaxSystemPromptLength)
	}

	session, err := s.conversations.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &InitializeResult{
		SessionID: session.ID,
		Message:   "Context cached successfully.",
		MessageID: core.NewID(),
		Timestamp: time.Now().UTC(),
	}

	if req.FirstMessage != "" {
		resp, err := s.cacher.Complete(ctx, provider.CompletionRequest{
			SystemPrompt: session.SystemPrompt,
			UserMessage:  req.FirstMessage,
			Settings:     session.Settings,
		})
		if err != nil {
			s.logger.Error("First completion failed", "session_id", session.ID, "error", err)
			result.Message = FallbackGreeting
			return result, nil
		}
		s.conversations.CompleteFirstTurn(session.ID, resp.Content)
		result.Message = resp.Content
	}

	return result, nil
}

// Send runs an uncached non-streaming turn.
func (s *Service) Send(ctx context.Context, req Request) (*provider.CompletionResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	completer, err := s.completer(req.Provider)
	if err != nil {
		return nil, err
	}
	return completer.Complete(ctx, s.completionRequest(req))
}

// Stream runs an uncached streaming turn, returning the relayed chunk stream.
func (s *Service) Stream(ctx context.Context, req Request) (<-chan core.StreamChunk, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	completer, err := s.completer(req.Provider)
	if err != nil {
		return nil, err
	}
	tokens, errs := completer.Stream(ctx, s.completionRequest(req))
	return relay.Run(ctx, core.NewID(), tokens, errs), nil
}

// SendSession runs a session-bound non-streaming turn. The cache is validated
// (and refreshed if needed) before the completion; the completed turn is
// appended atomically afterwards.
func (s *Service) SendSession(ctx context.Context, sessionID, message string, settings *core.Settings) (*provider.CompletionResponse, error) {
	session, eff, err := s.prepareTurn(ctx, sessionID, message, settings)
	if err != nil {
		return nil, err
	}

	resp, err := s.cacher.Complete(ctx, provider.CompletionRequest{
		SystemPrompt: session.SystemPrompt,
		History:      session.History(),
		UserMessage:  message,
		Settings:     eff,
	})
	if err != nil {
		return nil, err
	}

	s.conversations.AppendTurn(sessionID, message, resp.Content)
	return resp, nil
}

// StreamSession runs a session-bound streaming turn. Only the new user
// message and prior history travel upstream; the grounding context is
// addressed by the session's cache id. Once the relay drains with at least
// one content chunk and no error, the turn is appended as one atomic pair.
func (s *Service) StreamSession(ctx context.Context, sessionID, message string, settings *core.Settings) (<-chan core.StreamChunk, error) {
	session, eff, err := s.prepareTurn(ctx, sessionID, message, settings)
	if err != nil {
		return nil, err
	}

	tokens, errs := s.cacher.StreamCached(ctx, session.CacheID(), message, session.History(), eff)
	chunks := relay.Run(ctx, core.NewID(), tokens, errs)

	out := make(chan core.StreamChunk, 16)
	go func() {
		defer close(out)
		var content strings.Builder
		var sawTerminal, failed bool
		for chunk := range chunks {
			if chunk.IsComplete {
				sawTerminal = true
				failed = chunk.Content != ""
			} else {
				content.WriteString(chunk.Content)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		// Append only after the relay fully drained with a success terminal:
		// a cancelled or failed stream records nothing.
		if sawTerminal && !failed && content.Len() > 0 {
			s.conversations.AppendTurn(sessionID, message, content.String())
		}
		if failed {
			s.logger.Error("Error during cached streaming response", "session_id", sessionID)
		}
	}()

	return out, nil
}

// Providers reports all registered providers with a live availability probe.
func (s *Service) Providers(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(s.completers))
	for _, c := range s.completers {
		info := c.Info()
		available := c.Available(ctx)
		status := "Available"
		if !available {
			status = "Unavailable"
		}
		statuses = append(statuses, ProviderStatus{
			Name:            info.Name,
			SupportedModels: info.Models,
			IsAvailable:     available,
			Status:          status,
		})
	}
	return statuses
}

// prepareTurn resolves the session, forces cache validation/refresh and
// computes the effective settings for one session-bound turn.
func (s *Service) prepareTurn(ctx context.Context, sessionID, message string, settings *core.Settings) (*core.Session, core.Settings, error) {
	if err := s.validateMessage(message); err != nil {
		return nil, core.Settings{}, err
	}

	session, ok := s.conversations.Get(ctx, sessionID)
	if !ok {
		return nil, core.Settings{}, core.ErrNotFound
	}

	valid, err := s.conversations.ValidateAndRefresh(ctx, sessionID)
	if err != nil {
		return nil, core.Settings{}, err
	}
	if !valid {
		return nil, core.Settings{}, &core.CacheError{SessionID: sessionID}
	}

	eff := session.Settings
	if settings != nil {
		eff = *settings
	}
	return session, eff, nil
}

func (s *Service) completer(name string) (provider.Completer, error) {
	if name == "" {
		return s.cacher, nil
	}
	c, ok := s.completers[strings.ToLower(name)]
	if !ok {
		return nil, core.Validationf("unknown provider %q", name)
	}
	return c, nil
}

func (s *Service) completionRequest(req Request) provider.CompletionRequest {
	return provider.CompletionRequest{
		SystemPrompt: req.SystemPrompt,
		Context:      req.Context,
		History:      req.History,
		UserMessage:  req.Message,
		Settings:     req.Settings,
	}
}

func (s *Service) validate(req Request) error {
	if err := s.validateMessage(req.Message); err != nil {
		return err
	}
	if len(req.SystemPrompt) > MaxSystemPromptLength {
		return core.Validationf("system prompt too long (%d > %d)", len(req.SystemPrompt), MaxSystemPromptLength)
	}
	if len(req.History) > MaxHistoryCount {
		return core.Validationf("too many history messages (%d > %d)", len(req.History), MaxHistoryCount)
	}
	return nil
}

func (s *Service) validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return core.Validationf("message must not be empty")
	}
	if len(message) > MaxMessageLength {
		return core.Validationf("message too long (%d > %d)", len(message), MaxMessageLength)
	}
	return nil
}
