// Package gemini implements provider.ContextCacher on the Gemini API via the
// official google.golang.org/genai SDK. Gemini is the only supported provider
// exposing an explicit, addressable cached-content resource, which is what
// the session lifecycle's validate/refresh cycle is built around.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/logging"
	"github.com/hupe1980/chatrelay/provider"
)

// CacheTTL is the TTL requested for provider-side cached contents. Decoupled
// from the local session TTL on purpose: the two expire independently and are
// reconciled lazily.
const CacheTTL = time.Hour

const providerName = "Gemini"

// Options configures the Gemini provider.
type Options struct {
	// APIKey overrides the GEMINI_API_KEY environment variable.
	APIKey string

	// Models advertised via Info.
	Models []string

	// Logger receives request diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// FilePollInterval / FilePollAttempts bound the wait for uploaded file
	// processing before a file-backed cache can be created.
	FilePollInterval time.Duration
	FilePollAttempts int

	// Nucleus / top-k sampling applied to every generation.
	TopP float32
	TopK float32
}

// Client wraps the genai SDK behind the provider.ContextCacher interface.
type Client struct {
	client *genai.Client
	opts   Options
	logger logging.Logger
}

var _ provider.ContextCacher = (*Client)(nil)

// New creates a Gemini client. The API key is read from the options or the
// GEMINI_API_KEY environment variable (SDK default).
func New(ctx context.Context, optFns ...func(o *Options)) (*Client, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client, opts), nil
}

// NewFromClient wraps an existing genai client.
func NewFromClient(client *genai.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newClient(client, opts)
}

func defaultOptions() Options {
	return Options{
		Models:           []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-2.5-flash", "gemini-2.5-pro"},
		Logger:           logging.NoOpLogger{},
		FilePollInterval: time.Second,
		FilePollAttempts: 30,
		TopP:             0.8,
		TopK:             40,
	}
}

func newClient(client *genai.Client, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{client: client, opts: opts, logger: opts.Logger}
}

// Complete implements provider.Completer.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, req.Settings.Model, c.buildContents(req), c.genConfig(req.SystemPrompt, req.Settings))
	if err != nil {
		return nil, &core.UpstreamError{Provider: providerName, Err: err}
	}
	return c.toResponse(resp)
}

// Stream implements provider.Completer.
func (c *Client) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan string, <-chan error) {
	return c.stream(ctx, req.Settings.Model, c.buildContents(req), c.genConfig(req.SystemPrompt, req.Settings))
}

// StreamCached implements provider.ContextCacher. The grounding context is
// addressed by cacheID; only the prior history and the new user message are
// sent. The system instruction lives inside the cached content and must not
// be repeated here.
func (c *Client) StreamCached(ctx context.Context, cacheID, userMessage string, history []core.Message, settings core.Settings) (<-chan string, <-chan error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, historyContents(history)...)
	contents = append(contents, userContent(userMessage))

	cfg := c.genConfig("", settings)
	cfg.CachedContent = cacheID

	return c.stream(ctx, settings.Model, contents, cfg)
}

// stream adapts the SDK's iterator into the channel-pair producer convention:
// tokens closed at the end, at most one terminal error, context cancellation
// stops the iteration (and the underlying response body) promptly.
func (c *Client) stream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (<-chan string, <-chan error) {
	tokens := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errCh)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				errCh <- &core.UpstreamError{Provider: providerName, Err: err}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case tokens <- text:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errCh
}

// CacheText implements provider.ContextCacher.
func (c *Client) CacheText(ctx context.Context, text, systemPrompt, model string) (string, error) {
	cfg := &genai.CreateCachedContentConfig{
		DisplayName: fmt.Sprintf("TextContext_%s", time.Now().UTC().Format("20060102_150405")),
		TTL:         CacheTTL,
		Contents:    []*genai.Content{userContent(text)},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = systemContent(systemPrompt)
	}

	cached, err := c.client.Caches.Create(ctx, model, cfg)
	if err != nil {
		return "", &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("create text cache: %w", err)}
	}
	c.logger.Info("Created text cache", "cache_id", cached.Name)
	return cached.Name, nil
}

// CacheFile implements provider.ContextCacher. The file is uploaded first,
// then referenced by URI from the cached content once processing finishes.
func (c *Client) CacheFile(ctx context.Context, content []byte, filename, mimeType, systemPrompt, model string) (string, error) {
	file, err := c.uploadFile(ctx, content, filename, mimeType)
	if err != nil {
		return "", err
	}

	cfg := &genai.CreateCachedContentConfig{
		DisplayName: fmt.Sprintf("FileContext_%s_%s", filename, time.Now().UTC().Format("20060102_150405")),
		TTL:         CacheTTL,
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{FileData: &genai.FileData{FileURI: file.URI, MIMEType: mimeType}}},
		}},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = systemContent(systemPrompt)
	}

	cached, err := c.client.Caches.Create(ctx, model, cfg)
	if err != nil {
		return "", &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("create file cache: %w", err)}
	}
	c.logger.Info("Created file cache", "cache_id", cached.Name, "filename", filename)
	return cached.Name, nil
}

func (c *Client) uploadFile(ctx context.Context, content []byte, filename, mimeType string) (*genai.File, error) {
	file, err := c.client.Files.Upload(ctx, bytes.NewReader(content), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: filename,
	})
	if err != nil {
		return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("upload file %s: %w", filename, err)}
	}

	for attempt := 0; file.State == genai.FileStateProcessing; attempt++ {
		if attempt >= c.opts.FilePollAttempts {
			return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("file %s still processing after %d attempts", filename, attempt)}
		}
		select {
		case <-time.After(c.opts.FilePollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		file, err = c.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("poll file %s: %w", filename, err)}
		}
	}

	if file.State == genai.FileStateFailed {
		return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("file %s processing failed", filename)}
	}

	c.logger.Debug("File uploaded", "filename", filename, "file_uri", file.URI)
	return file, nil
}

// ValidateCache implements provider.ContextCacher. False covers not-found,
// expired and network conditions alike.
func (c *Client) ValidateCache(ctx context.Context, cacheID string) bool {
	cached, err := c.client.Caches.Get(ctx, cacheID, nil)
	if err != nil {
		c.logger.Warn("Cache validation failed", "cache_id", cacheID, "error", err)
		return false
	}
	if !cached.ExpireTime.IsZero() && !cached.ExpireTime.After(time.Now()) {
		c.logger.Info("Cache has expired", "cache_id", cacheID)
		return false
	}
	return true
}

// DeleteCache implements provider.ContextCacher, best-effort.
func (c *Client) DeleteCache(ctx context.Context, cacheID string) bool {
	if _, err := c.client.Caches.Delete(ctx, cacheID, nil); err != nil {
		c.logger.Warn("Failed to delete cache", "cache_id", cacheID, "error", err)
		return false
	}
	c.logger.Info("Deleted cache", "cache_id", cacheID)
	return true
}

// Available implements provider.Completer with a minimal live completion.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.Complete(ctx, provider.CompletionRequest{
		UserMessage: "Hello",
		Settings:    core.Settings{MaxTokens: 10, Model: c.opts.Models[0], Temperature: 0.1},
	})
	return err == nil
}

// Info implements provider.Completer.
func (c *Client) Info() provider.Info {
	return provider.Info{Name: providerName, Models: c.opts.Models, SupportsCaching: true}
}

func (c *Client) genConfig(systemPrompt string, s core.Settings) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(s.Temperature)),
		MaxOutputTokens: int32(s.MaxTokens),
		TopP:            genai.Ptr(c.opts.TopP),
		TopK:            genai.Ptr(c.opts.TopK),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = systemContent(systemPrompt)
	}
	return cfg
}

// buildContents assembles the uncached request: optional grounding context as
// a leading user message, the prior history, then the new user message.
func (c *Client) buildContents(req provider.CompletionRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+2)
	if req.Context != "" {
		contents = append(contents, userContent("Context Information:\n"+req.Context))
	}
	contents = append(contents, historyContents(req.History)...)
	contents = append(contents, userContent(req.UserMessage))
	return contents
}

func (c *Client) toResponse(resp *genai.GenerateContentResponse) (*provider.CompletionResponse, error) {
	content := resp.Text()
	if content == "" {
		return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("no valid response")}
	}
	out := &provider.CompletionResponse{
		ID:        core.NewID(),
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = &provider.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return out, nil
}

func historyContents(history []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := genai.RoleUser
		if msg.Role == core.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  string(role),
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}

func userContent(text string) *genai.Content {
	return &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: text}}}
}

func systemContent(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}
