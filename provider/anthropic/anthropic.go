// Package anthropic provides an uncached provider.Completer on the Anthropic
// Messages API. Anthropic's prompt caching is declared inline via
// cache_control markers and exposes no addressable cache resource, so this
// adapter cannot implement provider.ContextCacher; it serves the stateless
// turn path only.
package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/provider"
)

const providerName = "Anthropic"

// Options configure the Anthropic adapter.
type Options struct {
	// Models advertised via Info. The per-request Settings.Model wins when
	// it names an Anthropic model; otherwise the first advertised model is used.
	Models []anthropic.Model

	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
}

// Client wraps the Anthropic Messages API behind provider.Completer.
type Client struct {
	client *anthropic.Client
	opts   Options
}

var _ provider.Completer = (*Client)(nil)

// New creates a new Anthropic client using the official SDK.
func New(optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts}
}

// NewFromClient wraps an existing Anthropic client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Models: []anthropic.Model{anthropic.ModelClaude3_5Sonnet20241022, anthropic.ModelClaude3_5Haiku20241022},
	}
}

// Complete implements provider.Completer.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	message, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, &core.UpstreamError{Provider: providerName, Err: err}
	}

	var content string
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}
	if content == "" {
		return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("no text content returned")}
	}

	return &provider.CompletionResponse{
		ID:        core.NewID(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		Usage: &provider.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements provider.Completer using the channel-pair producer
// convention.
func (c *Client) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan string, <-chan error) {
	tokens := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errCh)
		stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
			if !ok || textDelta.Text == "" {
				continue
			}
			select {
			case tokens <- textDelta.Text:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- &core.UpstreamError{Provider: providerName, Err: err}
		}
	}()

	return tokens, errCh
}

// Available implements provider.Completer with a minimal live completion.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.Complete(ctx, provider.CompletionRequest{
		UserMessage: "Hello",
		Settings:    core.Settings{MaxTokens: 10, Model: string(c.opts.Models[0]), Temperature: 0.1},
	})
	return err == nil
}

// Info implements provider.Completer.
func (c *Client) Info() provider.Info {
	models := make([]string, len(c.opts.Models))
	for i, m := range c.opts.Models {
		models[i] = string(m)
	}
	return provider.Info{Name: providerName, Models: models, SupportsCaching: false}
}

func (c *Client) buildParams(req provider.CompletionRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+2)
	if req.Context != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("Context Information:\n"+req.Context)))
	}
	for _, msg := range req.History {
		if msg.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)))

	params := anthropic.MessageNewParams{
		Model:       c.model(req.Settings.Model),
		MaxTokens:   int64(req.Settings.MaxTokens),
		Temperature: anthropic.Float(req.Settings.Temperature),
		Messages:    messages,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	return params
}

func (c *Client) model(requested string) anthropic.Model {
	for _, m := range c.opts.Models {
		if string(m) == requested {
			return m
		}
	}
	return c.opts.Models[0]
}
