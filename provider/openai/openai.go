// Package openai provides an uncached provider.Completer on the OpenAI Chat
// Completions API. OpenAI's prompt caching is automatic and exposes no
// addressable cache resource, so this adapter cannot implement
// provider.ContextCacher; it serves the stateless turn path only.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/provider"
)

const providerName = "OpenAI"

// Options configure the OpenAI adapter.
type Options struct {
	// Models advertised via Info. The per-request Settings.Model wins when
	// it names an OpenAI model; otherwise the first advertised model is used.
	Models []string
}

// Client wraps the OpenAI Chat Completions API behind provider.Completer.
type Client struct {
	client *openai.Client
	opts   Options
}

var _ provider.Completer = (*Client)(nil)

// New creates a new OpenAI client using the official SDK defaults
// (OPENAI_API_KEY environment variable).
func New(optFns ...func(o *Options)) *Client {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient wraps an existing OpenAI client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Models: []string{openai.ChatModelGPT4oMini, openai.ChatModelGPT4o},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Complete implements provider.Completer.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, &core.UpstreamError{Provider: providerName, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.UpstreamError{Provider: providerName, Err: fmt.Errorf("no choices returned")}
	}
	return &provider.CompletionResponse{
		ID:        core.NewID(),
		Content:   resp.Choices[0].Message.Content,
		Timestamp: time.Now().UTC(),
		Usage: &provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
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
		stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(req))
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case tokens <- choice.Delta.Content:
				case <-ctx.Done():
					return
				}
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
		Settings:    core.Settings{MaxTokens: 10, Model: c.opts.Models[0], Temperature: 0.1},
	})
	return err == nil
}

// Info implements provider.Completer.
func (c *Client) Info() provider.Info {
	return provider.Info{Name: providerName, Models: c.opts.Models, SupportsCaching: false}
}

func (c *Client) buildParams(req provider.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+3)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	if req.Context != "" {
		messages = append(messages, openai.UserMessage("Context Information:\n"+req.Context))
	}
	for _, msg := range req.History {
		if msg.Role == core.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(msg.Content))
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.model(req.Settings.Model),
		Temperature:         openai.Float(req.Settings.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.Settings.MaxTokens)),
	}
}

func (c *Client) model(requested string) string {
	for _, m := range c.opts.Models {
		if m == requested {
			return m
		}
	}
	return c.opts.Models[0]
}
