// Package ai executes research phases with an OpenAI-compatible chat completion API.
package ai

import (
	"context"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/sashabaranov/go-openai"
	"log/slog"
)

const MaxTokens = 4096

var ErrEmptyCompletion = errors.NewSentinel("completion has no choices")

// Config selects the model endpoint.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a local OpenAI-compatible server.
	BaseURL string
	Model   string
}

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo1106
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Complete sends the system and user prompts and returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "create chat completion", slog.String("model", c.model))
	}
	if len(completion.Choices) == 0 {
		return "", errors.Wrap(ErrEmptyCompletion, "create chat completion", slog.String("model", c.model))
	}
	return completion.Choices[0].Message.Content, nil
}
