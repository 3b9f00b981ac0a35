// Package openai implements llm.Client using the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jxucoder/latexgen/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Client implements llm.Client using the official openai-go SDK.
type Client struct {
	model  string
	client openai.Client
}

// New creates a client for the OpenAI API.
// Model defaults to DefaultModel if empty. Extra request options (base URL,
// retries) are passed through to the SDK.
func New(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	all := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(2),
	}
	all = append(all, opts...)
	return &Client{
		model:  model,
		client: openai.NewClient(all...),
	}
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
