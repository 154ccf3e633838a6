// Package openaicompat talks to any OpenAI-compatible chat completions endpoint.
package openaicompat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/deusflow/ainews/internal/summarizer"
)

const DefaultModel = "gpt-4o-mini"

type Client struct {
	client openai.Client
	model  string
}

func NewClient(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: openai.NewClient(opts...), model: model}
}

// Factory adapts NewClient to the summarizer gateway.
func Factory(ctx context.Context, cfg summarizer.GenerationConfig) (summarizer.Generator, error) {
	return NewClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
}

func (c *Client) Close() error { return nil }

// Generate sends the prompt as one user message. Each choice becomes a candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (*summarizer.Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	out := &summarizer.Response{}
	for _, choice := range resp.Choices {
		out.Candidates = append(out.Candidates, summarizer.Candidate{
			Parts:        []string{choice.Message.Content},
			FinishReason: choice.FinishReason,
		})
	}
	return out, nil
}
