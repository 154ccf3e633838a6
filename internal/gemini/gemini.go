package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/ainews/internal/summarizer"
)

const DefaultModel = "gemini-2.5-flash"

type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client. baseURL overrides the API endpoint when set.
func NewClient(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Factory adapts NewClient to the summarizer gateway.
func Factory(ctx context.Context, cfg summarizer.GenerationConfig) (summarizer.Generator, error) {
	return NewClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Generate sends the prompt as a single text content.
func (c *Client) Generate(ctx context.Context, prompt string) (*summarizer.Response, error) {
	model := c.client.GenerativeModel(c.model)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return convertResponse(resp), nil
}

// convertResponse keeps only the text parts; the SDK has no top-level text field.
func convertResponse(resp *genai.GenerateContentResponse) *summarizer.Response {
	out := &summarizer.Response{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		c := summarizer.Candidate{}
		if cand.FinishReason != genai.FinishReasonUnspecified {
			c.FinishReason = cand.FinishReason.String()
		}
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					c.Parts = append(c.Parts, string(t))
				}
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}
