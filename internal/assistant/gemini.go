// Package assistant integrates a hosted language model for receipt scanning,
// spending insights and a finance chat. Model output is untrusted input: it
// is parsed defensively and validated exactly like manual entry before it
// can touch the ledger.
package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	genlang "google.golang.org/api/generativelanguage/v1beta"
	goption "google.golang.org/api/option"
)

// Generator produces one model completion for a prompt, optionally grounded
// on an attached image.
type Generator interface {
	Generate(ctx context.Context, prompt string, image *Image) (string, error)
}

// Image is an inline attachment for multimodal prompts.
type Image struct {
	MimeType string
	Data     []byte
}

type GeminiClient struct {
	svc   *genlang.Service
	model string
}

// NewGeminiClient builds a client against the Generative Language API.
// Model is e.g. "models/gemini-1.5-flash".
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing API key")
	}
	if model == "" {
		model = "models/gemini-1.5-flash"
	}
	svc, err := genlang.NewService(ctx, goption.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create generativelanguage service: %w", err)
	}
	return &GeminiClient{svc: svc, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, image *Image) (string, error) {
	parts := []*genlang.Part{{Text: prompt}}
	if image != nil {
		parts = append(parts, &genlang.Part{
			InlineData: &genlang.Blob{
				MimeType: image.MimeType,
				Data:     base64.StdEncoding.EncodeToString(image.Data),
			},
		})
	}

	req := &genlang.GenerateContentRequest{
		Contents: []*genlang.Content{
			{Role: "user", Parts: parts},
		},
	}

	resp, err := c.svc.Models.GenerateContent(c.model, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("model returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	if out.Len() == 0 {
		return "", errors.New("model returned empty text")
	}
	return out.String(), nil
}
