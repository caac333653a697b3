package api

import (
	"context"
	"fmt"
	"pet-arena/internal/config"
	"pet-arena/internal/domain"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini generative API for both text and image synthesis.
type GeminiClient struct {
	models modelsAPI
}

// modelsAPI is the slice of *genai.Models this client calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type TextRequest struct {
	Model       string
	Turns       []domain.Turn
	Temperature float32
}

type ImageRequest struct {
	Model       string
	Turns       []domain.Turn
	Temperature float32
	TopP        float32
	TopK        float32
}

func NewGeminiClient(cfg *config.Config) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{models: client.Models}, nil
}

// GenerateText returns the trimmed text of the first part of the first candidate,
// or "" when the model produced none.
func (c *GeminiClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	resp, err := c.models.GenerateContent(ctx, req.Model, toContents(req.Turns), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI text generation failed: %w", err)
	}
	return firstText(resp), nil
}

// GenerateImage asks for text and image modalities and returns the first inline
// image part. A response without candidates or inline data yields nil, nil.
func (c *GeminiClient) GenerateImage(ctx context.Context, req ImageRequest) (*domain.Blob, error) {
	resp, err := c.models.GenerateContent(ctx, req.Model, toContents(req.Turns), &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Temperature),
		TopP:               genai.Ptr(req.TopP),
		TopK:               genai.Ptr(req.TopK),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI image generation failed: %w", err)
	}
	return firstInlineImage(resp), nil
}

func toContents(turns []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: p.InlineData.MIMEType,
					Data:     p.InlineData.Data,
				}})
				continue
			}
			parts = append(parts, &genai.Part{Text: p.Text})
		}
		contents = append(contents, &genai.Content{Role: string(turn.Role), Parts: parts})
	}
	return contents
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return ""
	}
	return strings.TrimSpace(content.Parts[0].Text)
}

func firstInlineImage(resp *genai.GenerateContentResponse) *domain.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &domain.Blob{MIMEType: mime, Data: part.InlineData.Data}
	}
	return nil
}
