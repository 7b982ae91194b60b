package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient generates images with a Gemini image-capable model.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return Image{}, ErrEmptyPrompt
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		if isTimeout(ctx, err) {
			return Image{}, ErrTimeout
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Image{}, &StatusError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return Image{}, fmt.Errorf("generate image: %w", err)
	}

	img, ok := firstInlineImage(resp)
	if !ok {
		return Image{}, fmt.Errorf("%w: no image part in response", ErrMalformedPayload)
	}
	g.logger.Debug("image generated",
		zap.String("model", g.model),
		zap.String("contentType", img.ContentType),
		zap.Int("bytes", len(img.Data)),
	)
	return img, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) (Image, bool) {
	if resp == nil {
		return Image{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				continue
			}
			return Image{Data: part.InlineData.Data, ContentType: part.InlineData.MIMEType}, true
		}
	}
	return Image{}, false
}
