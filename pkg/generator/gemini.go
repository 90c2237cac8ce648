package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// geminiGenerator 自定义接入点适配器，走 Gemini 风格 generateContent 协议。
// 图片结果可能以内联字节或文本里的地址返回，两种都处理。
type geminiGenerator struct {
	modelID string
	apiKey  string
	baseURL string
}

func newGeminiGenerator(info *ModelInfo, apiKey string) *geminiGenerator {
	return &geminiGenerator{
		modelID: info.ModelID,
		apiKey:  apiKey,
		baseURL: info.BaseURL,
	}
}

func (g *geminiGenerator) newClient(ctx context.Context) (*genai.Client, error) {
	cfg := &genai.ClientConfig{APIKey: g.apiKey}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	return genai.NewClient(ctx, cfg)
}

func (g *geminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	client, err := g.newClient(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}
	result, err := client.Models.GenerateContent(ctx, g.modelID, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", errors.New("gemini GenerateContent: empty response")
	}
	return text, nil
}

func (g *geminiGenerator) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	client, err := g.newClient(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(withQualityDirective(prompt, opts.Quality))}
	for _, ref := range opts.ReferenceImages {
		parts = append(parts, genai.NewPartFromURI(ref, "image/jpeg"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := client.Models.GenerateContent(ctx, g.modelID, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent: %w", err)
	}

	// 内联图片字节优先，转成 data URI
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," +
					base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	if url, ok := ExtractImageURL(result.Text()); ok {
		return url, nil
	}
	return "", errors.New("gemini GenerateContent: no image in response")
}
