package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// arkImagesGenerator images API 协议适配器。
// 图片走方舟 GenerateImages，文本复用同一客户端的 chat completions。
type arkImagesGenerator struct {
	client      *arkruntime.Client
	modelID     string
	textModelID string
}

func newArkImagesGenerator(info *ModelInfo, apiKey string) *arkImagesGenerator {
	opts := []arkruntime.ConfigOption{}
	if info.BaseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(info.BaseURL))
	}
	textModel := info.TextModelID
	if textModel == "" {
		textModel = info.ModelID
	}
	return &arkImagesGenerator{
		client:      arkruntime.NewClientWithApiKey(apiKey, opts...),
		modelID:     info.ModelID,
		textModelID: textModel,
	}
}

func (g *arkImagesGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return arkChatText(ctx, g.client, g.textModelID, prompt)
}

func (g *arkImagesGenerator) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	size := opts.Size
	if size == "" {
		size = "2K"
	}
	req := model.GenerateImagesRequest{
		Model:          g.modelID,
		Prompt:         withQualityDirective(prompt, opts.Quality),
		Size:           volcengine.String(size),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	}
	// 参考图：单图传字符串，多图传数组
	if len(opts.ReferenceImages) == 1 {
		req.Image = opts.ReferenceImages[0]
	} else if len(opts.ReferenceImages) > 1 {
		req.Image = opts.ReferenceImages
	}

	resp, err := g.client.GenerateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ark GenerateImages: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("ark GenerateImages: %s - %s", resp.Error.Code, resp.Error.Message)
	}
	for _, img := range resp.Data {
		if img.Url != nil && *img.Url != "" {
			return *img.Url, nil
		}
	}
	return "", errors.New("ark GenerateImages: empty image data")
}

// arkChatGenerator chat completions 协议适配器。
// 模型把图片地址混在自由文本里返回，优先走流式读取，失败降级为普通请求，
// 再用 ExtractImageURL 的启发式顺序抽取地址。
type arkChatGenerator struct {
	client      *arkruntime.Client
	modelID     string
	textModelID string
}

func newArkChatGenerator(info *ModelInfo, apiKey string) *arkChatGenerator {
	opts := []arkruntime.ConfigOption{}
	if info.BaseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(info.BaseURL))
	}
	textModel := info.TextModelID
	if textModel == "" {
		textModel = info.ModelID
	}
	return &arkChatGenerator{
		client:      arkruntime.NewClientWithApiKey(apiKey, opts...),
		modelID:     info.ModelID,
		textModelID: textModel,
	}
}

func (g *arkChatGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return arkChatText(ctx, g.client, g.textModelID, prompt)
}

func (g *arkChatGenerator) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	if opts.Size != "" {
		prompt = prompt + "\n输出图片尺寸：" + opts.Size
	}
	prompt = withQualityDirective(prompt, opts.Quality)
	req := model.CreateChatCompletionRequest{
		Model:    g.modelID,
		Messages: []*model.ChatCompletionMessage{chatMessageWithImages(prompt, opts.ReferenceImages)},
	}

	// 优先流式：部分模型只在流式响应里带出图片地址
	output, err := g.collectStream(ctx, req)
	if err != nil || output == "" {
		resp, rerr := g.client.CreateChatCompletion(ctx, req)
		if rerr != nil {
			if err != nil {
				return "", fmt.Errorf("ark chat image: stream: %v; fallback: %w", err, rerr)
			}
			return "", fmt.Errorf("ark chat image: %w", rerr)
		}
		output = chatMessageText(resp)
	}

	url, ok := ExtractImageURL(output)
	if !ok {
		return "", fmt.Errorf("ark chat image: no image url in model output (%d bytes)", len(output))
	}
	return url, nil
}

func (g *arkChatGenerator) collectStream(ctx context.Context, req model.CreateChatCompletionRequest) (string, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		recv, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), err
		}
		for _, choice := range recv.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	return sb.String(), nil
}

// arkChatText 普通文本生成，images/chat 两个适配器共用
func arkChatText(ctx context.Context, client *arkruntime.Client, modelID, prompt string) (string, error) {
	req := model.CreateChatCompletionRequest{
		Model: modelID,
		Messages: []*model.ChatCompletionMessage{
			{
				Role:    model.ChatMessageRoleUser,
				Content: &model.ChatCompletionMessageContent{StringValue: volcengine.String(prompt)},
			},
		},
	}
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ark chat: %w", err)
	}
	text := chatMessageText(resp)
	if text == "" {
		return "", errors.New("ark chat: empty completion")
	}
	return text, nil
}

func chatMessageText(resp model.ChatCompletionResponse) string {
	for _, choice := range resp.Choices {
		if choice.Message.Content != nil && choice.Message.Content.StringValue != nil {
			return *choice.Message.Content.StringValue
		}
	}
	return ""
}

// chatMessageWithImages 构造带参考图的多模态消息
func chatMessageWithImages(prompt string, refs []string) *model.ChatCompletionMessage {
	if len(refs) == 0 {
		return &model.ChatCompletionMessage{
			Role:    model.ChatMessageRoleUser,
			Content: &model.ChatCompletionMessageContent{StringValue: volcengine.String(prompt)},
		}
	}
	parts := []*model.ChatCompletionMessageContentPart{
		{Type: model.ChatCompletionMessageContentPartTypeText, Text: prompt},
	}
	for _, ref := range refs {
		parts = append(parts, &model.ChatCompletionMessageContentPart{
			Type:     model.ChatCompletionMessageContentPartTypeImageURL,
			ImageURL: &model.ChatMessageImageURL{URL: ref},
		})
	}
	return &model.ChatCompletionMessage{
		Role:    model.ChatMessageRoleUser,
		Content: &model.ChatCompletionMessageContent{ListValue: parts},
	}
}
