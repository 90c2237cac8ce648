package generator

import (
	"context"
	"errors"
	"fmt"
)

// 接入点类型，决定走哪种线上协议
const (
	EndpointImages = "images"          // OpenAI 风格 images API（方舟 GenerateImages）
	EndpointChat   = "chat"            // chat completions，从模型输出里抽取图片 URL
	EndpointCustom = "custom_endpoint" // 自定义接入点（Gemini 风格 generateContent）
)

// ImageOptions 生图参数
type ImageOptions struct {
	ReferenceImages []string // 参考图 URL，封面图生成后会作为内容页参考图
	Size            string   // 如 "2K"、"1024x1024"
	Quality         string
}

// Generator 统一的文本/图片生成接口，三种线上协议各一个实现。
// 协议选择在解析期由配置枚举决定，运行期不做类型判断。
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error)
}

// ModelInfo 模型注册表里的一条配置
type ModelInfo struct {
	ModelID      string // 服务商侧的模型 ID
	Provider     string // 服务商标识，也是熔断器的服务名
	EndpointType string // images/chat/custom_endpoint
	BaseURL      string
	TextModelID  string // 文本生成用的模型 ID，为空时复用 ModelID
}

// Registry 模型/服务商注册表，密钥与模型配置分开读取
type Registry interface {
	GetModelInfo(ctx context.Context, modelID string) (*ModelInfo, error)
	GetProviderSecret(ctx context.Context, modelID string) (string, error)
}

// ErrModelDisabled 模型被禁用或不存在
var ErrModelDisabled = errors.New("generator: model disabled or not found")

// withQualityDirective 画质要求在各家生图请求里都没有参数位，统一拼进提示词
func withQualityDirective(prompt, quality string) string {
	if quality == "" {
		return prompt
	}
	return prompt + "\n画质要求：" + quality
}

// Resolve 根据配置选中的模型构造对应协议的适配器，同时返回模型配置
// （调用方需要 Provider 名作为熔断器的服务名）
func Resolve(ctx context.Context, reg Registry, modelID string) (Generator, *ModelInfo, error) {
	info, err := reg.GetModelInfo(ctx, modelID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve model %s: %w", modelID, err)
	}
	secret, err := reg.GetProviderSecret(ctx, modelID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve secret for %s: %w", modelID, err)
	}
	switch info.EndpointType {
	case EndpointImages:
		return newArkImagesGenerator(info, secret), info, nil
	case EndpointChat:
		return newArkChatGenerator(info, secret), info, nil
	case EndpointCustom:
		return newGeminiGenerator(info, secret), info, nil
	default:
		return nil, nil, fmt.Errorf("generator: unsupported endpoint type %q", info.EndpointType)
	}
}
