package logic

import (
	"context"

	"xhs-creator/pkg/generator"
)

// AdapterResolver 解析当前配置选中的模型并构造对应协议的适配器。
// 每次生成调用都重新解析，后台切换模型后无需重启进程。
type AdapterResolver struct {
	registry ModelRegistry
}

func NewAdapterResolver(registry ModelRegistry) *AdapterResolver {
	return &AdapterResolver{registry: registry}
}

func (r *AdapterResolver) Resolve(ctx context.Context) (generator.Generator, *generator.ModelInfo, error) {
	modelID, err := r.registry.GetActiveModelID(ctx)
	if err != nil {
		return nil, nil, err
	}
	return generator.Resolve(ctx, r.registry, modelID)
}

// GeneratorResolver 供编排服务依赖的解析接口，测试里用固定适配器替换
type GeneratorResolver interface {
	Resolve(ctx context.Context) (generator.Generator, *generator.ModelInfo, error)
}
